// Package gateway fronts every agent-to-agent invocation with governance.
//
// An invocation is resolved in three steps: look up the target agent's card,
// ask the governance engine for a verdict on the proposed action, and — only
// on allow — forward the payload to the target's registered endpoint. Block
// and escalate short-circuit with typed rejections; the trust-score mutation
// the evaluation performed is never rolled back, whatever happens afterwards.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/SchenleyKB/evermore-cns/internal/governance"
	"github.com/SchenleyKB/evermore-cns/internal/registry"
	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
	"go.uber.org/zap"
)

// registryLookup is the only registry call the gateway makes.
// *registry.MemoryStore satisfies this interface.
type registryLookup interface {
	Lookup(ctx context.Context, agentID string) (*model.AgentCard, error)
}

// evaluator is the governance contract the gateway depends on.
// *governance.Engine satisfies this interface.
type evaluator interface {
	Evaluate(ctx context.Context, action *governance.ProposedAction, card *model.AgentCard) (*governance.Decision, error)
}

// Gateway composes the registry, the governance engine, and the forwarding
// transport into the policy-fronted invocation path.
type Gateway struct {
	store     registryLookup
	engine    evaluator
	forwarder Forwarder
	logger    *zap.Logger
}

// New creates a Gateway.
func New(store registryLookup, engine evaluator, forwarder Forwarder, logger *zap.Logger) *Gateway {
	return &Gateway{store: store, engine: engine, forwarder: forwarder, logger: logger}
}

// Invoke runs a caller's proposed action against governance and, on allow,
// forwards the payload to the target agent's endpoint.
//
// The caller id is injected into the action context under
// governance.ContextKeyCaller; the caller's own maps are never mutated.
// Rejections surface as *PolicyError (block/escalate) or
// *TargetNotFoundError; transport failures as *ForwardError. No retries are
// performed, and a failure after the evaluation does not undo its
// trust-score write.
func (g *Gateway) Invoke(ctx context.Context, callerID, targetID, actionType string, payload, actionCtx map[string]any) (*Response, error) {
	action := &governance.ProposedAction{
		AgentID:    targetID,
		ActionType: actionType,
		Payload:    payload,
		Context:    withCaller(actionCtx, callerID),
	}

	// An absent card is a valid, expected state: the card-dependent rules
	// simply cannot fire, and only an allow verdict requires the card.
	card, err := g.store.Lookup(ctx, targetID)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}

	decision, err := g.engine.Evaluate(ctx, action, card)
	if err != nil {
		return nil, fmt.Errorf("evaluate action: %w", err)
	}

	switch decision.Outcome {
	case governance.OutcomeBlock, governance.OutcomeEscalate:
		g.logger.Info("invocation rejected",
			zap.String("caller_id", callerID),
			zap.String("target_id", targetID),
			zap.String("outcome", string(decision.Outcome)),
			zap.String("reason", decision.Reason),
		)
		return nil, &PolicyError{Decision: decision}
	}

	if card == nil {
		return nil, &TargetNotFoundError{AgentID: targetID, Decision: decision}
	}

	resp, err := g.forwarder.Forward(ctx, card.Endpoint, payload, card.Auth)
	if err != nil {
		g.logger.Warn("forward failed",
			zap.String("target_id", targetID),
			zap.String("endpoint", card.Endpoint),
			zap.Error(err),
		)
		return nil, err
	}

	g.logger.Info("invocation forwarded",
		zap.String("caller_id", callerID),
		zap.String("target_id", targetID),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

// withCaller returns a copy of ctx with the caller id set under the
// reserved key. The input map is left untouched.
func withCaller(actionCtx map[string]any, callerID string) map[string]any {
	out := make(map[string]any, len(actionCtx)+1)
	for k, v := range actionCtx {
		out[k] = v
	}
	out[governance.ContextKeyCaller] = callerID
	return out
}
