package governance

import (
	"context"
	"fmt"
	"sync"

	"github.com/SchenleyKB/evermore-cns/internal/audit"
	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
	"github.com/SchenleyKB/evermore-cns/internal/trust"
	"go.uber.org/zap"
)

// Engine runs the policy rule chain and owns all trust-score mutation.
// It is safe for concurrent use; evaluations for distinct agents proceed in
// parallel, evaluations for the same agent are serialised so the ledger
// read-modify-write never loses an update.
type Engine struct {
	ledger trust.Ledger
	rules  []ruleFunc
	log    audit.Log // nil = auditing disabled
	logger *zap.Logger

	// mu guards agentLocks. Per-agent locks are created lazily and kept for
	// the process lifetime, matching the ledger's monotonic key space.
	mu         sync.Mutex
	agentLocks map[string]*sync.Mutex
}

// NewEngine creates an Engine with the built-in rule chain.
func NewEngine(ledger trust.Ledger, logger *zap.Logger) *Engine {
	return &Engine{
		ledger:     ledger,
		rules:      defaultRules(),
		logger:     logger,
		agentLocks: make(map[string]*sync.Mutex),
	}
}

// SetAuditLog configures the decision audit log. Append failures are logged
// and do not fail the evaluation.
func (e *Engine) SetAuditLog(log audit.Log) {
	e.log = log
}

// Evaluate runs the proposed action through the rule chain and returns the
// resulting decision. card may be nil when the acting agent has no registry
// entry; rules that need the card simply cannot fire.
//
// The outcome/reason of the last matching rule win; penalties from every
// matching rule are summed, subtracted from the score read at the start of
// the evaluation, clamped once, and persisted. The decision carries the
// persisted score.
func (e *Engine) Evaluate(ctx context.Context, action *ProposedAction, card *model.AgentCard) (*Decision, error) {
	lock := e.agentLock(action.AgentID)
	lock.Lock()
	defer lock.Unlock()

	prior, err := e.ledger.Get(ctx, action.AgentID)
	if err != nil {
		return nil, fmt.Errorf("read trust score: %w", err)
	}

	outcome := OutcomeAllow
	reason := ReasonDefaultAllow
	penalty := 0.0
	var triggered []string

	for _, rule := range e.rules {
		hit := rule(action, card, prior)
		if hit == nil {
			continue
		}
		outcome = hit.outcome
		reason = hit.reason
		penalty += hit.penalty
		triggered = append(triggered, hit.reason)
	}

	// Cancellation before the write commits leaves the ledger untouched;
	// after the write, the mutation stands.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := trust.Clamp(prior - penalty)
	if err := e.ledger.Set(ctx, action.AgentID, score); err != nil {
		return nil, fmt.Errorf("persist trust score: %w", err)
	}

	decision := &Decision{
		Outcome:    outcome,
		Reason:     reason,
		TrustScore: score,
		Triggered:  triggered,
	}

	e.record(ctx, action, decision)

	e.logger.Info("governance decision",
		zap.String("agent_id", action.AgentID),
		zap.String("action_type", action.ActionType),
		zap.String("outcome", string(decision.Outcome)),
		zap.String("reason", decision.Reason),
		zap.Float64("trust_score", decision.TrustScore),
	)
	return decision, nil
}

// Trust returns the current trust score for an agent without evaluating
// anything. Agents with no history read as the default.
func (e *Engine) Trust(ctx context.Context, agentID string) (float64, error) {
	return e.ledger.Get(ctx, agentID)
}

// record appends the decision to the audit log when one is configured.
func (e *Engine) record(ctx context.Context, action *ProposedAction, decision *Decision) {
	if e.log == nil {
		return
	}
	caller, _ := action.Context[ContextKeyCaller].(string)
	if _, err := e.log.Append(ctx, audit.Record{
		AgentID:    action.AgentID,
		CallerID:   caller,
		ActionType: action.ActionType,
		Outcome:    string(decision.Outcome),
		Reason:     decision.Reason,
		TrustScore: decision.TrustScore,
		Payload:    action.Payload,
	}); err != nil {
		e.logger.Warn("audit append failed (non-fatal)", zap.Error(err))
	}
}

// agentLock returns the mutex serialising evaluations for one agent id.
func (e *Engine) agentLock(agentID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.agentLocks[agentID]
	if !ok {
		l = &sync.Mutex{}
		e.agentLocks[agentID] = l
	}
	return l
}
