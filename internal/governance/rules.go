package governance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
)

// ruleHit is a single rule match. outcome and reason replace the running
// decision; penalty is added to the evaluation's accumulated penalty.
type ruleHit struct {
	outcome Outcome
	reason  string
	penalty float64
}

// ruleFunc inspects a proposed action and returns a hit if its rule matches.
// card is nil when the acting agent has no registry entry. priorTrust is the
// score read at the start of the evaluation, before any of this evaluation's
// penalties — rules must not see each other's penalties.
type ruleFunc func(action *ProposedAction, card *model.AgentCard, priorTrust float64) *ruleHit

// defaultRules returns the built-in rule chain in evaluation order.
func defaultRules() []ruleFunc {
	return []ruleFunc{
		ruleSensitiveWrite,
		ruleExfiltrationScan,
		ruleHighRiskNetwork,
		ruleLowTrustWrite,
	}
}

// ruleSensitiveWrite escalates database writes flagged as high sensitivity.
func ruleSensitiveWrite(action *ProposedAction, _ *model.AgentCard, _ float64) *ruleHit {
	if action.ActionType != ActionDBWrite {
		return nil
	}
	if sensitivity, _ := action.Context[ContextKeySensitivity].(string); sensitivity != "high" {
		return nil
	}
	return &ruleHit{outcome: OutcomeEscalate, reason: ReasonSensitiveWrite, penalty: 0.02}
}

// exfiltrationMarker is the substring the payload scan looks for.
const exfiltrationMarker = "leak_secrets"

// ruleExfiltrationScan blocks payloads whose serialized form contains the
// exfiltration marker, case-insensitively.
//
// This is a heuristic substring match over the payload's textual
// representation, not a classifier and not a security boundary. It is kept
// as a single replaceable rule so a real content classifier can take its
// place without touching the rest of the chain.
func ruleExfiltrationScan(action *ProposedAction, _ *model.AgentCard, _ float64) *ruleHit {
	if !strings.Contains(strings.ToLower(serializePayload(action.Payload)), exfiltrationMarker) {
		return nil
	}
	return &ruleHit{outcome: OutcomeBlock, reason: ReasonExfiltrationAttempt, penalty: 0.10}
}

// ruleHighRiskNetwork blocks outbound HTTP from agents whose card declares
// high risk. Cannot fire when the agent has no registry entry.
func ruleHighRiskNetwork(action *ProposedAction, card *model.AgentCard, _ float64) *ruleHit {
	if card == nil || card.RiskLevel != model.RiskHigh || action.ActionType != ActionHTTPRequest {
		return nil
	}
	return &ruleHit{outcome: OutcomeBlock, reason: ReasonHighRiskNetworkBlock, penalty: 0.15}
}

// lowTrustThreshold is the score below which write actions escalate.
const lowTrustThreshold = 0.6

// ruleLowTrustWrite escalates write actions from agents whose pre-evaluation
// trust score is below the threshold.
func ruleLowTrustWrite(action *ProposedAction, _ *model.AgentCard, priorTrust float64) *ruleHit {
	if action.ActionType != ActionDBWrite && action.ActionType != ActionFileWrite {
		return nil
	}
	if priorTrust >= lowTrustThreshold {
		return nil
	}
	return &ruleHit{outcome: OutcomeEscalate, reason: ReasonLowTrustWrite, penalty: 0.02}
}

// serializePayload renders the payload as text for the content scan.
func serializePayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(b)
}
