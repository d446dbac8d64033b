// Package governance evaluates proposed agent actions against an ordered
// policy rule chain and maintains the per-agent trust score.
//
// Every rule that matches may tighten the outcome and charge a trust
// penalty. The outcome and reason of the last matching rule win; penalties
// from all matching rules accumulate and are applied to the score read at
// the start of the evaluation, clamped once after summation. Given the same
// action, agent card, and prior score, Evaluate is deterministic: same
// decision, same new score.
package governance

// Outcome is the terminal verdict of a governance evaluation. The set is
// closed: allow, block, escalate. There is no automatic transition between
// outcomes once a decision is produced.
type Outcome string

const (
	OutcomeAllow    Outcome = "allow"
	OutcomeBlock    Outcome = "block"
	OutcomeEscalate Outcome = "escalate"
)

// Valid reports whether o is one of the three known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAllow, OutcomeBlock, OutcomeEscalate:
		return true
	}
	return false
}

// Reason strings attached to decisions. Each names the rule that determined
// the outcome; ReasonDefaultAllow is used when no rule matched.
const (
	ReasonSensitiveWrite       = "sensitive-write"
	ReasonExfiltrationAttempt  = "exfiltration-attempt"
	ReasonHighRiskNetworkBlock = "high-risk-network-block"
	ReasonLowTrustWrite        = "low-trust-write"
	ReasonDefaultAllow         = "default-allow"
)

// Well-known action type classifiers. ActionType is free-form; these are the
// values the built-in rules inspect.
const (
	ActionToolCall    = "tool_call"
	ActionDBWrite     = "db_write"
	ActionFileWrite   = "file_write"
	ActionHTTPRequest = "http_request"
)

// Context keys with reserved meaning inside action context maps.
const (
	// ContextKeyCaller carries the id of the agent that initiated the call
	// on behalf of the acting agent. The gateway injects it so rules and
	// audit trails can see who originated the action.
	ContextKeyCaller = "caller_agent_id"

	// ContextKeySensitivity flags the sensitivity of the data an action
	// touches; the value "high" triggers the sensitive-write rule.
	ContextKeySensitivity = "sensitivity"
)

// ProposedAction is the input to a governance evaluation.
type ProposedAction struct {
	// AgentID identifies the acting agent whose trust score the
	// evaluation reads and mutates.
	AgentID string `json:"agent_id" binding:"required"`

	// ActionType is a free-form classifier, e.g. "tool_call", "db_write",
	// "http_request", "file_write".
	ActionType string `json:"action_type" binding:"required"`

	// Payload is the opaque action body. Rules treat it as unstructured
	// data and must not assume any schema.
	Payload map[string]any `json:"action_payload,omitempty"`

	// Context carries caller metadata such as sensitivity flags and the
	// originating caller id.
	Context map[string]any `json:"context,omitempty"`
}

// Decision is the immutable output of a governance evaluation.
type Decision struct {
	Outcome Outcome `json:"decision"`

	// Reason names the rule that determined the outcome, or
	// ReasonDefaultAllow when no rule matched. Never empty.
	Reason string `json:"reason"`

	// TrustScore is the acting agent's score after this evaluation's
	// penalties were applied and persisted.
	TrustScore float64 `json:"trust_score"`

	// Triggered lists every rule that matched, in evaluation order.
	// Empty on a default allow.
	Triggered []string `json:"triggered,omitempty"`
}
