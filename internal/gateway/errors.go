package gateway

import (
	"fmt"

	"github.com/SchenleyKB/evermore-cns/internal/governance"
)

// PolicyError is returned when governance rejects an invocation with block
// or escalate. It is an expected condition, not a fault: block is a
// definitive denial; escalate signals the action needs a human/governor
// decision before it can proceed. The full decision is attached so callers
// and audit trails can explain the verdict.
type PolicyError struct {
	Decision *governance.Decision
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s: %s", e.Decision.Outcome, e.Decision.Reason)
}

// TargetNotFoundError is returned when governance allowed the invocation but
// the target agent has no registry entry. This is a data-integrity condition
// at the gateway, not a policy rejection; the allowing decision is attached.
type TargetNotFoundError struct {
	AgentID  string
	Decision *governance.Decision
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target agent %q not found", e.AgentID)
}

// ForwardError is returned when the forward step fails before a response is
// obtained (connection error, timeout). The governance decision and its
// trust-score write already happened and are not rolled back.
type ForwardError struct {
	Endpoint string
	Err      error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward to %s: %v", e.Endpoint, e.Err)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}
