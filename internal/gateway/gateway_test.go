package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/SchenleyKB/evermore-cns/internal/audit"
	"github.com/SchenleyKB/evermore-cns/internal/gateway"
	"github.com/SchenleyKB/evermore-cns/internal/governance"
	"github.com/SchenleyKB/evermore-cns/internal/registry"
	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
	"github.com/SchenleyKB/evermore-cns/internal/trust"
	"go.uber.org/zap"
)

var ctx = context.Background()

// fakeForwarder records the forward call instead of making one.
type fakeForwarder struct {
	resp *gateway.Response
	err  error

	called   bool
	endpoint string
	payload  map[string]any
	auth     map[string]string
}

func (f *fakeForwarder) Forward(_ context.Context, endpoint string, payload map[string]any, auth map[string]string) (*gateway.Response, error) {
	f.called = true
	f.endpoint = endpoint
	f.payload = payload
	f.auth = auth
	return f.resp, f.err
}

type fixture struct {
	store  *registry.MemoryStore
	ledger *trust.MemoryLedger
	log    *audit.MemoryLog
	fwd    *fakeForwarder
	gw     *gateway.Gateway
}

func newFixture(fwd *fakeForwarder) *fixture {
	store := registry.NewMemoryStore()
	ledger := trust.New()
	log := audit.NewMemoryLog()
	engine := governance.NewEngine(ledger, zap.NewNop())
	engine.SetAuditLog(log)
	return &fixture{
		store:  store,
		ledger: ledger,
		log:    log,
		fwd:    fwd,
		gw:     gateway.New(store, engine, fwd, zap.NewNop()),
	}
}

func TestInvoke_blockedActionNeverForwarded(t *testing.T) {
	f := newFixture(&fakeForwarder{resp: &gateway.Response{StatusCode: 200}})
	_ = f.store.Register(ctx, &model.AgentCard{ID: "target", Endpoint: "https://target.example.com/run"})

	_, err := f.gw.Invoke(ctx, "caller", "target", governance.ActionToolCall,
		map[string]any{"cmd": "leak_secrets"}, nil)

	var policyErr *gateway.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("error = %v, want *PolicyError", err)
	}
	if policyErr.Decision.Outcome != governance.OutcomeBlock {
		t.Errorf("outcome = %q, want block", policyErr.Decision.Outcome)
	}
	if policyErr.Decision.Reason != governance.ReasonExfiltrationAttempt {
		t.Errorf("reason = %q, want %q", policyErr.Decision.Reason, governance.ReasonExfiltrationAttempt)
	}
	if f.fwd.called {
		t.Error("forwarder was called for a blocked action")
	}
}

func TestInvoke_escalatedActionNeverForwarded(t *testing.T) {
	f := newFixture(&fakeForwarder{resp: &gateway.Response{StatusCode: 200}})
	_ = f.store.Register(ctx, &model.AgentCard{ID: "target", Endpoint: "https://target.example.com/run"})

	_, err := f.gw.Invoke(ctx, "caller", "target", governance.ActionDBWrite, nil,
		map[string]any{governance.ContextKeySensitivity: "high"})

	var policyErr *gateway.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("error = %v, want *PolicyError", err)
	}
	if policyErr.Decision.Outcome != governance.OutcomeEscalate {
		t.Errorf("outcome = %q, want escalate", policyErr.Decision.Outcome)
	}
	if f.fwd.called {
		t.Error("forwarder was called for an escalated action")
	}
}

func TestInvoke_allowedButUnregisteredTarget(t *testing.T) {
	f := newFixture(&fakeForwarder{resp: &gateway.Response{StatusCode: 200}})

	_, err := f.gw.Invoke(ctx, "caller", "ghost", governance.ActionToolCall,
		map[string]any{"note": "hello"}, nil)

	var notFound *gateway.TargetNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *TargetNotFoundError", err)
	}
	if notFound.AgentID != "ghost" {
		t.Errorf("AgentID = %q, want ghost", notFound.AgentID)
	}
	if notFound.Decision.Outcome != governance.OutcomeAllow {
		t.Errorf("attached decision = %q, want allow", notFound.Decision.Outcome)
	}
	if f.fwd.called {
		t.Error("forwarder was called for an unknown target")
	}

	// The governance step ran and committed before the not-found check.
	n, err := f.log.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 { // genesis + 1
		t.Errorf("audit entries = %d, want 2 (evaluation committed)", n)
	}
}

func TestInvoke_allowForwardsWithAuthHints(t *testing.T) {
	fwd := &fakeForwarder{resp: &gateway.Response{StatusCode: 201, Body: json.RawMessage(`{"ok":true}`)}}
	f := newFixture(fwd)
	_ = f.store.Register(ctx, &model.AgentCard{
		ID:       "target",
		Endpoint: "https://target.example.com/run",
		Auth:     map[string]string{"type": "api_key", "header": "X-API-Key", "key": "s3cret"},
	})

	payload := map[string]any{"note": "hello"}
	resp, err := f.gw.Invoke(ctx, "caller", "target", governance.ActionToolCall, payload, nil)
	if err != nil {
		t.Fatal(err)
	}

	if resp.StatusCode != 201 || string(resp.Body) != `{"ok":true}` {
		t.Errorf("response not returned verbatim: %+v", resp)
	}
	if f.fwd.endpoint != "https://target.example.com/run" {
		t.Errorf("forwarded to %q", f.fwd.endpoint)
	}
	if f.fwd.auth["key"] != "s3cret" {
		t.Errorf("auth hints not passed through: %v", f.fwd.auth)
	}
	if f.fwd.payload["note"] != "hello" {
		t.Errorf("payload not passed through: %v", f.fwd.payload)
	}
}

func TestInvoke_injectsCallerWithoutMutatingInput(t *testing.T) {
	f := newFixture(&fakeForwarder{resp: &gateway.Response{StatusCode: 200}})
	_ = f.store.Register(ctx, &model.AgentCard{ID: "target", Endpoint: "https://target.example.com/run"})

	actionCtx := map[string]any{"channel": "ops"}
	if _, err := f.gw.Invoke(ctx, "orchestrator", "target", governance.ActionToolCall, nil, actionCtx); err != nil {
		t.Fatal(err)
	}

	if _, ok := actionCtx[governance.ContextKeyCaller]; ok {
		t.Error("caller id was injected into the caller's own context map")
	}

	entry, err := f.log.Get(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if entry.CallerID != "orchestrator" {
		t.Errorf("audit caller id = %q, want orchestrator", entry.CallerID)
	}
}

func TestInvoke_forwardFailureSurfacedNotRolledBack(t *testing.T) {
	fwd := &fakeForwarder{err: &gateway.ForwardError{Endpoint: "https://target.example.com/run", Err: errors.New("connection refused")}}
	f := newFixture(fwd)
	_ = f.store.Register(ctx, &model.AgentCard{ID: "target", Endpoint: "https://target.example.com/run"})

	_, err := f.gw.Invoke(ctx, "caller", "target", governance.ActionToolCall, nil, nil)

	var fwdErr *gateway.ForwardError
	if !errors.As(err, &fwdErr) {
		t.Fatalf("error = %v, want *ForwardError", err)
	}

	// The evaluation's audit record stands despite the transport failure.
	n, lenErr := f.log.Len(ctx)
	if lenErr != nil {
		t.Fatal(lenErr)
	}
	if n != 2 {
		t.Errorf("audit entries = %d, want 2", n)
	}
}

func TestInvoke_nonSuccessResponseReturnedVerbatim(t *testing.T) {
	fwd := &fakeForwarder{resp: &gateway.Response{StatusCode: 500, Body: json.RawMessage(`{"error":"boom"}`)}}
	f := newFixture(fwd)
	_ = f.store.Register(ctx, &model.AgentCard{ID: "target", Endpoint: "https://target.example.com/run"})

	resp, err := f.gw.Invoke(ctx, "caller", "target", governance.ActionToolCall, nil, nil)
	if err != nil {
		t.Fatalf("non-2xx target response should not be an error: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if resp.OK() {
		t.Error("OK() = true for a 500 response")
	}
}

// High-risk targets are blocked from http_request actions because the
// gateway hands the looked-up card to the engine.
func TestInvoke_highRiskTargetNetworkBlocked(t *testing.T) {
	f := newFixture(&fakeForwarder{resp: &gateway.Response{StatusCode: 200}})
	_ = f.store.Register(ctx, &model.AgentCard{
		ID:        "risky",
		Endpoint:  "https://risky.example.com/run",
		RiskLevel: model.RiskHigh,
	})

	_, err := f.gw.Invoke(ctx, "caller", "risky", governance.ActionHTTPRequest, nil, nil)

	var policyErr *gateway.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("error = %v, want *PolicyError", err)
	}
	if policyErr.Decision.Reason != governance.ReasonHighRiskNetworkBlock {
		t.Errorf("reason = %q, want %q", policyErr.Decision.Reason, governance.ReasonHighRiskNetworkBlock)
	}
	if f.fwd.called {
		t.Error("forwarder was called for a blocked high-risk action")
	}
}
