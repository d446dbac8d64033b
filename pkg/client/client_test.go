package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SchenleyKB/evermore-cns/pkg/client"
)

var ctx = context.Background()

// capture records the last request the test server saw.
type capture struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newServer(status int, respBody string, cap *capture) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cap.method = r.Method
		cap.path = r.URL.Path
		cap.query = r.URL.RawQuery
		cap.header = r.Header.Clone()
		cap.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
}

func TestRegisterAgent(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusCreated, `{"id":"a1","endpoint":"https://a1.example.com/run","risk_level":"medium"}`, &cap)
	defer srv.Close()

	c := client.New(srv.URL)
	agent, err := c.RegisterAgent(ctx, &client.Agent{ID: "a1", Endpoint: "https://a1.example.com/run"})
	if err != nil {
		t.Fatal(err)
	}

	if cap.method != http.MethodPost || cap.path != "/api/v1/agents/register" {
		t.Errorf("request = %s %s", cap.method, cap.path)
	}
	if cap.header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", cap.header.Get("Content-Type"))
	}
	if agent.RiskLevel != "medium" {
		t.Errorf("returned card = %+v", agent)
	}
}

func TestListAgents_queryEncoding(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusOK, `{"count":1,"agents":[{"id":"a1","endpoint":"https://a1.example.com/run"}]}`, &cap)
	defer srv.Close()

	c := client.New(srv.URL)
	agents, err := c.ListAgents(ctx, "retriever", "high", "")
	if err != nil {
		t.Fatal(err)
	}

	if cap.path != "/api/v1/agents" {
		t.Errorf("path = %q", cap.path)
	}
	if cap.query != "risk_level=high&role=retriever" {
		t.Errorf("query = %q", cap.query)
	}
	if len(agents) != 1 || agents[0].ID != "a1" {
		t.Errorf("agents = %v", agents)
	}
}

func TestGetAgent_notFound(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusNotFound, `{"error":"agent not found"}`, &cap)
	defer srv.Close()

	_, err := client.New(srv.URL).GetAgent(ctx, "ghost")

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != http.StatusNotFound || apiErr.Message != "agent not found" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestEvaluate(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusOK, `{"decision":"block","reason":"exfiltration-attempt","trust_score":0.7,"triggered":["exfiltration-attempt"]}`, &cap)
	defer srv.Close()

	decision, err := client.New(srv.URL).Evaluate(ctx, &client.Action{
		AgentID:    "a1",
		ActionType: "tool_call",
		Payload:    map[string]any{"cmd": "leak_secrets"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if cap.path != "/api/v1/governance/evaluate" {
		t.Errorf("path = %q", cap.path)
	}
	var sent map[string]any
	if err := json.Unmarshal(cap.body, &sent); err != nil {
		t.Fatal(err)
	}
	if sent["agent_id"] != "a1" || sent["action_type"] != "tool_call" {
		t.Errorf("request body = %v", sent)
	}
	if decision.Outcome != "block" || decision.TrustScore != 0.7 {
		t.Errorf("decision = %+v", decision)
	}
}

func TestTrust(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusOK, `{"agent_id":"a1","trust_score":0.65}`, &cap)
	defer srv.Close()

	score, err := client.New(srv.URL).Trust(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if cap.path != "/api/v1/governance/trust/a1" {
		t.Errorf("path = %q", cap.path)
	}
	if score != 0.65 {
		t.Errorf("score = %v", score)
	}
}

func TestInvoke_attachesAgentID(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusOK, `{"result":"done"}`, &cap)
	defer srv.Close()

	c := client.New(srv.URL, client.WithAgentID("orchestrator"))
	raw, err := c.Invoke(ctx, "a1", "tool_call", map[string]any{"note": "hi"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if cap.path != "/api/v1/cns/invoke" {
		t.Errorf("path = %q", cap.path)
	}
	if cap.header.Get("X-Agent-ID") != "orchestrator" {
		t.Errorf("X-Agent-ID = %q", cap.header.Get("X-Agent-ID"))
	}
	if string(raw) != `{"result":"done"}` {
		t.Errorf("raw response = %s", raw)
	}
}

func TestInvoke_policyRejection(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusConflict, `{"error":"sensitive-write","decision":{"decision":"escalate"}}`, &cap)
	defer srv.Close()

	c := client.New(srv.URL, client.WithAgentID("orchestrator"))
	_, err := c.Invoke(ctx, "a1", "db_write", nil, map[string]any{"sensitivity": "high"})

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != http.StatusConflict || apiErr.Message != "sensitive-write" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestAuditEntries(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusOK, `{"total":2,"entries":[{"index":0,"outcome":"genesis"},{"index":1,"agent_id":"a1","outcome":"allow"}]}`, &cap)
	defer srv.Close()

	entries, err := client.New(srv.URL).AuditEntries(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cap.query != "limit=10&offset=0" {
		t.Errorf("query = %q", cap.query)
	}
	if len(entries) != 2 || entries[1].AgentID != "a1" {
		t.Errorf("entries = %v", entries)
	}
}

func TestVerifyAudit(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusOK, `{"valid":true,"root":"abc123"}`, &cap)
	defer srv.Close()

	valid, root, err := client.New(srv.URL).VerifyAudit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !valid || root != "abc123" {
		t.Errorf("valid=%v root=%q", valid, root)
	}
}

func TestDeleteAgent(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusNoContent, "", &cap)
	defer srv.Close()

	if err := client.New(srv.URL).DeleteAgent(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if cap.method != http.MethodDelete || cap.path != "/api/v1/agents/a1" {
		t.Errorf("request = %s %s", cap.method, cap.path)
	}
}

func TestAPIError_nonJSONBody(t *testing.T) {
	var cap capture
	srv := newServer(http.StatusBadGateway, "upstream exploded", &cap)
	defer srv.Close()

	_, err := client.New(srv.URL).GetAgent(ctx, "a1")

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != http.StatusBadGateway || apiErr.Message != "Bad Gateway" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
