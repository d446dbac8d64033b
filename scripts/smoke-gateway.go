//go:build ignore

// smoke-gateway.go drives a running CNS gateway through the full invocation
// surface: registers a pair of demo agents, submits actions that exercise each
// rule outcome, and checks the audit chain afterwards.
//
// Run with: go run scripts/smoke-gateway.go [-base http://localhost:8080]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

var base = flag.String("base", "http://localhost:8080", "gateway base URL")

var httpClient = &http.Client{Timeout: 10 * time.Second}

func main() {
	flag.Parse()

	steps := []struct {
		name string
		run  func() error
	}{
		{"health", health},
		{"register agents", registerAgents},
		{"allow decision", func() error { return evaluateExpect("tool_call", map[string]any{"q": "weather"}, nil, "allow") }},
		{"block on exfiltration", func() error { return evaluateExpect("tool_call", map[string]any{"cmd": "leak_secrets"}, nil, "block") }},
		{"escalate on sensitive write", func() error {
			return evaluateExpect("db_write", nil, map[string]any{"sensitivity": "high"}, "escalate")
		}},
		{"invoke unknown target is 404", invokeUnknownTarget},
		{"audit chain verifies", verifyAudit},
	}

	failed := 0
	for _, s := range steps {
		if err := s.run(); err != nil {
			fmt.Printf("FAIL  %-28s %v\n", s.name, err)
			failed++
			continue
		}
		fmt.Printf("ok    %s\n", s.name)
	}
	if failed > 0 {
		fmt.Printf("\n%d step(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nsmoke complete")
}

func health() error {
	resp, err := httpClient.Get(*base + "/healthz")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func registerAgents() error {
	agents := []map[string]any{
		{"id": "smoke-caller", "role": "orchestrator", "endpoint": "http://localhost:9000/run", "risk_level": "low"},
		{"id": "smoke-target", "role": "retriever", "endpoint": "http://localhost:9001/run", "risk_level": "medium"},
	}
	for _, a := range agents {
		status, _, err := post("/api/v1/agents/register", a, "")
		if err != nil {
			return err
		}
		if status != 201 {
			return fmt.Errorf("register %s: status %d", a["id"], status)
		}
	}
	return nil
}

func evaluateExpect(actionType string, payload, actionCtx map[string]any, want string) error {
	body := map[string]any{
		"agent_id":       "smoke-target",
		"action_type":    actionType,
		"action_payload": payload,
		"context":        actionCtx,
	}
	status, respBody, err := post("/api/v1/governance/evaluate", body, "")
	if err != nil {
		return err
	}
	if status != 200 {
		return fmt.Errorf("status %d: %s", status, respBody)
	}
	var decision struct {
		Outcome string `json:"decision"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(respBody, &decision); err != nil {
		return err
	}
	if decision.Outcome != want {
		return fmt.Errorf("decision %q (%s), want %q", decision.Outcome, decision.Reason, want)
	}
	return nil
}

func invokeUnknownTarget() error {
	body := map[string]any{"target_agent_id": "smoke-ghost", "action_type": "tool_call"}
	status, _, err := post("/api/v1/cns/invoke", body, "smoke-caller")
	if err != nil {
		return err
	}
	if status != 404 {
		return fmt.Errorf("status %d, want 404", status)
	}
	return nil
}

func verifyAudit() error {
	resp, err := httpClient.Get(*base + "/api/v1/audit/verify")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out struct {
		Valid bool   `json:"valid"`
		Root  string `json:"root"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.Valid {
		return fmt.Errorf("chain invalid, root %s", out.Root)
	}
	return nil
}

func post(path string, body map[string]any, agentID string) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, *base+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if agentID != "" {
		req.Header.Set("X-Agent-ID", agentID)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), nil
}
