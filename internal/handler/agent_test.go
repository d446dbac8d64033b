package handler_test

import (
	"net/http"
	"testing"
)

func validCard(id string) map[string]any {
	return map[string]any{
		"id":         id,
		"name":       "Test Agent",
		"role":       "retriever",
		"endpoint":   "https://" + id + ".example.com/run",
		"risk_level": "low",
		"tags":       []string{"search"},
	}
}

func TestRegisterAgent(t *testing.T) {
	e := newEnv()

	w := e.do(t, http.MethodPost, "/api/v1/agents/register", validCard("a1"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/v1/agents/a1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET after register: status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["id"] != "a1" || body["role"] != "retriever" {
		t.Errorf("unexpected card: %v", body)
	}
}

func TestRegisterAgent_validation(t *testing.T) {
	e := newEnv()

	tests := []struct {
		name string
		card map[string]any
	}{
		{"missing id", map[string]any{"endpoint": "https://x.example.com"}},
		{"missing endpoint", map[string]any{"id": "a1"}},
		{"relative endpoint", map[string]any{"id": "a1", "endpoint": "/run"}},
		{"bad risk level", map[string]any{"id": "a1", "endpoint": "https://x.example.com", "risk_level": "extreme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/agents/register", tt.card, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestListAgents_filtering(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/agents/register", validCard("a1"), nil)

	highRisk := validCard("a2")
	highRisk["risk_level"] = "high"
	highRisk["role"] = "router"
	e.do(t, http.MethodPost, "/api/v1/agents/register", highRisk, nil)

	w := e.do(t, http.MethodGet, "/api/v1/agents", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decodeBody(t, w)["count"]; got != float64(2) {
		t.Errorf("count = %v, want 2", got)
	}

	w = e.do(t, http.MethodGet, "/api/v1/agents?risk_level=high", nil, nil)
	if got := decodeBody(t, w)["count"]; got != float64(1) {
		t.Errorf("filtered count = %v, want 1", got)
	}

	w = e.do(t, http.MethodGet, "/api/v1/agents?risk_level=extreme", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid risk_level: status = %d, want 400", w.Code)
	}
}

func TestGetAgent_notFound(t *testing.T) {
	e := newEnv()

	w := e.do(t, http.MethodGet, "/api/v1/agents/ghost", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteAgent(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/agents/register", validCard("a1"), nil)

	w := e.do(t, http.MethodDelete, "/api/v1/agents/a1", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	w = e.do(t, http.MethodGet, "/api/v1/agents/a1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET after delete: status = %d, want 404", w.Code)
	}

	w = e.do(t, http.MethodDelete, "/api/v1/agents/a1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}
}
