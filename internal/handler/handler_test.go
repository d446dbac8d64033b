package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SchenleyKB/evermore-cns/internal/audit"
	"github.com/SchenleyKB/evermore-cns/internal/gateway"
	"github.com/SchenleyKB/evermore-cns/internal/governance"
	"github.com/SchenleyKB/evermore-cns/internal/handler"
	"github.com/SchenleyKB/evermore-cns/internal/registry"
	"github.com/SchenleyKB/evermore-cns/internal/trust"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// stubForwarder stands in for the HTTP transport in handler tests.
type stubForwarder struct {
	resp   *gateway.Response
	err    error
	called bool
}

func (s *stubForwarder) Forward(_ context.Context, _ string, _ map[string]any, _ map[string]string) (*gateway.Response, error) {
	s.called = true
	return s.resp, s.err
}

type env struct {
	store  *registry.MemoryStore
	ledger *trust.MemoryLedger
	log    *audit.MemoryLog
	fwd    *stubForwarder
	router *gin.Engine
}

func newEnv() *env {
	gin.SetMode(gin.TestMode)
	nop := zap.NewNop()

	store := registry.NewMemoryStore()
	ledger := trust.New()
	log := audit.NewMemoryLog()
	engine := governance.NewEngine(ledger, nop)
	engine.SetAuditLog(log)

	fwd := &stubForwarder{resp: &gateway.Response{StatusCode: http.StatusOK, Body: json.RawMessage(`{"ok":true}`)}}
	gw := gateway.New(store, engine, fwd, nop)

	router := gin.New()
	api := router.Group("/api/v1")
	handler.NewAgentHandler(store, nop).Register(api)
	handler.NewGovernanceHandler(store, engine, nop).Register(api)
	handler.NewGatewayHandler(gw, nop).Register(api)
	handler.NewAuditHandler(log, nop).Register(api)

	return &env{store: store, ledger: ledger, log: log, fwd: fwd, router: router}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not a JSON object: %v\nbody: %s", err, w.Body.String())
	}
	return out
}
