package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is the target agent's reply, returned to the caller verbatim.
// Non-2xx statuses are still responses — the gateway does not reinterpret
// them.
type Response struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// OK reports whether the target answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Forwarder delivers an allowed action payload to a target endpoint.
// Single request/response, no retry, no streaming.
type Forwarder interface {
	Forward(ctx context.Context, endpoint string, payload map[string]any, auth map[string]string) (*Response, error)
}

// maxForwardResponseBytes caps how much of a target's reply is read back.
const maxForwardResponseBytes = 4 << 20

// HTTPForwarder posts payloads as JSON to target endpoints. It applies the
// target card's auth hints and enforces a bounded timeout so a hung target
// cannot stall the caller indefinitely.
type HTTPForwarder struct {
	httpClient *http.Client
}

// NewHTTPForwarder creates an HTTPForwarder with the given per-request
// timeout. A zero timeout defaults to 15 seconds.
func NewHTTPForwarder(timeout time.Duration) *HTTPForwarder {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPForwarder{httpClient: &http.Client{Timeout: timeout}}
}

// Forward implements Forwarder. Network-level failures return a
// *ForwardError; any HTTP response, success or not, is returned as-is.
func (f *HTTPForwarder) Forward(ctx context.Context, endpoint string, payload map[string]any, auth map[string]string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ForwardError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	applyAuthHints(req, auth)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &ForwardError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxForwardResponseBytes))
	if err != nil {
		return nil, &ForwardError{Endpoint: endpoint, Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// applyAuthHints interprets the well-known auth hint shapes from an agent
// card. Unknown shapes are ignored — hints are advisory, never fatal.
//
//	{"type": "api_key", "header": "X-API-Key", "key": "..."}
//	{"type": "bearer", "token": "..."}
func applyAuthHints(req *http.Request, auth map[string]string) {
	switch auth["type"] {
	case "api_key":
		header := auth["header"]
		if header == "" {
			header = "X-API-Key"
		}
		if key := auth["key"]; key != "" {
			req.Header.Set(header, key)
		}
	case "bearer":
		if token := auth["token"]; token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}
