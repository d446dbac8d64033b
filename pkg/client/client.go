// Package client provides the Go SDK for the Evermore CNS gateway: agent
// registration, governance evaluation, and policy-fronted invocation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Agent mirrors the registry's agent card.
type Agent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Role         string            `json:"role,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Endpoint     string            `json:"endpoint"`
	Auth         map[string]string `json:"auth,omitempty"`
	RiskLevel    string            `json:"risk_level,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Action is a proposed action submitted for evaluation.
type Action struct {
	AgentID    string         `json:"agent_id"`
	ActionType string         `json:"action_type"`
	Payload    map[string]any `json:"action_payload,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// Decision is a governance verdict.
type Decision struct {
	Outcome    string   `json:"decision"`
	Reason     string   `json:"reason"`
	TrustScore float64  `json:"trust_score"`
	Triggered  []string `json:"triggered,omitempty"`
}

// AuditEntry is one record of the decision audit chain.
type AuditEntry struct {
	Index       int       `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	AgentID     string    `json:"agent_id"`
	CallerID    string    `json:"caller_id,omitempty"`
	ActionType  string    `json:"action_type"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason"`
	TrustScore  float64   `json:"trust_score"`
	PayloadHash string    `json:"payload_hash"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
}

// APIError is returned for any non-2xx gateway response. Code is the HTTP
// status: 403 means the action was blocked, 409 that it was escalated for
// review, 404 that the target agent is unknown.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cns: %d %s", e.Code, e.Message)
}

// Client is the CNS SDK entry point.
type Client struct {
	baseURL    string
	agentID    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAgentID sets the caller agent id sent on Invoke calls.
func WithAgentID(agentID string) Option {
	return func(c *Client) { c.agentID = agentID }
}

// New creates a Client for the CNS gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterAgent registers or replaces an agent card. Idempotent on id.
func (c *Client) RegisterAgent(ctx context.Context, agent *Agent) (*Agent, error) {
	var out Agent
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/agents/register", agent, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAgent fetches a single agent card by id.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var out Agent
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/agents/"+url.PathEscape(agentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents lists registered agents. Empty filter values match everything.
func (c *Client) ListAgents(ctx context.Context, role, riskLevel, tag string) ([]*Agent, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", role)
	}
	if riskLevel != "" {
		q.Set("risk_level", riskLevel)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	path := "/api/v1/agents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Agents []*Agent `json:"agents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// DeleteAgent removes an agent card.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/agents/"+url.PathEscape(agentID), nil, nil)
}

// Evaluate submits a proposed action for a governance verdict without
// forwarding anything.
func (c *Client) Evaluate(ctx context.Context, action *Action) (*Decision, error) {
	var out Decision
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/governance/evaluate", action, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trust returns the agent's current trust score.
func (c *Client) Trust(ctx context.Context, agentID string) (float64, error) {
	var out struct {
		TrustScore float64 `json:"trust_score"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/governance/trust/"+url.PathEscape(agentID), nil, &out); err != nil {
		return 0, err
	}
	return out.TrustScore, nil
}

// Invoke sends an action through the policy-fronted gateway. The caller id
// set via WithAgentID is attached; on allow, the target's raw response body
// is returned. Policy rejections surface as *APIError.
func (c *Client) Invoke(ctx context.Context, targetID, actionType string, payload, actionCtx map[string]any) (json.RawMessage, error) {
	body := map[string]any{
		"target_agent_id": targetID,
		"action_type":     actionType,
		"action_payload":  payload,
		"context":         actionCtx,
	}
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/cns/invoke", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuditEntries returns a page of the decision audit chain, oldest first.
func (c *Client) AuditEntries(ctx context.Context, limit, offset int) ([]*AuditEntry, error) {
	path := "/api/v1/audit?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	var out struct {
		Entries []*AuditEntry `json:"entries"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// VerifyAudit checks the audit chain's integrity and returns the chain tip.
func (c *Client) VerifyAudit(ctx context.Context) (valid bool, root string, err error) {
	var out struct {
		Valid bool   `json:"valid"`
		Root  string `json:"root"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &out); err != nil {
		return false, "", err
	}
	return out.Valid, out.Root, nil
}

// doJSON performs a request against the gateway and decodes the JSON
// response into out (ignored when out is nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.agentID != "" {
		req.Header.Set("X-Agent-ID", c.agentID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{Code: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], respBody...)
		return nil
	}
	if len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
