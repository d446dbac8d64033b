package model

import (
	"net/url"
	"time"
)

// RiskLevel is the declared risk classification of an agent.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the three known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// AgentCard is the canonical registration record for an agent.
// It is the stable contract of the registry; the governance core reads
// cards but never mutates them.
type AgentCard struct {
	// ID is the stable, registry-unique identifier for the agent.
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`

	// Role is the agent's high-level role, e.g. "retriever", "router", "governor".
	Role string `json:"role"`

	// Capabilities lists declared capabilities, e.g. ["search_web", "summarize_pdf"].
	Capabilities []string `json:"capabilities,omitempty"`

	// Endpoint is the URL action payloads are forwarded to on allow.
	Endpoint string `json:"endpoint"`

	// Auth holds opaque auth hints handed to the forwarding transport,
	// e.g. {"type": "api_key", "header": "X-API-Key", "key": "..."}.
	Auth map[string]string `json:"auth,omitempty"`

	RiskLevel RiskLevel         `json:"risk_level"`
	Tags      []string          `json:"tags,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// HasTag reports whether the card carries the given tag.
func (c *AgentCard) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the card for registration. An empty risk level is
// normalised to medium.
func (c *AgentCard) Validate() error {
	if c.ID == "" {
		return &ErrValidation{Msg: "agent id is required"}
	}
	if c.Endpoint == "" {
		return &ErrValidation{Msg: "endpoint is required"}
	}
	if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return &ErrValidation{Msg: "endpoint must be an absolute URL"}
	}
	if c.RiskLevel == "" {
		c.RiskLevel = RiskMedium
	}
	if !c.RiskLevel.Valid() {
		return &ErrValidation{Msg: "risk_level must be one of low, medium, high"}
	}
	return nil
}

// Filter selects agents in List calls. Zero-value fields match everything.
type Filter struct {
	Role      string    `json:"role,omitempty"       form:"role"`
	RiskLevel RiskLevel `json:"risk_level,omitempty" form:"risk_level"`
	Tag       string    `json:"tag,omitempty"        form:"tag"`
}

// Matches reports whether the card satisfies every set filter field.
func (f Filter) Matches(c *AgentCard) bool {
	if f.Role != "" && c.Role != f.Role {
		return false
	}
	if f.RiskLevel != "" && c.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Tag != "" && !c.HasTag(f.Tag) {
		return false
	}
	return true
}

// ErrValidation is returned when a registration payload fails validation.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string {
	return "validation: " + e.Msg
}
