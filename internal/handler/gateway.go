package handler

import (
	"errors"
	"net/http"

	"github.com/SchenleyKB/evermore-cns/internal/gateway"
	"github.com/SchenleyKB/evermore-cns/internal/governance"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CallerHeader carries the already-authenticated caller agent id. Resolving
// the caller's identity is upstream's job; the gateway only consumes the
// resolved id.
const CallerHeader = "X-Agent-ID"

// InvokeRequest is the payload for POST /cns/invoke.
type InvokeRequest struct {
	TargetAgentID string         `json:"target_agent_id" binding:"required"`
	ActionType    string         `json:"action_type"     binding:"required"`
	ActionPayload map[string]any `json:"action_payload"`
	Context       map[string]any `json:"context"`
}

// GatewayHandler exposes the policy-fronted invocation path over HTTP.
type GatewayHandler struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(gw *gateway.Gateway, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{gw: gw, logger: logger}
}

// Register registers the gateway routes on the given router group.
func (h *GatewayHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/cns/invoke", h.Invoke)
}

// Invoke handles POST /cns/invoke.
//
// Status mapping: block → 403, escalate → 409, target-not-found → 404,
// transport failure before a response → 502. On allow with a reachable
// target the target's status and body are mirrored verbatim.
func (h *GatewayHandler) Invoke(c *gin.Context) {
	callerID := c.GetHeader(CallerHeader)
	if callerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": CallerHeader + " header is required"})
		return
	}

	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.gw.Invoke(c.Request.Context(), callerID, req.TargetAgentID, req.ActionType, req.ActionPayload, req.Context)
	if err != nil {
		h.writeInvokeError(c, err)
		return
	}

	RecordDecision(string(governance.OutcomeAllow))
	RecordForward(resp.OK())
	if len(resp.Body) == 0 {
		c.Status(resp.StatusCode)
		return
	}
	c.Data(resp.StatusCode, "application/json", resp.Body)
}

// writeInvokeError maps gateway error types onto HTTP responses. Every
// rejection carries the reason of the rule that produced it.
func (h *GatewayHandler) writeInvokeError(c *gin.Context, err error) {
	var policyErr *gateway.PolicyError
	if errors.As(err, &policyErr) {
		RecordDecision(string(policyErr.Decision.Outcome))
		status := http.StatusForbidden
		if policyErr.Decision.Outcome == governance.OutcomeEscalate {
			// Escalation is a synchronous rejection here; routing to a
			// review queue is a downstream collaborator's job.
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":    policyErr.Decision.Reason,
			"decision": policyErr.Decision,
		})
		return
	}

	var notFoundErr *gateway.TargetNotFoundError
	if errors.As(err, &notFoundErr) {
		RecordDecision(string(governance.OutcomeAllow))
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "target agent not found",
			"agent_id": notFoundErr.AgentID,
			"decision": notFoundErr.Decision,
		})
		return
	}

	var fwdErr *gateway.ForwardError
	if errors.As(err, &fwdErr) {
		RecordDecision(string(governance.OutcomeAllow))
		RecordForward(false)
		c.JSON(http.StatusBadGateway, gin.H{"error": fwdErr.Error()})
		return
	}

	h.logger.Error("invoke failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "invocation failed"})
}
