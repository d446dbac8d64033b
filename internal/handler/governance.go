package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/SchenleyKB/evermore-cns/internal/governance"
	"github.com/SchenleyKB/evermore-cns/internal/registry"
	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GovernanceHandler exposes the evaluation engine and trust scores over HTTP.
type GovernanceHandler struct {
	store  registry.Store
	engine *governance.Engine
	logger *zap.Logger
}

// NewGovernanceHandler creates a new GovernanceHandler.
func NewGovernanceHandler(store registry.Store, engine *governance.Engine, logger *zap.Logger) *GovernanceHandler {
	return &GovernanceHandler{store: store, engine: engine, logger: logger}
}

// Register registers all governance routes on the given router group.
func (h *GovernanceHandler) Register(rg *gin.RouterGroup) {
	gov := rg.Group("/governance")
	{
		gov.POST("/evaluate", h.Evaluate)
		gov.GET("/trust/:id", h.GetTrust)
	}
}

// Evaluate handles POST /governance/evaluate — runs the rule chain against a
// proposed action and returns the decision. The acting agent's card is looked
// up first; an absent card is valid input, not an error.
func (h *GovernanceHandler) Evaluate(c *gin.Context) {
	var action governance.ProposedAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	card, err := h.lookupCard(ctx, action.AgentID)
	if err != nil {
		h.logger.Error("evaluate: registry lookup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registry lookup failed"})
		return
	}

	decision, err := h.engine.Evaluate(ctx, &action, card)
	if err != nil {
		h.logger.Error("evaluate action", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}

	RecordDecision(string(decision.Outcome))
	c.JSON(http.StatusOK, decision)
}

// GetTrust handles GET /governance/trust/:id — returns the agent's current
// trust score. Agents with no history read as the default score.
func (h *GovernanceHandler) GetTrust(c *gin.Context) {
	agentID := c.Param("id")
	score, err := h.engine.Trust(c.Request.Context(), agentID)
	if err != nil {
		h.logger.Error("get trust score", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trust lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"agent_id": agentID, "trust_score": score})
}

// lookupCard resolves the acting agent's card, mapping not-found to nil.
func (h *GovernanceHandler) lookupCard(ctx context.Context, agentID string) (*model.AgentCard, error) {
	card, err := h.store.Lookup(ctx, agentID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	return card, err
}
