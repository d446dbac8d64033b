package handler

import (
	"errors"
	"net/http"

	"github.com/SchenleyKB/evermore-cns/internal/registry"
	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AgentHandler handles HTTP requests for the agent registry.
type AgentHandler struct {
	store  registry.Store
	logger *zap.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(store registry.Store, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{store: store, logger: logger}
}

// Register registers all agent routes on the given router group.
func (h *AgentHandler) Register(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.POST("/register", h.RegisterAgent)
		agents.GET("", h.ListAgents)
		agents.GET("/:id", h.GetAgent)
		agents.DELETE("/:id", h.DeleteAgent)
	}
}

// RegisterAgent handles POST /agents/register — registers or replaces an
// agent card. Idempotent on id.
func (h *AgentHandler) RegisterAgent(c *gin.Context) {
	var card model.AgentCard
	if err := c.ShouldBindJSON(&card); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := card.Validate(); err != nil {
		var valErr *model.ErrValidation
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.Register(c.Request.Context(), &card); err != nil {
		h.logger.Error("register agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, card)
}

// ListAgents handles GET /agents — returns all agents, filterable by
// ?role=, ?risk_level=, and ?tag=.
func (h *AgentHandler) ListAgents(c *gin.Context) {
	var filter model.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.RiskLevel != "" && !filter.RiskLevel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "risk_level must be one of low, medium, high"})
		return
	}

	cards, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("list agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(cards), "agents": cards})
}

// GetAgent handles GET /agents/:id.
func (h *AgentHandler) GetAgent(c *gin.Context) {
	card, err := h.store.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.Error("get agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, card)
}

// DeleteAgent handles DELETE /agents/:id.
func (h *AgentHandler) DeleteAgent(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		h.logger.Error("delete agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	c.Status(http.StatusNoContent)
}
