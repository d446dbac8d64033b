package handler

import (
	"net/http"
	"strconv"

	"github.com/SchenleyKB/evermore-cns/internal/audit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuditHandler exposes the decision audit chain over HTTP.
type AuditHandler struct {
	log    audit.Log
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(log audit.Log, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

// Register registers all audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/audit")
	{
		a.GET("", h.ListEntries)
		a.GET("/verify", h.VerifyChain)
	}
}

// ListEntries handles GET /audit?limit=&offset= — returns audit entries
// oldest first, including the genesis entry.
func (h *AuditHandler) ListEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	ctx := c.Request.Context()
	entries, err := h.log.List(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list audit entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit list failed"})
		return
	}
	total, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("count audit entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"total": total, "entries": entries})
}

// VerifyChain handles GET /audit/verify — walks the full chain and reports
// whether it is intact, along with the chain tip.
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	ctx := c.Request.Context()
	root, err := h.log.Root(ctx)
	if err != nil {
		h.logger.Error("audit root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit verify failed"})
		return
	}

	if err := h.log.Verify(ctx); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "root": root, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "root": root})
}
