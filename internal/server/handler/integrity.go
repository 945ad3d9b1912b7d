package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-io/custodia/internal/evidence"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/identity"
	"github.com/custodia-io/custodia/internal/integrity"
)

// IntegrityHandler exposes the integrity verification routes.
type IntegrityHandler struct {
	verifier *integrity.Verifier
	logger   *zap.Logger
}

// NewIntegrityHandler creates a new IntegrityHandler.
func NewIntegrityHandler(verifier *integrity.Verifier, logger *zap.Logger) *IntegrityHandler {
	return &IntegrityHandler{verifier: verifier, logger: logger}
}

// Register mounts the integrity routes on the given router group.
func (h *IntegrityHandler) Register(rg *gin.RouterGroup) {
	ev := rg.Group("/evidence/:id/integrity")
	{
		ev.POST("", h.Run)
		ev.GET("", h.History)
	}
}

// Run handles POST /evidence/:id/integrity — runs a full content + chain
// verification and records the result. System tokens are accepted here so
// operators can trigger checks with automation credentials.
func (h *IntegrityHandler) Run(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	checkedBy := hashchain.SystemActor
	if claims := identity.ActorClaimsFromCtx(c); claims != nil {
		checkedBy = claims.ActorID
	}

	res, err := h.verifier.Verify(c.Request.Context(), id, checkedBy)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
			return
		}
		h.logger.Error("integrity verification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}
	RecordIntegrityCheck(string(res.Status))

	c.JSON(http.StatusOK, res)
}

// History handles GET /evidence/:id/integrity?limit= — returns past check
// results, newest first.
func (h *IntegrityHandler) History(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	results, err := h.verifier.History(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("integrity history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read integrity history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"checks": results, "count": len(results)})
}
