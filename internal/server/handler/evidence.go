package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-io/custodia/internal/access"
	"github.com/custodia-io/custodia/internal/custody"
	"github.com/custodia-io/custodia/internal/evidence"
	"github.com/custodia-io/custodia/internal/identity"
)

// EvidenceHandler exposes the evidence registry routes.
type EvidenceHandler struct {
	svc    *evidence.Service
	gate   *access.Gate
	logger *zap.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler.
func NewEvidenceHandler(svc *evidence.Service, gate *access.Gate, logger *zap.Logger) *EvidenceHandler {
	return &EvidenceHandler{svc: svc, gate: gate, logger: logger}
}

// Register mounts the evidence routes on the given router group.
func (h *EvidenceHandler) Register(rg *gin.RouterGroup) {
	ev := rg.Group("/evidence")
	{
		ev.POST("", h.Create)
		ev.GET("", h.List)
		ev.GET("/:id", h.Get)
		ev.POST("/:id/versions", h.AddVersion)
		ev.GET("/:id/versions", h.ListVersions)
		ev.POST("/:id/dispose", h.Dispose)
	}
}

// actorFromCtx resolves the authenticated actor as a UUID. System tokens are
// rejected: custody-mutating routes need a human actor identity.
func actorFromCtx(c *gin.Context) (uuid.UUID, bool) {
	claims := identity.ActorClaimsFromCtx(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "actor token required"})
		return uuid.Nil, false
	}
	id, err := claims.UUID()
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "a human actor token is required for this route"})
		return uuid.Nil, false
	}
	return id, true
}

// evidenceIDParam parses the :id path parameter.
func evidenceIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /evidence — registers an item and writes its genesis
// UPLOAD entry.
func (h *EvidenceHandler) Create(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}

	var req evidence.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.svc.Register(c.Request.Context(), req, actor)
	if err != nil {
		h.logger.Error("register evidence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register evidence"})
		return
	}
	RecordLedgerAppend()

	c.JSON(http.StatusCreated, item)
}

// Get handles GET /evidence/:id.
func (h *EvidenceHandler) Get(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	item, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
			return
		}
		h.logger.Error("get evidence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load evidence"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// List handles GET /evidence?case_id=&limit=&offset=.
func (h *EvidenceHandler) List(c *gin.Context) {
	var caseID uuid.UUID
	if raw := c.Query("case_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "case_id must be a UUID"})
			return
		}
		caseID = parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.svc.List(c.Request.Context(), caseID, limit, offset)
	if err != nil {
		h.logger.Error("list evidence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list evidence"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"evidence": items, "count": len(items)})
}

// AddVersion handles POST /evidence/:id/versions.
func (h *EvidenceHandler) AddVersion(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	var req evidence.VersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dec, err := h.gate.Authorize(c.Request.Context(), actor, id, custody.ActionVersionAdded)
	if err != nil {
		h.respondAuthorizeError(c, err)
		return
	}
	if !dec.Allowed {
		RecordAccessDecision(false)
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorised", "reason": dec.Reason})
		return
	}
	RecordAccessDecision(true)

	v, err := h.svc.AddVersion(c.Request.Context(), id, req, actor)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
			return
		}
		if errors.Is(err, custody.ErrInvalidAction) {
			c.JSON(http.StatusConflict, gin.H{"error": "evidence is disposed"})
			return
		}
		h.logger.Error("add version", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add version"})
		return
	}
	RecordLedgerAppend()

	c.JSON(http.StatusCreated, v)
}

// ListVersions handles GET /evidence/:id/versions.
func (h *EvidenceHandler) ListVersions(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	versions, err := h.svc.Versions(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list versions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list versions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"versions": versions, "count": len(versions)})
}

type disposeRequest struct {
	Method string `json:"method" binding:"required"`
	Reason string `json:"reason"`
}

// Dispose handles POST /evidence/:id/dispose — records the terminal DISPOSED
// entry and retires the item. The item row and its chain are kept.
func (h *EvidenceHandler) Dispose(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	var req disposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dec, err := h.gate.Authorize(c.Request.Context(), actor, id, custody.ActionDisposed)
	if err != nil {
		h.respondAuthorizeError(c, err)
		return
	}
	if !dec.Allowed {
		RecordAccessDecision(false)
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorised", "reason": dec.Reason})
		return
	}
	RecordAccessDecision(true)

	if err := h.svc.Dispose(c.Request.Context(), id, actor, req.Method, req.Reason); err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
			return
		}
		if errors.Is(err, custody.ErrInvalidAction) {
			c.JSON(http.StatusConflict, gin.H{"error": "evidence is already disposed"})
			return
		}
		h.logger.Error("dispose evidence", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispose evidence"})
		return
	}
	RecordLedgerAppend()

	c.JSON(http.StatusOK, gin.H{"status": "disposed"})
}

func (h *EvidenceHandler) respondAuthorizeError(c *gin.Context, err error) {
	if errors.Is(err, evidence.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
		return
	}
	h.logger.Error("authorize", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "authorisation failed"})
}
