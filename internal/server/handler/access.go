package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-io/custodia/internal/access"
	"github.com/custodia-io/custodia/internal/evidence"
)

// AccessHandler exposes the access-request workflow routes.
type AccessHandler struct {
	gate   *access.Gate
	logger *zap.Logger
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(gate *access.Gate, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{gate: gate, logger: logger}
}

// Register mounts the access-request routes on the given router group.
func (h *AccessHandler) Register(rg *gin.RouterGroup) {
	ar := rg.Group("/access-requests")
	{
		ar.POST("", h.Create)
		ar.GET("/:id", h.Get)
		ar.POST("/:id/approve", h.Approve)
		ar.POST("/:id/deny", h.Deny)
	}
	rg.GET("/evidence/:id/access-log", h.AccessLog)
}

type createAccessRequest struct {
	EvidenceID uuid.UUID `json:"evidence_id" binding:"required"`
	Reason     string    `json:"reason"      binding:"required"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// Create handles POST /access-requests — opens a PENDING request for the
// authenticated actor.
func (h *AccessHandler) Create(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}

	var req createAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.gate.CreateRequest(c.Request.Context(), req.EvidenceID, actor,
		req.Reason, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
			return
		}
		h.logger.Error("create access request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access request"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Get handles GET /access-requests/:id.
func (h *AccessHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	req, err := h.gate.GetRequest(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "access request not found"})
			return
		}
		h.logger.Error("get access request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load access request"})
		return
	}

	c.JSON(http.StatusOK, req)
}

// Approve handles POST /access-requests/:id/approve.
func (h *AccessHandler) Approve(c *gin.Context) { h.decide(c, true) }

// Deny handles POST /access-requests/:id/deny.
func (h *AccessHandler) Deny(c *gin.Context) { h.decide(c, false) }

func (h *AccessHandler) decide(c *gin.Context, approve bool) {
	approver, ok := actorFromCtx(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return
	}

	req, err := h.gate.Decide(c.Request.Context(), id, approver, approve)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "access request not found"})
		case errors.Is(err, access.ErrAlreadyDecided):
			c.JSON(http.StatusConflict, gin.H{"error": "access request already decided"})
		default:
			h.logger.Error("decide access request", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decide access request"})
		}
		return
	}

	c.JSON(http.StatusOK, req)
}

// AccessLog handles GET /evidence/:id/access-log?limit= — view analytics,
// newest first.
func (h *AccessHandler) AccessLog(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.gate.AccessLog(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("access log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read access log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
