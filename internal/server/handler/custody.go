package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/custodia-io/custodia/internal/access"
	"github.com/custodia-io/custodia/internal/custody"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/ledger"
)

// CustodyHandler exposes the custody ledger routes: recording actions and
// reading or verifying per-evidence chains.
type CustodyHandler struct {
	recorder *custody.Recorder
	store    ledger.Store
	gate     *access.Gate
	logger   *zap.Logger
}

// NewCustodyHandler creates a new CustodyHandler.
func NewCustodyHandler(recorder *custody.Recorder, store ledger.Store, gate *access.Gate, logger *zap.Logger) *CustodyHandler {
	return &CustodyHandler{recorder: recorder, store: store, gate: gate, logger: logger}
}

// Register mounts the custody routes on the given router group.
func (h *CustodyHandler) Register(rg *gin.RouterGroup) {
	ev := rg.Group("/evidence/:id")
	{
		ev.POST("/custody", h.RecordAction)
		ev.GET("/ledger", h.Chain)
		ev.GET("/ledger/verify", h.VerifyChain)
	}
}

type recordActionRequest struct {
	Action   string            `json:"action"   binding:"required"`
	Metadata map[string]string `json:"metadata"`
}

// RecordAction handles POST /evidence/:id/custody — authorises and appends a
// custody action to the item's chain.
func (h *CustodyHandler) RecordAction(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	var req recordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action := custody.Action(req.Action)

	dec, err := h.gate.Authorize(c.Request.Context(), actor, id, action)
	if err != nil {
		h.logger.Error("authorize custody action", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorisation failed"})
		return
	}
	if !dec.Allowed {
		RecordAccessDecision(false)
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorised", "reason": dec.Reason})
		return
	}
	RecordAccessDecision(true)

	entry, err := h.recorder.Record(c.Request.Context(), id, actor.String(), action, hashchain.Metadata(req.Metadata))
	if err != nil {
		switch {
		case errors.Is(err, custody.ErrInvalidAction):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, custody.ErrRetryExhausted), errors.Is(err, ledger.ErrChainConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "concurrent custody writes, retry the action"})
		default:
			h.logger.Error("record custody action", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record custody action"})
		}
		return
	}
	RecordLedgerAppend()

	c.JSON(http.StatusCreated, entry)
}

// Chain handles GET /evidence/:id/ledger — returns the full chain, oldest
// first.
func (h *CustodyHandler) Chain(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	entries, err := h.store.ListForEvidence(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list custody chain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read custody chain"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// VerifyChain handles GET /evidence/:id/ledger/verify — walks the chain and
// reports integrity without mutating anything.
func (h *CustodyHandler) VerifyChain(c *gin.Context) {
	id, ok := evidenceIDParam(c)
	if !ok {
		return
	}

	res, err := ledger.VerifyEvidence(c.Request.Context(), h.store, id)
	if err != nil {
		h.logger.Error("verify custody chain", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify custody chain"})
		return
	}

	if !res.Valid {
		c.JSON(http.StatusOK, gin.H{
			"valid":  false,
			"index":  res.Index,
			"fault":  res.Kind,
			"detail": res.Detail,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}
