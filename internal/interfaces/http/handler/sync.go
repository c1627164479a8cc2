package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/interfaces/http/dto"
)

// OrderSyncService is the slice of the sync application service the HTTP
// surface needs.
type OrderSyncService interface {
	SyncAll(ctx context.Context) ([]*integration.SyncRun, error)
	SyncChannel(ctx context.Context, code integration.ChannelCode) (*integration.SyncRun, error)
	RecentRuns(ctx context.Context, code integration.ChannelCode, limit int) ([]*integration.SyncRun, error)
	PushStatusUpdate(ctx context.Context, code integration.ChannelCode, req *integration.StatusUpdateRequest) error
}

// SyncHandler exposes order sync operations.
type SyncHandler struct {
	BaseHandler
	svc OrderSyncService
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(svc OrderSyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// RegisterRoutes registers the sync routes.
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	channels := rg.Group("/channels")
	{
		channels.POST("/sync", h.SyncAll)
		channels.POST("/:code/sync", h.SyncChannel)
		channels.GET("/:code/runs", h.ListRuns)
		channels.POST("/:code/status-updates", h.PushStatusUpdate)
	}
}

// SyncAll triggers one sync pass over every active channel.
func (h *SyncHandler) SyncAll(c *gin.Context) {
	runs, err := h.svc.SyncAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.SyncRunsFromDomain(runs))
}

// SyncChannel triggers a sync for one channel. The run record is returned
// even when the pull failed, so the caller sees the recorded outcome.
func (h *SyncHandler) SyncChannel(c *gin.Context) {
	code, ok := h.channelCode(c)
	if !ok {
		return
	}

	run, err := h.svc.SyncChannel(c.Request.Context(), code)
	if run != nil {
		h.Success(c, dto.SyncRunFromDomain(run))
		return
	}
	h.HandleError(c, err)
}

// ListRuns returns the latest sync runs for a channel, newest first.
func (h *SyncHandler) ListRuns(c *gin.Context) {
	code, ok := h.channelCode(c)
	if !ok {
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			h.BadRequest(c, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	runs, err := h.svc.RecentRuns(c.Request.Context(), code, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.SyncRunsFromDomain(runs))
}

// PushStatusUpdate reflects a local order state change back to the channel.
func (h *SyncHandler) PushStatusUpdate(c *gin.Context) {
	code, ok := h.channelCode(c)
	if !ok {
		return
	}

	var req dto.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.PushStatusUpdate(c.Request.Context(), code, req.ToDomain()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *SyncHandler) channelCode(c *gin.Context) (integration.ChannelCode, bool) {
	code := integration.ChannelCode(c.Param("code"))
	if !code.IsValid() {
		h.Error(c, http.StatusNotFound, dto.ErrCodeUnknownProvider, "unknown channel: "+c.Param("code"))
		return "", false
	}
	return code, true
}
