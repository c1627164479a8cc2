package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/interfaces/http/dto"
)

// ShipmentService is the slice of the shipment application service the HTTP
// surface needs.
type ShipmentService interface {
	CreateShipment(ctx context.Context, code integration.TransporterCode, req *integration.ShipmentRequest) (*integration.ShipmentResult, error)
	Track(ctx context.Context, awb string) ([]integration.TrackingEvent, error)
	Cancel(ctx context.Context, awb string) error
	Label(ctx context.Context, awb string, expiresIn time.Duration) (string, time.Time, error)
	CheckServiceability(ctx context.Context, code integration.TransporterCode, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error)
	CalculateRates(ctx context.Context, codes []integration.TransporterCode, req *integration.RateRequest) ([]integration.RateQuote, error)
	GenerateManifest(ctx context.Context, code integration.TransporterCode, awbs []string) (*integration.ManifestResult, error)
	ListByOrder(ctx context.Context, orderRef string) ([]*integration.ShipmentRecord, error)
}

// defaultLabelTTL is how long a label download URL stays valid.
const defaultLabelTTL = 15 * time.Minute

// ShipmentHandler exposes carrier operations.
type ShipmentHandler struct {
	BaseHandler
	svc ShipmentService
}

// NewShipmentHandler creates a ShipmentHandler.
func NewShipmentHandler(svc ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{svc: svc}
}

// RegisterRoutes registers the shipment routes.
func (h *ShipmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	transporters := rg.Group("/transporters")
	{
		transporters.POST("/:code/shipments", h.CreateShipment)
		transporters.POST("/:code/serviceability", h.CheckServiceability)
		transporters.POST("/:code/manifests", h.GenerateManifest)
	}

	shipments := rg.Group("/shipments")
	{
		shipments.GET("/:awb/track", h.Track)
		shipments.GET("/:awb/label", h.Label)
		shipments.POST("/:awb/cancel", h.Cancel)
	}

	rg.POST("/rates", h.CalculateRates)
	rg.GET("/orders/:ref/shipments", h.ListByOrder)
}

// CreateShipment books a shipment with the carrier in the path.
func (h *ShipmentHandler) CreateShipment(c *gin.Context) {
	code, ok := h.transporterCode(c)
	if !ok {
		return
	}

	var req dto.CreateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.CreateShipment(c.Request.Context(), code, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ShipmentFromDomain(result))
}

// Track returns the scan events for an AWB.
func (h *ShipmentHandler) Track(c *gin.Context) {
	events, err := h.svc.Track(c.Request.Context(), c.Param("awb"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.TrackingEventsFromDomain(events))
}

// Label returns a time-limited download URL for the archived label.
func (h *ShipmentHandler) Label(c *gin.Context) {
	awb := c.Param("awb")
	url, expiresAt, err := h.svc.Label(c.Request.Context(), awb, defaultLabelTTL)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.LabelResponse{AWB: awb, URL: url, ExpiresAt: expiresAt})
}

// Cancel cancels a booked shipment.
func (h *ShipmentHandler) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("awb")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// CheckServiceability asks the carrier in the path whether it covers a lane.
func (h *ShipmentHandler) CheckServiceability(c *gin.Context) {
	code, ok := h.transporterCode(c)
	if !ok {
		return
	}

	var req dto.ServiceabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.CheckServiceability(c.Request.Context(), code, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ServiceabilityFromDomain(result))
}

// CalculateRates collects quotes from the requested carriers; with no
// carriers named, every supported one is asked.
func (h *ShipmentHandler) CalculateRates(c *gin.Context) {
	var req dto.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	codes := make([]integration.TransporterCode, 0, len(req.Transporters))
	for _, raw := range req.Transporters {
		code := integration.TransporterCode(raw)
		if !code.IsValid() {
			h.Error(c, http.StatusNotFound, dto.ErrCodeUnknownProvider, "unknown transporter: "+raw)
			return
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		codes = integration.AllTransporters()
	}

	quotes, err := h.svc.CalculateRates(c.Request.Context(), codes, req.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.RateQuotesFromDomain(quotes))
}

// GenerateManifest closes a pickup manifest for the carrier in the path.
func (h *ShipmentHandler) GenerateManifest(c *gin.Context) {
	code, ok := h.transporterCode(c)
	if !ok {
		return
	}

	var req dto.ManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.svc.GenerateManifest(c.Request.Context(), code, req.AWBs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ManifestFromDomain(result))
}

// ListByOrder returns the shipments booked for an order reference.
func (h *ShipmentHandler) ListByOrder(c *gin.Context) {
	recs, err := h.svc.ListByOrder(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]dto.ShipmentRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, dto.ShipmentRecordFromDomain(rec))
	}
	h.Success(c, out)
}

func (h *ShipmentHandler) transporterCode(c *gin.Context) (integration.TransporterCode, bool) {
	code := integration.TransporterCode(c.Param("code"))
	if !code.IsValid() {
		h.Error(c, http.StatusNotFound, dto.ErrCodeUnknownProvider, "unknown transporter: "+c.Param("code"))
		return "", false
	}
	return code, true
}
