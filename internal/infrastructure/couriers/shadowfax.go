package couriers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
)

const shadowfaxDefaultBaseURL = "https://api.shadowfax.in"

// ShadowfaxAdapter integrates Shadowfax last-mile delivery. Auth is a static
// token sent as "Token <key>".
//
// Credentials: apiToken, optional baseUrl override.
type ShadowfaxAdapter struct {
	deps     Deps
	baseURL  string
	apiToken string
	log      *zap.Logger
}

func newShadowfax(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	apiToken, err := creds.Require("apiToken")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = shadowfaxDefaultBaseURL
	}
	return &ShadowfaxAdapter{
		deps:     deps,
		baseURL:  baseURL,
		apiToken: apiToken,
		log:      deps.Log.With(zap.String("transporter", "SHADOWFAX")),
	}, nil
}

func (a *ShadowfaxAdapter) Code() integration.TransporterCode { return integration.TransporterShadowfax }
func (a *ShadowfaxAdapter) Name() string {
	return integration.TransporterShadowfax.DisplayName()
}

func (a *ShadowfaxAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Token " + a.apiToken,
		"Content-Type":  "application/json",
	}
}

func (a *ShadowfaxAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodGet,
		a.baseURL+"/v1/clients/me", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "SHADOWFAX")
}

func (a *ShadowfaxAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	codAmount := decimal.Zero
	if req.PaymentMode == integration.PaymentModeCOD {
		codAmount = req.CODAmount
	}

	body, err := json.Marshal(map[string]any{
		"client_order_id": req.OrderReference,
		"cod_amount":      codAmount,
		"declared_value":  req.InvoiceValue,
		"pickup": map[string]string{
			"name":    req.Pickup.Name,
			"address": fullAddress(req.Pickup),
			"city":    req.Pickup.City,
			"pincode": req.Pickup.PostalCode,
			"phone":   req.Pickup.Phone,
		},
		"drop": map[string]string{
			"name":    req.Delivery.Name,
			"address": fullAddress(req.Delivery),
			"city":    req.Delivery.City,
			"pincode": req.Delivery.PostalCode,
			"phone":   req.Delivery.Phone,
		},
		"weight_kg": req.Package.WeightKG,
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodPost,
		a.baseURL+"/v1/orders", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		AWBNumber string `json:"awb_number"`
		OrderID   string `json:"sfx_order_id"`
		Message   string `json:"message"`
	}
	if err := decodeBody(res, "SHADOWFAX", &resp); err != nil {
		return nil, err
	}
	if resp.AWBNumber == "" {
		return nil, fmt.Errorf("SHADOWFAX: %w: %s", integration.ErrShipmentCreateFailed, resp.Message)
	}

	return &integration.ShipmentResult{
		AWB:         resp.AWBNumber,
		ShipmentID:  resp.OrderID,
		CourierName: a.Name(),
	}, nil
}

func (a *ShadowfaxAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodGet,
		a.baseURL+"/v1/orders/track?awb="+url.QueryEscape(awb), nil, a.headers())
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("SHADOWFAX: %w: awb %s", integration.ErrShipmentNotFound, awb)
	}

	var resp struct {
		Events []struct {
			Status    string `json:"status"`
			Location  string `json:"location"`
			Timestamp string `json:"timestamp"`
			Remarks   string `json:"remarks"`
		} `json:"events"`
	}
	if err := decodeBody(res, "SHADOWFAX", &resp); err != nil {
		return nil, err
	}

	var events []integration.TrackingEvent
	for _, e := range resp.Events {
		events = append(events, integration.TrackingEvent{
			Status:    e.Status,
			Location:  e.Location,
			Timestamp: parseTime(e.Timestamp, time.RFC3339, "2006-01-02 15:04:05"),
			Remarks:   e.Remarks,
		})
	}
	return events, nil
}

func (a *ShadowfaxAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	body, err := json.Marshal(map[string]string{"awb_number": awb})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodPost,
		a.baseURL+"/v1/orders/cancel", body, a.headers())
	if err != nil {
		return err
	}
	if err := checkResult(res, "SHADOWFAX"); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}
	return nil
}

func (a *ShadowfaxAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	q := url.Values{}
	q.Set("pickup_pincode", req.PickupPincode)
	q.Set("drop_pincode", req.DeliveryPincode)
	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodGet,
		a.baseURL+"/v1/serviceability?"+q.Encode(), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Serviceable bool `json:"serviceable"`
		CODEnabled  bool `json:"cod_enabled"`
	}
	if err := decodeBody(res, "SHADOWFAX", &resp); err != nil {
		return nil, err
	}
	return &integration.ServiceabilityResult{
		Serviceable:  resp.Serviceable,
		CODAvailable: resp.CODEnabled,
	}, nil
}

func (a *ShadowfaxAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	body, err := json.Marshal(map[string]any{
		"pickup_pincode": req.PickupPincode,
		"drop_pincode":   req.DeliveryPincode,
		"weight_kg":      req.Package.WeightKG,
		"cod_amount":     req.CODAmount,
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodPost,
		a.baseURL+"/v1/rates", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Amount    decimal.Decimal `json:"amount"`
		CODCharge decimal.Decimal `json:"cod_charge"`
	}
	if err := decodeBody(res, "SHADOWFAX", &resp); err != nil {
		return nil, err
	}
	return []integration.RateQuote{{
		CourierName: a.Name(),
		Amount:      resp.Amount,
		CODCharge:   resp.CODCharge,
	}}, nil
}

func (a *ShadowfaxAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "SHADOWFAX", http.MethodGet,
		a.baseURL+"/v1/orders/label?awb="+url.QueryEscape(awb), nil, a.headers())
	if err != nil {
		return "", err
	}
	var resp struct {
		LabelURL string `json:"label_url"`
	}
	if err := decodeBody(res, "SHADOWFAX", &resp); err != nil {
		return "", err
	}
	if resp.LabelURL == "" {
		return "", fmt.Errorf("SHADOWFAX: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.LabelURL, nil
}

var _ integration.Transporter = (*ShadowfaxAdapter)(nil)
