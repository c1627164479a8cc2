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
	"github.com/oms/backend/internal/infrastructure/cache"
)

const ekartDefaultBaseURL = "https://api.ekartlogistics.com"

// EkartAdapter integrates Ekart Logistics. Auth is OAuth2
// client-credentials with the bearer cached until expiry.
//
// Credentials: clientId, clientSecret, optional baseUrl/tokenUrl overrides.
type EkartAdapter struct {
	deps       Deps
	baseURL    string
	fetchToken cache.FetchFunc
	log        *zap.Logger
}

func newEkart(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	clientID, err := creds.Require("clientId")
	if err != nil {
		return nil, err
	}
	clientSecret, err := creds.Require("clientSecret")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = ekartDefaultBaseURL
	}
	tokenURL := creds.Get("tokenUrl")
	if tokenURL == "" {
		tokenURL = baseURL + "/auth/token"
	}
	return &EkartAdapter{
		deps:       deps,
		baseURL:    baseURL,
		fetchToken: oauthClientCredentialsFetch(deps.Gateway, "EKART", tokenURL, clientID, clientSecret),
		log:        deps.Log.With(zap.String("transporter", "EKART")),
	}, nil
}

func (a *EkartAdapter) Code() integration.TransporterCode { return integration.TransporterEkart }
func (a *EkartAdapter) Name() string                      { return integration.TransporterEkart.DisplayName() }

func (a *EkartAdapter) Authenticate(ctx context.Context) error {
	_, err := a.deps.Tokens.Token(ctx, "EKART", a.fetchToken)
	return err
}

func (a *EkartAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.deps.Tokens.Token(ctx, "EKART", a.fetchToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}, nil
}

func (a *EkartAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	serviceType := "FORWARD_PREPAID"
	codAmount := decimal.Zero
	if req.PaymentMode == integration.PaymentModeCOD {
		serviceType = "FORWARD_COD"
		codAmount = req.CODAmount
	}

	body, err := json.Marshal(map[string]any{
		"client_reference_id": req.OrderReference,
		"service_type":        serviceType,
		"cod_amount":          codAmount,
		"invoice_value":       req.InvoiceValue,
		"source": map[string]string{
			"name":    req.Pickup.Name,
			"address": fullAddress(req.Pickup),
			"city":    req.Pickup.City,
			"state":   req.Pickup.State,
			"pincode": req.Pickup.PostalCode,
			"phone":   req.Pickup.Phone,
		},
		"destination": map[string]string{
			"name":    req.Delivery.Name,
			"address": fullAddress(req.Delivery),
			"city":    req.Delivery.City,
			"state":   req.Delivery.State,
			"pincode": req.Delivery.PostalCode,
			"phone":   req.Delivery.Phone,
		},
		"dimensions": map[string]any{
			"length_cm": req.Package.LengthCM,
			"width_cm":  req.Package.WidthCM,
			"height_cm": req.Package.HeightCM,
			"weight_kg": req.Package.WeightKG,
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "EKART", http.MethodPost,
		a.baseURL+"/v2/shipments/create", body, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TrackingID string `json:"tracking_id"`
		ShipmentID string `json:"shipment_id"`
		Status     string `json:"status"`
	}
	if err := decodeBody(res, "EKART", &resp); err != nil {
		return nil, err
	}
	if resp.TrackingID == "" {
		return nil, fmt.Errorf("EKART: %w: booking rejected with status %q", integration.ErrShipmentCreateFailed, resp.Status)
	}

	return &integration.ShipmentResult{
		AWB:         resp.TrackingID,
		ShipmentID:  resp.ShipmentID,
		CourierName: a.Name(),
	}, nil
}

func (a *EkartAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "EKART", http.MethodGet,
		a.baseURL+"/v2/shipments/track/"+url.PathEscape(awb), nil, headers)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("EKART: %w: awb %s", integration.ErrShipmentNotFound, awb)
	}

	var resp struct {
		History []struct {
			Status    string `json:"status"`
			Code      string `json:"status_code"`
			City      string `json:"city"`
			Timestamp string `json:"event_time"`
			Remarks   string `json:"remarks"`
		} `json:"history"`
	}
	if err := decodeBody(res, "EKART", &resp); err != nil {
		return nil, err
	}

	var events []integration.TrackingEvent
	for _, h := range resp.History {
		events = append(events, integration.TrackingEvent{
			Status:     h.Status,
			StatusCode: h.Code,
			Location:   h.City,
			Timestamp:  parseTime(h.Timestamp, time.RFC3339, "2006-01-02 15:04:05"),
			Remarks:    h.Remarks,
		})
	}
	return events, nil
}

func (a *EkartAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"tracking_id": awb})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "EKART", http.MethodPost,
		a.baseURL+"/v2/shipments/cancel", body, headers)
	if err != nil {
		return err
	}
	if err := checkResult(res, "EKART"); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}
	return nil
}

func (a *EkartAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("source_pincode", req.PickupPincode)
	q.Set("destination_pincode", req.DeliveryPincode)
	res, err := a.deps.Gateway.Do(ctx, "EKART", http.MethodGet,
		a.baseURL+"/v2/serviceability?"+q.Encode(), nil, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Serviceable  bool `json:"serviceable"`
		CODAvailable bool `json:"cod_available"`
		TATDays      int  `json:"tat_days"`
	}
	if err := decodeBody(res, "EKART", &resp); err != nil {
		return nil, err
	}
	return &integration.ServiceabilityResult{
		Serviceable:   resp.Serviceable,
		CODAvailable:  resp.CODAvailable,
		EstimatedDays: resp.TATDays,
	}, nil
}

func (a *EkartAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{
		"source_pincode":      req.PickupPincode,
		"destination_pincode": req.DeliveryPincode,
		"weight_kg":           req.Package.WeightKG,
		"cod_amount":          req.CODAmount,
		"declared_value":      req.DeclaredValue,
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "EKART", http.MethodPost,
		a.baseURL+"/v2/rates", body, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Total     decimal.Decimal `json:"total_charge"`
		CODCharge decimal.Decimal `json:"cod_charge"`
		TATDays   int             `json:"tat_days"`
	}
	if err := decodeBody(res, "EKART", &resp); err != nil {
		return nil, err
	}
	return []integration.RateQuote{{
		CourierName:   a.Name(),
		Amount:        resp.Total,
		CODCharge:     resp.CODCharge,
		EstimatedDays: resp.TATDays,
	}}, nil
}

func (a *EkartAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return "", err
	}
	res, err := a.deps.Gateway.Do(ctx, "EKART", http.MethodGet,
		a.baseURL+"/v2/shipments/label/"+url.PathEscape(awb), nil, headers)
	if err != nil {
		return "", err
	}
	var resp struct {
		LabelURL string `json:"label_url"`
	}
	if err := decodeBody(res, "EKART", &resp); err != nil {
		return "", err
	}
	if resp.LabelURL == "" {
		return "", fmt.Errorf("EKART: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.LabelURL, nil
}

var _ integration.Transporter = (*EkartAdapter)(nil)
