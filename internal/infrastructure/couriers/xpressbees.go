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

const (
	xpressbeesDefaultBaseURL = "https://shipment.xpressbees.com"
	// Xpressbees bearers last 12 hours.
	xpressbeesTokenTTL = 12 * time.Hour
)

// XpressbeesAdapter integrates Xpressbees. Auth is an email/password login
// issuing a short-lived bearer, cached through the token provider.
//
// Credentials: email, password, optional baseUrl override.
type XpressbeesAdapter struct {
	deps       Deps
	baseURL    string
	fetchToken cache.FetchFunc
	log        *zap.Logger
}

func newXpressbees(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	email, err := creds.Require("email")
	if err != nil {
		return nil, err
	}
	password, err := creds.Require("password")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = xpressbeesDefaultBaseURL
	}
	return &XpressbeesAdapter{
		deps:    deps,
		baseURL: baseURL,
		fetchToken: jsonLoginFetch(deps.Gateway, "XPRESSBEES",
			baseURL+"/api/users/login",
			map[string]string{"email": email, "password": password},
			xpressbeesTokenTTL),
		log: deps.Log.With(zap.String("transporter", "XPRESSBEES")),
	}, nil
}

func (a *XpressbeesAdapter) Code() integration.TransporterCode {
	return integration.TransporterXpressbees
}
func (a *XpressbeesAdapter) Name() string {
	return integration.TransporterXpressbees.DisplayName()
}

func (a *XpressbeesAdapter) Authenticate(ctx context.Context) error {
	_, err := a.deps.Tokens.Token(ctx, "XPRESSBEES", a.fetchToken)
	return err
}

func (a *XpressbeesAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.deps.Tokens.Token(ctx, "XPRESSBEES", a.fetchToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}, nil
}

func (a *XpressbeesAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	paymentType := "prepaid"
	codAmount := decimal.Zero
	if req.PaymentMode == integration.PaymentModeCOD {
		paymentType = "cod"
		codAmount = req.CODAmount
	}

	items := make([]map[string]any, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, map[string]any{
			"name":  it.Name,
			"sku":   it.SKU,
			"qty":   it.Quantity.IntPart(),
			"price": it.UnitPrice,
		})
	}

	body, err := json.Marshal(map[string]any{
		"order_number":       req.OrderReference,
		"payment_type":       paymentType,
		"collectable_amount": codAmount,
		"order_amount":       req.InvoiceValue,
		"package_weight":     req.Package.WeightKG.Mul(decimal.NewFromInt(1000)),
		"package_length":     req.Package.LengthCM,
		"package_breadth":    req.Package.WidthCM,
		"package_height":     req.Package.HeightCM,
		"order_items":        items,
		"consignee": map[string]string{
			"name":    req.Delivery.Name,
			"address": fullAddress(req.Delivery),
			"city":    req.Delivery.City,
			"state":   req.Delivery.State,
			"pincode": req.Delivery.PostalCode,
			"phone":   req.Delivery.Phone,
		},
		"pickup": map[string]string{
			"warehouse_name": req.Pickup.Name,
			"address":        fullAddress(req.Pickup),
			"city":           req.Pickup.City,
			"state":          req.Pickup.State,
			"pincode":        req.Pickup.PostalCode,
			"phone":          req.Pickup.Phone,
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "XPRESSBEES", http.MethodPost,
		a.baseURL+"/api/shipments2", body, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status bool `json:"status"`
		Data   struct {
			AWBNumber   string `json:"awb_number"`
			ShipmentID  string `json:"shipment_id"`
			LabelURL    string `json:"label"`
			CourierName string `json:"courier_name"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := decodeBody(res, "XPRESSBEES", &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AWBNumber == "" {
		return nil, fmt.Errorf("XPRESSBEES: %w: %s", integration.ErrShipmentCreateFailed, resp.Message)
	}

	courierName := resp.Data.CourierName
	if courierName == "" {
		courierName = a.Name()
	}
	return &integration.ShipmentResult{
		AWB:         resp.Data.AWBNumber,
		ShipmentID:  resp.Data.ShipmentID,
		CourierName: courierName,
		LabelURL:    resp.Data.LabelURL,
	}, nil
}

func (a *XpressbeesAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "XPRESSBEES", http.MethodGet,
		a.baseURL+"/api/shipments2/track/"+url.PathEscape(awb), nil, headers)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("XPRESSBEES: %w: awb %s", integration.ErrShipmentNotFound, awb)
	}

	var resp struct {
		Data struct {
			History []struct {
				StatusCode string `json:"status_code"`
				Message    string `json:"message"`
				Location   string `json:"location"`
				EventTime  string `json:"event_time"`
			} `json:"history"`
		} `json:"data"`
	}
	if err := decodeBody(res, "XPRESSBEES", &resp); err != nil {
		return nil, err
	}

	var events []integration.TrackingEvent
	for _, h := range resp.Data.History {
		events = append(events, integration.TrackingEvent{
			Status:     h.Message,
			StatusCode: h.StatusCode,
			Location:   h.Location,
			Timestamp:  parseTime(h.EventTime, time.RFC3339, "2006-01-02 15:04:05"),
		})
	}
	return events, nil
}

func (a *XpressbeesAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"awb": awb})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "XPRESSBEES", http.MethodPost,
		a.baseURL+"/api/shipments2/cancel", body, headers)
	if err != nil {
		return err
	}
	if err := checkResult(res, "XPRESSBEES"); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}
	return nil
}

func (a *XpressbeesAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("origin", req.PickupPincode)
	q.Set("destination", req.DeliveryPincode)
	res, err := a.deps.Gateway.Do(ctx, "XPRESSBEES", http.MethodGet,
		a.baseURL+"/api/courier/serviceability?"+q.Encode(), nil, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status bool `json:"status"`
		Data   struct {
			Serviceable bool `json:"serviceable"`
			COD         bool `json:"cod"`
			TAT         int  `json:"tat"`
		} `json:"data"`
	}
	if err := decodeBody(res, "XPRESSBEES", &resp); err != nil {
		return nil, err
	}
	return &integration.ServiceabilityResult{
		Serviceable:   resp.Data.Serviceable,
		CODAvailable:  resp.Data.COD,
		EstimatedDays: resp.Data.TAT,
	}, nil
}

func (a *XpressbeesAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]any{
		"origin":         req.PickupPincode,
		"destination":    req.DeliveryPincode,
		"weight":         req.Package.WeightKG.Mul(decimal.NewFromInt(1000)),
		"cod_amount":     req.CODAmount,
		"declared_value": req.DeclaredValue,
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "XPRESSBEES", http.MethodPost,
		a.baseURL+"/api/courier/rates", body, headers)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			CourierName string          `json:"courier_name"`
			TotalCharge decimal.Decimal `json:"total_charges"`
			CODCharge   decimal.Decimal `json:"cod_charges"`
			TAT         int             `json:"tat"`
		} `json:"data"`
	}
	if err := decodeBody(res, "XPRESSBEES", &resp); err != nil {
		return nil, err
	}

	quotes := make([]integration.RateQuote, 0, len(resp.Data))
	for _, d := range resp.Data {
		name := d.CourierName
		if name == "" {
			name = a.Name()
		}
		quotes = append(quotes, integration.RateQuote{
			CourierName:   name,
			Amount:        d.TotalCharge,
			CODCharge:     d.CODCharge,
			EstimatedDays: d.TAT,
		})
	}
	return quotes, nil
}

func (a *XpressbeesAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return "", err
	}
	res, err := a.deps.Gateway.Do(ctx, "XPRESSBEES", http.MethodGet,
		a.baseURL+"/api/shipments2/label/"+url.PathEscape(awb), nil, headers)
	if err != nil {
		return "", err
	}
	var resp struct {
		Data struct {
			Label string `json:"label"`
		} `json:"data"`
	}
	if err := decodeBody(res, "XPRESSBEES", &resp); err != nil {
		return "", err
	}
	if resp.Data.Label == "" {
		return "", fmt.Errorf("XPRESSBEES: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.Data.Label, nil
}

var _ integration.Transporter = (*XpressbeesAdapter)(nil)
