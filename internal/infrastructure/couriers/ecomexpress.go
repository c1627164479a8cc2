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

const ecomExpressDefaultBaseURL = "https://api.ecomexpress.in"

// EcomExpressAdapter integrates Ecom Express. Their API has no token
// endpoint; the username and password ride as form fields on every call,
// with the request document in a json_input field.
//
// Credentials: username, password, optional baseUrl override.
type EcomExpressAdapter struct {
	deps     Deps
	baseURL  string
	username string
	password string
	log      *zap.Logger
}

func newEcomExpress(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	username, err := creds.Require("username")
	if err != nil {
		return nil, err
	}
	password, err := creds.Require("password")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = ecomExpressDefaultBaseURL
	}
	return &EcomExpressAdapter{
		deps:     deps,
		baseURL:  baseURL,
		username: username,
		password: password,
		log:      deps.Log.With(zap.String("transporter", "ECOM_EXPRESS")),
	}, nil
}

func (a *EcomExpressAdapter) Code() integration.TransporterCode {
	return integration.TransporterEcomExpress
}
func (a *EcomExpressAdapter) Name() string {
	return integration.TransporterEcomExpress.DisplayName()
}

// postForm sends a credentialed form request, attaching jsonInput when
// non-nil.
func (a *EcomExpressAdapter) postForm(ctx context.Context, path string, jsonInput any, extra url.Values) ([]byte, error) {
	form := url.Values{}
	form.Set("username", a.username)
	form.Set("password", a.password)
	for k, vs := range extra {
		for _, v := range vs {
			form.Add(k, v)
		}
	}
	if jsonInput != nil {
		doc, err := json.Marshal(jsonInput)
		if err != nil {
			return nil, err
		}
		form.Set("json_input", string(doc))
	}

	res, err := a.deps.Gateway.Do(ctx, "ECOM_EXPRESS", http.MethodPost,
		a.baseURL+path, []byte(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if err != nil {
		return nil, err
	}
	if err := checkResult(res, "ECOM_EXPRESS"); err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (a *EcomExpressAdapter) Authenticate(ctx context.Context) error {
	// The AWB fetch endpoint with a zero count doubles as a credential check.
	_, err := a.postForm(ctx, "/apiv2/fetch_awb/", nil, url.Values{"count": {"0"}, "type": {"PPD"}})
	return err
}

func (a *EcomExpressAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	codAmount := decimal.Zero
	if req.PaymentMode == integration.PaymentModeCOD {
		codAmount = req.CODAmount
	}

	body, err := a.postForm(ctx, "/apiv2/manifest_awb/", []map[string]any{{
		"ORDER_NUMBER":      req.OrderReference,
		"PRODUCT":           productCode(req.PaymentMode),
		"CONSIGNEE":         req.Delivery.Name,
		"CONSIGNEE_ADDRESS": fullAddress(req.Delivery),
		"DESTINATION_CITY":  req.Delivery.City,
		"STATE":             req.Delivery.State,
		"PINCODE":           req.Delivery.PostalCode,
		"MOBILE":            req.Delivery.Phone,
		"PICKUP_NAME":       req.Pickup.Name,
		"PICKUP_ADDRESS":    fullAddress(req.Pickup),
		"PICKUP_PINCODE":    req.Pickup.PostalCode,
		"PICKUP_MOBILE":     req.Pickup.Phone,
		"COLLECTABLE_VALUE": codAmount,
		"DECLARED_VALUE":    req.InvoiceValue,
		"ACTUAL_WEIGHT":     req.Package.WeightKG,
		"LENGTH":            req.Package.LengthCM,
		"BREADTH":           req.Package.WidthCM,
		"HEIGHT":            req.Package.HeightCM,
	}}, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Shipments []struct {
			Success bool   `json:"success"`
			AWB     string `json:"awb"`
			Reason  string `json:"reason"`
		} `json:"shipments"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ECOM_EXPRESS: %w: %v", integration.ErrProviderInvalidResponse, err)
	}
	if len(resp.Shipments) == 0 || !resp.Shipments[0].Success || resp.Shipments[0].AWB == "" {
		return nil, fmt.Errorf("ECOM_EXPRESS: %w: booking rejected", integration.ErrShipmentCreateFailed)
	}

	return &integration.ShipmentResult{
		AWB:         resp.Shipments[0].AWB,
		CourierName: a.Name(),
	}, nil
}

func productCode(mode integration.PaymentMode) string {
	if mode == integration.PaymentModeCOD {
		return "COD"
	}
	return "PPD"
}

func (a *EcomExpressAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	body, err := a.postForm(ctx, "/apiv2/track_me/", nil, url.Values{"awb": {awb}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Shipments []struct {
			AWB   string `json:"awb"`
			Scans []struct {
				Status   string `json:"status"`
				Code     string `json:"reason_code"`
				Location string `json:"location"`
				DateTime string `json:"updated_on"`
			} `json:"scans"`
		} `json:"shipments"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ECOM_EXPRESS: %w: %v", integration.ErrProviderInvalidResponse, err)
	}
	if len(resp.Shipments) == 0 {
		return nil, fmt.Errorf("ECOM_EXPRESS: %w: awb %s", integration.ErrShipmentNotFound, awb)
	}

	var events []integration.TrackingEvent
	for _, s := range resp.Shipments[0].Scans {
		events = append(events, integration.TrackingEvent{
			Status:     s.Status,
			StatusCode: s.Code,
			Location:   s.Location,
			Timestamp:  parseTime(s.DateTime, time.RFC3339, "02 Jan, 2006, 15:04"),
		})
	}
	return events, nil
}

func (a *EcomExpressAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	body, err := a.postForm(ctx, "/apiv2/cancel_awb/", nil, url.Values{"awbs": {awb}})
	if err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}

	var resp []struct {
		AWB     string `json:"awb"`
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("ECOM_EXPRESS: %w: %v", integration.ErrProviderInvalidResponse, err)
	}
	if len(resp) == 0 || !resp[0].Success {
		return fmt.Errorf("ECOM_EXPRESS: %w", integration.ErrCancellationFailed)
	}
	return nil
}

func (a *EcomExpressAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	body, err := a.postForm(ctx, "/apiv2/pincodes/", nil, url.Values{"pincode": {req.DeliveryPincode}})
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Pincode     string `json:"pincode"`
		Serviceable bool   `json:"active"`
		COD         bool   `json:"cod"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ECOM_EXPRESS: %w: %v", integration.ErrProviderInvalidResponse, err)
	}

	result := &integration.ServiceabilityResult{}
	for _, p := range resp {
		if p.Pincode != req.DeliveryPincode {
			continue
		}
		result.Serviceable = p.Serviceable
		result.CODAvailable = p.COD
	}
	return result, nil
}

func (a *EcomExpressAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	body, err := a.postForm(ctx, "/apiv2/rate_calculator/", map[string]any{
		"orginPincode":       req.PickupPincode,
		"destinationPincode": req.DeliveryPincode,
		"weight":             req.Package.WeightKG,
		"codAmount":          req.CODAmount,
		"declaredValue":      req.DeclaredValue,
	}, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TotalCharge decimal.Decimal `json:"total_charge"`
		CODCharge   decimal.Decimal `json:"cod_charge"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ECOM_EXPRESS: %w: %v", integration.ErrProviderInvalidResponse, err)
	}
	return []integration.RateQuote{{
		CourierName: a.Name(),
		Amount:      resp.TotalCharge,
		CODCharge:   resp.CODCharge,
	}}, nil
}

func (a *EcomExpressAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	body, err := a.postForm(ctx, "/apiv2/shipping_label/", nil, url.Values{"awb": {awb}})
	if err != nil {
		return "", err
	}
	var resp struct {
		LabelURL string `json:"label_url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ECOM_EXPRESS: %w: %v", integration.ErrProviderInvalidResponse, err)
	}
	if resp.LabelURL == "" {
		return "", fmt.Errorf("ECOM_EXPRESS: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.LabelURL, nil
}

var _ integration.Transporter = (*EcomExpressAdapter)(nil)
