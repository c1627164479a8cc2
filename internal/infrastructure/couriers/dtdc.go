package couriers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
)

const dtdcDefaultBaseURL = "https://api.dtdc.in"

// DTDCAdapter integrates DTDC courier. Auth is a static API key plus the
// assigned customer code, both sent on every call.
//
// Credentials: apiKey, customerCode, optional baseUrl override.
type DTDCAdapter struct {
	deps         Deps
	baseURL      string
	apiKey       string
	customerCode string
	log          *zap.Logger
}

func newDTDC(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	apiKey, err := creds.Require("apiKey")
	if err != nil {
		return nil, err
	}
	customerCode, err := creds.Require("customerCode")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = dtdcDefaultBaseURL
	}
	return &DTDCAdapter{
		deps:         deps,
		baseURL:      baseURL,
		apiKey:       apiKey,
		customerCode: customerCode,
		log:          deps.Log.With(zap.String("transporter", "DTDC")),
	}, nil
}

func (a *DTDCAdapter) Code() integration.TransporterCode { return integration.TransporterDTDC }
func (a *DTDCAdapter) Name() string                      { return integration.TransporterDTDC.DisplayName() }

func (a *DTDCAdapter) headers() map[string]string {
	return map[string]string{
		"api-key":      a.apiKey,
		"Content-Type": "application/json",
	}
}

func (a *DTDCAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodGet,
		a.baseURL+"/api/customer/integration/consignment/ping", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "DTDC")
}

func (a *DTDCAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	loadType := "NON-DOCUMENT"
	codAmount := decimal.Zero
	serviceType := "B2C PRIORITY"
	if req.PaymentMode == integration.PaymentModeCOD {
		codAmount = req.CODAmount
	}

	body, err := json.Marshal(map[string]any{
		"consignments": []map[string]any{{
			"customer_code":    a.customerCode,
			"reference_number": req.OrderReference,
			"service_type_id":  serviceType,
			"load_type":        loadType,
			"cod_amount":       codAmount,
			"declared_value":   req.InvoiceValue,
			"weight":           req.Package.WeightKG,
			"length":           req.Package.LengthCM,
			"width":            req.Package.WidthCM,
			"height":           req.Package.HeightCM,
			"origin_details": map[string]string{
				"name":    req.Pickup.Name,
				"address": fullAddress(req.Pickup),
				"city":    req.Pickup.City,
				"state":   req.Pickup.State,
				"pincode": req.Pickup.PostalCode,
				"phone":   req.Pickup.Phone,
			},
			"destination_details": map[string]string{
				"name":    req.Delivery.Name,
				"address": fullAddress(req.Delivery),
				"city":    req.Delivery.City,
				"state":   req.Delivery.State,
				"pincode": req.Delivery.PostalCode,
				"phone":   req.Delivery.Phone,
			},
		}},
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodPost,
		a.baseURL+"/api/customer/integration/consignment/softdata", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Success   bool   `json:"success"`
			Reference string `json:"reference_number"`
			AWB       string `json:"reference_awb"`
			Message   string `json:"message"`
		} `json:"data"`
	}
	if err := decodeBody(res, "DTDC", &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || !resp.Data[0].Success || resp.Data[0].AWB == "" {
		return nil, fmt.Errorf("DTDC: %w: booking rejected", integration.ErrShipmentCreateFailed)
	}

	return &integration.ShipmentResult{
		AWB:         resp.Data[0].AWB,
		CourierName: a.Name(),
	}, nil
}

func (a *DTDCAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	body, err := json.Marshal(map[string]string{
		"trkType":   "cnno",
		"strcnno":   awb,
		"addtnlDtl": "Y",
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodPost,
		a.baseURL+"/api/customer/integration/consignment/track", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		TrackHeader struct {
			Status string `json:"strStatus"`
		} `json:"trackHeader"`
		TrackDetails []struct {
			Action  string `json:"strAction"`
			Code    string `json:"strCode"`
			Origin  string `json:"strOrigin"`
			Date    string `json:"strActionDate"`
			Time    string `json:"strActionTime"`
			Remarks string `json:"strRemarks"`
		} `json:"trackDetails"`
	}
	if err := decodeBody(res, "DTDC", &resp); err != nil {
		return nil, err
	}
	if len(resp.TrackDetails) == 0 && resp.TrackHeader.Status == "" {
		return nil, fmt.Errorf("DTDC: %w: awb %s", integration.ErrShipmentNotFound, awb)
	}

	var events []integration.TrackingEvent
	for _, d := range resp.TrackDetails {
		events = append(events, integration.TrackingEvent{
			Status:     d.Action,
			StatusCode: d.Code,
			Location:   d.Origin,
			Timestamp:  parseTime(d.Date+" "+d.Time, "02012006 1504", "2006-01-02 15:04:05"),
			Remarks:    d.Remarks,
		})
	}
	return events, nil
}

func (a *DTDCAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	body, err := json.Marshal(map[string]any{
		"AWBNo":        []string{awb},
		"customerCode": a.customerCode,
	})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodPost,
		a.baseURL+"/api/customer/integration/consignment/cancel", body, a.headers())
	if err != nil {
		return err
	}
	if err := checkResult(res, "DTDC"); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}
	return nil
}

func (a *DTDCAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	q := url.Values{}
	q.Set("orgPincode", req.PickupPincode)
	q.Set("desPincode", req.DeliveryPincode)
	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodGet,
		a.baseURL+"/api/customer/integration/pincode/serviceability?"+q.Encode(), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Serviceable  bool `json:"serviceable"`
		CODAvailable bool `json:"cod_available"`
		TransitDays  int  `json:"transit_days"`
	}
	if err := decodeBody(res, "DTDC", &resp); err != nil {
		return nil, err
	}
	return &integration.ServiceabilityResult{
		Serviceable:   resp.Serviceable,
		CODAvailable:  resp.CODAvailable,
		EstimatedDays: resp.TransitDays,
	}, nil
}

func (a *DTDCAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	body, err := json.Marshal(map[string]any{
		"customer_code":  a.customerCode,
		"org_pincode":    req.PickupPincode,
		"des_pincode":    req.DeliveryPincode,
		"weight":         req.Package.WeightKG,
		"cod_amount":     req.CODAmount,
		"declared_value": req.DeclaredValue,
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodPost,
		a.baseURL+"/api/customer/integration/rate/calculator", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		TotalAmount decimal.Decimal `json:"total_amount"`
		CODCharge   decimal.Decimal `json:"cod_charge"`
		TransitDays int             `json:"transit_days"`
	}
	if err := decodeBody(res, "DTDC", &resp); err != nil {
		return nil, err
	}
	return []integration.RateQuote{{
		CourierName:   a.Name(),
		Amount:        resp.TotalAmount,
		CODCharge:     resp.CODCharge,
		EstimatedDays: resp.TransitDays,
	}}, nil
}

func (a *DTDCAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "DTDC", http.MethodGet,
		a.baseURL+"/api/customer/integration/consignment/label?reference_number="+url.QueryEscape(awb), nil, a.headers())
	if err != nil {
		return "", err
	}
	var resp struct {
		LabelURL string `json:"label_url"`
	}
	if err := decodeBody(res, "DTDC", &resp); err != nil {
		return "", err
	}
	if resp.LabelURL == "" {
		return "", fmt.Errorf("DTDC: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.LabelURL, nil
}

var _ integration.Transporter = (*DTDCAdapter)(nil)
