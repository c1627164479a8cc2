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

const delhiveryDefaultBaseURL = "https://track.delhivery.com"

// DelhiveryAdapter integrates the Delhivery B2C API. Auth is a static API
// token sent as "Token <key>". The create endpoint takes a form-wrapped JSON
// document, a quirk of their CMU API.
//
// Credentials: apiToken, pickupName (registered warehouse name), optional
// baseUrl override.
type DelhiveryAdapter struct {
	deps       Deps
	baseURL    string
	apiToken   string
	pickupName string
	log        *zap.Logger
}

func newDelhivery(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	apiToken, err := creds.Require("apiToken")
	if err != nil {
		return nil, err
	}
	pickupName, err := creds.Require("pickupName")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = delhiveryDefaultBaseURL
	}
	return &DelhiveryAdapter{
		deps:       deps,
		baseURL:    baseURL,
		apiToken:   apiToken,
		pickupName: pickupName,
		log:        deps.Log.With(zap.String("transporter", "DELHIVERY")),
	}, nil
}

func (a *DelhiveryAdapter) Code() integration.TransporterCode { return integration.TransporterDelhivery }
func (a *DelhiveryAdapter) Name() string {
	return integration.TransporterDelhivery.DisplayName()
}

func (a *DelhiveryAdapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "Token " + a.apiToken,
		"Content-Type":  "application/json",
	}
}

// Authenticate probes the pincode endpoint; Delhivery has no dedicated auth
// check for static tokens.
func (a *DelhiveryAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodGet,
		a.baseURL+"/c/api/pin-codes/json/?filter_codes=110001", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "DELHIVERY")
}

func (a *DelhiveryAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	paymentMode := "Prepaid"
	codAmount := decimal.Zero
	if req.PaymentMode == integration.PaymentModeCOD {
		paymentMode = "COD"
		codAmount = req.CODAmount
	}

	doc, err := json.Marshal(map[string]any{
		"pickup_location": map[string]string{"name": a.pickupName},
		"shipments": []map[string]any{{
			"order":           req.OrderReference,
			"name":            req.Delivery.Name,
			"add":             fullAddress(req.Delivery),
			"city":            req.Delivery.City,
			"state":           req.Delivery.State,
			"pin":             req.Delivery.PostalCode,
			"country":         req.Delivery.Country,
			"phone":           req.Delivery.Phone,
			"payment_mode":    paymentMode,
			"cod_amount":      codAmount,
			"total_amount":    req.InvoiceValue,
			"weight":          req.Package.WeightKG.Mul(decimal.NewFromInt(1000)),
			"shipment_length": req.Package.LengthCM,
			"shipment_width":  req.Package.WidthCM,
			"shipment_height": req.Package.HeightCM,
		}},
	})
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(doc))

	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodPost,
		a.baseURL+"/api/cmu/create.json", []byte(form.Encode()), map[string]string{
			"Authorization": "Token " + a.apiToken,
			"Content-Type":  "application/x-www-form-urlencoded",
		})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success  bool `json:"success"`
		Packages []struct {
			Waybill string `json:"waybill"`
			Status  string `json:"status"`
			Remarks any    `json:"remarks"`
		} `json:"packages"`
	}
	if err := decodeBody(res, "DELHIVERY", &resp); err != nil {
		return nil, err
	}
	if !resp.Success || len(resp.Packages) == 0 || resp.Packages[0].Waybill == "" {
		return nil, fmt.Errorf("DELHIVERY: %w: booking rejected", integration.ErrShipmentCreateFailed)
	}

	return &integration.ShipmentResult{
		AWB:         resp.Packages[0].Waybill,
		CourierName: a.Name(),
	}, nil
}

func (a *DelhiveryAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodGet,
		a.baseURL+"/api/v1/packages/json/?waybill="+url.QueryEscape(awb), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		ShipmentData []struct {
			Shipment struct {
				Scans []struct {
					ScanDetail struct {
						Scan            string `json:"Scan"`
						StatusCode      string `json:"StatusCode"`
						ScanDateTime    string `json:"ScanDateTime"`
						ScannedLocation string `json:"ScannedLocation"`
						Instructions    string `json:"Instructions"`
					} `json:"ScanDetail"`
				} `json:"Scans"`
			} `json:"Shipment"`
		} `json:"ShipmentData"`
	}
	if err := decodeBody(res, "DELHIVERY", &resp); err != nil {
		return nil, err
	}
	if len(resp.ShipmentData) == 0 {
		return nil, fmt.Errorf("DELHIVERY: %w: awb %s", integration.ErrShipmentNotFound, awb)
	}

	var events []integration.TrackingEvent
	for _, scan := range resp.ShipmentData[0].Shipment.Scans {
		d := scan.ScanDetail
		events = append(events, integration.TrackingEvent{
			Status:     d.Scan,
			StatusCode: d.StatusCode,
			Location:   d.ScannedLocation,
			Timestamp:  parseTime(d.ScanDateTime, time.RFC3339, "2006-01-02T15:04:05.000000"),
			Remarks:    d.Instructions,
		})
	}
	return events, nil
}

func (a *DelhiveryAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	body, err := json.Marshal(map[string]any{"waybill": awb, "cancellation": true})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodPost,
		a.baseURL+"/api/p/edit", body, a.headers())
	if err != nil {
		return err
	}
	if err := checkResult(res, "DELHIVERY"); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}
	return nil
}

func (a *DelhiveryAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodGet,
		a.baseURL+"/c/api/pin-codes/json/?filter_codes="+url.QueryEscape(req.DeliveryPincode), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		DeliveryCodes []struct {
			PostalCode struct {
				Pin     int    `json:"pin"`
				COD     string `json:"cod"`
				PrePaid string `json:"pre_paid"`
			} `json:"postal_code"`
		} `json:"delivery_codes"`
	}
	if err := decodeBody(res, "DELHIVERY", &resp); err != nil {
		return nil, err
	}

	result := &integration.ServiceabilityResult{}
	for _, dc := range resp.DeliveryCodes {
		if dc.PostalCode.PrePaid == "Y" || dc.PostalCode.COD == "Y" {
			result.Serviceable = true
		}
		if dc.PostalCode.COD == "Y" {
			result.CODAvailable = true
		}
	}
	return result, nil
}

func (a *DelhiveryAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	paymentType := "Pre-paid"
	if req.PaymentMode == integration.PaymentModeCOD {
		paymentType = "COD"
	}

	q := url.Values{}
	q.Set("md", "S")
	q.Set("ss", "Delivered")
	q.Set("o_pin", req.PickupPincode)
	q.Set("d_pin", req.DeliveryPincode)
	q.Set("cgm", req.Package.WeightKG.Mul(decimal.NewFromInt(1000)).String())
	q.Set("pt", paymentType)
	if req.CODAmount.IsPositive() {
		q.Set("cod", req.CODAmount.String())
	}

	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodGet,
		a.baseURL+"/api/kinko/v1/invoice/charges/.json?"+q.Encode(), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp []struct {
		TotalAmount decimal.Decimal `json:"total_amount"`
		ChargeCOD   decimal.Decimal `json:"charge_COD"`
	}
	if err := decodeBody(res, "DELHIVERY", &resp); err != nil {
		return nil, err
	}

	quotes := make([]integration.RateQuote, 0, len(resp))
	for _, r := range resp {
		quotes = append(quotes, integration.RateQuote{
			CourierName: a.Name(),
			Amount:      r.TotalAmount,
			CODCharge:   r.ChargeCOD,
		})
	}
	return quotes, nil
}

func (a *DelhiveryAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodGet,
		a.baseURL+"/api/p/packing_slip?wbns="+url.QueryEscape(awb)+"&pdf=true", nil, a.headers())
	if err != nil {
		return "", err
	}
	var resp struct {
		Packages []struct {
			PDFDownloadLink string `json:"pdf_download_link"`
		} `json:"packages"`
	}
	if err := decodeBody(res, "DELHIVERY", &resp); err != nil {
		return "", err
	}
	if len(resp.Packages) == 0 || resp.Packages[0].PDFDownloadLink == "" {
		return "", fmt.Errorf("DELHIVERY: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.Packages[0].PDFDownloadLink, nil
}

// GenerateManifest raises a pickup request covering the given AWBs.
// Delhivery identifies the manifest by pickup id rather than a document URL.
func (a *DelhiveryAdapter) GenerateManifest(ctx context.Context, awbs []string) (*integration.ManifestResult, error) {
	if len(awbs) == 0 {
		return nil, fmt.Errorf("DELHIVERY: %w: no awbs to manifest", integration.ErrProviderRequestFailed)
	}
	now := time.Now().UTC()
	body, err := json.Marshal(map[string]any{
		"pickup_location":        a.pickupName,
		"pickup_date":            now.Format("2006-01-02"),
		"pickup_time":            "14:00:00",
		"expected_package_count": len(awbs),
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "DELHIVERY", http.MethodPost,
		a.baseURL+"/fm/request/new/", body, a.headers())
	if err != nil {
		return nil, err
	}
	var resp struct {
		PickupID int64 `json:"pickup_id"`
	}
	if err := decodeBody(res, "DELHIVERY", &resp); err != nil {
		return nil, err
	}
	return &integration.ManifestResult{
		ManifestID:  fmt.Sprintf("%d", resp.PickupID),
		AWBs:        awbs,
		GeneratedAt: now,
	}, nil
}

var (
	_ integration.Transporter       = (*DelhiveryAdapter)(nil)
	_ integration.ManifestGenerator = (*DelhiveryAdapter)(nil)
)
