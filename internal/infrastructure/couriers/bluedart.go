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

const blueDartDefaultBaseURL = "https://apigateway.bluedart.com"

// BlueDartAdapter integrates the BlueDart API gateway. Auth is a static
// licence key plus login id, both sent as headers on every call.
//
// Credentials: licenseKey, loginId, optional baseUrl override.
type BlueDartAdapter struct {
	deps       Deps
	baseURL    string
	licenseKey string
	loginID    string
	log        *zap.Logger
}

func newBlueDart(creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	licenseKey, err := creds.Require("licenseKey")
	if err != nil {
		return nil, err
	}
	loginID, err := creds.Require("loginId")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = blueDartDefaultBaseURL
	}
	return &BlueDartAdapter{
		deps:       deps,
		baseURL:    baseURL,
		licenseKey: licenseKey,
		loginID:    loginID,
		log:        deps.Log.With(zap.String("transporter", "BLUEDART")),
	}, nil
}

func (a *BlueDartAdapter) Code() integration.TransporterCode { return integration.TransporterBlueDart }
func (a *BlueDartAdapter) Name() string {
	return integration.TransporterBlueDart.DisplayName()
}

func (a *BlueDartAdapter) headers() map[string]string {
	return map[string]string{
		"LicenceKey":   a.licenseKey,
		"LoginID":      a.loginID,
		"Content-Type": "application/json",
	}
}

func (a *BlueDartAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodGet,
		a.baseURL+"/in/transportation/profile/v1/verify", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "BLUEDART")
}

func (a *BlueDartAdapter) CreateShipment(ctx context.Context, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	subProduct := "P"
	codAmount := decimal.Zero
	if req.PaymentMode == integration.PaymentModeCOD {
		subProduct = "C"
		codAmount = req.CODAmount
	}

	body, err := json.Marshal(map[string]any{
		"Shipper": map[string]any{
			"CustomerName":    req.Pickup.Name,
			"CustomerAddress": fullAddress(req.Pickup),
			"CustomerPincode": req.Pickup.PostalCode,
			"CustomerMobile":  req.Pickup.Phone,
		},
		"Consignee": map[string]any{
			"ConsigneeName":    req.Delivery.Name,
			"ConsigneeAddress": fullAddress(req.Delivery),
			"ConsigneePincode": req.Delivery.PostalCode,
			"ConsigneeMobile":  req.Delivery.Phone,
		},
		"Services": map[string]any{
			"ProductCode":       "A",
			"SubProductCode":    subProduct,
			"PieceCount":        1,
			"ActualWeight":      req.Package.WeightKG,
			"CollectableAmount": codAmount,
			"DeclaredValue":     req.InvoiceValue,
			"CreditReferenceNo": req.OrderReference,
			"Dimensions": []map[string]any{{
				"Length":  req.Package.LengthCM,
				"Breadth": req.Package.WidthCM,
				"Height":  req.Package.HeightCM,
				"Count":   1,
			}},
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodPost,
		a.baseURL+"/in/transportation/waybill/v1/GenerateWayBill", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		GenerateWayBillResult struct {
			AWBNo       string `json:"AWBNo"`
			TokenNumber string `json:"TokenNumber"`
			IsError     bool   `json:"IsError"`
			Status      []struct {
				StatusInformation string `json:"StatusInformation"`
			} `json:"Status"`
		} `json:"GenerateWayBillResult"`
	}
	if err := decodeBody(res, "BLUEDART", &resp); err != nil {
		return nil, err
	}
	r := resp.GenerateWayBillResult
	if r.IsError || r.AWBNo == "" {
		return nil, fmt.Errorf("BLUEDART: %w: booking rejected", integration.ErrShipmentCreateFailed)
	}

	return &integration.ShipmentResult{
		AWB:         r.AWBNo,
		ShipmentID:  r.TokenNumber,
		CourierName: a.Name(),
	}, nil
}

func (a *BlueDartAdapter) TrackShipment(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	if awb == "" {
		return nil, integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodGet,
		a.baseURL+"/in/transportation/tracking/v1/shipment?awb="+url.QueryEscape(awb), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Shipment struct {
			Scans []struct {
				Scan     string `json:"Scan"`
				ScanCode string `json:"ScanCode"`
				Location string `json:"ScannedLocation"`
				Date     string `json:"ScanDate"`
				Time     string `json:"ScanTime"`
			} `json:"Scans"`
		} `json:"Shipment"`
	}
	if err := decodeBody(res, "BLUEDART", &resp); err != nil {
		return nil, err
	}

	var events []integration.TrackingEvent
	for _, s := range resp.Shipment.Scans {
		events = append(events, integration.TrackingEvent{
			Status:     s.Scan,
			StatusCode: s.ScanCode,
			Location:   s.Location,
			Timestamp:  parseTime(s.Date+" "+s.Time, "02-Jan-2006 15:04", "2006-01-02 15:04:05"),
		})
	}
	return events, nil
}

func (a *BlueDartAdapter) CancelShipment(ctx context.Context, awb string) error {
	if awb == "" {
		return integration.ErrShipmentNotFound
	}
	body, err := json.Marshal(map[string]string{"AWBNo": awb})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodPost,
		a.baseURL+"/in/transportation/waybill/v1/CancelWaybill", body, a.headers())
	if err != nil {
		return err
	}
	if err := checkResult(res, "BLUEDART"); err != nil {
		return fmt.Errorf("%w: %w", integration.ErrCancellationFailed, err)
	}
	return nil
}

func (a *BlueDartAdapter) CheckServiceability(ctx context.Context, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodGet,
		a.baseURL+"/in/transportation/finder/v1/pincode?pincode="+url.QueryEscape(req.DeliveryPincode), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		ServiceCenter struct {
			Serviceable  bool `json:"Serviceable"`
			CODAvailable bool `json:"CODAvailable"`
			TransitDays  int  `json:"TransitDays"`
		} `json:"ServiceCenter"`
	}
	if err := decodeBody(res, "BLUEDART", &resp); err != nil {
		return nil, err
	}
	return &integration.ServiceabilityResult{
		Serviceable:   resp.ServiceCenter.Serviceable,
		CODAvailable:  resp.ServiceCenter.CODAvailable,
		EstimatedDays: resp.ServiceCenter.TransitDays,
	}, nil
}

func (a *BlueDartAdapter) CalculateRates(ctx context.Context, req *integration.RateRequest) ([]integration.RateQuote, error) {
	subProduct := "P"
	if req.PaymentMode == integration.PaymentModeCOD {
		subProduct = "C"
	}
	body, err := json.Marshal(map[string]any{
		"OriginPincode":      req.PickupPincode,
		"DestinationPincode": req.DeliveryPincode,
		"Weight":             req.Package.WeightKG,
		"SubProductCode":     subProduct,
		"DeclaredValue":      req.DeclaredValue,
		"CollectableAmount":  req.CODAmount,
	})
	if err != nil {
		return nil, err
	}
	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodPost,
		a.baseURL+"/in/transportation/rating/v1/estimate", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp struct {
		TotalAmount decimal.Decimal `json:"TotalAmount"`
		CODCharge   decimal.Decimal `json:"CODCharge"`
		TransitDays int             `json:"TransitDays"`
	}
	if err := decodeBody(res, "BLUEDART", &resp); err != nil {
		return nil, err
	}
	return []integration.RateQuote{{
		CourierName:   a.Name(),
		Amount:        resp.TotalAmount,
		CODCharge:     resp.CODCharge,
		EstimatedDays: resp.TransitDays,
	}}, nil
}

func (a *BlueDartAdapter) GenerateLabel(ctx context.Context, awb string) (string, error) {
	if awb == "" {
		return "", integration.ErrShipmentNotFound
	}
	res, err := a.deps.Gateway.Do(ctx, "BLUEDART", http.MethodGet,
		a.baseURL+"/in/transportation/waybill/v1/PrintWaybill?awb="+url.QueryEscape(awb), nil, a.headers())
	if err != nil {
		return "", err
	}
	var resp struct {
		LabelURL string `json:"LabelURL"`
	}
	if err := decodeBody(res, "BLUEDART", &resp); err != nil {
		return "", err
	}
	if resp.LabelURL == "" {
		return "", fmt.Errorf("BLUEDART: %w: no label for awb %s", integration.ErrProviderRequestFailed, awb)
	}
	return resp.LabelURL, nil
}

var _ integration.Transporter = (*BlueDartAdapter)(nil)
