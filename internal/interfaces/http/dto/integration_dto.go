package dto

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oms/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// StatusUpdateRequest pushes a local order state change to a channel.
type StatusUpdateRequest struct {
	ExternalOrderID string `json:"external_order_id" binding:"required"`
	Status          string `json:"status" binding:"required"`
	CourierName     string `json:"courier_name"`
	TrackingNumber  string `json:"tracking_number"`
}

// ToDomain converts the request to its domain form.
func (r *StatusUpdateRequest) ToDomain() *integration.StatusUpdateRequest {
	return &integration.StatusUpdateRequest{
		ExternalOrderID: r.ExternalOrderID,
		Status:          integration.OrderStatus(r.Status),
		CourierName:     r.CourierName,
		TrackingNumber:  r.TrackingNumber,
	}
}

// AddressRequest is a postal address in API form.
type AddressRequest struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	Landmark   string `json:"landmark"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country"`
}

func (r *AddressRequest) toDomain() integration.Address {
	return integration.Address{
		Name:       r.Name,
		Phone:      r.Phone,
		Email:      r.Email,
		Line1:      r.Line1,
		Line2:      r.Line2,
		Landmark:   r.Landmark,
		City:       r.City,
		State:      r.State,
		PostalCode: r.PostalCode,
		Country:    r.Country,
	}
}

// PackageRequest carries parcel dimensions in centimeters and kilograms.
type PackageRequest struct {
	LengthCM decimal.Decimal `json:"length_cm" binding:"required"`
	WidthCM  decimal.Decimal `json:"width_cm" binding:"required"`
	HeightCM decimal.Decimal `json:"height_cm" binding:"required"`
	WeightKG decimal.Decimal `json:"weight_kg" binding:"required"`
}

func (r *PackageRequest) toDomain() integration.Package {
	return integration.Package{
		LengthCM: r.LengthCM,
		WidthCM:  r.WidthCM,
		HeightCM: r.HeightCM,
		WeightKG: r.WeightKG,
	}
}

// ShipmentItemRequest is one order line on a shipment.
type ShipmentItemRequest struct {
	SKU       string          `json:"sku" binding:"required"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateShipmentRequest books a shipment with a carrier.
type CreateShipmentRequest struct {
	OrderReference string                `json:"order_reference" binding:"required"`
	InvoiceNo      string                `json:"invoice_no"`
	InvoiceValue   decimal.Decimal       `json:"invoice_value"`
	Pickup         AddressRequest        `json:"pickup" binding:"required"`
	Delivery       AddressRequest        `json:"delivery" binding:"required"`
	Package        PackageRequest        `json:"package" binding:"required"`
	Items          []ShipmentItemRequest `json:"items"`
	PaymentMode    string                `json:"payment_mode" binding:"required"`
	CODAmount      decimal.Decimal       `json:"cod_amount"`
}

// ToDomain converts the request to its domain form.
func (r *CreateShipmentRequest) ToDomain() *integration.ShipmentRequest {
	items := make([]integration.OrderItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, integration.OrderItem{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return &integration.ShipmentRequest{
		OrderReference: r.OrderReference,
		InvoiceNo:      r.InvoiceNo,
		InvoiceValue:   r.InvoiceValue,
		Pickup:         r.Pickup.toDomain(),
		Delivery:       r.Delivery.toDomain(),
		Package:        r.Package.toDomain(),
		Items:          items,
		PaymentMode:    integration.PaymentMode(r.PaymentMode),
		CODAmount:      r.CODAmount,
	}
}

// ServiceabilityRequest asks whether a carrier covers a lane.
type ServiceabilityRequest struct {
	PickupPincode   string          `json:"pickup_pincode" binding:"required,pincode"`
	DeliveryPincode string          `json:"delivery_pincode" binding:"required,pincode"`
	CODAmount       decimal.Decimal `json:"cod_amount"`
	WeightKG        decimal.Decimal `json:"weight_kg"`
}

// ToDomain converts the request to its domain form.
func (r *ServiceabilityRequest) ToDomain() *integration.ServiceabilityRequest {
	return &integration.ServiceabilityRequest{
		PickupPincode:   r.PickupPincode,
		DeliveryPincode: r.DeliveryPincode,
		CODAmount:       r.CODAmount,
		WeightKG:        r.WeightKG,
	}
}

// RateRequest asks the named carriers for shipping quotes. An empty
// transporter list means every supported carrier.
type RateRequest struct {
	Transporters    []string        `json:"transporters"`
	PickupPincode   string          `json:"pickup_pincode" binding:"required,pincode"`
	DeliveryPincode string          `json:"delivery_pincode" binding:"required,pincode"`
	Package         PackageRequest  `json:"package" binding:"required"`
	PaymentMode     string          `json:"payment_mode" binding:"required"`
	CODAmount       decimal.Decimal `json:"cod_amount"`
	DeclaredValue   decimal.Decimal `json:"declared_value"`
}

// ToDomain converts the request to its domain form.
func (r *RateRequest) ToDomain() *integration.RateRequest {
	return &integration.RateRequest{
		PickupPincode:   r.PickupPincode,
		DeliveryPincode: r.DeliveryPincode,
		Package:         r.Package.toDomain(),
		PaymentMode:     integration.PaymentMode(r.PaymentMode),
		CODAmount:       r.CODAmount,
		DeclaredValue:   r.DeclaredValue,
	}
}

// ManifestRequest closes a pickup manifest over the listed AWBs.
type ManifestRequest struct {
	AWBs []string `json:"awbs" binding:"required,min=1"`
}

// CredentialRequest stores or replaces a provider's credentials.
type CredentialRequest struct {
	Credentials map[string]string `json:"credentials" binding:"required"`
	Active      *bool             `json:"active"`
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SyncRunResponse is one recorded sync run.
type SyncRunResponse struct {
	ID         string     `json:"id"`
	Channel    string     `json:"channel"`
	Since      time.Time  `json:"since"`
	Until      time.Time  `json:"until"`
	Pulled     int        `json:"pulled"`
	Failed     int        `json:"failed"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SyncRunFromDomain converts a domain sync run.
func SyncRunFromDomain(run *integration.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:         run.ID.String(),
		Channel:    string(run.Channel),
		Since:      run.Since,
		Until:      run.Until,
		Pulled:     run.Pulled,
		Failed:     run.Failed,
		Status:     string(run.Status),
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// SyncRunsFromDomain converts a slice of domain sync runs.
func SyncRunsFromDomain(runs []*integration.SyncRun) []SyncRunResponse {
	out := make([]SyncRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, SyncRunFromDomain(run))
	}
	return out
}

// ShipmentResponse is a booked shipment.
type ShipmentResponse struct {
	AWB               string     `json:"awb"`
	ShipmentID        string     `json:"shipment_id,omitempty"`
	CourierName       string     `json:"courier_name,omitempty"`
	LabelURL          string     `json:"label_url,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// ShipmentFromDomain converts a booking result.
func ShipmentFromDomain(result *integration.ShipmentResult) ShipmentResponse {
	return ShipmentResponse{
		AWB:               result.AWB,
		ShipmentID:        result.ShipmentID,
		CourierName:       result.CourierName,
		LabelURL:          result.LabelURL,
		EstimatedDelivery: result.EstimatedDelivery,
	}
}

// ShipmentRecordResponse is a persisted shipment record.
type ShipmentRecordResponse struct {
	AWB            string    `json:"awb"`
	OrderReference string    `json:"order_reference"`
	Transporter    string    `json:"transporter"`
	ShipmentID     string    `json:"shipment_id,omitempty"`
	CourierName    string    `json:"courier_name,omitempty"`
	Status         string    `json:"status"`
	HasLabel       bool      `json:"has_label"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ShipmentRecordFromDomain converts a domain shipment record.
func ShipmentRecordFromDomain(rec *integration.ShipmentRecord) ShipmentRecordResponse {
	return ShipmentRecordResponse{
		AWB:            rec.AWB,
		OrderReference: rec.OrderReference,
		Transporter:    string(rec.Transporter),
		ShipmentID:     rec.ShipmentID,
		CourierName:    rec.CourierName,
		Status:         string(rec.Status),
		HasLabel:       rec.LabelKey != "",
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// TrackingEventResponse is one scan event.
type TrackingEventResponse struct {
	Status     string    `json:"status"`
	StatusCode string    `json:"status_code,omitempty"`
	Location   string    `json:"location,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Remarks    string    `json:"remarks,omitempty"`
}

// TrackingEventsFromDomain converts scan events.
func TrackingEventsFromDomain(events []integration.TrackingEvent) []TrackingEventResponse {
	out := make([]TrackingEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, TrackingEventResponse{
			Status:     e.Status,
			StatusCode: e.StatusCode,
			Location:   e.Location,
			Timestamp:  e.Timestamp,
			Remarks:    e.Remarks,
		})
	}
	return out
}

// RateQuoteResponse is one priced shipping option.
type RateQuoteResponse struct {
	CourierName   string          `json:"courier_name"`
	Amount        decimal.Decimal `json:"amount"`
	CODCharge     decimal.Decimal `json:"cod_charge"`
	EstimatedDays int             `json:"estimated_days"`
}

// RateQuotesFromDomain converts rate quotes.
func RateQuotesFromDomain(quotes []integration.RateQuote) []RateQuoteResponse {
	out := make([]RateQuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, RateQuoteResponse{
			CourierName:   q.CourierName,
			Amount:        q.Amount,
			CODCharge:     q.CODCharge,
			EstimatedDays: q.EstimatedDays,
		})
	}
	return out
}

// ServiceabilityResponse reports lane coverage.
type ServiceabilityResponse struct {
	Serviceable   bool `json:"serviceable"`
	CODAvailable  bool `json:"cod_available"`
	EstimatedDays int  `json:"estimated_days"`
}

// ServiceabilityFromDomain converts a serviceability result.
func ServiceabilityFromDomain(result *integration.ServiceabilityResult) ServiceabilityResponse {
	return ServiceabilityResponse{
		Serviceable:   result.Serviceable,
		CODAvailable:  result.CODAvailable,
		EstimatedDays: result.EstimatedDays,
	}
}

// LabelResponse is a time-limited label download URL.
type LabelResponse struct {
	AWB       string    `json:"awb"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ManifestResponse is a closed pickup manifest.
type ManifestResponse struct {
	ManifestID  string    `json:"manifest_id"`
	ManifestURL string    `json:"manifest_url,omitempty"`
	AWBs        []string  `json:"awbs"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ManifestFromDomain converts a manifest result.
func ManifestFromDomain(result *integration.ManifestResult) ManifestResponse {
	return ManifestResponse{
		ManifestID:  result.ManifestID,
		ManifestURL: result.ManifestURL,
		AWBs:        result.AWBs,
		GeneratedAt: result.GeneratedAt,
	}
}

// CredentialResponse describes a stored credential without its secrets:
// only the field names are echoed, never the values.
type CredentialResponse struct {
	Type      string    `json:"type"`
	Code      string    `json:"code"`
	Fields    []string  `json:"fields"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialFromDomain converts a stored credential, stripping the values.
func CredentialFromDomain(cred *integration.ProviderCredential) CredentialResponse {
	fields := make([]string, 0, len(cred.Credentials))
	for key := range cred.Credentials {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return CredentialResponse{
		Type:      string(cred.Type),
		Code:      cred.Code,
		Fields:    fields,
		Active:    cred.Active,
		UpdatedAt: cred.UpdatedAt,
	}
}
