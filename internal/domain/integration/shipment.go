package integration

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Package describes the physical parcel being shipped.
type Package struct {
	LengthCM decimal.Decimal
	WidthCM  decimal.Decimal
	HeightCM decimal.Decimal
	WeightKG decimal.Decimal
}

// Validate checks that all dimensions are positive.
func (p *Package) Validate() error {
	if !p.LengthCM.IsPositive() || !p.WidthCM.IsPositive() || !p.HeightCM.IsPositive() {
		return errors.New("integration: package dimensions must be positive")
	}
	if !p.WeightKG.IsPositive() {
		return errors.New("integration: package weight must be positive")
	}
	return nil
}

// ShipmentRequest carries everything a carrier needs to book a shipment.
type ShipmentRequest struct {
	// OrderReference links the shipment back to the OMS order.
	OrderReference string
	// InvoiceNo and InvoiceValue identify the commercial invoice.
	InvoiceNo    string
	InvoiceValue decimal.Decimal

	Pickup   Address
	Delivery Address
	Package  Package
	Items    []OrderItem

	PaymentMode PaymentMode
	// CODAmount is the amount to collect on delivery; zero for prepaid.
	CODAmount decimal.Decimal
}

// Validate validates the shipment request.
func (r *ShipmentRequest) Validate() error {
	if r.OrderReference == "" {
		return errors.New("integration: order reference is required")
	}
	if r.Pickup.PostalCode == "" || r.Delivery.PostalCode == "" {
		return errors.New("integration: pickup and delivery pincodes are required")
	}
	if err := r.Package.Validate(); err != nil {
		return err
	}
	if !r.PaymentMode.IsValid() {
		return errors.New("integration: invalid payment mode")
	}
	if r.PaymentMode == PaymentModeCOD && !r.CODAmount.IsPositive() {
		return errors.New("integration: COD amount required for COD shipments")
	}
	return nil
}

// ShipmentResult is the canonical outcome of a successful booking.
type ShipmentResult struct {
	// AWB is the carrier's airway bill / tracking number.
	AWB string
	// ShipmentID is the carrier's internal shipment identifier, when distinct.
	ShipmentID string
	// CourierName is the carrier (or sub-carrier for aggregators).
	CourierName string
	// LabelURL points at the printable label, when returned at booking time.
	LabelURL string
	// EstimatedDelivery is the carrier's promised delivery date, if any.
	EstimatedDelivery *time.Time
}

// TrackingEvent is one scan in a shipment's journey.
type TrackingEvent struct {
	Status     string
	StatusCode string
	Location   string
	Timestamp  time.Time
	Remarks    string
}

// ServiceabilityRequest asks whether a carrier covers a lane.
type ServiceabilityRequest struct {
	PickupPincode   string
	DeliveryPincode string
	// CODAmount is non-zero when COD collection is required on the lane.
	CODAmount decimal.Decimal
	WeightKG  decimal.Decimal
}

// ServiceabilityResult reports lane coverage.
type ServiceabilityResult struct {
	Serviceable   bool
	CODAvailable  bool
	EstimatedDays int
}

// RateRequest asks for shipping quotes on a prospective parcel.
type RateRequest struct {
	PickupPincode   string
	DeliveryPincode string
	Package         Package
	PaymentMode     PaymentMode
	CODAmount       decimal.Decimal
	DeclaredValue   decimal.Decimal
}

// RateQuote is one priced shipping option.
type RateQuote struct {
	CourierName   string
	Amount        decimal.Decimal
	CODCharge     decimal.Decimal
	EstimatedDays int
}

// ManifestResult is the outcome of closing a pickup manifest.
type ManifestResult struct {
	ManifestID  string
	ManifestURL string
	AWBs        []string
	GeneratedAt time.Time
}
