package integration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// totalsTolerance is the rounding slack allowed when reconciling order
// aggregates: half a paisa, so per-line rounding can never trip it.
var totalsTolerance = decimal.NewFromFloat(0.005)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// PaymentMode distinguishes prepaid orders from cash-on-delivery.
type PaymentMode string

const (
	PaymentModePrepaid PaymentMode = "PREPAID"
	PaymentModeCOD     PaymentMode = "COD"
)

// IsValid returns true if the payment mode is valid.
func (m PaymentMode) IsValid() bool {
	return m == PaymentModePrepaid || m == PaymentModeCOD
}

// OrderStatus is the canonical order lifecycle status.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPacked    OrderStatus = "PACKED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusReturned  OrderStatus = "RETURNED"
)

// IsValid returns true if the status is valid.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPacked,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
		OrderStatusReturned:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s OrderStatus) String() string {
	return string(s)
}

// IsFinal returns true for terminal states.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	default:
		return false
	}
}

// PaymentStatus is the canonical payment state.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
	PaymentStatusFailed   PaymentStatus = "FAILED"
)

// FulfillmentStatus is the canonical fulfillment state.
type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "UNFULFILLED"
	FulfillmentPartial     FulfillmentStatus = "PARTIAL"
	FulfillmentFulfilled   FulfillmentStatus = "FULFILLED"
)

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// Customer is the canonical buyer contact.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Address is the canonical postal address. Optional fields (Line2, Landmark,
// Email) stay empty when the provider omits them; adapters never reject an
// order for a missing optional address field.
type Address struct {
	Name       string
	Phone      string
	Email      string
	Line1      string
	Line2      string
	Landmark   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderItem is one canonical order line.
type OrderItem struct {
	// ExternalItemID is the line identifier on the provider, when exposed.
	ExternalItemID string
	SKU            string
	Name           string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	TaxableValue   decimal.Decimal
	TaxAmount      decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
}

// ChannelOrder is the provider-agnostic normalized order every channel
// adapter produces.
type ChannelOrder struct {
	// ExternalOrderID is the order identifier on the channel.
	ExternalOrderID string
	// ExternalOrderNo is the buyer-facing order number, when distinct.
	ExternalOrderNo string
	// ChannelCode identifies the source channel.
	ChannelCode ChannelCode
	// OrderedAt is when the order was placed on the channel.
	OrderedAt time.Time
	// PaymentMode is PREPAID or COD.
	PaymentMode PaymentMode

	Customer        Customer
	ShippingAddress Address
	BillingAddress  Address
	Items           []OrderItem

	// Aggregate amounts. TotalAmount must reconcile with the item totals
	// plus shipping, COD surcharge and tax, minus discount; normalization
	// is responsible for this, not downstream consumers.
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingCharge decimal.Decimal
	Discount       decimal.Decimal
	CODCharge      decimal.Decimal
	TotalAmount    decimal.Decimal

	Status            OrderStatus
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus

	Tags  []string
	Notes string

	// RawData is the untouched provider payload, preserved for audit and
	// debugging. Consumers must unmarshal it explicitly.
	RawData json.RawMessage
}

// ReconcileTotals verifies the aggregate invariant: the sum of line totals
// plus shipping, COD surcharge, minus order-level discount equals
// TotalAmount within the rounding tolerance.
func (o *ChannelOrder) ReconcileTotals() error {
	lineSum := decimal.Zero
	for _, item := range o.Items {
		lineSum = lineSum.Add(item.Total)
	}
	expected := lineSum.Add(o.ShippingCharge).Add(o.CODCharge).Sub(o.Discount)
	diff := expected.Sub(o.TotalAmount).Abs()
	if diff.GreaterThan(totalsTolerance) {
		return fmt.Errorf("%w: expected %s, got %s (diff %s)",
			ErrTotalsMismatch, expected.StringFixed(2), o.TotalAmount.StringFixed(2), diff.String())
	}
	return nil
}
