package channels

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oms/backend/internal/domain/integration"
)

// codMarkers are the payment-gateway and tag fragments that identify a
// cash-on-delivery order across marketplaces.
var codMarkers = []string{"cod", "cash on delivery", "cash_on_delivery", "pay_on_delivery"}

// DetectPaymentMode inspects the provider's payment-gateway field and falls
// back to scanning order tags for COD markers. Anything unrecognized is
// treated as prepaid.
func DetectPaymentMode(gateway string, tags []string) integration.PaymentMode {
	if matchesCOD(gateway) {
		return integration.PaymentModeCOD
	}
	for _, tag := range tags {
		if matchesCOD(tag) {
			return integration.PaymentModeCOD
		}
	}
	return integration.PaymentModePrepaid
}

func matchesCOD(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	for _, marker := range codMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// RawLine is one provider order-line record before grouping. Most Indian
// marketplaces return one row per line item; order-level fields repeat on
// every row and the first row wins.
type RawLine struct {
	ExternalOrderID string
	ExternalOrderNo string
	OrderedAt       time.Time
	PaymentGateway  string
	Tags            []string
	Notes           string

	Customer        integration.Customer
	ShippingAddress integration.Address
	BillingAddress  integration.Address

	Item integration.OrderItem

	ShippingCharge decimal.Decimal
	CODCharge      decimal.Decimal
	Discount       decimal.Decimal

	Status integration.OrderStatus

	// Raw is this row's untouched provider payload.
	Raw json.RawMessage
}

// GroupLines builds canonical orders from per-line rows: rows sharing an
// external order id collapse into one order whose aggregates are the sums of
// the line fields. First-seen order of ids is preserved, matching provider
// pagination.
func GroupLines(code integration.ChannelCode, lines []RawLine) []integration.ChannelOrder {
	grouped := make(map[string][]RawLine)
	order := make([]string, 0)
	for _, line := range lines {
		if _, seen := grouped[line.ExternalOrderID]; !seen {
			order = append(order, line.ExternalOrderID)
		}
		grouped[line.ExternalOrderID] = append(grouped[line.ExternalOrderID], line)
	}

	out := make([]integration.ChannelOrder, 0, len(order))
	for _, id := range order {
		out = append(out, buildOrder(code, grouped[id]))
	}
	return out
}

func buildOrder(code integration.ChannelCode, lines []RawLine) integration.ChannelOrder {
	head := lines[0]
	o := integration.ChannelOrder{
		ExternalOrderID: head.ExternalOrderID,
		ExternalOrderNo: head.ExternalOrderNo,
		ChannelCode:     code,
		OrderedAt:       head.OrderedAt,
		PaymentMode:     DetectPaymentMode(head.PaymentGateway, head.Tags),
		Customer:        head.Customer,
		ShippingAddress: head.ShippingAddress,
		BillingAddress:  head.BillingAddress,
		ShippingCharge:  head.ShippingCharge,
		CODCharge:       head.CODCharge,
		Discount:        head.Discount,
		Status:          head.Status,
		Tags:            head.Tags,
		Notes:           head.Notes,
	}

	lineSum := decimal.Zero
	raws := make([]json.RawMessage, 0, len(lines))
	for _, line := range lines {
		o.Items = append(o.Items, line.Item)
		o.Subtotal = o.Subtotal.Add(line.Item.TaxableValue)
		o.TaxAmount = o.TaxAmount.Add(line.Item.TaxAmount)
		lineSum = lineSum.Add(line.Item.Total)
		if line.Raw != nil {
			raws = append(raws, line.Raw)
		}
	}
	o.TotalAmount = lineSum.Add(o.ShippingCharge).Add(o.CODCharge).Sub(o.Discount)

	if o.PaymentMode == integration.PaymentModeCOD {
		o.PaymentStatus = integration.PaymentStatusPending
	} else {
		o.PaymentStatus = integration.PaymentStatusPaid
	}
	o.FulfillmentStatus = fulfillmentFor(o.Status)

	switch len(raws) {
	case 0:
	case 1:
		o.RawData = raws[0]
	default:
		if packed, err := json.Marshal(raws); err == nil {
			o.RawData = packed
		}
	}
	return o
}

func fulfillmentFor(status integration.OrderStatus) integration.FulfillmentStatus {
	switch status {
	case integration.OrderStatusShipped, integration.OrderStatusDelivered:
		return integration.FulfillmentFulfilled
	default:
		return integration.FulfillmentUnfulfilled
	}
}

// splitTags breaks a comma-separated tag string into trimmed tags.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// joinName joins first/last name parts, tolerating either being empty.
func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// ParseDecimal parses a provider money string, returning zero for empty or
// malformed values. Providers routinely omit zero-value fields.
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTime tries the given layouts in order, returning the zero time when
// none match.
func ParseTime(s string, layouts ...string) time.Time {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
