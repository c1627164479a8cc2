package channels

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oms/backend/internal/domain/integration"
)

func TestDetectPaymentMode(t *testing.T) {
	tests := []struct {
		name    string
		gateway string
		tags    []string
		want    integration.PaymentMode
	}{
		{"cod gateway", "cod", nil, integration.PaymentModeCOD},
		{"cash on delivery gateway", "Cash on Delivery", nil, integration.PaymentModeCOD},
		{"shopify style gateway", "cash_on_delivery", nil, integration.PaymentModeCOD},
		{"prepaid gateway", "razorpay", nil, integration.PaymentModePrepaid},
		{"cod tag fallback", "manual", []string{"priority", "COD"}, integration.PaymentModeCOD},
		{"no signal", "", []string{"gift"}, integration.PaymentModePrepaid},
		{"empty everything", "", nil, integration.PaymentModePrepaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPaymentMode(tt.gateway, tt.tags))
		})
	}
}

func testLine(orderID, itemID string, taxable, tax, discount float64) RawLine {
	taxableD := decimal.NewFromFloat(taxable)
	taxD := decimal.NewFromFloat(tax)
	discountD := decimal.NewFromFloat(discount)
	return RawLine{
		ExternalOrderID: orderID,
		OrderedAt:       time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		PaymentGateway:  "razorpay",
		Customer:        integration.Customer{Name: "Asha Rao", Phone: "9876543210"},
		Status:          integration.OrderStatusConfirmed,
		Item: integration.OrderItem{
			ExternalItemID: itemID,
			SKU:            "SKU-" + itemID,
			Quantity:       decimal.NewFromInt(1),
			TaxableValue:   taxableD,
			TaxAmount:      taxD,
			Discount:       discountD,
			Total:          taxableD.Add(taxD),
		},
		Raw: json.RawMessage(`{"id":"` + itemID + `"}`),
	}
}

func TestGroupLines_CollapsesByOrderID(t *testing.T) {
	lines := []RawLine{
		testLine("ORD-1", "L1", 100, 18, 0),
		testLine("ORD-1", "L2", 200, 36, 0),
		testLine("ORD-1", "L3", 50, 9, 0),
	}

	orders := GroupLines(integration.ChannelFlipkart, lines)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, "ORD-1", o.ExternalOrderID)
	assert.Equal(t, integration.ChannelFlipkart, o.ChannelCode)
	require.Len(t, o.Items, 3)
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(350)), "subtotal %s", o.Subtotal)
	assert.True(t, o.TaxAmount.Equal(decimal.NewFromInt(63)), "tax %s", o.TaxAmount)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(413)), "total %s", o.TotalAmount)
	assert.NoError(t, o.ReconcileTotals())

	// Raw lines are preserved as a JSON array for audit.
	var raws []json.RawMessage
	require.NoError(t, json.Unmarshal(o.RawData, &raws))
	assert.Len(t, raws, 3)
}

func TestGroupLines_PreservesFirstSeenOrder(t *testing.T) {
	lines := []RawLine{
		testLine("ORD-B", "1", 10, 0, 0),
		testLine("ORD-A", "2", 20, 0, 0),
		testLine("ORD-B", "3", 30, 0, 0),
	}

	orders := GroupLines(integration.ChannelMeesho, lines)
	require.Len(t, orders, 2)
	assert.Equal(t, "ORD-B", orders[0].ExternalOrderID)
	assert.Equal(t, "ORD-A", orders[1].ExternalOrderID)
	assert.Len(t, orders[0].Items, 2)
	assert.Len(t, orders[1].Items, 1)
}

func TestGroupLines_ShippingAndCODInTotal(t *testing.T) {
	line := testLine("ORD-9", "L1", 500, 90, 0)
	line.PaymentGateway = "COD"
	line.ShippingCharge = decimal.NewFromInt(40)
	line.CODCharge = decimal.NewFromInt(25)

	orders := GroupLines(integration.ChannelJioMart, []RawLine{line})
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, integration.PaymentModeCOD, o.PaymentMode)
	assert.Equal(t, integration.PaymentStatusPending, o.PaymentStatus)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(655)), "total %s", o.TotalAmount)
	assert.NoError(t, o.ReconcileTotals())
}

func TestGroupLines_SingleLineKeepsRawObject(t *testing.T) {
	orders := GroupLines(integration.ChannelMyntra, []RawLine{testLine("ORD-5", "L1", 99, 0, 0)})
	require.Len(t, orders, 1)
	assert.JSONEq(t, `{"id":"L1"}`, string(orders[0].RawData))
}

func TestParseDecimal(t *testing.T) {
	assert.True(t, ParseDecimal("123.45").Equal(decimal.NewFromFloat(123.45)))
	assert.True(t, ParseDecimal(" 10 ").Equal(decimal.NewFromInt(10)))
	assert.True(t, ParseDecimal("").IsZero())
	assert.True(t, ParseDecimal("not-a-number").IsZero())
}

func TestParseTime(t *testing.T) {
	got := ParseTime("2026-02-01T12:00:00Z", time.RFC3339)
	assert.Equal(t, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), got)

	got = ParseTime("2026-02-01 12:00:00", time.RFC3339, "2006-01-02 15:04:05")
	assert.Equal(t, 2026, got.Year())

	assert.True(t, ParseTime("garbage", time.RFC3339).IsZero())
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"priority", "COD"}, splitTags("priority, COD"))
	assert.Nil(t, splitTags(""))
}
