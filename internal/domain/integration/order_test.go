package integration

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelCode_IsValid(t *testing.T) {
	for _, code := range AllChannels() {
		assert.True(t, code.IsValid(), code)
		assert.NotEqual(t, string(code), "", code.DisplayName())
	}
	assert.False(t, ChannelCode("EBAY").IsValid())
	assert.False(t, ChannelCode("").IsValid())
}

func TestTransporterCode_IsValid(t *testing.T) {
	for _, code := range AllTransporters() {
		assert.True(t, code.IsValid(), code)
	}
	assert.False(t, TransporterCode("FEDEX").IsValid())
}

func TestOrderPullRequest_Validate(t *testing.T) {
	now := time.Now()

	t.Run("valid with defaults applied", func(t *testing.T) {
		req := &OrderPullRequest{Since: now.Add(-time.Hour), Until: now}
		require.NoError(t, req.Validate())
		assert.Equal(t, 1, req.PageNo)
		assert.Equal(t, 50, req.PageSize)
	})

	t.Run("missing window", func(t *testing.T) {
		req := &OrderPullRequest{}
		assert.ErrorIs(t, req.Validate(), ErrInvalidPullRequest)
	})

	t.Run("inverted window", func(t *testing.T) {
		req := &OrderPullRequest{Since: now, Until: now.Add(-time.Hour)}
		assert.ErrorIs(t, req.Validate(), ErrInvalidPullRequest)
	})

	t.Run("oversized page clamped", func(t *testing.T) {
		req := &OrderPullRequest{Since: now.Add(-time.Hour), Until: now, PageSize: 10000}
		require.NoError(t, req.Validate())
		assert.Equal(t, 50, req.PageSize)
	})
}

func TestStatusUpdateRequest_Validate(t *testing.T) {
	t.Run("shipped requires tracking", func(t *testing.T) {
		req := &StatusUpdateRequest{ExternalOrderID: "123", Status: OrderStatusShipped}
		assert.Error(t, req.Validate())

		req.CourierName = "Delhivery"
		req.TrackingNumber = "AWB123"
		assert.NoError(t, req.Validate())
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		req := &StatusUpdateRequest{ExternalOrderID: "123", Status: OrderStatus("TELEPORTED")}
		assert.ErrorIs(t, req.Validate(), ErrStatusUpdateFailed)
	})
}

func TestChannelOrder_ReconcileTotals(t *testing.T) {
	order := func() *ChannelOrder {
		return &ChannelOrder{
			Items: []OrderItem{
				{Total: decimal.NewFromFloat(499.00)},
				{Total: decimal.NewFromFloat(250.50)},
			},
			ShippingCharge: decimal.NewFromFloat(40),
			CODCharge:      decimal.NewFromFloat(25),
			Discount:       decimal.NewFromFloat(100),
			TotalAmount:    decimal.NewFromFloat(714.50),
		}
	}

	t.Run("exact match", func(t *testing.T) {
		assert.NoError(t, order().ReconcileTotals())
	})

	t.Run("within tolerance", func(t *testing.T) {
		o := order()
		o.TotalAmount = decimal.NewFromFloat(714.504)
		assert.NoError(t, o.ReconcileTotals())
	})

	t.Run("mismatch", func(t *testing.T) {
		o := order()
		o.TotalAmount = decimal.NewFromFloat(700)
		assert.ErrorIs(t, o.ReconcileTotals(), ErrTotalsMismatch)
	})
}

func TestOrderStatus_IsFinal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsFinal())
	assert.True(t, OrderStatusCancelled.IsFinal())
	assert.False(t, OrderStatusShipped.IsFinal())
	assert.False(t, OrderStatusPending.IsFinal())
}

func TestCredentials_Redaction(t *testing.T) {
	creds := Credentials{"api_key": "super-secret", "api_secret": "even-more-secret"}

	for _, rendered := range []string{
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%s", creds),
		fmt.Sprintf("%#v", creds),
	} {
		assert.NotContains(t, rendered, "super-secret")
		assert.NotContains(t, rendered, "even-more-secret")
		assert.Contains(t, rendered, "redacted")
	}
}

func TestCredentials_Require(t *testing.T) {
	creds := Credentials{"token": "abc"}

	v, err := creds.Require("token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = creds.Require("missing")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	assert.True(t, strings.Contains(err.Error(), "missing"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: timeout", ErrProviderUnavailable)))
	assert.True(t, IsRetryable(ErrProviderRateLimited))
	assert.False(t, IsRetryable(ErrProviderRequestFailed))
	assert.False(t, IsRetryable(nil))
}
