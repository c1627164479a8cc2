package integration

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// ChannelCode represents a marketplace order source
// ---------------------------------------------------------------------------

// ChannelCode identifies a marketplace integration.
type ChannelCode string

const (
	ChannelShopify  ChannelCode = "SHOPIFY"
	ChannelFlipkart ChannelCode = "FLIPKART"
	ChannelAmazon   ChannelCode = "AMAZON"
	ChannelMyntra   ChannelCode = "MYNTRA"
	ChannelAjio     ChannelCode = "AJIO"
	ChannelMeesho   ChannelCode = "MEESHO"
	ChannelNykaa    ChannelCode = "NYKAA"
	ChannelTataCliq ChannelCode = "TATACLIQ"
	ChannelJioMart  ChannelCode = "JIOMART"
)

// AllChannels lists every supported channel code.
func AllChannels() []ChannelCode {
	return []ChannelCode{
		ChannelShopify, ChannelFlipkart, ChannelAmazon, ChannelMyntra,
		ChannelAjio, ChannelMeesho, ChannelNykaa, ChannelTataCliq, ChannelJioMart,
	}
}

// IsValid returns true if the channel code is one of the supported channels.
func (c ChannelCode) IsValid() bool {
	switch c {
	case ChannelShopify, ChannelFlipkart, ChannelAmazon, ChannelMyntra,
		ChannelAjio, ChannelMeesho, ChannelNykaa, ChannelTataCliq, ChannelJioMart:
		return true
	default:
		return false
	}
}

// String returns the string representation of the channel code.
func (c ChannelCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the channel.
func (c ChannelCode) DisplayName() string {
	switch c {
	case ChannelShopify:
		return "Shopify"
	case ChannelFlipkart:
		return "Flipkart"
	case ChannelAmazon:
		return "Amazon"
	case ChannelMyntra:
		return "Myntra"
	case ChannelAjio:
		return "AJIO"
	case ChannelMeesho:
		return "Meesho"
	case ChannelNykaa:
		return "Nykaa"
	case ChannelTataCliq:
		return "Tata Cliq"
	case ChannelJioMart:
		return "JioMart"
	default:
		return string(c)
	}
}

// ---------------------------------------------------------------------------
// Request/Response DTOs
// ---------------------------------------------------------------------------

// OrderPullRequest describes a windowed, paginated order pull from a channel.
type OrderPullRequest struct {
	// Since is the inclusive start of the order-creation window.
	Since time.Time
	// Until is the exclusive end of the order-creation window.
	Until time.Time
	// Status filters by canonical order status (optional).
	Status *OrderStatus
	// PageNo is the page number (1-indexed).
	PageNo int
	// PageSize is the number of orders per page.
	PageSize int
}

// Validate validates the pull request and normalizes paging defaults.
func (r *OrderPullRequest) Validate() error {
	if r.Since.IsZero() || r.Until.IsZero() {
		return fmt.Errorf("%w: since and until are required", ErrInvalidPullRequest)
	}
	if r.Since.After(r.Until) {
		return fmt.Errorf("%w: since must be before until", ErrInvalidPullRequest)
	}
	if r.Status != nil && !r.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidPullRequest, *r.Status)
	}
	if r.PageNo < 1 {
		r.PageNo = 1
	}
	if r.PageSize < 1 || r.PageSize > 250 {
		r.PageSize = 50
	}
	return nil
}

// OrderPullResult is one page of normalized orders pulled from a channel.
type OrderPullResult struct {
	Orders     []ChannelOrder
	TotalCount int64
	HasMore    bool
	NextPageNo int
}

// StatusUpdateRequest asks a channel to reflect a local order state change,
// typically a shipping confirmation carrying tracking details.
type StatusUpdateRequest struct {
	ExternalOrderID string
	Status          OrderStatus
	CourierName     string
	TrackingNumber  string
}

// Validate validates the status update request.
func (r *StatusUpdateRequest) Validate() error {
	if r.ExternalOrderID == "" {
		return ErrOrderNotFound
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrStatusUpdateFailed, r.Status)
	}
	if r.Status == OrderStatusShipped && (r.CourierName == "" || r.TrackingNumber == "") {
		return errors.New("integration: courier name and tracking number required for shipped status")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Channel Port Interface
// ---------------------------------------------------------------------------

// Channel is the port interface every marketplace adapter implements.
// Adapters translate the provider protocol into canonical shapes; they
// return wrapped sentinel errors from this package for expected provider
// failures and let resilience errors (circuit open, rate-limit backpressure)
// propagate unchanged so callers can treat them as retryable-later.
type Channel interface {
	// Code returns the channel code this adapter handles.
	Code() ChannelCode

	// Name returns the provider display name.
	Name() string

	// Authenticate establishes or refreshes provider credentials. Adapters
	// re-authenticate transparently before authenticated calls; an explicit
	// call is only needed to verify configuration upfront.
	Authenticate(ctx context.Context) error

	// PullOrders pulls one page of orders created inside the request window.
	PullOrders(ctx context.Context, req *OrderPullRequest) (*OrderPullResult, error)

	// UpdateOrderStatus pushes a local status change back to the channel.
	UpdateOrderStatus(ctx context.Context, req *StatusUpdateRequest) error

	// VerifyWebhook checks the provider signature over the raw payload
	// bytes. It returns false, never an error, when no webhook secret is
	// configured or the signature does not match.
	VerifyWebhook(payload []byte, signature string) bool
}
