package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/cache"
)

const (
	flipkartDefaultBaseURL  = "https://api.flipkart.net"
	flipkartDefaultTokenURL = flipkartDefaultBaseURL + "/oauth-service/oauth/token"
)

// FlipkartAdapter integrates the Flipkart seller API. Auth is OAuth2
// client-credentials with the bearer cached until expiry minus the safety
// buffer. Order search returns one row per order item, so normalization
// groups lines by order id.
//
// Credentials: clientId, clientSecret, optional webhookSecret, optional
// baseUrl/tokenUrl overrides.
type FlipkartAdapter struct {
	deps          Deps
	baseURL       string
	webhookSecret string
	fetchToken    cache.FetchFunc
	log           *zap.Logger
}

func newFlipkart(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	clientID, err := creds.Require("clientId")
	if err != nil {
		return nil, err
	}
	clientSecret, err := creds.Require("clientSecret")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = flipkartDefaultBaseURL
	}
	tokenURL := creds.Get("tokenUrl")
	if tokenURL == "" {
		tokenURL = baseURL + "/oauth-service/oauth/token"
	}
	return &FlipkartAdapter{
		deps:          deps,
		baseURL:       baseURL,
		webhookSecret: creds.Get("webhookSecret"),
		fetchToken:    clientCredentialsFetch(deps.Gateway, "FLIPKART", tokenURL, clientID, clientSecret),
		log:           deps.Log.With(zap.String("channel", "FLIPKART")),
	}, nil
}

func (a *FlipkartAdapter) Code() integration.ChannelCode { return integration.ChannelFlipkart }
func (a *FlipkartAdapter) Name() string                  { return integration.ChannelFlipkart.DisplayName() }

// Authenticate forces a token fetch so misconfigured credentials fail
// upfront instead of on the first pull.
func (a *FlipkartAdapter) Authenticate(ctx context.Context) error {
	_, err := a.deps.Tokens.Token(ctx, "FLIPKART", a.fetchToken)
	return err
}

func (a *FlipkartAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.deps.Tokens.Token(ctx, "FLIPKART", a.fetchToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type flipkartOrderItem struct {
	OrderItemID     string `json:"orderItemId"`
	OrderID         string `json:"orderId"`
	OrderDate       string `json:"orderDate"`
	PaymentType     string `json:"paymentType"`
	Status          string `json:"status"`
	SKU             string `json:"sku"`
	Title           string `json:"title"`
	Quantity        int64  `json:"quantity"`
	PriceComponents struct {
		SellingPrice     string `json:"sellingPrice"`
		TotalPrice       string `json:"totalPrice"`
		ShippingCharge   string `json:"shippingCharge"`
		CustomerPrice    string `json:"customerPrice"`
		FlipkartDiscount string `json:"flipkartDiscount"`
		TaxAmount        string `json:"taxAmount"`
	} `json:"priceComponents"`
	BuyerDetails struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"contactNumber"`
		Address struct {
			AddressLine1 string `json:"addressLine1"`
			AddressLine2 string `json:"addressLine2"`
			Landmark     string `json:"landmark"`
			City         string `json:"city"`
			State        string `json:"state"`
			Pincode      string `json:"pincode"`
		} `json:"address"`
	} `json:"buyerDetails"`
}

type flipkartSearchResponse struct {
	OrderItems []json.RawMessage `json:"orderItems"`
	TotalCount int64             `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

func (a *FlipkartAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"filter": map[string]any{
			"orderDate": map[string]string{
				"fromDate": req.Since.UTC().Format(time.RFC3339),
				"toDate":   req.Until.UTC().Format(time.RFC3339),
			},
		},
		"pagination": map[string]int{
			"pageNumber": req.PageNo,
			"pageSize":   req.PageSize,
		},
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "FLIPKART", http.MethodPost,
		a.baseURL+"/sellers/v3/orders/search", body, headers)
	if err != nil {
		return nil, err
	}

	var resp flipkartSearchResponse
	if err := decodeBody(res, "FLIPKART", &resp); err != nil {
		return nil, err
	}

	lines := make([]RawLine, 0, len(resp.OrderItems))
	for _, raw := range resp.OrderItems {
		var item flipkartOrderItem
		if err := json.Unmarshal(raw, &item); err != nil {
			a.log.Warn("skipping unparseable order item", zap.Error(err))
			continue
		}
		lines = append(lines, a.toRawLine(&item, raw))
	}

	return &integration.OrderPullResult{
		Orders:     GroupLines(integration.ChannelFlipkart, lines),
		TotalCount: resp.TotalCount,
		HasMore:    resp.HasMore,
		NextPageNo: req.PageNo + 1,
	}, nil
}

func (a *FlipkartAdapter) toRawLine(item *flipkartOrderItem, raw json.RawMessage) RawLine {
	qty := decimal.NewFromInt(item.Quantity)
	taxable := ParseDecimal(item.PriceComponents.SellingPrice).Mul(qty)
	tax := ParseDecimal(item.PriceComponents.TaxAmount)
	discount := ParseDecimal(item.PriceComponents.FlipkartDiscount)

	addr := integration.Address{
		Name:       item.BuyerDetails.Name,
		Phone:      item.BuyerDetails.Phone,
		Email:      item.BuyerDetails.Email,
		Line1:      item.BuyerDetails.Address.AddressLine1,
		Line2:      item.BuyerDetails.Address.AddressLine2,
		Landmark:   item.BuyerDetails.Address.Landmark,
		City:       item.BuyerDetails.Address.City,
		State:      item.BuyerDetails.Address.State,
		PostalCode: item.BuyerDetails.Address.Pincode,
		Country:    "India",
	}

	return RawLine{
		ExternalOrderID: item.OrderID,
		ExternalOrderNo: item.OrderID,
		OrderedAt:       ParseTime(item.OrderDate, time.RFC3339, "2006-01-02 15:04:05"),
		PaymentGateway:  item.PaymentType,
		Customer: integration.Customer{
			Name:  item.BuyerDetails.Name,
			Email: item.BuyerDetails.Email,
			Phone: item.BuyerDetails.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingCharge:  ParseDecimal(item.PriceComponents.ShippingCharge),
		Status:          mapFlipkartStatus(item.Status),
		Item: integration.OrderItem{
			ExternalItemID: item.OrderItemID,
			SKU:            item.SKU,
			Name:           item.Title,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(item.PriceComponents.SellingPrice),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       discount,
			Total:          taxable.Add(tax).Sub(discount),
		},
		Raw: raw,
	}
}

func mapFlipkartStatus(s string) integration.OrderStatus {
	switch s {
	case "APPROVED":
		return integration.OrderStatusConfirmed
	case "PACKING_IN_PROGRESS", "PACKED", "READY_TO_DISPATCH":
		return integration.OrderStatusPacked
	case "SHIPPED":
		return integration.OrderStatusShipped
	case "DELIVERED":
		return integration.OrderStatusDelivered
	case "CANCELLED":
		return integration.OrderStatusCancelled
	case "RETURNED":
		return integration.OrderStatusReturned
	default:
		return integration.OrderStatusPending
	}
}

// UpdateOrderStatus dispatches shipments and cancels order items. Flipkart
// has no API for intermediate statuses.
func (a *FlipkartAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return err
	}

	switch req.Status {
	case integration.OrderStatusShipped:
		body, err := json.Marshal(map[string]any{
			"orderId":        req.ExternalOrderID,
			"courierName":    req.CourierName,
			"trackingNumber": req.TrackingNumber,
		})
		if err != nil {
			return err
		}
		res, err := a.deps.Gateway.Do(ctx, "FLIPKART", http.MethodPost,
			a.baseURL+"/sellers/v3/shipments/dispatch", body, headers)
		if err != nil {
			return err
		}
		return checkResult(res, "FLIPKART")
	case integration.OrderStatusCancelled:
		body, err := json.Marshal(map[string]any{"orderId": req.ExternalOrderID, "reason": "seller_cancelled"})
		if err != nil {
			return err
		}
		res, err := a.deps.Gateway.Do(ctx, "FLIPKART", http.MethodPost,
			a.baseURL+"/sellers/v3/orders/cancel", body, headers)
		if err != nil {
			return err
		}
		return checkResult(res, "FLIPKART")
	default:
		return nil
	}
}

// VerifyWebhook checks the hex HMAC-SHA256 signature Flipkart sends on
// notification callbacks.
func (a *FlipkartAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*FlipkartAdapter)(nil)
