package channels

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
	"github.com/oms/backend/internal/infrastructure/cache"
)

const (
	amazonDefaultBaseURL  = "https://sellingpartnerapi-eu.amazon.com"
	amazonDefaultTokenURL = "https://api.amazon.com/auth/o2/token"
)

// AmazonAdapter integrates the Amazon SP-API. Auth exchanges a long-lived
// LWA refresh token for a short-lived access token, cached until expiry.
// Orders come back as headers; line items need one extra call per order.
//
// Credentials: refreshToken, clientId, clientSecret, optional webhookSecret,
// optional baseUrl/tokenUrl overrides.
type AmazonAdapter struct {
	deps          Deps
	baseURL       string
	webhookSecret string
	fetchToken    cache.FetchFunc
	log           *zap.Logger
}

func newAmazon(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	refreshToken, err := creds.Require("refreshToken")
	if err != nil {
		return nil, err
	}
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
		baseURL = amazonDefaultBaseURL
	}
	tokenURL := creds.Get("tokenUrl")
	if tokenURL == "" {
		tokenURL = amazonDefaultTokenURL
	}
	return &AmazonAdapter{
		deps:          deps,
		baseURL:       baseURL,
		webhookSecret: creds.Get("webhookSecret"),
		fetchToken:    lwaRefreshFetch(deps, tokenURL, refreshToken, clientID, clientSecret),
		log:           deps.Log.With(zap.String("channel", "AMAZON")),
	}, nil
}

// lwaRefreshFetch exchanges the LWA refresh token for an access token.
func lwaRefreshFetch(deps Deps, tokenURL, refreshToken, clientID, clientSecret string) cache.FetchFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)

		res, err := deps.Gateway.Do(ctx, "AMAZON", http.MethodPost, tokenURL, []byte(form.Encode()), map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		})
		if err != nil {
			return "", time.Time{}, err
		}
		if !res.Success {
			return "", time.Time{}, fmt.Errorf("%w: AMAZON: LWA exchange returned HTTP %d",
				integration.ErrProviderAuthFailed, res.StatusCode)
		}
		var tok oauthToken
		if err := json.Unmarshal(res.Body, &tok); err != nil || tok.AccessToken == "" {
			return "", time.Time{}, fmt.Errorf("%w: AMAZON: malformed LWA response",
				integration.ErrProviderInvalidResponse)
		}
		expiresIn := tok.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		return tok.AccessToken, time.Now().Add(time.Duration(expiresIn) * time.Second), nil
	}
}

func (a *AmazonAdapter) Code() integration.ChannelCode { return integration.ChannelAmazon }
func (a *AmazonAdapter) Name() string                  { return integration.ChannelAmazon.DisplayName() }

func (a *AmazonAdapter) Authenticate(ctx context.Context) error {
	_, err := a.deps.Tokens.Token(ctx, "AMAZON", a.fetchToken)
	return err
}

func (a *AmazonAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.deps.Tokens.Token(ctx, "AMAZON", a.fetchToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{"x-amz-access-token": token}, nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type amazonMoney struct {
	Amount string `json:"Amount"`
}

type amazonOrder struct {
	AmazonOrderID string      `json:"AmazonOrderId"`
	PurchaseDate  string      `json:"PurchaseDate"`
	OrderStatus   string      `json:"OrderStatus"`
	PaymentMethod string      `json:"PaymentMethod"`
	OrderTotal    amazonMoney `json:"OrderTotal"`
	BuyerInfo     struct {
		BuyerEmail string `json:"BuyerEmail"`
		BuyerName  string `json:"BuyerName"`
	} `json:"BuyerInfo"`
	ShippingAddress struct {
		Name          string `json:"Name"`
		AddressLine1  string `json:"AddressLine1"`
		AddressLine2  string `json:"AddressLine2"`
		City          string `json:"City"`
		StateOrRegion string `json:"StateOrRegion"`
		PostalCode    string `json:"PostalCode"`
		CountryCode   string `json:"CountryCode"`
		Phone         string `json:"Phone"`
	} `json:"ShippingAddress"`
}

type amazonOrdersResponse struct {
	Payload struct {
		Orders    []json.RawMessage `json:"Orders"`
		NextToken string            `json:"NextToken"`
	} `json:"payload"`
}

type amazonOrderItem struct {
	OrderItemID       string      `json:"OrderItemId"`
	SellerSKU         string      `json:"SellerSKU"`
	Title             string      `json:"Title"`
	QuantityOrdered   int64       `json:"QuantityOrdered"`
	ItemPrice         amazonMoney `json:"ItemPrice"`
	ItemTax           amazonMoney `json:"ItemTax"`
	PromotionDiscount amazonMoney `json:"PromotionDiscount"`
}

type amazonItemsResponse struct {
	Payload struct {
		OrderItems []amazonOrderItem `json:"OrderItems"`
	} `json:"payload"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

func (a *AmazonAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("CreatedAfter", req.Since.UTC().Format(time.RFC3339))
	q.Set("CreatedBefore", req.Until.UTC().Format(time.RFC3339))
	q.Set("MaxResultsPerPage", fmt.Sprintf("%d", req.PageSize))

	res, err := a.deps.Gateway.Do(ctx, "AMAZON", http.MethodGet,
		a.baseURL+"/orders/v0/orders?"+q.Encode(), nil, headers)
	if err != nil {
		return nil, err
	}

	var resp amazonOrdersResponse
	if err := decodeBody(res, "AMAZON", &resp); err != nil {
		return nil, err
	}

	result := &integration.OrderPullResult{
		Orders:     make([]integration.ChannelOrder, 0, len(resp.Payload.Orders)),
		TotalCount: int64(len(resp.Payload.Orders)),
		HasMore:    resp.Payload.NextToken != "",
		NextPageNo: req.PageNo + 1,
	}
	for _, raw := range resp.Payload.Orders {
		var o amazonOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			a.log.Warn("skipping unparseable order", zap.Error(err))
			continue
		}
		order, err := a.normalizeOrder(ctx, headers, &o, raw)
		if err != nil {
			// One broken order must not fail the whole page.
			a.log.Warn("skipping order that failed item fetch",
				zap.String("amazonOrderId", o.AmazonOrderID),
				zap.Error(err),
			)
			continue
		}
		result.Orders = append(result.Orders, order)
	}
	return result, nil
}

func (a *AmazonAdapter) normalizeOrder(ctx context.Context, headers map[string]string, o *amazonOrder, raw json.RawMessage) (integration.ChannelOrder, error) {
	res, err := a.deps.Gateway.Do(ctx, "AMAZON", http.MethodGet,
		fmt.Sprintf("%s/orders/v0/orders/%s/orderItems", a.baseURL, o.AmazonOrderID), nil, headers)
	if err != nil {
		return integration.ChannelOrder{}, err
	}
	var itemsResp amazonItemsResponse
	if err := decodeBody(res, "AMAZON", &itemsResp); err != nil {
		return integration.ChannelOrder{}, err
	}

	order := integration.ChannelOrder{
		ExternalOrderID: o.AmazonOrderID,
		ExternalOrderNo: o.AmazonOrderID,
		ChannelCode:     integration.ChannelAmazon,
		OrderedAt:       ParseTime(o.PurchaseDate, time.RFC3339),
		PaymentMode:     DetectPaymentMode(o.PaymentMethod, nil),
		Customer: integration.Customer{
			Name:  o.BuyerInfo.BuyerName,
			Email: o.BuyerInfo.BuyerEmail,
			Phone: o.ShippingAddress.Phone,
		},
		ShippingAddress: integration.Address{
			Name:       o.ShippingAddress.Name,
			Phone:      o.ShippingAddress.Phone,
			Line1:      o.ShippingAddress.AddressLine1,
			Line2:      o.ShippingAddress.AddressLine2,
			City:       o.ShippingAddress.City,
			State:      o.ShippingAddress.StateOrRegion,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.CountryCode,
		},
		Status:  mapAmazonStatus(o.OrderStatus),
		RawData: raw,
	}
	order.BillingAddress = order.ShippingAddress

	lineSum := decimal.Zero
	for _, it := range itemsResp.Payload.OrderItems {
		qty := decimal.NewFromInt(it.QuantityOrdered)
		taxable := ParseDecimal(it.ItemPrice.Amount).Sub(ParseDecimal(it.PromotionDiscount.Amount))
		tax := ParseDecimal(it.ItemTax.Amount)
		unit := decimal.Zero
		if !qty.IsZero() {
			unit = ParseDecimal(it.ItemPrice.Amount).Div(qty)
		}
		item := integration.OrderItem{
			ExternalItemID: it.OrderItemID,
			SKU:            it.SellerSKU,
			Name:           it.Title,
			Quantity:       qty,
			UnitPrice:      unit,
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       ParseDecimal(it.PromotionDiscount.Amount),
			Total:          taxable.Add(tax),
		}
		order.Items = append(order.Items, item)
		order.Subtotal = order.Subtotal.Add(item.TaxableValue)
		order.TaxAmount = order.TaxAmount.Add(item.TaxAmount)
		lineSum = lineSum.Add(item.Total)
	}
	order.TotalAmount = lineSum

	if order.PaymentMode == integration.PaymentModeCOD {
		order.PaymentStatus = integration.PaymentStatusPending
	} else {
		order.PaymentStatus = integration.PaymentStatusPaid
	}
	order.FulfillmentStatus = fulfillmentFor(order.Status)
	return order, nil
}

func mapAmazonStatus(s string) integration.OrderStatus {
	switch s {
	case "Unshipped", "PartiallyShipped":
		return integration.OrderStatusConfirmed
	case "Shipped":
		return integration.OrderStatusShipped
	case "Canceled":
		return integration.OrderStatusCancelled
	case "Pending":
		return integration.OrderStatusPending
	default:
		return integration.OrderStatusPending
	}
}

// UpdateOrderStatus submits a shipping confirmation feed. Amazon ignores
// other transitions; orders progress through its own pipeline.
func (a *AmazonAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Status != integration.OrderStatusShipped {
		return nil
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"amazonOrderId":  req.ExternalOrderID,
		"carrierName":    req.CourierName,
		"trackingNumber": req.TrackingNumber,
	})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "AMAZON", http.MethodPost,
		a.baseURL+"/orders/v0/shipmentConfirmation", body, headers)
	if err != nil {
		return err
	}
	return checkResult(res, "AMAZON")
}

// VerifyWebhook checks the hex HMAC signature on notification callbacks.
func (a *AmazonAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*AmazonAdapter)(nil)
