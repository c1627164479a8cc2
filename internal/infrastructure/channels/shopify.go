package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
)

const shopifyAPIVersion = "2024-01"

// ShopifyAdapter integrates a Shopify store. Auth is a static admin access
// token sent on every request; webhooks are verified with a base64
// HMAC-SHA256 over the raw body.
//
// Credentials: shopDomain, accessToken, optional webhookSecret, optional
// baseUrl override (sandbox/testing).
type ShopifyAdapter struct {
	deps          Deps
	baseURL       string
	accessToken   string
	webhookSecret string
	log           *zap.Logger
}

func newShopify(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	token, err := creds.Require("accessToken")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		domain, err := creds.Require("shopDomain")
		if err != nil {
			return nil, err
		}
		baseURL = fmt.Sprintf("https://%s/admin/api/%s", domain, shopifyAPIVersion)
	}
	return &ShopifyAdapter{
		deps:          deps,
		baseURL:       baseURL,
		accessToken:   token,
		webhookSecret: creds.Get("webhookSecret"),
		log:           deps.Log.With(zap.String("channel", "SHOPIFY")),
	}, nil
}

func (a *ShopifyAdapter) Code() integration.ChannelCode { return integration.ChannelShopify }
func (a *ShopifyAdapter) Name() string                  { return integration.ChannelShopify.DisplayName() }

func (a *ShopifyAdapter) headers() map[string]string {
	return map[string]string{"X-Shopify-Access-Token": a.accessToken}
}

// Authenticate verifies the token by fetching the shop resource.
func (a *ShopifyAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "SHOPIFY", http.MethodGet, a.baseURL+"/shop.json", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "SHOPIFY")
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type shopifyMoneySet struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shop_money"`
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

type shopifyLineItem struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Title         string `json:"title"`
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price"`
	TotalDiscount string `json:"total_discount"`
	TaxLines      []struct {
		Price string `json:"price"`
	} `json:"tax_lines"`
}

type shopifyOrder struct {
	ID                  int64    `json:"id"`
	Name                string   `json:"name"`
	CreatedAt           string   `json:"created_at"`
	CancelledAt         string   `json:"cancelled_at"`
	Tags                string   `json:"tags"`
	Note                string   `json:"note"`
	FinancialStatus     string   `json:"financial_status"`
	FulfillmentStatus   string   `json:"fulfillment_status"`
	PaymentGatewayNames []string `json:"payment_gateway_names"`
	Customer            struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"customer"`
	ShippingAddress       shopifyAddress    `json:"shipping_address"`
	BillingAddress        shopifyAddress    `json:"billing_address"`
	LineItems             []shopifyLineItem `json:"line_items"`
	TotalShippingPriceSet shopifyMoneySet   `json:"total_shipping_price_set"`
}

type shopifyOrdersResponse struct {
	Orders []json.RawMessage `json:"orders"`
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// PullOrders fetches one page of orders created inside the window. Shopify
// returns fully nested orders, so normalization maps directly instead of
// grouping line rows.
func (a *ShopifyAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("created_at_min", req.Since.UTC().Format(time.RFC3339))
	q.Set("created_at_max", req.Until.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(req.PageSize))
	q.Set("status", "any")

	res, err := a.deps.Gateway.Do(ctx, "SHOPIFY", http.MethodGet,
		a.baseURL+"/orders.json?"+q.Encode(), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp shopifyOrdersResponse
	if err := decodeBody(res, "SHOPIFY", &resp); err != nil {
		return nil, err
	}

	result := &integration.OrderPullResult{
		Orders:     make([]integration.ChannelOrder, 0, len(resp.Orders)),
		TotalCount: int64(len(resp.Orders)),
		HasMore:    len(resp.Orders) == req.PageSize,
		NextPageNo: req.PageNo + 1,
	}
	for _, raw := range resp.Orders {
		var o shopifyOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			a.log.Warn("skipping unparseable order", zap.Error(err))
			continue
		}
		result.Orders = append(result.Orders, a.normalizeOrder(&o, raw))
	}
	return result, nil
}

// UpdateOrderStatus pushes shipped and cancelled transitions back to the
// store. Other statuses progress through Shopify's own workflow.
func (a *ShopifyAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	switch req.Status {
	case integration.OrderStatusShipped:
		return a.createFulfillment(ctx, req)
	case integration.OrderStatusCancelled:
		url := fmt.Sprintf("%s/orders/%s/cancel.json", a.baseURL, req.ExternalOrderID)
		res, err := a.deps.Gateway.Do(ctx, "SHOPIFY", http.MethodPost, url, []byte(`{}`), a.headers())
		if err != nil {
			return err
		}
		return checkResult(res, "SHOPIFY")
	default:
		return nil
	}
}

func (a *ShopifyAdapter) createFulfillment(ctx context.Context, req *integration.StatusUpdateRequest) error {
	body, err := json.Marshal(map[string]any{
		"fulfillment": map[string]any{
			"notify_customer": true,
			"tracking_info": map[string]string{
				"number":  req.TrackingNumber,
				"company": req.CourierName,
			},
		},
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/orders/%s/fulfillments.json", a.baseURL, req.ExternalOrderID)
	res, err := a.deps.Gateway.Do(ctx, "SHOPIFY", http.MethodPost, url, body, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "SHOPIFY")
}

// VerifyWebhook checks the X-Shopify-Hmac-Sha256 signature (base64) over the
// raw body bytes.
func (a *ShopifyAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACBase64(a.webhookSecret, payload, signature)
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

func (a *ShopifyAdapter) normalizeOrder(o *shopifyOrder, raw json.RawMessage) integration.ChannelOrder {
	gateway := ""
	if len(o.PaymentGatewayNames) > 0 {
		gateway = o.PaymentGatewayNames[0]
	}
	tags := splitTags(o.Tags)

	order := integration.ChannelOrder{
		ExternalOrderID: strconv.FormatInt(o.ID, 10),
		ExternalOrderNo: o.Name,
		ChannelCode:     integration.ChannelShopify,
		OrderedAt:       ParseTime(o.CreatedAt, time.RFC3339),
		PaymentMode:     DetectPaymentMode(gateway, tags),
		Customer: integration.Customer{
			Name:  joinName(o.Customer.FirstName, o.Customer.LastName),
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		},
		ShippingAddress: mapShopifyAddress(o.ShippingAddress),
		BillingAddress:  mapShopifyAddress(o.BillingAddress),
		ShippingCharge:  ParseDecimal(o.TotalShippingPriceSet.ShopMoney.Amount),
		Status:          mapShopifyStatus(o),
		Tags:            tags,
		Notes:           o.Note,
		RawData:         raw,
	}

	lineSum := decimal.Zero
	for _, li := range o.LineItems {
		qty := decimal.NewFromInt(li.Quantity)
		taxable := ParseDecimal(li.Price).Mul(qty).Sub(ParseDecimal(li.TotalDiscount))
		tax := decimal.Zero
		for _, tl := range li.TaxLines {
			tax = tax.Add(ParseDecimal(tl.Price))
		}
		item := integration.OrderItem{
			ExternalItemID: strconv.FormatInt(li.ID, 10),
			SKU:            li.SKU,
			Name:           li.Title,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(li.Price),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       ParseDecimal(li.TotalDiscount),
			Total:          taxable.Add(tax),
		}
		order.Items = append(order.Items, item)
		order.Subtotal = order.Subtotal.Add(item.TaxableValue)
		order.TaxAmount = order.TaxAmount.Add(item.TaxAmount)
		lineSum = lineSum.Add(item.Total)
	}
	order.TotalAmount = lineSum.Add(order.ShippingCharge)

	switch o.FinancialStatus {
	case "paid", "partially_refunded":
		order.PaymentStatus = integration.PaymentStatusPaid
	case "refunded":
		order.PaymentStatus = integration.PaymentStatusRefunded
	default:
		order.PaymentStatus = integration.PaymentStatusPending
	}
	order.FulfillmentStatus = mapShopifyFulfillment(o.FulfillmentStatus)
	return order
}

func mapShopifyStatus(o *shopifyOrder) integration.OrderStatus {
	if o.CancelledAt != "" {
		return integration.OrderStatusCancelled
	}
	switch o.FulfillmentStatus {
	case "fulfilled":
		return integration.OrderStatusShipped
	case "partial":
		return integration.OrderStatusConfirmed
	default:
		if o.FinancialStatus == "paid" {
			return integration.OrderStatusConfirmed
		}
		return integration.OrderStatusPending
	}
}

func mapShopifyFulfillment(s string) integration.FulfillmentStatus {
	switch s {
	case "fulfilled":
		return integration.FulfillmentFulfilled
	case "partial":
		return integration.FulfillmentPartial
	default:
		return integration.FulfillmentUnfulfilled
	}
}

func mapShopifyAddress(a shopifyAddress) integration.Address {
	return integration.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Address1,
		Line2:      a.Address2,
		City:       a.City,
		State:      a.Province,
		PostalCode: a.Zip,
		Country:    a.Country,
	}
}

var _ integration.Channel = (*ShopifyAdapter)(nil)
