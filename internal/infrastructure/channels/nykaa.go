package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/cache"
)

const nykaaDefaultBaseURL = "https://seller-api.nykaa.com"

// NykaaAdapter integrates the Nykaa seller API. Auth is OAuth2
// client-credentials; orders come back fully nested.
//
// Credentials: clientId, clientSecret, optional webhookSecret, optional
// baseUrl/tokenUrl overrides.
type NykaaAdapter struct {
	deps          Deps
	baseURL       string
	webhookSecret string
	fetchToken    cache.FetchFunc
	log           *zap.Logger
}

func newNykaa(creds integration.Credentials, deps Deps) (integration.Channel, error) {
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
		baseURL = nykaaDefaultBaseURL
	}
	tokenURL := creds.Get("tokenUrl")
	if tokenURL == "" {
		tokenURL = baseURL + "/oauth/token"
	}
	return &NykaaAdapter{
		deps:          deps,
		baseURL:       baseURL,
		webhookSecret: creds.Get("webhookSecret"),
		fetchToken:    clientCredentialsFetch(deps.Gateway, "NYKAA", tokenURL, clientID, clientSecret),
		log:           deps.Log.With(zap.String("channel", "NYKAA")),
	}, nil
}

func (a *NykaaAdapter) Code() integration.ChannelCode { return integration.ChannelNykaa }
func (a *NykaaAdapter) Name() string                  { return integration.ChannelNykaa.DisplayName() }

func (a *NykaaAdapter) Authenticate(ctx context.Context) error {
	_, err := a.deps.Tokens.Token(ctx, "NYKAA", a.fetchToken)
	return err
}

func (a *NykaaAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.deps.Tokens.Token(ctx, "NYKAA", a.fetchToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

type nykaaOrder struct {
	OrderID     string `json:"order_id"`
	OrderNo     string `json:"order_no"`
	OrderDate   string `json:"order_date"`
	PaymentMode string `json:"payment_mode"`
	Status      string `json:"status"`
	Shipping    string `json:"shipping_charge"`
	Customer    struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	Address struct {
		Line1   string `json:"address1"`
		Line2   string `json:"address2"`
		City    string `json:"city"`
		State   string `json:"state"`
		Pincode string `json:"pincode"`
	} `json:"shipping_address"`
	Items []struct {
		ItemID   string `json:"item_id"`
		SKU      string `json:"sku"`
		Name     string `json:"product_name"`
		Quantity int64  `json:"qty"`
		Price    string `json:"selling_price"`
		Tax      string `json:"tax"`
		Discount string `json:"discount"`
	} `json:"items"`
}

type nykaaOrdersResponse struct {
	Orders  []json.RawMessage `json:"orders"`
	Total   int64             `json:"total"`
	HasNext bool              `json:"has_next"`
}

func (a *NykaaAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("from", req.Since.UTC().Format(time.RFC3339))
	q.Set("to", req.Until.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(req.PageNo))
	q.Set("per_page", strconv.Itoa(req.PageSize))

	res, err := a.deps.Gateway.Do(ctx, "NYKAA", http.MethodGet,
		a.baseURL+"/api/v2/orders?"+q.Encode(), nil, headers)
	if err != nil {
		return nil, err
	}

	var resp nykaaOrdersResponse
	if err := decodeBody(res, "NYKAA", &resp); err != nil {
		return nil, err
	}

	result := &integration.OrderPullResult{
		Orders:     make([]integration.ChannelOrder, 0, len(resp.Orders)),
		TotalCount: resp.Total,
		HasMore:    resp.HasNext,
		NextPageNo: req.PageNo + 1,
	}
	for _, raw := range resp.Orders {
		var o nykaaOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			a.log.Warn("skipping unparseable order", zap.Error(err))
			continue
		}
		result.Orders = append(result.Orders, a.normalizeOrder(&o, raw))
	}
	return result, nil
}

func (a *NykaaAdapter) normalizeOrder(o *nykaaOrder, raw json.RawMessage) integration.ChannelOrder {
	addr := integration.Address{
		Name:       o.Customer.Name,
		Phone:      o.Customer.Phone,
		Email:      o.Customer.Email,
		Line1:      o.Address.Line1,
		Line2:      o.Address.Line2,
		City:       o.Address.City,
		State:      o.Address.State,
		PostalCode: o.Address.Pincode,
		Country:    "India",
	}

	order := integration.ChannelOrder{
		ExternalOrderID: o.OrderID,
		ExternalOrderNo: o.OrderNo,
		ChannelCode:     integration.ChannelNykaa,
		OrderedAt:       ParseTime(o.OrderDate, time.RFC3339, "2006-01-02 15:04:05"),
		PaymentMode:     DetectPaymentMode(o.PaymentMode, nil),
		Customer: integration.Customer{
			Name:  o.Customer.Name,
			Email: o.Customer.Email,
			Phone: o.Customer.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingCharge:  ParseDecimal(o.Shipping),
		Status:          mapNykaaStatus(o.Status),
		RawData:         raw,
	}

	lineSum := decimal.Zero
	for _, it := range o.Items {
		qty := decimal.NewFromInt(it.Quantity)
		discount := ParseDecimal(it.Discount)
		taxable := ParseDecimal(it.Price).Mul(qty).Sub(discount)
		tax := ParseDecimal(it.Tax)
		item := integration.OrderItem{
			ExternalItemID: it.ItemID,
			SKU:            it.SKU,
			Name:           it.Name,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(it.Price),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       discount,
			Total:          taxable.Add(tax),
		}
		order.Items = append(order.Items, item)
		order.Subtotal = order.Subtotal.Add(item.TaxableValue)
		order.TaxAmount = order.TaxAmount.Add(item.TaxAmount)
		lineSum = lineSum.Add(item.Total)
	}
	order.TotalAmount = lineSum.Add(order.ShippingCharge)

	if order.PaymentMode == integration.PaymentModeCOD {
		order.PaymentStatus = integration.PaymentStatusPending
	} else {
		order.PaymentStatus = integration.PaymentStatusPaid
	}
	order.FulfillmentStatus = fulfillmentFor(order.Status)
	return order
}

func mapNykaaStatus(s string) integration.OrderStatus {
	switch s {
	case "NEW":
		return integration.OrderStatusPending
	case "CONFIRMED":
		return integration.OrderStatusConfirmed
	case "PACKED":
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

func (a *NykaaAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{
		"order_id": req.ExternalOrderID,
		"status":   string(req.Status),
		"courier":  req.CourierName,
		"awb":      req.TrackingNumber,
	})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "NYKAA", http.MethodPut,
		a.baseURL+"/api/v2/orders/status", body, headers)
	if err != nil {
		return err
	}
	return checkResult(res, "NYKAA")
}

func (a *NykaaAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*NykaaAdapter)(nil)
