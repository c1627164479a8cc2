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
)

const tataCliqDefaultBaseURL = "https://seller.tatacliq.com"

// TataCliqAdapter integrates the Tata Cliq seller API. Auth is a static API
// key header; orders arrive fully nested.
//
// Credentials: apiKey, optional webhookSecret, optional baseUrl.
type TataCliqAdapter struct {
	deps          Deps
	baseURL       string
	apiKey        string
	webhookSecret string
	log           *zap.Logger
}

func newTataCliq(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	apiKey, err := creds.Require("apiKey")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = tataCliqDefaultBaseURL
	}
	return &TataCliqAdapter{
		deps:          deps,
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: creds.Get("webhookSecret"),
		log:           deps.Log.With(zap.String("channel", "TATACLIQ")),
	}, nil
}

func (a *TataCliqAdapter) Code() integration.ChannelCode { return integration.ChannelTataCliq }
func (a *TataCliqAdapter) Name() string                  { return integration.ChannelTataCliq.DisplayName() }

func (a *TataCliqAdapter) headers() map[string]string {
	return map[string]string{"ApiKey": a.apiKey}
}

func (a *TataCliqAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "TATACLIQ", http.MethodGet,
		a.baseURL+"/api/v1/seller/profile", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "TATACLIQ")
}

type tataCliqOrder struct {
	OrderID        string `json:"orderId"`
	DisplayID      string `json:"displayOrderId"`
	OrderDate      string `json:"orderDate"`
	PaymentMethod  string `json:"paymentMethod"`
	Status         string `json:"orderStatus"`
	DeliveryCharge string `json:"deliveryCharge"`
	Buyer          struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"mobileNumber"`
	} `json:"buyer"`
	DeliveryAddress struct {
		Line1    string `json:"line1"`
		Line2    string `json:"line2"`
		Landmark string `json:"landmark"`
		City     string `json:"city"`
		State    string `json:"state"`
		Pincode  string `json:"pincode"`
	} `json:"deliveryAddress"`
	OrderLines []struct {
		LineID   string `json:"orderLineId"`
		SKU      string `json:"sellerArticleSku"`
		Name     string `json:"productName"`
		Quantity int64  `json:"quantity"`
		Price    string `json:"sellingPrice"`
		Tax      string `json:"taxAmount"`
		Discount string `json:"discount"`
	} `json:"orderLines"`
}

type tataCliqOrdersResponse struct {
	Orders     []json.RawMessage `json:"orders"`
	TotalCount int64             `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
}

func (a *TataCliqAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("fromDate", req.Since.UTC().Format(time.RFC3339))
	q.Set("toDate", req.Until.UTC().Format(time.RFC3339))
	q.Set("pageNumber", strconv.Itoa(req.PageNo))
	q.Set("pageSize", strconv.Itoa(req.PageSize))

	res, err := a.deps.Gateway.Do(ctx, "TATACLIQ", http.MethodGet,
		a.baseURL+"/api/v1/orders?"+q.Encode(), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp tataCliqOrdersResponse
	if err := decodeBody(res, "TATACLIQ", &resp); err != nil {
		return nil, err
	}

	result := &integration.OrderPullResult{
		Orders:     make([]integration.ChannelOrder, 0, len(resp.Orders)),
		TotalCount: resp.TotalCount,
		HasMore:    resp.HasMore,
		NextPageNo: req.PageNo + 1,
	}
	for _, raw := range resp.Orders {
		var o tataCliqOrder
		if err := json.Unmarshal(raw, &o); err != nil {
			a.log.Warn("skipping unparseable order", zap.Error(err))
			continue
		}
		result.Orders = append(result.Orders, a.normalizeOrder(&o, raw))
	}
	return result, nil
}

func (a *TataCliqAdapter) normalizeOrder(o *tataCliqOrder, raw json.RawMessage) integration.ChannelOrder {
	addr := integration.Address{
		Name:       o.Buyer.Name,
		Phone:      o.Buyer.Phone,
		Email:      o.Buyer.Email,
		Line1:      o.DeliveryAddress.Line1,
		Line2:      o.DeliveryAddress.Line2,
		Landmark:   o.DeliveryAddress.Landmark,
		City:       o.DeliveryAddress.City,
		State:      o.DeliveryAddress.State,
		PostalCode: o.DeliveryAddress.Pincode,
		Country:    "India",
	}

	order := integration.ChannelOrder{
		ExternalOrderID: o.OrderID,
		ExternalOrderNo: o.DisplayID,
		ChannelCode:     integration.ChannelTataCliq,
		OrderedAt:       ParseTime(o.OrderDate, time.RFC3339, "2006-01-02 15:04:05"),
		PaymentMode:     DetectPaymentMode(o.PaymentMethod, nil),
		Customer: integration.Customer{
			Name:  o.Buyer.Name,
			Email: o.Buyer.Email,
			Phone: o.Buyer.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingCharge:  ParseDecimal(o.DeliveryCharge),
		Status:          mapTataCliqStatus(o.Status),
		RawData:         raw,
	}

	lineSum := decimal.Zero
	for _, it := range o.OrderLines {
		qty := decimal.NewFromInt(it.Quantity)
		discount := ParseDecimal(it.Discount)
		taxable := ParseDecimal(it.Price).Mul(qty).Sub(discount)
		tax := ParseDecimal(it.Tax)
		item := integration.OrderItem{
			ExternalItemID: it.LineID,
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

func mapTataCliqStatus(s string) integration.OrderStatus {
	switch s {
	case "ORDER_PLACED":
		return integration.OrderStatusPending
	case "ORDER_CONFIRMED":
		return integration.OrderStatusConfirmed
	case "PACKED", "READY_FOR_DISPATCH":
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

func (a *TataCliqAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{
		"orderId":        req.ExternalOrderID,
		"status":         string(req.Status),
		"courierName":    req.CourierName,
		"trackingNumber": req.TrackingNumber,
	})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "TATACLIQ", http.MethodPut,
		a.baseURL+"/api/v1/orders/status", body, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "TATACLIQ")
}

func (a *TataCliqAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*TataCliqAdapter)(nil)
