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

const myntraDefaultBaseURL = "https://api.myntrainfo.com"

// MyntraAdapter integrates the Myntra PPMP seller API. Auth is a static
// key/secret header pair; the order feed is one row per packed line.
//
// Credentials: apiKey, apiSecret, optional webhookSecret, optional baseUrl.
type MyntraAdapter struct {
	deps          Deps
	baseURL       string
	apiKey        string
	apiSecret     string
	webhookSecret string
	log           *zap.Logger
}

func newMyntra(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	apiKey, err := creds.Require("apiKey")
	if err != nil {
		return nil, err
	}
	apiSecret, err := creds.Require("apiSecret")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = myntraDefaultBaseURL
	}
	return &MyntraAdapter{
		deps:          deps,
		baseURL:       baseURL,
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		webhookSecret: creds.Get("webhookSecret"),
		log:           deps.Log.With(zap.String("channel", "MYNTRA")),
	}, nil
}

func (a *MyntraAdapter) Code() integration.ChannelCode { return integration.ChannelMyntra }
func (a *MyntraAdapter) Name() string                  { return integration.ChannelMyntra.DisplayName() }

func (a *MyntraAdapter) headers() map[string]string {
	return map[string]string{
		"x-api-key":    a.apiKey,
		"x-api-secret": a.apiSecret,
	}
}

func (a *MyntraAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "MYNTRA", http.MethodGet, a.baseURL+"/v1/ping", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "MYNTRA")
}

type myntraOrderLine struct {
	OrderID        string `json:"orderId"`
	OrderNo        string `json:"packetId"`
	CreatedOn      string `json:"createdOn"`
	PaymentMethod  string `json:"paymentMethod"`
	Status         string `json:"status"`
	LineID         string `json:"orderLineId"`
	SellerSKU      string `json:"sellerSkuCode"`
	StyleName      string `json:"styleName"`
	Quantity       int64  `json:"quantity"`
	UnitPrice      string `json:"unitPrice"`
	TaxAmount      string `json:"taxAmount"`
	Discount       string `json:"discount"`
	ShippingCharge string `json:"shippingCharge"`
	CODCharge      string `json:"codCharge"`
	Customer       struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"mobile"`
	} `json:"customer"`
	Address struct {
		Line1    string `json:"addressLine1"`
		Line2    string `json:"addressLine2"`
		Locality string `json:"locality"`
		City     string `json:"city"`
		State    string `json:"state"`
		Pincode  string `json:"pincode"`
	} `json:"shippingAddress"`
}

type myntraOrdersResponse struct {
	OrderLines []json.RawMessage `json:"orderLines"`
	TotalCount int64             `json:"totalCount"`
	HasMore    bool              `json:"hasMore"`
}

func (a *MyntraAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("from", req.Since.UTC().Format(time.RFC3339))
	q.Set("to", req.Until.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(req.PageNo))
	q.Set("size", strconv.Itoa(req.PageSize))

	res, err := a.deps.Gateway.Do(ctx, "MYNTRA", http.MethodGet,
		a.baseURL+"/v1/orders?"+q.Encode(), nil, a.headers())
	if err != nil {
		return nil, err
	}

	var resp myntraOrdersResponse
	if err := decodeBody(res, "MYNTRA", &resp); err != nil {
		return nil, err
	}

	lines := make([]RawLine, 0, len(resp.OrderLines))
	for _, raw := range resp.OrderLines {
		var line myntraOrderLine
		if err := json.Unmarshal(raw, &line); err != nil {
			a.log.Warn("skipping unparseable order line", zap.Error(err))
			continue
		}
		lines = append(lines, a.toRawLine(&line, raw))
	}

	return &integration.OrderPullResult{
		Orders:     GroupLines(integration.ChannelMyntra, lines),
		TotalCount: resp.TotalCount,
		HasMore:    resp.HasMore,
		NextPageNo: req.PageNo + 1,
	}, nil
}

func (a *MyntraAdapter) toRawLine(line *myntraOrderLine, raw json.RawMessage) RawLine {
	qty := decimal.NewFromInt(line.Quantity)
	discount := ParseDecimal(line.Discount)
	taxable := ParseDecimal(line.UnitPrice).Mul(qty).Sub(discount)
	tax := ParseDecimal(line.TaxAmount)

	addr := integration.Address{
		Name:       line.Customer.Name,
		Phone:      line.Customer.Phone,
		Email:      line.Customer.Email,
		Line1:      line.Address.Line1,
		Line2:      line.Address.Line2,
		Landmark:   line.Address.Locality,
		City:       line.Address.City,
		State:      line.Address.State,
		PostalCode: line.Address.Pincode,
		Country:    "India",
	}

	return RawLine{
		ExternalOrderID: line.OrderID,
		ExternalOrderNo: line.OrderNo,
		OrderedAt:       ParseTime(line.CreatedOn, time.RFC3339, "2006-01-02 15:04:05"),
		PaymentGateway:  line.PaymentMethod,
		Customer: integration.Customer{
			Name:  line.Customer.Name,
			Email: line.Customer.Email,
			Phone: line.Customer.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingCharge:  ParseDecimal(line.ShippingCharge),
		CODCharge:       ParseDecimal(line.CODCharge),
		Status:          mapMyntraStatus(line.Status),
		Item: integration.OrderItem{
			ExternalItemID: line.LineID,
			SKU:            line.SellerSKU,
			Name:           line.StyleName,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(line.UnitPrice),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       discount,
			Total:          taxable.Add(tax),
		},
		Raw: raw,
	}
}

func mapMyntraStatus(s string) integration.OrderStatus {
	switch s {
	case "WP": // waiting to be packed
		return integration.OrderStatusConfirmed
	case "PK":
		return integration.OrderStatusPacked
	case "SH":
		return integration.OrderStatusShipped
	case "DL":
		return integration.OrderStatusDelivered
	case "F", "C":
		return integration.OrderStatusCancelled
	case "RT":
		return integration.OrderStatusReturned
	default:
		return integration.OrderStatusPending
	}
}

func (a *MyntraAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Status != integration.OrderStatusShipped {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"orderId":        req.ExternalOrderID,
		"courier":        req.CourierName,
		"trackingNumber": req.TrackingNumber,
	})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "MYNTRA", http.MethodPost,
		a.baseURL+"/v1/orders/ship", body, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "MYNTRA")
}

func (a *MyntraAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*MyntraAdapter)(nil)
