package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
)

const ajioDefaultBaseURL = "https://seller-api.ajio.com"

// AjioAdapter integrates the AJIO seller API. Every request body is signed
// with a hex HMAC-SHA256 sent in the X-Ajio-Signature header alongside the
// static API key. Orders arrive one row per line.
//
// Credentials: apiKey, signingSecret, optional webhookSecret, optional
// baseUrl.
type AjioAdapter struct {
	deps          Deps
	baseURL       string
	apiKey        string
	signingSecret string
	webhookSecret string
	log           *zap.Logger
}

func newAjio(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	apiKey, err := creds.Require("apiKey")
	if err != nil {
		return nil, err
	}
	signingSecret, err := creds.Require("signingSecret")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = ajioDefaultBaseURL
	}
	return &AjioAdapter{
		deps:          deps,
		baseURL:       baseURL,
		apiKey:        apiKey,
		signingSecret: signingSecret,
		webhookSecret: creds.Get("webhookSecret"),
		log:           deps.Log.With(zap.String("channel", "AJIO")),
	}, nil
}

func (a *AjioAdapter) Code() integration.ChannelCode { return integration.ChannelAjio }
func (a *AjioAdapter) Name() string                  { return integration.ChannelAjio.DisplayName() }

// signedHeaders signs the request body so AJIO can verify origin.
func (a *AjioAdapter) signedHeaders(body []byte) map[string]string {
	return map[string]string{
		"X-Ajio-Api-Key":   a.apiKey,
		"X-Ajio-Signature": SignHMACHex(a.signingSecret, body),
	}
}

func (a *AjioAdapter) Authenticate(ctx context.Context) error {
	body := []byte(`{}`)
	res, err := a.deps.Gateway.Do(ctx, "AJIO", http.MethodPost,
		a.baseURL+"/api/v1/seller/verify", body, a.signedHeaders(body))
	if err != nil {
		return err
	}
	return checkResult(res, "AJIO")
}

type ajioOrderRow struct {
	OrderID     string `json:"orderId"`
	OrderNo     string `json:"orderNo"`
	OrderDate   string `json:"orderDate"`
	PaymentMode string `json:"paymentMode"`
	Status      string `json:"orderStatus"`
	LineID      string `json:"lineId"`
	EAN         string `json:"sellerSku"`
	ProductName string `json:"productName"`
	Quantity    int64  `json:"qty"`
	MRP         string `json:"unitSellingPrice"`
	Tax         string `json:"taxValue"`
	Discount    string `json:"discountValue"`
	Shipping    string `json:"shippingCharges"`
	Consignee   struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Street  string `json:"street"`
		Street2 string `json:"street2"`
		City    string `json:"city"`
		State   string `json:"state"`
		Pincode string `json:"pincode"`
	} `json:"consignee"`
}

type ajioOrdersResponse struct {
	Rows       []json.RawMessage `json:"orders"`
	TotalCount int64             `json:"total"`
	HasNext    bool              `json:"hasNext"`
}

func (a *AjioAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"fromDate": req.Since.UTC().Format(time.RFC3339),
		"toDate":   req.Until.UTC().Format(time.RFC3339),
		"page":     req.PageNo,
		"pageSize": req.PageSize,
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "AJIO", http.MethodPost,
		a.baseURL+"/api/v1/orders/search", body, a.signedHeaders(body))
	if err != nil {
		return nil, err
	}

	var resp ajioOrdersResponse
	if err := decodeBody(res, "AJIO", &resp); err != nil {
		return nil, err
	}

	lines := make([]RawLine, 0, len(resp.Rows))
	for _, raw := range resp.Rows {
		var row ajioOrderRow
		if err := json.Unmarshal(raw, &row); err != nil {
			a.log.Warn("skipping unparseable order row", zap.Error(err))
			continue
		}
		lines = append(lines, a.toRawLine(&row, raw))
	}

	return &integration.OrderPullResult{
		Orders:     GroupLines(integration.ChannelAjio, lines),
		TotalCount: resp.TotalCount,
		HasMore:    resp.HasNext,
		NextPageNo: req.PageNo + 1,
	}, nil
}

func (a *AjioAdapter) toRawLine(row *ajioOrderRow, raw json.RawMessage) RawLine {
	qty := decimal.NewFromInt(row.Quantity)
	discount := ParseDecimal(row.Discount)
	taxable := ParseDecimal(row.MRP).Mul(qty).Sub(discount)
	tax := ParseDecimal(row.Tax)

	addr := integration.Address{
		Name:       row.Consignee.Name,
		Phone:      row.Consignee.Phone,
		Line1:      row.Consignee.Street,
		Line2:      row.Consignee.Street2,
		City:       row.Consignee.City,
		State:      row.Consignee.State,
		PostalCode: row.Consignee.Pincode,
		Country:    "India",
	}

	return RawLine{
		ExternalOrderID: row.OrderID,
		ExternalOrderNo: row.OrderNo,
		OrderedAt:       ParseTime(row.OrderDate, time.RFC3339, "2006-01-02 15:04:05"),
		PaymentGateway:  row.PaymentMode,
		Customer: integration.Customer{
			Name:  row.Consignee.Name,
			Phone: row.Consignee.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingCharge:  ParseDecimal(row.Shipping),
		Status:          mapAjioStatus(row.Status),
		Item: integration.OrderItem{
			ExternalItemID: row.LineID,
			SKU:            row.EAN,
			Name:           row.ProductName,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(row.MRP),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       discount,
			Total:          taxable.Add(tax),
		},
		Raw: raw,
	}
}

func mapAjioStatus(s string) integration.OrderStatus {
	switch s {
	case "CREATED":
		return integration.OrderStatusPending
	case "ACKNOWLEDGED":
		return integration.OrderStatusConfirmed
	case "PACKED":
		return integration.OrderStatusPacked
	case "SHIPPED", "IN_TRANSIT":
		return integration.OrderStatusShipped
	case "DELIVERED":
		return integration.OrderStatusDelivered
	case "CANCELLED":
		return integration.OrderStatusCancelled
	case "RETURN_INITIATED", "RETURNED":
		return integration.OrderStatusReturned
	default:
		return integration.OrderStatusPending
	}
}

func (a *AjioAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	payload := map[string]string{
		"orderId": req.ExternalOrderID,
		"status":  string(req.Status),
	}
	if req.Status == integration.OrderStatusShipped {
		payload["courier"] = req.CourierName
		payload["awb"] = req.TrackingNumber
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "AJIO", http.MethodPost,
		a.baseURL+"/api/v1/orders/status", body, a.signedHeaders(body))
	if err != nil {
		return err
	}
	return checkResult(res, "AJIO")
}

func (a *AjioAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*AjioAdapter)(nil)
