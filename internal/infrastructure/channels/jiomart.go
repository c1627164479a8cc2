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

const jioMartDefaultBaseURL = "https://seller-api.jiomart.com"

// JioMartAdapter integrates the JioMart seller API. Auth is OAuth2
// client-credentials; the order feed is one row per fulfillment line.
//
// Credentials: clientId, clientSecret, optional webhookSecret, optional
// baseUrl/tokenUrl overrides.
type JioMartAdapter struct {
	deps          Deps
	baseURL       string
	webhookSecret string
	fetchToken    cache.FetchFunc
	log           *zap.Logger
}

func newJioMart(creds integration.Credentials, deps Deps) (integration.Channel, error) {
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
		baseURL = jioMartDefaultBaseURL
	}
	tokenURL := creds.Get("tokenUrl")
	if tokenURL == "" {
		tokenURL = baseURL + "/oauth2/token"
	}
	return &JioMartAdapter{
		deps:          deps,
		baseURL:       baseURL,
		webhookSecret: creds.Get("webhookSecret"),
		fetchToken:    clientCredentialsFetch(deps.Gateway, "JIOMART", tokenURL, clientID, clientSecret),
		log:           deps.Log.With(zap.String("channel", "JIOMART")),
	}, nil
}

func (a *JioMartAdapter) Code() integration.ChannelCode { return integration.ChannelJioMart }
func (a *JioMartAdapter) Name() string                  { return integration.ChannelJioMart.DisplayName() }

func (a *JioMartAdapter) Authenticate(ctx context.Context) error {
	_, err := a.deps.Tokens.Token(ctx, "JIOMART", a.fetchToken)
	return err
}

func (a *JioMartAdapter) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := a.deps.Tokens.Token(ctx, "JIOMART", a.fetchToken)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

type jioMartLine struct {
	OrderID     string `json:"order_id"`
	OrderDate   string `json:"order_date"`
	PaymentType string `json:"payment_type"`
	Status      string `json:"status"`
	LineID      string `json:"line_id"`
	SKU         string `json:"seller_sku"`
	Name        string `json:"item_name"`
	Quantity    int64  `json:"qty"`
	Price       string `json:"unit_price"`
	Tax         string `json:"tax_amount"`
	Discount    string `json:"discount_amount"`
	Shipping    string `json:"shipping_fee"`
	CODFee      string `json:"cod_fee"`
	Consignee   struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Line1   string `json:"address_line_1"`
		Line2   string `json:"address_line_2"`
		City    string `json:"city"`
		State   string `json:"state"`
		Pincode string `json:"pincode"`
	} `json:"consignee"`
}

type jioMartOrdersResponse struct {
	Lines   []json.RawMessage `json:"order_lines"`
	Total   int64             `json:"total_count"`
	HasMore bool              `json:"has_more"`
}

func (a *JioMartAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"from_date": req.Since.UTC().Format(time.RFC3339),
		"to_date":   req.Until.UTC().Format(time.RFC3339),
		"page":      req.PageNo,
		"page_size": req.PageSize,
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "JIOMART", http.MethodPost,
		a.baseURL+"/api/v1/orders/list", body, headers)
	if err != nil {
		return nil, err
	}

	var resp jioMartOrdersResponse
	if err := decodeBody(res, "JIOMART", &resp); err != nil {
		return nil, err
	}

	lines := make([]RawLine, 0, len(resp.Lines))
	for _, raw := range resp.Lines {
		var line jioMartLine
		if err := json.Unmarshal(raw, &line); err != nil {
			a.log.Warn("skipping unparseable order line", zap.Error(err))
			continue
		}
		lines = append(lines, a.toRawLine(&line, raw))
	}

	return &integration.OrderPullResult{
		Orders:     GroupLines(integration.ChannelJioMart, lines),
		TotalCount: resp.Total,
		HasMore:    resp.HasMore,
		NextPageNo: req.PageNo + 1,
	}, nil
}

func (a *JioMartAdapter) toRawLine(line *jioMartLine, raw json.RawMessage) RawLine {
	qty := decimal.NewFromInt(line.Quantity)
	discount := ParseDecimal(line.Discount)
	taxable := ParseDecimal(line.Price).Mul(qty).Sub(discount)
	tax := ParseDecimal(line.Tax)

	addr := integration.Address{
		Name:       line.Consignee.Name,
		Phone:      line.Consignee.Phone,
		Line1:      line.Consignee.Line1,
		Line2:      line.Consignee.Line2,
		City:       line.Consignee.City,
		State:      line.Consignee.State,
		PostalCode: line.Consignee.Pincode,
		Country:    "India",
	}

	return RawLine{
		ExternalOrderID: line.OrderID,
		ExternalOrderNo: line.OrderID,
		OrderedAt:       ParseTime(line.OrderDate, time.RFC3339, "2006-01-02 15:04:05"),
		PaymentGateway:  line.PaymentType,
		Customer: integration.Customer{
			Name:  line.Consignee.Name,
			Phone: line.Consignee.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingCharge:  ParseDecimal(line.Shipping),
		CODCharge:       ParseDecimal(line.CODFee),
		Status:          mapJioMartStatus(line.Status),
		Item: integration.OrderItem{
			ExternalItemID: line.LineID,
			SKU:            line.SKU,
			Name:           line.Name,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(line.Price),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Discount:       discount,
			Total:          taxable.Add(tax),
		},
		Raw: raw,
	}
}

func mapJioMartStatus(s string) integration.OrderStatus {
	switch s {
	case "CREATED":
		return integration.OrderStatusPending
	case "ACKNOWLEDGED":
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

func (a *JioMartAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
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
	res, err := a.deps.Gateway.Do(ctx, "JIOMART", http.MethodPost,
		a.baseURL+"/api/v1/orders/status", body, headers)
	if err != nil {
		return err
	}
	return checkResult(res, "JIOMART")
}

func (a *JioMartAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*JioMartAdapter)(nil)
