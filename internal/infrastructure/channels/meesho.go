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

const meeshoDefaultBaseURL = "https://supplier-api.meesho.com"

// MeeshoAdapter integrates the Meesho supplier API. Auth is a static token
// header. Nearly every Meesho order is COD; the payment-type field still
// decides, with tags as fallback.
//
// Credentials: token, optional webhookSecret, optional baseUrl.
type MeeshoAdapter struct {
	deps          Deps
	baseURL       string
	token         string
	webhookSecret string
	log           *zap.Logger
}

func newMeesho(creds integration.Credentials, deps Deps) (integration.Channel, error) {
	token, err := creds.Require("token")
	if err != nil {
		return nil, err
	}
	baseURL := creds.Get("baseUrl")
	if baseURL == "" {
		baseURL = meeshoDefaultBaseURL
	}
	return &MeeshoAdapter{
		deps:          deps,
		baseURL:       baseURL,
		token:         token,
		webhookSecret: creds.Get("webhookSecret"),
		log:           deps.Log.With(zap.String("channel", "MEESHO")),
	}, nil
}

func (a *MeeshoAdapter) Code() integration.ChannelCode { return integration.ChannelMeesho }
func (a *MeeshoAdapter) Name() string                  { return integration.ChannelMeesho.DisplayName() }

func (a *MeeshoAdapter) headers() map[string]string {
	return map[string]string{"Authorization": a.token}
}

func (a *MeeshoAdapter) Authenticate(ctx context.Context) error {
	res, err := a.deps.Gateway.Do(ctx, "MEESHO", http.MethodGet,
		a.baseURL+"/api/v1/supplier/me", nil, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "MEESHO")
}

type meeshoSubOrder struct {
	SubOrderNum     string `json:"sub_order_num"`
	OrderNum        string `json:"order_num"`
	CreatedISO      string `json:"created_iso"`
	PaymentType     string `json:"payment_type"`
	Status          string `json:"sub_order_status"`
	SKU             string `json:"sku"`
	ProductName     string `json:"product_name"`
	Quantity        int64  `json:"quantity"`
	SupplierPrice   string `json:"supplier_price"`
	GSTAmount       string `json:"gst_amount"`
	CustomerDetails struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		City    string `json:"city"`
		State   string `json:"state"`
		Pin     string `json:"pin"`
		Phone   string `json:"contact_no"`
	} `json:"customer_details"`
}

type meeshoOrdersResponse struct {
	SubOrders []json.RawMessage `json:"sub_orders"`
	Total     int64             `json:"total"`
	HasNext   bool              `json:"has_next"`
}

func (a *MeeshoAdapter) PullOrders(ctx context.Context, req *integration.OrderPullRequest) (*integration.OrderPullResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"start_date": req.Since.UTC().Format("2006-01-02"),
		"end_date":   req.Until.UTC().Format("2006-01-02"),
		"page":       req.PageNo,
		"limit":      req.PageSize,
	})
	if err != nil {
		return nil, err
	}

	res, err := a.deps.Gateway.Do(ctx, "MEESHO", http.MethodPost,
		a.baseURL+"/api/v1/orders", body, a.headers())
	if err != nil {
		return nil, err
	}

	var resp meeshoOrdersResponse
	if err := decodeBody(res, "MEESHO", &resp); err != nil {
		return nil, err
	}

	lines := make([]RawLine, 0, len(resp.SubOrders))
	for _, raw := range resp.SubOrders {
		var so meeshoSubOrder
		if err := json.Unmarshal(raw, &so); err != nil {
			a.log.Warn("skipping unparseable sub-order", zap.Error(err))
			continue
		}
		lines = append(lines, a.toRawLine(&so, raw))
	}

	return &integration.OrderPullResult{
		Orders:     GroupLines(integration.ChannelMeesho, lines),
		TotalCount: resp.Total,
		HasMore:    resp.HasNext,
		NextPageNo: req.PageNo + 1,
	}, nil
}

func (a *MeeshoAdapter) toRawLine(so *meeshoSubOrder, raw json.RawMessage) RawLine {
	qty := decimal.NewFromInt(so.Quantity)
	taxable := ParseDecimal(so.SupplierPrice).Mul(qty)
	tax := ParseDecimal(so.GSTAmount)

	addr := integration.Address{
		Name:       so.CustomerDetails.Name,
		Phone:      so.CustomerDetails.Phone,
		Line1:      so.CustomerDetails.Address,
		City:       so.CustomerDetails.City,
		State:      so.CustomerDetails.State,
		PostalCode: so.CustomerDetails.Pin,
		Country:    "India",
	}

	return RawLine{
		ExternalOrderID: so.OrderNum,
		ExternalOrderNo: so.OrderNum,
		OrderedAt:       ParseTime(so.CreatedISO, time.RFC3339),
		PaymentGateway:  so.PaymentType,
		Customer: integration.Customer{
			Name:  so.CustomerDetails.Name,
			Phone: so.CustomerDetails.Phone,
		},
		ShippingAddress: addr,
		BillingAddress:  addr,
		Status:          mapMeeshoStatus(so.Status),
		Item: integration.OrderItem{
			ExternalItemID: so.SubOrderNum,
			SKU:            so.SKU,
			Name:           so.ProductName,
			Quantity:       qty,
			UnitPrice:      ParseDecimal(so.SupplierPrice),
			TaxableValue:   taxable,
			TaxAmount:      tax,
			Total:          taxable.Add(tax),
		},
		Raw: raw,
	}
}

func mapMeeshoStatus(s string) integration.OrderStatus {
	switch s {
	case "PENDING":
		return integration.OrderStatusPending
	case "ACCEPTED":
		return integration.OrderStatusConfirmed
	case "READY_TO_SHIP":
		return integration.OrderStatusPacked
	case "SHIPPED":
		return integration.OrderStatusShipped
	case "DELIVERED":
		return integration.OrderStatusDelivered
	case "CANCELLED":
		return integration.OrderStatusCancelled
	case "RTO", "RETURN":
		return integration.OrderStatusReturned
	default:
		return integration.OrderStatusPending
	}
}

func (a *MeeshoAdapter) UpdateOrderStatus(ctx context.Context, req *integration.StatusUpdateRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Status != integration.OrderStatusShipped && req.Status != integration.OrderStatusPacked {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"order_num": req.ExternalOrderID,
		"status":    string(req.Status),
		"courier":   req.CourierName,
		"awb":       req.TrackingNumber,
	})
	if err != nil {
		return err
	}
	res, err := a.deps.Gateway.Do(ctx, "MEESHO", http.MethodPost,
		a.baseURL+"/api/v1/orders/status", body, a.headers())
	if err != nil {
		return err
	}
	return checkResult(res, "MEESHO")
}

func (a *MeeshoAdapter) VerifyWebhook(payload []byte, signature string) bool {
	return VerifyHMACHex(a.webhookSecret, payload, signature)
}

var _ integration.Channel = (*MeeshoAdapter)(nil)
