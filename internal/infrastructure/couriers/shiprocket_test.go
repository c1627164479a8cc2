package couriers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oms/backend/internal/domain/integration"
)

func shipmentRequestFixture() *integration.ShipmentRequest {
	return &integration.ShipmentRequest{
		OrderReference: "OMS-1001",
		InvoiceNo:      "INV-1001",
		InvoiceValue:   decimal.NewFromInt(1299),
		Pickup: integration.Address{
			Name: "Acme Warehouse", Phone: "9800000000",
			Line1: "Plot 7, Industrial Area", City: "Gurugram",
			State: "Haryana", PostalCode: "122001", Country: "India",
		},
		Delivery: integration.Address{
			Name: "Asha Rao", Phone: "9876543210",
			Line1: "12 MG Road", City: "Bengaluru",
			State: "Karnataka", PostalCode: "560001", Country: "India",
		},
		Package: integration.Package{
			LengthCM: decimal.NewFromInt(30),
			WidthCM:  decimal.NewFromInt(20),
			HeightCM: decimal.NewFromInt(10),
			WeightKG: decimal.NewFromFloat(0.5),
		},
		Items: []integration.OrderItem{{
			SKU: "TSHIRT-M", Name: "Cotton T-Shirt",
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: decimal.NewFromInt(1299),
		}},
		PaymentMode: integration.PaymentModeCOD,
		CODAmount:   decimal.NewFromInt(1299),
	}
}

func newShiprocketTestServer(t *testing.T, loginCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/external/auth/login":
			loginCalls.Add(1)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ops@example.com", body["email"])
			_, _ = w.Write([]byte(`{"token":"sr-bearer"}`))
		case "/v1/external/shipments/create/forward-shipment":
			assert.Equal(t, "Bearer sr-bearer", r.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "OMS-1001", body["order_id"])
			assert.Equal(t, "COD", body["payment_method"])
			_, _ = w.Write([]byte(`{"payload":{"awb_code":"SR123456","shipment_id":777,"courier_name":"Xpressbees Surface","label_url":"https://labels.example.com/SR123456.pdf"}}`))
		case "/v1/external/courier/track/awb/SR123456":
			assert.Equal(t, "Bearer sr-bearer", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"tracking_data":{"shipment_track":[{"activities":[
				{"date":"2026-02-11 09:00:00","status":"Picked Up","activity":"Shipment picked up","location":"Gurugram_Hub","sr-status":"6"},
				{"date":"2026-02-12 18:30:00","status":"In Transit","activity":"Arrived at hub","location":"Bengaluru_Hub","sr-status":"18"}
			]}]}}`))
		case "/v1/external/courier/serviceability/":
			_, _ = w.Write([]byte(`{"data":{"available_courier_companies":[
				{"courier_name":"Delhivery Surface","rate":92.5,"cod_charges":30,"cod":1,"estimated_delivery_days":"4"},
				{"courier_name":"Xpressbees Surface","rate":88,"cod_charges":25,"cod":0,"estimated_delivery_days":"3-5"}
			]}}`))
		case "/v1/external/orders/cancel/shipment/awbs":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"message":"cancelled"}`))
		case "/v1/external/manifests/generate":
			_, _ = w.Write([]byte(`{"manifest_id":"MF-42","manifest_url":"https://manifests.example.com/MF-42.pdf"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newShiprocketForTest(t *testing.T, baseURL string) integration.Transporter {
	t.Helper()
	tr, err := New(integration.TransporterShiprocket, integration.Credentials{
		"email":    "ops@example.com",
		"password": "secret",
		"baseUrl":  baseURL,
	}, testDeps())
	require.NoError(t, err)
	return tr
}

func TestShiprocket_CreateShipment(t *testing.T) {
	var loginCalls atomic.Int32
	srv := newShiprocketTestServer(t, &loginCalls)
	defer srv.Close()

	tr := newShiprocketForTest(t, srv.URL)
	res, err := tr.CreateShipment(context.Background(), shipmentRequestFixture())
	require.NoError(t, err)

	assert.Equal(t, "SR123456", res.AWB)
	assert.Equal(t, "777", res.ShipmentID)
	assert.Equal(t, "Xpressbees Surface", res.CourierName)
	assert.NotEmpty(t, res.LabelURL)
	assert.Equal(t, int32(1), loginCalls.Load())
}

func TestShiprocket_LoginCachedAcrossCalls(t *testing.T) {
	var loginCalls atomic.Int32
	srv := newShiprocketTestServer(t, &loginCalls)
	defer srv.Close()

	tr := newShiprocketForTest(t, srv.URL)
	require.NoError(t, tr.Authenticate(context.Background()))

	_, err := tr.CreateShipment(context.Background(), shipmentRequestFixture())
	require.NoError(t, err)
	_, err = tr.TrackShipment(context.Background(), "SR123456")
	require.NoError(t, err)

	assert.Equal(t, int32(1), loginCalls.Load())
}

func TestShiprocket_TrackShipment(t *testing.T) {
	var loginCalls atomic.Int32
	srv := newShiprocketTestServer(t, &loginCalls)
	defer srv.Close()

	tr := newShiprocketForTest(t, srv.URL)
	events, err := tr.TrackShipment(context.Background(), "SR123456")
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Carrier order is preserved, oldest first.
	assert.Equal(t, "Picked Up", events[0].Status)
	assert.Equal(t, "6", events[0].StatusCode)
	assert.Equal(t, "Gurugram_Hub", events[0].Location)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, "In Transit", events[1].Status)
}

func TestShiprocket_ServiceabilityAndRates(t *testing.T) {
	var loginCalls atomic.Int32
	srv := newShiprocketTestServer(t, &loginCalls)
	defer srv.Close()

	tr := newShiprocketForTest(t, srv.URL)

	sv, err := tr.CheckServiceability(context.Background(), &integration.ServiceabilityRequest{
		PickupPincode:   "122001",
		DeliveryPincode: "560001",
		CODAmount:       decimal.NewFromInt(1299),
		WeightKG:        decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)
	assert.True(t, sv.Serviceable)
	assert.True(t, sv.CODAvailable)
	assert.Equal(t, 3, sv.EstimatedDays)

	quotes, err := tr.CalculateRates(context.Background(), &integration.RateRequest{
		PickupPincode:   "122001",
		DeliveryPincode: "560001",
		Package:         shipmentRequestFixture().Package,
		PaymentMode:     integration.PaymentModeCOD,
		CODAmount:       decimal.NewFromInt(1299),
	})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "Delhivery Surface", quotes[0].CourierName)
	assert.True(t, quotes[0].Amount.Equal(decimal.NewFromFloat(92.5)))
	assert.Equal(t, 4, quotes[0].EstimatedDays)
}

func TestShiprocket_CancelAndManifest(t *testing.T) {
	var loginCalls atomic.Int32
	srv := newShiprocketTestServer(t, &loginCalls)
	defer srv.Close()

	tr := newShiprocketForTest(t, srv.URL)
	require.NoError(t, tr.CancelShipment(context.Background(), "SR123456"))

	mg, ok := tr.(integration.ManifestGenerator)
	require.True(t, ok)
	manifest, err := mg.GenerateManifest(context.Background(), []string{"SR123456"})
	require.NoError(t, err)
	assert.Equal(t, "MF-42", manifest.ManifestID)
	assert.Equal(t, []string{"SR123456"}, manifest.AWBs)
}

func TestShiprocket_InvalidRequestRejectedLocally(t *testing.T) {
	tr := newShiprocketForTest(t, "http://unused")

	req := shipmentRequestFixture()
	req.CODAmount = decimal.Zero
	_, err := tr.CreateShipment(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COD amount")

	_, err = tr.TrackShipment(context.Background(), "")
	require.ErrorIs(t, err, integration.ErrShipmentNotFound)
}
