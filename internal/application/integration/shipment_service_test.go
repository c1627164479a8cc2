package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/storage"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeShipmentRepo struct {
	recs map[string]*integration.ShipmentRecord
}

func newFakeShipmentRepo() *fakeShipmentRepo {
	return &fakeShipmentRepo{recs: make(map[string]*integration.ShipmentRecord)}
}

func (r *fakeShipmentRepo) Create(_ context.Context, rec *integration.ShipmentRecord) error {
	r.recs[rec.AWB] = rec
	return nil
}

func (r *fakeShipmentRepo) UpdateStatus(_ context.Context, awb string, status integration.ShipmentRecordStatus) error {
	rec, ok := r.recs[awb]
	if !ok {
		return integration.ErrShipmentNotFound
	}
	rec.Status = status
	return nil
}

func (r *fakeShipmentRepo) SetLabelKey(_ context.Context, awb, key string) error {
	rec, ok := r.recs[awb]
	if !ok {
		return integration.ErrShipmentNotFound
	}
	rec.LabelKey = key
	return nil
}

func (r *fakeShipmentRepo) GetByAWB(_ context.Context, awb string) (*integration.ShipmentRecord, error) {
	rec, ok := r.recs[awb]
	if !ok {
		return nil, fmt.Errorf("%w: awb %s", integration.ErrShipmentNotFound, awb)
	}
	return rec, nil
}

func (r *fakeShipmentRepo) ListByOrderRef(_ context.Context, orderRef string) ([]*integration.ShipmentRecord, error) {
	var out []*integration.ShipmentRecord
	for _, rec := range r.recs {
		if rec.OrderReference == orderRef {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fakeTransporter returns scripted responses; fakeManifester adds the
// manifest capability on top.
type fakeTransporter struct {
	code integration.TransporterCode

	createResult *integration.ShipmentResult
	createErr    error
	events       []integration.TrackingEvent
	trackErr     error
	cancelErr    error
	quotes       []integration.RateQuote
	ratesErr     error
	labelURL     string

	cancelled []string
}

func (f *fakeTransporter) Code() integration.TransporterCode { return f.code }
func (f *fakeTransporter) Name() string                      { return f.code.DisplayName() }
func (f *fakeTransporter) Authenticate(context.Context) error {
	return nil
}

func (f *fakeTransporter) CreateShipment(_ context.Context, _ *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResult, nil
}

func (f *fakeTransporter) TrackShipment(_ context.Context, _ string) ([]integration.TrackingEvent, error) {
	return f.events, f.trackErr
}

func (f *fakeTransporter) CancelShipment(_ context.Context, awb string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, awb)
	return nil
}

func (f *fakeTransporter) CheckServiceability(_ context.Context, _ *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	return &integration.ServiceabilityResult{Serviceable: true, CODAvailable: true, EstimatedDays: 3}, nil
}

func (f *fakeTransporter) CalculateRates(_ context.Context, _ *integration.RateRequest) ([]integration.RateQuote, error) {
	return f.quotes, f.ratesErr
}

func (f *fakeTransporter) GenerateLabel(_ context.Context, _ string) (string, error) {
	if f.labelURL == "" {
		return "", errors.New("no label")
	}
	return f.labelURL, nil
}

var _ integration.Transporter = (*fakeTransporter)(nil)

type fakeManifester struct {
	fakeTransporter
	manifest *integration.ManifestResult
}

func (f *fakeManifester) GenerateManifest(_ context.Context, awbs []string) (*integration.ManifestResult, error) {
	f.manifest.AWBs = awbs
	return f.manifest, nil
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type shipmentFixture struct {
	svc      *ShipmentService
	creds    *fakeCredRepo
	repo     *fakeShipmentRepo
	labels   *storage.MemoryLabelStore
	carriers map[integration.TransporterCode]integration.Transporter
}

func newShipmentFixture(t *testing.T, carriers ...integration.Transporter) *shipmentFixture {
	t.Helper()
	f := &shipmentFixture{
		creds:    newFakeCredRepo(),
		repo:     newFakeShipmentRepo(),
		labels:   storage.NewMemoryLabelStore(),
		carriers: make(map[integration.TransporterCode]integration.Transporter),
	}
	for _, carrier := range carriers {
		f.carriers[carrier.Code()] = carrier
		require.NoError(t, f.creds.Save(context.Background(), &integration.ProviderCredential{
			Type:        integration.ProviderTypeTransporter,
			Code:        string(carrier.Code()),
			Credentials: integration.Credentials{"apiKey": "k"},
			Active:      true,
		}))
	}

	build := func(code integration.TransporterCode, _ integration.Credentials) (integration.Transporter, error) {
		carrier, ok := f.carriers[code]
		if !ok {
			return nil, integration.ErrUnknownTransporter
		}
		return carrier, nil
	}
	f.svc = NewShipmentService(build, f.creds, f.repo, f.labels, nil, zap.NewNop())
	f.svc.fetchLabel = func(_ context.Context, url string) ([]byte, error) {
		return []byte("%PDF-1.4 label for " + url), nil
	}
	return f
}

func testShipmentRequest() *integration.ShipmentRequest {
	return &integration.ShipmentRequest{
		OrderReference: "OMS-1001",
		InvoiceNo:      "INV-1001",
		InvoiceValue:   decimal.NewFromInt(1499),
		Pickup:         integration.Address{Name: "Warehouse", PostalCode: "110001"},
		Delivery:       integration.Address{Name: "Buyer", PostalCode: "560001"},
		Package: integration.Package{
			LengthCM: decimal.NewFromInt(20),
			WidthCM:  decimal.NewFromInt(15),
			HeightCM: decimal.NewFromInt(10),
			WeightKG: decimal.NewFromFloat(0.5),
		},
		PaymentMode: integration.PaymentModePrepaid,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateShipment_RecordsAndArchivesLabel(t *testing.T) {
	carrier := &fakeTransporter{
		code: integration.TransporterDelhivery,
		createResult: &integration.ShipmentResult{
			AWB:         "DL123456789",
			ShipmentID:  "ship_1",
			CourierName: "Delhivery Surface",
			LabelURL:    "https://cdn.delhivery.test/labels/DL123456789.pdf",
		},
	}
	f := newShipmentFixture(t, carrier)

	result, err := f.svc.CreateShipment(context.Background(), integration.TransporterDelhivery, testShipmentRequest())
	require.NoError(t, err)
	assert.Equal(t, "DL123456789", result.AWB)

	rec, err := f.repo.GetByAWB(context.Background(), "DL123456789")
	require.NoError(t, err)
	assert.Equal(t, integration.ShipmentStatusBooked, rec.Status)
	assert.Equal(t, "OMS-1001", rec.OrderReference)
	assert.NotEmpty(t, rec.LabelKey)

	pdf, ok := f.labels.Label("DL123456789")
	require.True(t, ok)
	assert.Contains(t, string(pdf), "%PDF")
}

func TestCreateShipment_ArchivalFailureDoesNotFailBooking(t *testing.T) {
	carrier := &fakeTransporter{
		code: integration.TransporterEkart,
		createResult: &integration.ShipmentResult{
			AWB:      "EK001",
			LabelURL: "https://ekart.test/label.pdf",
		},
	}
	f := newShipmentFixture(t, carrier)
	f.svc.fetchLabel = func(context.Context, string) ([]byte, error) {
		return nil, errors.New("label endpoint timed out")
	}

	_, err := f.svc.CreateShipment(context.Background(), integration.TransporterEkart, testShipmentRequest())
	require.NoError(t, err)

	rec, err := f.repo.GetByAWB(context.Background(), "EK001")
	require.NoError(t, err)
	assert.Empty(t, rec.LabelKey)
}

func TestCreateShipment_CarrierFailure(t *testing.T) {
	carrier := &fakeTransporter{
		code:      integration.TransporterBlueDart,
		createErr: fmt.Errorf("%w: pincode blocked", integration.ErrShipmentCreateFailed),
	}
	f := newShipmentFixture(t, carrier)

	_, err := f.svc.CreateShipment(context.Background(), integration.TransporterBlueDart, testShipmentRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrShipmentCreateFailed)
	assert.Empty(t, f.repo.recs)
}

func TestCreateShipment_RejectsInvalidRequest(t *testing.T) {
	carrier := &fakeTransporter{code: integration.TransporterDelhivery}
	f := newShipmentFixture(t, carrier)

	req := testShipmentRequest()
	req.PaymentMode = integration.PaymentModeCOD // COD without an amount

	_, err := f.svc.CreateShipment(context.Background(), integration.TransporterDelhivery, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COD amount")
}

func TestCreateShipment_UnconfiguredTransporter(t *testing.T) {
	f := newShipmentFixture(t)

	_, err := f.svc.CreateShipment(context.Background(), integration.TransporterDTDC, testShipmentRequest())
	assert.ErrorIs(t, err, integration.ErrProviderNotConfigured)
}

func TestLabel_FetchesFromCarrierWhenMissing(t *testing.T) {
	carrier := &fakeTransporter{
		code:     integration.TransporterShiprocket,
		labelURL: "https://shiprocket.test/labels/SR001.pdf",
	}
	f := newShipmentFixture(t, carrier)
	require.NoError(t, f.repo.Create(context.Background(), &integration.ShipmentRecord{
		AWB:         "SR001",
		Transporter: integration.TransporterShiprocket,
		Status:      integration.ShipmentStatusBooked,
	}))

	url, expires, err := f.svc.Label(context.Background(), "SR001", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "SR001")
	assert.True(t, expires.After(time.Now()))

	_, ok := f.labels.Label("SR001")
	assert.True(t, ok)
}

func TestLabel_UnknownAWB(t *testing.T) {
	f := newShipmentFixture(t)

	_, _, err := f.svc.Label(context.Background(), "NOPE", time.Hour)
	assert.ErrorIs(t, err, integration.ErrShipmentNotFound)
}

func TestTrack_RollsRecordForward(t *testing.T) {
	carrier := &fakeTransporter{
		code: integration.TransporterDelhivery,
		events: []integration.TrackingEvent{
			{Status: "Picked Up", Timestamp: time.Now().Add(-48 * time.Hour)},
			{Status: "In Transit", Timestamp: time.Now().Add(-24 * time.Hour)},
			{Status: "Delivered", Timestamp: time.Now()},
		},
	}
	f := newShipmentFixture(t, carrier)
	require.NoError(t, f.repo.Create(context.Background(), &integration.ShipmentRecord{
		AWB:         "DL777",
		Transporter: integration.TransporterDelhivery,
		Status:      integration.ShipmentStatusInTransit,
	}))

	events, err := f.svc.Track(context.Background(), "DL777")
	require.NoError(t, err)
	assert.Len(t, events, 3)

	rec, err := f.repo.GetByAWB(context.Background(), "DL777")
	require.NoError(t, err)
	assert.Equal(t, integration.ShipmentStatusDelivered, rec.Status)
}

func TestTrack_RTOScan(t *testing.T) {
	carrier := &fakeTransporter{
		code: integration.TransporterXpressbees,
		events: []integration.TrackingEvent{
			{Status: "Out For Delivery"},
			{Status: "RTO Initiated"},
		},
	}
	f := newShipmentFixture(t, carrier)
	require.NoError(t, f.repo.Create(context.Background(), &integration.ShipmentRecord{
		AWB:         "XB1",
		Transporter: integration.TransporterXpressbees,
		Status:      integration.ShipmentStatusInTransit,
	}))

	_, err := f.svc.Track(context.Background(), "XB1")
	require.NoError(t, err)

	rec, err := f.repo.GetByAWB(context.Background(), "XB1")
	require.NoError(t, err)
	assert.Equal(t, integration.ShipmentStatusRTO, rec.Status)
}

func TestCancel(t *testing.T) {
	carrier := &fakeTransporter{code: integration.TransporterShadowfax}
	f := newShipmentFixture(t, carrier)
	require.NoError(t, f.repo.Create(context.Background(), &integration.ShipmentRecord{
		AWB:         "SF1",
		Transporter: integration.TransporterShadowfax,
		Status:      integration.ShipmentStatusBooked,
	}))
	_, err := f.labels.StoreLabel(context.Background(), "SF1", []byte("%PDF"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Cancel(context.Background(), "SF1"))

	rec, err := f.repo.GetByAWB(context.Background(), "SF1")
	require.NoError(t, err)
	assert.Equal(t, integration.ShipmentStatusCancelled, rec.Status)
	assert.Equal(t, []string{"SF1"}, carrier.cancelled)

	// Stale label is gone.
	_, ok := f.labels.Label("SF1")
	assert.False(t, ok)

	// Cancelling again is a no-op, not a second carrier call.
	require.NoError(t, f.svc.Cancel(context.Background(), "SF1"))
	assert.Len(t, carrier.cancelled, 1)
}

func TestCancel_DeliveredShipment(t *testing.T) {
	carrier := &fakeTransporter{code: integration.TransporterDTDC}
	f := newShipmentFixture(t, carrier)
	require.NoError(t, f.repo.Create(context.Background(), &integration.ShipmentRecord{
		AWB:         "DT1",
		Transporter: integration.TransporterDTDC,
		Status:      integration.ShipmentStatusDelivered,
	}))

	err := f.svc.Cancel(context.Background(), "DT1")
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrCancellationFailed)
	assert.Empty(t, carrier.cancelled)
}

func TestCalculateRates_SkipsFailingCarriers(t *testing.T) {
	quoting := &fakeTransporter{
		code: integration.TransporterDelhivery,
		quotes: []integration.RateQuote{
			{CourierName: "Delhivery Surface", Amount: decimal.NewFromInt(62), EstimatedDays: 4},
		},
	}
	failing := &fakeTransporter{
		code:     integration.TransporterBlueDart,
		ratesErr: fmt.Errorf("%w: rate API down", integration.ErrProviderUnavailable),
	}
	f := newShipmentFixture(t, quoting, failing)

	quotes, err := f.svc.CalculateRates(context.Background(),
		[]integration.TransporterCode{integration.TransporterBlueDart, integration.TransporterDelhivery},
		&integration.RateRequest{
			PickupPincode:   "110001",
			DeliveryPincode: "560001",
			PaymentMode:     integration.PaymentModePrepaid,
		})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "Delhivery Surface", quotes[0].CourierName)
}

func TestCalculateRates_AllCarriersFail(t *testing.T) {
	failing := &fakeTransporter{
		code:     integration.TransporterEkart,
		ratesErr: fmt.Errorf("%w: rate API down", integration.ErrProviderUnavailable),
	}
	f := newShipmentFixture(t, failing)

	_, err := f.svc.CalculateRates(context.Background(),
		[]integration.TransporterCode{integration.TransporterEkart},
		&integration.RateRequest{PickupPincode: "110001", DeliveryPincode: "560001"})
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrProviderUnavailable)
}

func TestGenerateManifest(t *testing.T) {
	carrier := &fakeManifester{
		fakeTransporter: fakeTransporter{code: integration.TransporterShiprocket},
		manifest: &integration.ManifestResult{
			ManifestID:  "MAN-1",
			ManifestURL: "https://shiprocket.test/manifests/MAN-1.pdf",
			GeneratedAt: time.Now(),
		},
	}
	f := newShipmentFixture(t, carrier)

	result, err := f.svc.GenerateManifest(context.Background(), integration.TransporterShiprocket, []string{"SR1", "SR2"})
	require.NoError(t, err)
	assert.Equal(t, "MAN-1", result.ManifestID)
	assert.Equal(t, []string{"SR1", "SR2"}, result.AWBs)
}

func TestGenerateManifest_NotSupported(t *testing.T) {
	carrier := &fakeTransporter{code: integration.TransporterShadowfax}
	f := newShipmentFixture(t, carrier)

	_, err := f.svc.GenerateManifest(context.Background(), integration.TransporterShadowfax, []string{"SF1"})
	assert.ErrorIs(t, err, integration.ErrManifestNotSupported)
}

func TestCheckServiceability(t *testing.T) {
	carrier := &fakeTransporter{code: integration.TransporterEcomExpress}
	f := newShipmentFixture(t, carrier)

	result, err := f.svc.CheckServiceability(context.Background(), integration.TransporterEcomExpress,
		&integration.ServiceabilityRequest{PickupPincode: "110001", DeliveryPincode: "560001"})
	require.NoError(t, err)
	assert.True(t, result.Serviceable)
	assert.Equal(t, 3, result.EstimatedDays)
}
