package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/telemetry"
)

// TransporterBuilder constructs a carrier adapter from stored credentials.
type TransporterBuilder func(code integration.TransporterCode, creds integration.Credentials) (integration.Transporter, error)

// LabelStore archives shipping label PDFs. Carrier label URLs expire, so
// the copy kept here is what the warehouse reprints from.
type LabelStore interface {
	StoreLabel(ctx context.Context, awb string, pdf []byte) (string, error)
	LabelURL(ctx context.Context, awb string, expiresIn time.Duration) (string, time.Time, error)
	HasLabel(ctx context.Context, awb string) (bool, error)
	DeleteLabel(ctx context.Context, awb string) error
}

// maxLabelBytes caps a label download. Labels are one-page PDFs; anything
// bigger is a misbehaving carrier endpoint.
const maxLabelBytes = 5 << 20

// ShipmentService books shipments with carriers, records them and archives
// their labels.
type ShipmentService struct {
	build     TransporterBuilder
	creds     integration.CredentialRepository
	shipments integration.ShipmentRepository
	labels    LabelStore
	metrics   *telemetry.IntegrationMetrics
	log       *zap.Logger

	// fetchLabel downloads label bytes from a carrier URL. Swapped in tests.
	fetchLabel func(ctx context.Context, url string) ([]byte, error)
}

// NewShipmentService creates a ShipmentService.
func NewShipmentService(
	build TransporterBuilder,
	creds integration.CredentialRepository,
	shipments integration.ShipmentRepository,
	labels LabelStore,
	metrics *telemetry.IntegrationMetrics,
	log *zap.Logger,
) *ShipmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShipmentService{
		build:      build,
		creds:      creds,
		shipments:  shipments,
		labels:     labels,
		metrics:    metrics,
		log:        log,
		fetchLabel: downloadLabel,
	}
}

func (s *ShipmentService) transporter(ctx context.Context, code integration.TransporterCode) (integration.Transporter, error) {
	cred, err := s.creds.Get(ctx, integration.ProviderTypeTransporter, string(code))
	if err != nil {
		return nil, err
	}
	if !cred.Active {
		return nil, fmt.Errorf("%w: transporter %s is disabled", integration.ErrProviderNotConfigured, code)
	}
	return s.build(code, cred.Credentials)
}

// CreateShipment books a shipment, persists the record and archives the
// label when the carrier returned one. Label archival failure does not fail
// the booking; the label can be re-fetched later.
func (s *ShipmentService) CreateShipment(ctx context.Context, code integration.TransporterCode, req *integration.ShipmentRequest) (*integration.ShipmentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransporter, string(code),
		telemetry.SpanAttrOrderRef, req.OrderReference,
	)

	if err := req.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	carrier, err := s.transporter(ctx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := carrier.CreateShipment(ctx, req)
	s.metrics.RecordShipmentBooked(ctx, string(code), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrAWB, result.AWB)

	rec := &integration.ShipmentRecord{
		OrderReference: req.OrderReference,
		Transporter:    code,
		AWB:            result.AWB,
		ShipmentID:     result.ShipmentID,
		CourierName:    result.CourierName,
		Status:         integration.ShipmentStatusBooked,
	}
	if err := s.shipments.Create(ctx, rec); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if result.LabelURL != "" {
		if err := s.archiveLabel(ctx, result.AWB, result.LabelURL); err != nil {
			s.log.Warn("label archival failed",
				zap.String("transporter", string(code)),
				zap.String("awb", result.AWB),
				zap.Error(err),
			)
		}
	}

	s.log.Info("shipment booked",
		zap.String("transporter", string(code)),
		zap.String("order_ref", req.OrderReference),
		zap.String("awb", result.AWB),
		zap.String("courier", result.CourierName),
	)
	return result, nil
}

// archiveLabel downloads the carrier label and stores it under the AWB.
func (s *ShipmentService) archiveLabel(ctx context.Context, awb, labelURL string) error {
	pdf, err := s.fetchLabel(ctx, labelURL)
	if err != nil {
		return err
	}
	key, err := s.labels.StoreLabel(ctx, awb, pdf)
	if err != nil {
		return err
	}
	return s.shipments.SetLabelKey(ctx, awb, key)
}

// Label returns a download URL for the archived label, fetching and
// archiving it from the carrier first when missing.
func (s *ShipmentService) Label(ctx context.Context, awb string, expiresIn time.Duration) (string, time.Time, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "label")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAWB, awb)

	rec, err := s.shipments.GetByAWB(ctx, awb)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", time.Time{}, err
	}

	has, err := s.labels.HasLabel(ctx, awb)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", time.Time{}, err
	}
	if !has {
		carrier, err := s.transporter(ctx, rec.Transporter)
		if err != nil {
			telemetry.RecordError(span, err)
			return "", time.Time{}, err
		}
		labelURL, err := carrier.GenerateLabel(ctx, awb)
		if err != nil {
			telemetry.RecordError(span, err)
			return "", time.Time{}, err
		}
		if err := s.archiveLabel(ctx, awb, labelURL); err != nil {
			telemetry.RecordError(span, err)
			return "", time.Time{}, err
		}
	}

	return s.labels.LabelURL(ctx, awb, expiresIn)
}

// Track returns the carrier's scan events for an AWB and rolls the record
// forward when a terminal scan appears.
func (s *ShipmentService) Track(ctx context.Context, awb string) ([]integration.TrackingEvent, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "track")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAWB, awb)

	rec, err := s.shipments.GetByAWB(ctx, awb)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	carrier, err := s.transporter(ctx, rec.Transporter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	events, err := carrier.TrackShipment(ctx, awb)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if status, ok := statusFromEvents(events); ok && status != rec.Status {
		if err := s.shipments.UpdateStatus(ctx, awb, status); err != nil {
			s.log.Warn("failed to roll shipment status forward",
				zap.String("awb", awb),
				zap.Error(err),
			)
		}
	}
	return events, nil
}

// statusFromEvents derives the coarse record state from the newest scan.
func statusFromEvents(events []integration.TrackingEvent) (integration.ShipmentRecordStatus, bool) {
	if len(events) == 0 {
		return "", false
	}
	latest := strings.ToUpper(events[len(events)-1].Status)
	switch {
	case strings.Contains(latest, "DELIVERED"):
		return integration.ShipmentStatusDelivered, true
	case strings.Contains(latest, "RTO") || strings.Contains(latest, "RETURN"):
		return integration.ShipmentStatusRTO, true
	case strings.Contains(latest, "CANCEL"):
		return integration.ShipmentStatusCancelled, true
	default:
		return integration.ShipmentStatusInTransit, true
	}
}

// Cancel cancels a booked shipment with the carrier and marks the record.
// The archived label is removed so a stale label cannot be reprinted.
func (s *ShipmentService) Cancel(ctx context.Context, awb string) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "cancel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAWB, awb)

	rec, err := s.shipments.GetByAWB(ctx, awb)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if rec.Status == integration.ShipmentStatusCancelled {
		return nil
	}
	if rec.Status == integration.ShipmentStatusDelivered {
		err := fmt.Errorf("%w: shipment %s already delivered", integration.ErrCancellationFailed, awb)
		telemetry.RecordError(span, err)
		return err
	}

	carrier, err := s.transporter(ctx, rec.Transporter)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := carrier.CancelShipment(ctx, awb); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if err := s.shipments.UpdateStatus(ctx, awb, integration.ShipmentStatusCancelled); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := s.labels.DeleteLabel(ctx, awb); err != nil {
		s.log.Warn("failed to remove archived label",
			zap.String("awb", awb),
			zap.Error(err),
		)
	}
	return nil
}

// CheckServiceability asks a carrier whether it covers a lane.
func (s *ShipmentService) CheckServiceability(ctx context.Context, code integration.TransporterCode, req *integration.ServiceabilityRequest) (*integration.ServiceabilityResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "serviceability")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransporter, string(code),
		telemetry.SpanAttrPincode, req.DeliveryPincode,
	)

	carrier, err := s.transporter(ctx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return carrier.CheckServiceability(ctx, req)
}

// CalculateRates collects quotes from every requested carrier. Carriers
// that fail are skipped; an error is returned only when no carrier quoted.
func (s *ShipmentService) CalculateRates(ctx context.Context, codes []integration.TransporterCode, req *integration.RateRequest) ([]integration.RateQuote, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "rates")
	defer span.End()

	var quotes []integration.RateQuote
	var firstErr error
	for _, code := range codes {
		carrier, err := s.transporter(ctx, code)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cq, err := carrier.CalculateRates(ctx, req)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.log.Warn("rate quote failed",
				zap.String("transporter", string(code)),
				zap.Error(err),
			)
			continue
		}
		quotes = append(quotes, cq...)
	}

	if len(quotes) == 0 {
		if firstErr != nil {
			telemetry.RecordError(span, firstErr)
			return nil, firstErr
		}
		return nil, fmt.Errorf("%w: no rates available", integration.ErrPincodeNotServiceable)
	}
	return quotes, nil
}

// GenerateManifest closes a pickup manifest for carriers that support it.
func (s *ShipmentService) GenerateManifest(ctx context.Context, code integration.TransporterCode, awbs []string) (*integration.ManifestResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "shipment", "manifest")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrTransporter, string(code))

	carrier, err := s.transporter(ctx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	gen, ok := carrier.(integration.ManifestGenerator)
	if !ok {
		err := fmt.Errorf("%w: %s", integration.ErrManifestNotSupported, code)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return gen.GenerateManifest(ctx, awbs)
}

// ListByOrder returns the shipments booked for an OMS order.
func (s *ShipmentService) ListByOrder(ctx context.Context, orderRef string) ([]*integration.ShipmentRecord, error) {
	return s.shipments.ListByOrderRef(ctx, orderRef)
}

// downloadLabel fetches the label bytes from a carrier URL.
func downloadLabel(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build label request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download label: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("label download returned status %d", resp.StatusCode)
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxLabelBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read label body: %w", err)
	}
	if len(pdf) > maxLabelBytes {
		return nil, errors.New("label exceeds size limit")
	}
	if len(pdf) == 0 {
		return nil, errors.New("label body is empty")
	}
	return pdf, nil
}
