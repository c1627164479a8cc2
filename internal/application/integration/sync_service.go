// Package integration contains the application services that drive the
// marketplace and carrier integrations: windowed order sync, shipment
// booking and the status pushes back to the channels.
package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/telemetry"
)

// ChannelBuilder constructs a channel adapter from stored credentials. The
// composition root closes this over the adapter factory and its gateway.
type ChannelBuilder func(code integration.ChannelCode, creds integration.Credentials) (integration.Channel, error)

// OrderSink receives each normalized order pulled during a sync run. The
// OMS order pipeline sits behind this; a failed ingest counts against the
// run without stopping it.
type OrderSink interface {
	Ingest(ctx context.Context, order *integration.ChannelOrder) error
}

// OrderSinkFunc adapts a function to the OrderSink interface.
type OrderSinkFunc func(ctx context.Context, order *integration.ChannelOrder) error

func (f OrderSinkFunc) Ingest(ctx context.Context, order *integration.ChannelOrder) error {
	return f(ctx, order)
}

// SyncConfig tunes the order sync windows.
type SyncConfig struct {
	// PageSize is the page size requested from channels.
	PageSize int
	// LookbackSlop is subtracted from the cursor so orders that landed just
	// before the previous window closed are not missed.
	LookbackSlop time.Duration
	// InitialWindow bounds the first pull of a channel that has never
	// synced cleanly.
	InitialWindow time.Duration
}

func (c *SyncConfig) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.LookbackSlop <= 0 {
		c.LookbackSlop = 5 * time.Minute
	}
	if c.InitialWindow <= 0 {
		c.InitialWindow = 24 * time.Hour
	}
}

// OrderSyncService pulls orders from configured channels in windowed pages
// and records every run. A run that loses some orders but lands others
// finishes PARTIAL; the cursor only advances on full success, so the next
// window re-covers what was missed.
type OrderSyncService struct {
	build   ChannelBuilder
	creds   integration.CredentialRepository
	runs    integration.SyncRunRepository
	sink    OrderSink
	metrics *telemetry.IntegrationMetrics
	log     *zap.Logger
	cfg     SyncConfig

	now func() time.Time
}

// NewOrderSyncService creates an OrderSyncService.
func NewOrderSyncService(
	build ChannelBuilder,
	creds integration.CredentialRepository,
	runs integration.SyncRunRepository,
	sink OrderSink,
	metrics *telemetry.IntegrationMetrics,
	log *zap.Logger,
	cfg SyncConfig,
) *OrderSyncService {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderSyncService{
		build:   build,
		creds:   creds,
		runs:    runs,
		sink:    sink,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SyncAll runs one sync pass over every active channel. Per-channel
// failures are recorded on their runs and do not stop the pass.
func (s *OrderSyncService) SyncAll(ctx context.Context) ([]*integration.SyncRun, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_sync", "sync_all")
	defer span.End()

	stored, err := s.creds.List(ctx, integration.ProviderTypeChannel)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list channel credentials: %w", err)
	}

	runs := make([]*integration.SyncRun, 0, len(stored))
	for _, cred := range stored {
		if !cred.Active {
			continue
		}
		run, err := s.SyncChannel(ctx, integration.ChannelCode(cred.Code))
		if err != nil {
			s.log.Warn("channel sync failed",
				zap.String("channel", cred.Code),
				zap.Error(err),
			)
		}
		if run != nil {
			runs = append(runs, run)
		}
		if ctx.Err() != nil {
			return runs, ctx.Err()
		}
	}
	return runs, nil
}

// SyncChannel pulls one window of orders from a single channel and records
// the run. The returned run is non-nil whenever a run record was created,
// even if the run failed.
func (s *OrderSyncService) SyncChannel(ctx context.Context, code integration.ChannelCode) (*integration.SyncRun, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_sync", "sync_channel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrChannel, string(code))

	cred, err := s.creds.Get(ctx, integration.ProviderTypeChannel, string(code))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !cred.Active {
		err := fmt.Errorf("%w: channel %s is disabled", integration.ErrProviderNotConfigured, code)
		telemetry.RecordError(span, err)
		return nil, err
	}

	channel, err := s.build(code, cred.Credentials)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	since, until, err := s.window(ctx, code)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrSinceTime, since.Format(time.RFC3339))

	run := &integration.SyncRun{
		Channel:   code,
		Since:     since,
		Until:     until,
		StartedAt: s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	pullErr := s.pull(ctx, channel, run)

	run.Finish(s.now(), pullErr)
	if err := s.runs.Finish(ctx, run); err != nil {
		s.log.Error("failed to record sync run outcome",
			zap.String("channel", string(code)),
			zap.Error(err),
		)
	}
	s.metrics.RecordSyncRun(ctx, string(code), string(run.Status), run.Pulled, run.Failed, run.Duration())

	s.log.Info("channel sync finished",
		zap.String("channel", string(code)),
		zap.String("status", string(run.Status)),
		zap.Int("pulled", run.Pulled),
		zap.Int("failed", run.Failed),
		zap.Duration("duration", run.Duration()),
	)

	if pullErr != nil {
		telemetry.RecordError(span, pullErr)
		return run, pullErr
	}
	return run, nil
}

// pull walks the channel's pages for the run window, feeding each order to
// the sink. Page fetch errors abort the walk; per-order ingest errors only
// count against the run.
func (s *OrderSyncService) pull(ctx context.Context, channel integration.Channel, run *integration.SyncRun) error {
	page := 1
	for {
		req := &integration.OrderPullRequest{
			Since:    run.Since,
			Until:    run.Until,
			PageNo:   page,
			PageSize: s.cfg.PageSize,
		}
		result, err := channel.PullOrders(ctx, req)
		if err != nil {
			run.Failed++
			if run.Error == "" {
				run.Error = fmt.Sprintf("page %d: %v", page, err)
			}
			return fmt.Errorf("pull page %d from %s: %w", page, run.Channel, err)
		}

		for i := range result.Orders {
			order := &result.Orders[i]
			if err := s.sink.Ingest(ctx, order); err != nil {
				run.Failed++
				if run.Error == "" {
					run.Error = fmt.Sprintf("order %s: %v", order.ExternalOrderID, err)
				}
				s.log.Warn("order ingest failed",
					zap.String("channel", string(run.Channel)),
					zap.String("external_order_id", order.ExternalOrderID),
					zap.Error(err),
				)
				continue
			}
			run.Pulled++
		}

		if !result.HasMore {
			return nil
		}
		page = result.NextPageNo
		if page <= 0 {
			page = req.PageNo + 1
		}
	}
}

// window computes the next pull window from the channel's cursor.
func (s *OrderSyncService) window(ctx context.Context, code integration.ChannelCode) (time.Time, time.Time, error) {
	until := s.now()
	cursor, err := s.runs.LastSuccessFor(ctx, code)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if cursor == nil {
		return until.Add(-s.cfg.InitialWindow), until, nil
	}
	since := cursor.Add(-s.cfg.LookbackSlop)
	if since.After(until) {
		since = until.Add(-s.cfg.LookbackSlop)
	}
	return since, until, nil
}

// PushStatusUpdate reflects a local order state change back to the channel,
// typically a shipping confirmation with tracking details.
func (s *OrderSyncService) PushStatusUpdate(ctx context.Context, code integration.ChannelCode, req *integration.StatusUpdateRequest) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_sync", "push_status_update")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrChannel, string(code),
		telemetry.SpanAttrOrderID, req.ExternalOrderID,
	)

	if err := req.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	cred, err := s.creds.Get(ctx, integration.ProviderTypeChannel, string(code))
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	channel, err := s.build(code, cred.Credentials)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if err := channel.UpdateOrderStatus(ctx, req); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// VerifyWebhook checks a channel's signature over the raw payload. A
// channel without stored credentials rejects everything.
func (s *OrderSyncService) VerifyWebhook(ctx context.Context, code integration.ChannelCode, payload []byte, signature string) (bool, error) {
	cred, err := s.creds.Get(ctx, integration.ProviderTypeChannel, string(code))
	if err != nil {
		if errors.Is(err, integration.ErrProviderNotConfigured) {
			s.metrics.RecordWebhook(ctx, string(code), false)
			return false, nil
		}
		return false, err
	}
	channel, err := s.build(code, cred.Credentials)
	if err != nil {
		return false, err
	}
	ok := channel.VerifyWebhook(payload, signature)
	s.metrics.RecordWebhook(ctx, string(code), ok)
	return ok, nil
}

// RecentRuns returns the latest sync runs for a channel, newest first.
func (s *OrderSyncService) RecentRuns(ctx context.Context, code integration.ChannelCode, limit int) ([]*integration.SyncRun, error) {
	return s.runs.ListRecent(ctx, code, limit)
}
