package integration

import (
	"context"
	"time"
)

// ProviderType distinguishes the two kinds of integrated providers.
type ProviderType string

const (
	ProviderTypeChannel     ProviderType = "CHANNEL"
	ProviderTypeTransporter ProviderType = "TRANSPORTER"
)

// ProviderCredential is one provider's stored credential set. The secrets
// live encrypted at rest; only the repository decrypts them.
type ProviderCredential struct {
	Type ProviderType
	Code string

	Credentials Credentials
	// Active gates whether the provider participates in sync and booking.
	Active bool

	UpdatedAt time.Time
}

// CredentialRepository stores provider credentials encrypted at rest.
type CredentialRepository interface {
	// Save upserts the credential set for (type, code).
	Save(ctx context.Context, cred *ProviderCredential) error

	// Get returns the decrypted credential set.
	// Returns ErrProviderNotConfigured when absent.
	Get(ctx context.Context, typ ProviderType, code string) (*ProviderCredential, error)

	// List returns all credentials of the given type, decrypted.
	List(ctx context.Context, typ ProviderType) ([]*ProviderCredential, error)

	// Delete removes the credential set.
	// Returns ErrProviderNotConfigured when absent.
	Delete(ctx context.Context, typ ProviderType, code string) error
}

// SyncRunRepository records order sync runs.
type SyncRunRepository interface {
	// Create persists a newly started run.
	Create(ctx context.Context, run *SyncRun) error

	// Finish persists the outcome of a run created earlier.
	Finish(ctx context.Context, run *SyncRun) error

	// ListRecent returns the latest runs for a channel, newest first.
	ListRecent(ctx context.Context, channel ChannelCode, limit int) ([]*SyncRun, error)

	// LastSuccessFor returns the Until of the channel's most recent
	// successful run, used as the cursor for the next window. Partial runs
	// do not advance the cursor. Returns nil when the channel has never
	// synced cleanly.
	LastSuccessFor(ctx context.Context, channel ChannelCode) (*time.Time, error)
}

// ShipmentRepository records booked shipments.
type ShipmentRepository interface {
	Create(ctx context.Context, rec *ShipmentRecord) error

	// UpdateStatus moves the shipment identified by AWB to a new state.
	// Returns ErrShipmentNotFound when no such AWB exists.
	UpdateStatus(ctx context.Context, awb string, status ShipmentRecordStatus) error

	// SetLabelKey records where the archived label lives.
	SetLabelKey(ctx context.Context, awb, key string) error

	// GetByAWB returns the shipment record for an AWB.
	// Returns ErrShipmentNotFound when absent.
	GetByAWB(ctx context.Context, awb string) (*ShipmentRecord, error)

	// ListByOrderRef returns all shipments booked for an OMS order.
	ListByOrderRef(ctx context.Context, orderRef string) ([]*ShipmentRecord, error)
}
