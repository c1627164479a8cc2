package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/oms/backend/internal/domain/integration"
)

// ProviderCredentialModel stores one provider's credential set. The secret
// map is kept only as a vault ciphertext; plaintext never touches the row.
type ProviderCredentialModel struct {
	BaseModel
	ProviderType string `gorm:"type:varchar(16);not null;uniqueIndex:idx_provider_credentials_provider,priority:1"`
	ProviderCode string `gorm:"type:varchar(32);not null;uniqueIndex:idx_provider_credentials_provider,priority:2"`
	Ciphertext   string `gorm:"type:text;not null"`
	Active       bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for ProviderCredentialModel
func (ProviderCredentialModel) TableName() string {
	return "provider_credentials"
}

// SyncRunModel records one order sync run.
type SyncRunModel struct {
	ID      uuid.UUID `gorm:"type:uuid;primary_key"`
	Channel string    `gorm:"type:varchar(32);not null;index:idx_sync_runs_channel_status"`
	SinceAt time.Time `gorm:"not null"`
	UntilAt time.Time `gorm:"not null"`

	Pulled int    `gorm:"not null;default:0"`
	Failed int    `gorm:"not null;default:0"`
	Status string `gorm:"type:varchar(16);not null;index:idx_sync_runs_channel_status"`
	Error  string `gorm:"type:text"`

	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt *time.Time
}

// TableName returns the table name for SyncRunModel
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts SyncRunModel to a domain SyncRun
func (m *SyncRunModel) ToDomain() *integration.SyncRun {
	return &integration.SyncRun{
		ID:         m.ID,
		Channel:    integration.ChannelCode(m.Channel),
		Since:      m.SinceAt,
		Until:      m.UntilAt,
		Pulled:     m.Pulled,
		Failed:     m.Failed,
		Status:     integration.SyncStatus(m.Status),
		Error:      m.Error,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// SyncRunModelFromDomain converts a domain SyncRun to SyncRunModel
func SyncRunModelFromDomain(r *integration.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		ID:         r.ID,
		Channel:    string(r.Channel),
		SinceAt:    r.Since,
		UntilAt:    r.Until,
		Pulled:     r.Pulled,
		Failed:     r.Failed,
		Status:     string(r.Status),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// ShipmentRecordModel records a shipment booked with a transporter.
type ShipmentRecordModel struct {
	BaseModel
	OrderReference string `gorm:"type:varchar(64);not null;index"`
	Transporter    string `gorm:"type:varchar(32);not null"`

	AWB         string `gorm:"type:varchar(64);not null;uniqueIndex"`
	ShipmentID  string `gorm:"type:varchar(64)"`
	CourierName string `gorm:"type:varchar(128)"`

	Status   string `gorm:"type:varchar(16);not null;index"`
	LabelKey string `gorm:"type:varchar(256)"`
}

// TableName returns the table name for ShipmentRecordModel
func (ShipmentRecordModel) TableName() string {
	return "shipment_records"
}

// ToDomain converts ShipmentRecordModel to a domain ShipmentRecord
func (m *ShipmentRecordModel) ToDomain() *integration.ShipmentRecord {
	return &integration.ShipmentRecord{
		ID:             m.ID,
		OrderReference: m.OrderReference,
		Transporter:    integration.TransporterCode(m.Transporter),
		AWB:            m.AWB,
		ShipmentID:     m.ShipmentID,
		CourierName:    m.CourierName,
		Status:         integration.ShipmentRecordStatus(m.Status),
		LabelKey:       m.LabelKey,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ShipmentRecordModelFromDomain converts a domain ShipmentRecord to ShipmentRecordModel
func ShipmentRecordModelFromDomain(r *integration.ShipmentRecord) *ShipmentRecordModel {
	return &ShipmentRecordModel{
		BaseModel: BaseModel{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		OrderReference: r.OrderReference,
		Transporter:    string(r.Transporter),
		AWB:            r.AWB,
		ShipmentID:     r.ShipmentID,
		CourierName:    r.CourierName,
		Status:         string(r.Status),
		LabelKey:       r.LabelKey,
	}
}
