package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/persistence/models"
)

// GormShipmentRepository implements the integration.ShipmentRepository interface
type GormShipmentRepository struct {
	db *gorm.DB
}

// NewGormShipmentRepository creates a new shipment repository
func NewGormShipmentRepository(db *gorm.DB) *GormShipmentRepository {
	return &GormShipmentRepository{db: db}
}

var _ integration.ShipmentRepository = (*GormShipmentRepository)(nil)

// Create persists a newly booked shipment.
func (r *GormShipmentRepository) Create(ctx context.Context, rec *integration.ShipmentRecord) error {
	if rec.AWB == "" {
		return fmt.Errorf("%w: awb is required", integration.ErrShipmentCreateFailed)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	model := models.ShipmentRecordModelFromDomain(rec)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create shipment record %s: %w", rec.AWB, err)
	}
	return nil
}

// UpdateStatus moves the shipment identified by AWB to a new state.
func (r *GormShipmentRepository) UpdateStatus(ctx context.Context, awb string, status integration.ShipmentRecordStatus) error {
	return r.updateByAWB(ctx, awb, map[string]any{"status": string(status)})
}

// SetLabelKey records where the archived label lives.
func (r *GormShipmentRepository) SetLabelKey(ctx context.Context, awb, key string) error {
	return r.updateByAWB(ctx, awb, map[string]any{"label_key": key})
}

func (r *GormShipmentRepository) updateByAWB(ctx context.Context, awb string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.ShipmentRecordModel{}).
		Where("awb = ?", awb).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update shipment %s: %w", awb, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: awb %s", integration.ErrShipmentNotFound, awb)
	}
	return nil
}

// GetByAWB returns the shipment record for an AWB.
func (r *GormShipmentRepository) GetByAWB(ctx context.Context, awb string) (*integration.ShipmentRecord, error) {
	var model models.ShipmentRecordModel
	err := r.db.WithContext(ctx).Where("awb = ?", awb).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: awb %s", integration.ErrShipmentNotFound, awb)
		}
		return nil, fmt.Errorf("failed to load shipment %s: %w", awb, err)
	}
	return model.ToDomain(), nil
}

// ListByOrderRef returns all shipments booked for an OMS order, newest first.
func (r *GormShipmentRepository) ListByOrderRef(ctx context.Context, orderRef string) ([]*integration.ShipmentRecord, error) {
	var rows []models.ShipmentRecordModel
	err := r.db.WithContext(ctx).
		Where("order_reference = ?", orderRef).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments for order %s: %w", orderRef, err)
	}

	recs := make([]*integration.ShipmentRecord, 0, len(rows))
	for i := range rows {
		recs = append(recs, rows[i].ToDomain())
	}
	return recs, nil
}
