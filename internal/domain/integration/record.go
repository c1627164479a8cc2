package integration

import (
	"time"

	"github.com/google/uuid"
)

// ShipmentRecordStatus is the lifecycle state of a booked shipment as the
// OMS tracks it. Carrier scan statuses map onto these coarse states.
type ShipmentRecordStatus string

const (
	ShipmentStatusBooked    ShipmentRecordStatus = "BOOKED"
	ShipmentStatusInTransit ShipmentRecordStatus = "IN_TRANSIT"
	ShipmentStatusDelivered ShipmentRecordStatus = "DELIVERED"
	ShipmentStatusRTO       ShipmentRecordStatus = "RTO"
	ShipmentStatusCancelled ShipmentRecordStatus = "CANCELLED"
)

// ShipmentRecord is the persisted outcome of booking a shipment with a
// transporter.
type ShipmentRecord struct {
	ID             uuid.UUID
	OrderReference string
	Transporter    TransporterCode

	AWB         string
	ShipmentID  string
	CourierName string

	Status ShipmentRecordStatus
	// LabelKey is the object storage key of the archived label, empty until
	// the label has been fetched and stored.
	LabelKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}
