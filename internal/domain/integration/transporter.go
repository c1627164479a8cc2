package integration

import "context"

// ---------------------------------------------------------------------------
// TransporterCode represents a logistics carrier
// ---------------------------------------------------------------------------

// TransporterCode identifies a courier integration.
type TransporterCode string

const (
	TransporterShiprocket  TransporterCode = "SHIPROCKET"
	TransporterDelhivery   TransporterCode = "DELHIVERY"
	TransporterBlueDart    TransporterCode = "BLUEDART"
	TransporterEkart       TransporterCode = "EKART"
	TransporterShadowfax   TransporterCode = "SHADOWFAX"
	TransporterDTDC        TransporterCode = "DTDC"
	TransporterEcomExpress TransporterCode = "ECOM_EXPRESS"
	TransporterXpressbees  TransporterCode = "XPRESSBEES"
)

// AllTransporters lists every supported transporter code.
func AllTransporters() []TransporterCode {
	return []TransporterCode{
		TransporterShiprocket, TransporterDelhivery, TransporterBlueDart,
		TransporterEkart, TransporterShadowfax, TransporterDTDC,
		TransporterEcomExpress, TransporterXpressbees,
	}
}

// IsValid returns true if the transporter code is supported.
func (c TransporterCode) IsValid() bool {
	switch c {
	case TransporterShiprocket, TransporterDelhivery, TransporterBlueDart,
		TransporterEkart, TransporterShadowfax, TransporterDTDC,
		TransporterEcomExpress, TransporterXpressbees:
		return true
	default:
		return false
	}
}

// String returns the string representation of the transporter code.
func (c TransporterCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the transporter.
func (c TransporterCode) DisplayName() string {
	switch c {
	case TransporterShiprocket:
		return "Shiprocket"
	case TransporterDelhivery:
		return "Delhivery"
	case TransporterBlueDart:
		return "BlueDart"
	case TransporterEkart:
		return "Ekart"
	case TransporterShadowfax:
		return "Shadowfax"
	case TransporterDTDC:
		return "DTDC"
	case TransporterEcomExpress:
		return "Ecom Express"
	case TransporterXpressbees:
		return "Xpressbees"
	default:
		return string(c)
	}
}

// ---------------------------------------------------------------------------
// Transporter Port Interface
// ---------------------------------------------------------------------------

// Transporter is the port interface every courier adapter implements.
type Transporter interface {
	// Code returns the transporter code this adapter handles.
	Code() TransporterCode

	// Name returns the carrier display name.
	Name() string

	// Authenticate establishes or refreshes carrier credentials.
	Authenticate(ctx context.Context) error

	// CreateShipment books a shipment and returns the assigned AWB.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResult, error)

	// TrackShipment returns the scan events for an AWB, in the order the
	// carrier reports them (oldest first). Adapters do not re-sort;
	// ordering fidelity is the carrier's responsibility.
	TrackShipment(ctx context.Context, awb string) ([]TrackingEvent, error)

	// CancelShipment cancels a booked shipment.
	CancelShipment(ctx context.Context, awb string) error

	// CheckServiceability reports whether the carrier delivers between the
	// two pincodes, and whether COD is available on that lane.
	CheckServiceability(ctx context.Context, req *ServiceabilityRequest) (*ServiceabilityResult, error)

	// CalculateRates quotes shipping charges for a prospective package.
	CalculateRates(ctx context.Context, req *RateRequest) ([]RateQuote, error)

	// GenerateLabel returns a URL for the printable shipping label.
	GenerateLabel(ctx context.Context, awb string) (string, error)
}

// ManifestGenerator is an optional capability: carriers that support
// pickup manifests implement it in addition to Transporter.
type ManifestGenerator interface {
	GenerateManifest(ctx context.Context, awbs []string) (*ManifestResult, error)
}
