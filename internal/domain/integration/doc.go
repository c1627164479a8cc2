// Package integration defines the canonical contract between the OMS core
// and external providers: marketplaces (order sources) and transporters
// (courier/shipping carriers).
//
// The package contains only domain types and port interfaces. Concrete
// adapters live in internal/infrastructure/channels and
// internal/infrastructure/couriers, following the Ports & Adapters pattern.
// Every adapter translates one provider protocol into the shapes defined
// here; downstream consumers never see provider-specific payloads except
// through the opaque RawData passthrough.
package integration
