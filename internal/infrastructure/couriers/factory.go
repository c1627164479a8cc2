package couriers

import (
	"fmt"

	"github.com/oms/backend/internal/domain/integration"
)

type constructor func(creds integration.Credentials, deps Deps) (integration.Transporter, error)

var constructors = map[integration.TransporterCode]constructor{
	integration.TransporterShiprocket:  newShiprocket,
	integration.TransporterDelhivery:   newDelhivery,
	integration.TransporterBlueDart:    newBlueDart,
	integration.TransporterEkart:       newEkart,
	integration.TransporterShadowfax:   newShadowfax,
	integration.TransporterDTDC:        newDTDC,
	integration.TransporterEcomExpress: newEcomExpress,
	integration.TransporterXpressbees:  newXpressbees,
}

// New builds the transporter adapter for code with the given credentials.
func New(code integration.TransporterCode, creds integration.Credentials, deps Deps) (integration.Transporter, error) {
	build, ok := constructors[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrUnknownTransporter, code)
	}
	return build(creds, deps.applyDefaults())
}
