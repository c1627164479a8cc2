package channels

import (
	"fmt"

	"github.com/oms/backend/internal/domain/integration"
)

type constructor func(creds integration.Credentials, deps Deps) (integration.Channel, error)

// constructors is the closed dispatch table from channel code to adapter.
// Adding a marketplace means adding exactly one entry here plus its adapter
// file.
var constructors = map[integration.ChannelCode]constructor{
	integration.ChannelShopify:  newShopify,
	integration.ChannelFlipkart: newFlipkart,
	integration.ChannelAmazon:   newAmazon,
	integration.ChannelMyntra:   newMyntra,
	integration.ChannelAjio:     newAjio,
	integration.ChannelMeesho:   newMeesho,
	integration.ChannelNykaa:    newNykaa,
	integration.ChannelTataCliq: newTataCliq,
	integration.ChannelJioMart:  newJioMart,
}

// New resolves a channel code to a constructed adapter. An unknown code is a
// configuration error surfaced immediately, never a silent no-op.
func New(code integration.ChannelCode, creds integration.Credentials, deps Deps) (integration.Channel, error) {
	deps.applyDefaults()
	ctor, ok := constructors[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrUnknownChannel, code)
	}
	return ctor(creds, deps)
}
