// Package gateway fronts every outbound provider call with the full
// resilience chain: rate limiter first, then circuit breaker, then the
// retrying HTTP transport. Adapters never talk to the transport directly.
package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/resilience"
	"github.com/oms/backend/internal/infrastructure/transport"
)

// Gateway holds one limiter and one breaker per provider code, shared across
// all adapter instances for that provider.
type Gateway struct {
	client   *transport.Client
	limiters *resilience.LimiterRegistry
	breakers *resilience.BreakerRegistry
	log      *zap.Logger
}

// ProviderHealth is a point-in-time view of one provider's resilience state,
// exposed on the admin surface.
type ProviderHealth struct {
	Provider     string                  `json:"provider"`
	BreakerState resilience.BreakerState `json:"breakerState"`
	Tokens       float64                 `json:"tokens"`
	QueueLength  int                     `json:"queueLength"`
}

func New(client *transport.Client, limiters *resilience.LimiterRegistry, breakers *resilience.BreakerRegistry, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{client: client, limiters: limiters, breakers: breakers, log: log}
}

// Do executes one provider request through the chain. Ordering is strict: a
// request that cannot obtain a rate-limit token never reaches the breaker,
// and a request rejected by an open breaker never reaches the network.
//
// The returned error is non-nil only for resilience rejections (queue full,
// acquire timeout, circuit open, context cancellation). HTTP-level failures
// come back as an unsuccessful Result with a nil error; interpreting the
// status code is the adapter's job.
func (g *Gateway) Do(ctx context.Context, provider, method, url string, body []byte, headers map[string]string) (transport.Result, error) {
	if err := g.limiters.GetOrCreate(provider).Acquire(ctx); err != nil {
		g.log.Warn("rate limiter rejected request",
			zap.String("provider", provider),
			zap.Error(err),
		)
		if resilience.IsBackpressure(err) {
			return transport.Result{}, fmt.Errorf("gateway: %s: %w: %w", provider, integration.ErrProviderRateLimited, err)
		}
		return transport.Result{}, fmt.Errorf("gateway: %s: %w", provider, err)
	}

	var res transport.Result
	err := g.breakers.GetOrCreate(provider).Execute(ctx, func(ctx context.Context) error {
		res = g.client.Do(ctx, method, url, body, headers)
		if !res.Success && providerFault(res.StatusCode) {
			return fmt.Errorf("%w: %s", integration.ErrProviderUnavailable, res.Error)
		}
		return nil
	})
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return res, fmt.Errorf("gateway: %w: %w", integration.ErrProviderUnavailable, err)
		}
		// Provider-fault results surface through res; the wrapped error only
		// fed the breaker's failure count.
		return res, nil
	}
	return res, nil
}

// Health reports the breaker state and limiter occupancy for every provider
// seen so far.
func (g *Gateway) Health() []ProviderHealth {
	names := g.breakers.Names()
	for _, n := range g.limiters.Names() {
		if !contains(names, n) {
			names = append(names, n)
		}
	}

	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		l := g.limiters.GetOrCreate(name)
		out = append(out, ProviderHealth{
			Provider:     name,
			BreakerState: g.breakers.GetOrCreate(name).State(),
			Tokens:       l.Tokens(),
			QueueLength:  l.QueueLen(),
		})
	}
	return out
}

// providerFault reports whether a failed exchange should count against the
// provider's breaker. Client errors are the caller's fault and must not trip
// the circuit.
func providerFault(status int) bool {
	return status == 0 || status == 429 || status >= 500
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
