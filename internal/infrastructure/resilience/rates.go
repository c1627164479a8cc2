package resilience

import "time"

// rateTable carries the default token-bucket tuning per provider, derived
// from each provider's published API quota. Burst (MaxTokens) and sustained
// rate (RefillRate, tokens/second) differ per provider; queue bounds are
// uniform unless a provider's quota warrants otherwise.
var rateTable = map[string]LimiterConfig{
	// Marketplaces
	"SHOPIFY":  {MaxTokens: 40, RefillRate: 2}, // REST bucket: 40 burst, 2/s leak
	"FLIPKART": {MaxTokens: 25, RefillRate: 5},
	"AMAZON":   {MaxTokens: 20, RefillRate: 0.5}, // SP-API orders: 0.5 rps, burst 20
	"MYNTRA":   {MaxTokens: 10, RefillRate: 2},
	"AJIO":     {MaxTokens: 10, RefillRate: 1},
	"MEESHO":   {MaxTokens: 15, RefillRate: 3},
	"NYKAA":    {MaxTokens: 10, RefillRate: 2},
	"TATACLIQ": {MaxTokens: 10, RefillRate: 1},
	"JIOMART":  {MaxTokens: 10, RefillRate: 2},

	// Transporters
	"SHIPROCKET":   {MaxTokens: 30, RefillRate: 5},
	"DELHIVERY":    {MaxTokens: 40, RefillRate: 10},
	"BLUEDART":     {MaxTokens: 20, RefillRate: 4},
	"EKART":        {MaxTokens: 20, RefillRate: 5},
	"SHADOWFAX":    {MaxTokens: 15, RefillRate: 3},
	"DTDC":         {MaxTokens: 10, RefillRate: 2},
	"ECOM_EXPRESS": {MaxTokens: 15, RefillRate: 3},
	"XPRESSBEES":   {MaxTokens: 20, RefillRate: 4},
}

// RateTableConfig returns the default limiter config for a provider name,
// falling back to DefaultLimiterConfig for unlisted providers. Queue size
// and wait ceiling defaults are applied uniformly.
func RateTableConfig(name string) LimiterConfig {
	cfg, ok := rateTable[name]
	if !ok {
		return DefaultLimiterConfig()
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxWaitTime == 0 {
		cfg.MaxWaitTime = 30 * time.Second
	}
	return cfg
}
