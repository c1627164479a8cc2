// Package channels contains the marketplace adapters. Every adapter
// implements integration.Channel, talks to its provider exclusively through
// the resilience gateway, and normalizes responses into canonical orders.
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/cache"
	"github.com/oms/backend/internal/infrastructure/gateway"
	"github.com/oms/backend/internal/infrastructure/transport"
)

// Deps bundles the shared infrastructure every channel adapter composes.
type Deps struct {
	Gateway *gateway.Gateway
	Tokens  cache.TokenProvider
	Log     *zap.Logger
}

func (d *Deps) applyDefaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Tokens == nil {
		d.Tokens = cache.NewTokenCache(d.Log)
	}
}

// checkResult maps an unsuccessful transport result onto the integration
// error taxonomy. Successful results pass through with a nil error.
func checkResult(res transport.Result, provider string) error {
	if res.Success {
		return nil
	}
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: HTTP %d", integration.ErrProviderAuthFailed, provider, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: HTTP 429 after %d attempts", integration.ErrProviderRateLimited, provider, res.Attempts)
	case res.StatusCode == 0 || res.StatusCode >= 500:
		return fmt.Errorf("%w: %s: %s", integration.ErrProviderUnavailable, provider, res.Error)
	default:
		return fmt.Errorf("%w: %s: HTTP %d", integration.ErrProviderRequestFailed, provider, res.StatusCode)
	}
}

// decodeBody unmarshals a successful response body, mapping parse failures
// to the invalid-response sentinel.
func decodeBody(res transport.Result, provider string, out any) error {
	if err := checkResult(res, provider); err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", integration.ErrProviderInvalidResponse, provider, err)
	}
	return nil
}

// oauthToken is the standard OAuth2 token response shape shared by the
// client-credentials providers.
type oauthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// clientCredentialsFetch builds a token fetcher that posts a form-encoded
// client-credentials grant through the gateway.
func clientCredentialsFetch(gw *gateway.Gateway, provider, tokenURL, clientID, clientSecret string) cache.FetchFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)

		res, err := gw.Do(ctx, provider, http.MethodPost, tokenURL, []byte(form.Encode()), map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		})
		if err != nil {
			return "", time.Time{}, err
		}
		if !res.Success {
			return "", time.Time{}, fmt.Errorf("%w: %s: token endpoint returned HTTP %d",
				integration.ErrProviderAuthFailed, provider, res.StatusCode)
		}

		var tok oauthToken
		if err := json.Unmarshal(res.Body, &tok); err != nil || tok.AccessToken == "" {
			return "", time.Time{}, fmt.Errorf("%w: %s: malformed token response",
				integration.ErrProviderInvalidResponse, provider)
		}
		expiresIn := tok.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		return tok.AccessToken, time.Now().Add(time.Duration(expiresIn) * time.Second), nil
	}
}
