// Package couriers holds the carrier adapters. Each adapter implements
// integration.Transporter over the resilient gateway; carriers with pickup
// manifest support also implement integration.ManifestGenerator.
//
// Carrier auth varies widely: static tokens, login endpoints issuing
// time-limited bearers, OAuth2 client-credentials, per-request form
// credentials. Cached bearers go through cache.TokenProvider so concurrent
// shipments share one login.
package couriers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/cache"
	"github.com/oms/backend/internal/infrastructure/gateway"
	"github.com/oms/backend/internal/infrastructure/transport"
)

// Deps carries the shared infrastructure every courier adapter needs.
type Deps struct {
	Gateway *gateway.Gateway
	Tokens  cache.TokenProvider
	Log     *zap.Logger
}

func (d Deps) applyDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Tokens == nil {
		d.Tokens = cache.NewTokenCache(d.Log)
	}
	return d
}

// checkResult maps a carrier HTTP status onto the provider error taxonomy.
func checkResult(res transport.Result, provider string) error {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w: HTTP %d", provider, integration.ErrProviderAuthFailed, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: HTTP %d after %d attempts", provider, integration.ErrProviderRateLimited, res.StatusCode, res.Attempts)
	case res.StatusCode == 0 || res.StatusCode >= 500:
		return fmt.Errorf("%s: %w: HTTP %d after %d attempts", provider, integration.ErrProviderUnavailable, res.StatusCode, res.Attempts)
	default:
		return fmt.Errorf("%s: %w: HTTP %d", provider, integration.ErrProviderRequestFailed, res.StatusCode)
	}
}

// decodeBody checks the status and unmarshals the response body.
func decodeBody(res transport.Result, provider string, out any) error {
	if err := checkResult(res, provider); err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", provider, integration.ErrProviderInvalidResponse, err)
	}
	return nil
}

// jsonLoginFetch builds a FetchFunc that POSTs a JSON credential document to
// a login endpoint and caches the returned bearer for ttl. Carriers like
// Shiprocket and Xpressbees issue long-lived tokens without an expiry field.
func jsonLoginFetch(gw *gateway.Gateway, provider, loginURL string, body map[string]string, ttl time.Duration) cache.FetchFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		payload, err := json.Marshal(body)
		if err != nil {
			return "", time.Time{}, err
		}
		res, err := gw.Do(ctx, provider, http.MethodPost, loginURL, payload,
			map[string]string{"Content-Type": "application/json"})
		if err != nil {
			return "", time.Time{}, err
		}
		var out struct {
			Token string `json:"token"`
			Data  struct {
				Token string `json:"token"`
			} `json:"data"`
			ExpiresIn int64 `json:"expires_in"`
		}
		if err := decodeBody(res, provider, &out); err != nil {
			return "", time.Time{}, err
		}
		token := out.Token
		if token == "" {
			token = out.Data.Token
		}
		if token == "" {
			return "", time.Time{}, fmt.Errorf("%s: %w: login response missing token", provider, integration.ErrProviderInvalidResponse)
		}
		if out.ExpiresIn > 0 {
			ttl = time.Duration(out.ExpiresIn) * time.Second
		}
		return token, time.Now().Add(ttl), nil
	}
}

// oauthClientCredentialsFetch builds a FetchFunc for carriers using the
// standard client-credentials grant.
func oauthClientCredentialsFetch(gw *gateway.Gateway, provider, tokenURL, clientID, clientSecret string) cache.FetchFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
		res, err := gw.Do(ctx, provider, http.MethodPost, tokenURL,
			[]byte(form.Encode()),
			map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
		if err != nil {
			return "", time.Time{}, err
		}
		var out struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if err := decodeBody(res, provider, &out); err != nil {
			return "", time.Time{}, err
		}
		if out.AccessToken == "" {
			return "", time.Time{}, fmt.Errorf("%s: %w: token response missing access_token", provider, integration.ErrProviderInvalidResponse)
		}
		expiresIn := out.ExpiresIn
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		return out.AccessToken, time.Now().Add(time.Duration(expiresIn) * time.Second), nil
	}
}

// parseTime tries each layout in order and returns the zero time when none
// matches. Carrier timestamp formats are inconsistent even within one API.
func parseTime(s string, layouts ...string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseDays reads the leading integer out of an estimated-days field, which
// carriers report as "3", "3.0" or a range like "3-5".
func parseDays(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// fullAddress joins the street lines of an address for carriers that take a
// single free-text field.
func fullAddress(a integration.Address) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Line1, a.Line2, a.Landmark} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
