package integration

import "fmt"

// Credentials is the opaque bag of secrets a provider adapter is constructed
// with: API keys, OAuth client pairs, account codes. It is held only by the
// adapter instance and must never be logged; the Stringer implementation
// redacts the contents so accidental formatting cannot leak a secret.
type Credentials map[string]string

// Get returns the named secret, or empty string when absent.
func (c Credentials) Get(key string) string {
	return c[key]
}

// Require returns the named secret or an error naming the missing key
// (but never its value).
func (c Credentials) Require(key string) (string, error) {
	v, ok := c[key]
	if v == "" || !ok {
		return "", fmt.Errorf("%w: missing credential %q", ErrProviderNotConfigured, key)
	}
	return v, nil
}

// String implements fmt.Stringer. It intentionally hides the contents.
func (c Credentials) String() string {
	return fmt.Sprintf("credentials(%d keys, redacted)", len(c))
}

// GoString implements fmt.GoStringer, for the %#v verb.
func (c Credentials) GoString() string {
	return c.String()
}
