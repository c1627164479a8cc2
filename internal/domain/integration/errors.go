package integration

import "errors"

var (
	// Provider errors
	ErrProviderNotConfigured   = errors.New("integration: provider not configured")
	ErrProviderUnavailable     = errors.New("integration: provider temporarily unavailable")
	ErrProviderRequestFailed   = errors.New("integration: provider request failed")
	ErrProviderInvalidResponse = errors.New("integration: invalid provider response")
	ErrProviderAuthFailed      = errors.New("integration: provider authentication failed")
	ErrProviderRateLimited     = errors.New("integration: provider rate limited")
	ErrInvalidSignature        = errors.New("integration: invalid webhook signature")

	// Factory errors
	ErrUnknownChannel     = errors.New("integration: unknown channel code")
	ErrUnknownTransporter = errors.New("integration: unknown transporter code")

	// Order errors
	ErrOrderNotFound      = errors.New("integration: channel order not found")
	ErrInvalidPullRequest = errors.New("integration: invalid order pull request")
	ErrStatusUpdateFailed = errors.New("integration: order status update failed")
	ErrTotalsMismatch     = errors.New("integration: order totals do not reconcile")

	// Shipment errors
	ErrShipmentCreateFailed  = errors.New("integration: shipment creation failed")
	ErrShipmentNotFound      = errors.New("integration: shipment not found")
	ErrCancellationFailed    = errors.New("integration: shipment cancellation failed")
	ErrPincodeNotServiceable = errors.New("integration: pincode not serviceable")
	ErrManifestNotSupported  = errors.New("integration: transporter does not support manifests")
)

// IsRetryable reports whether err indicates a condition that is expected to
// clear on its own (provider outage, throttling). Business rejections and
// configuration problems are not retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderRateLimited)
}
