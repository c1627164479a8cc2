package dto

import (
	"errors"
	"net/http"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/resilience"
)

// Error code constants, format: ERR_<CATEGORY>_<DESCRIPTION>.

// General error codes
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	ErrCodeNotFound   = "ERR_NOT_FOUND"
	ErrCodeConflict   = "ERR_CONFLICT"
)

// Authentication error codes
const (
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"
)

// Provider error codes
const (
	ErrCodeProviderNotConfigured = "ERR_PROVIDER_NOT_CONFIGURED"
	ErrCodeProviderUnavailable   = "ERR_PROVIDER_UNAVAILABLE"
	ErrCodeProviderAuthFailed    = "ERR_PROVIDER_AUTH_FAILED"
	ErrCodeProviderRequest       = "ERR_PROVIDER_REQUEST_FAILED"
	ErrCodeRateLimited           = "ERR_RATE_LIMITED"
	ErrCodeUnknownProvider       = "ERR_UNKNOWN_PROVIDER"
)

// Business error codes
const (
	ErrCodeInvalidPullRequest   = "ERR_INVALID_PULL_REQUEST"
	ErrCodeStatusUpdateFailed   = "ERR_STATUS_UPDATE_FAILED"
	ErrCodeShipmentCreateFailed = "ERR_SHIPMENT_CREATE_FAILED"
	ErrCodeCancellationFailed   = "ERR_CANCELLATION_FAILED"
	ErrCodeNotServiceable       = "ERR_NOT_SERVICEABLE"
	ErrCodeManifestUnsupported  = "ERR_MANIFEST_NOT_SUPPORTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeNotFound:   http.StatusNotFound,
	ErrCodeConflict:   http.StatusConflict,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,

	ErrCodeProviderNotConfigured: http.StatusNotFound,
	ErrCodeProviderUnavailable:   http.StatusBadGateway,
	ErrCodeProviderAuthFailed:    http.StatusBadGateway,
	ErrCodeProviderRequest:       http.StatusBadGateway,
	ErrCodeRateLimited:           http.StatusTooManyRequests,
	ErrCodeUnknownProvider:       http.StatusNotFound,

	ErrCodeInvalidPullRequest:   http.StatusBadRequest,
	ErrCodeStatusUpdateFailed:   http.StatusUnprocessableEntity,
	ErrCodeShipmentCreateFailed: http.StatusUnprocessableEntity,
	ErrCodeCancellationFailed:   http.StatusUnprocessableEntity,
	ErrCodeNotServiceable:       http.StatusUnprocessableEntity,
	ErrCodeManifestUnsupported:  http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code, defaulting
// to 500 for unknown codes.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorCode classifies a domain error into an API error code. Resilience
// backpressure surfaces as rate limiting so callers know to retry later.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, integration.ErrProviderNotConfigured):
		return ErrCodeProviderNotConfigured
	case errors.Is(err, integration.ErrUnknownChannel),
		errors.Is(err, integration.ErrUnknownTransporter):
		return ErrCodeUnknownProvider
	case errors.Is(err, integration.ErrInvalidSignature):
		return ErrCodeInvalidSignature
	case errors.Is(err, integration.ErrProviderAuthFailed):
		return ErrCodeProviderAuthFailed
	case errors.Is(err, integration.ErrProviderRateLimited),
		errors.Is(err, resilience.ErrQueueFull),
		errors.Is(err, resilience.ErrAcquireTimeout):
		return ErrCodeRateLimited
	case errors.Is(err, integration.ErrProviderUnavailable):
		return ErrCodeProviderUnavailable
	case errors.Is(err, integration.ErrProviderRequestFailed),
		errors.Is(err, integration.ErrProviderInvalidResponse):
		return ErrCodeProviderRequest
	case errors.Is(err, integration.ErrInvalidPullRequest):
		return ErrCodeInvalidPullRequest
	case errors.Is(err, integration.ErrOrderNotFound),
		errors.Is(err, integration.ErrShipmentNotFound):
		return ErrCodeNotFound
	case errors.Is(err, integration.ErrStatusUpdateFailed):
		return ErrCodeStatusUpdateFailed
	case errors.Is(err, integration.ErrShipmentCreateFailed):
		return ErrCodeShipmentCreateFailed
	case errors.Is(err, integration.ErrCancellationFailed):
		return ErrCodeCancellationFailed
	case errors.Is(err, integration.ErrPincodeNotServiceable):
		return ErrCodeNotServiceable
	case errors.Is(err, integration.ErrManifestNotSupported):
		return ErrCodeManifestUnsupported
	default:
		return ErrCodeInternal
	}
}
