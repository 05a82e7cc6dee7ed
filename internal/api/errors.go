package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/internal/providers"
	"github.com/playmesh/playmesh/internal/storage"
)

// APIError is the wire shape of every error response: a machine-readable
// kind plus a human-readable detail.
type APIError struct {
	Status int    `json:"-"`
	Kind   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return e.Kind
}

// Error kinds returned by the API.
const (
	KindBadRequest            = "bad_request"
	KindUnknownPlatform       = "unknown_platform"
	KindNotFound              = "not_found"
	KindGone                  = "gone"
	KindConflict              = "conflict"
	KindInsufficientProviders = "insufficient_providers"
	KindProviderError         = "provider_error"
	KindUnauthorized          = "unauthorized"
	KindForbidden             = "forbidden"
	KindTooManyRequests       = "too_many_requests"
	KindInternal              = "internal"
)

func BadRequestError(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Kind: KindBadRequest, Detail: detail}
}

func NotFoundError(resource, id string) *APIError {
	return &APIError{
		Status: http.StatusNotFound,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %s not found", resource, id),
	}
}

func InternalError(detail string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Kind: KindInternal, Detail: detail}
}

// mapDomainError translates orchestration, storage, and provider errors into
// API errors. Unknown errors come back as internal.
func mapDomainError(err error) *APIError {
	switch {
	case errors.Is(err, orchestration.ErrUnknownPlatform):
		return &APIError{Status: http.StatusNotFound, Kind: KindUnknownPlatform, Detail: err.Error()}
	case errors.Is(err, storage.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Kind: KindNotFound, Detail: err.Error()}
	case errors.Is(err, orchestration.ErrGone):
		return &APIError{Status: http.StatusGone, Kind: KindGone, Detail: err.Error()}
	case errors.Is(err, storage.ErrConflict), errors.Is(err, orchestration.ErrStaleSequence):
		return &APIError{Status: http.StatusConflict, Kind: KindConflict, Detail: err.Error()}
	case errors.Is(err, orchestration.ErrInsufficientProviders),
		errors.Is(err, orchestration.ErrBusy),
		errors.Is(err, placement.ErrNoCandidate):
		return &APIError{Status: http.StatusServiceUnavailable, Kind: KindInsufficientProviders, Detail: err.Error()}
	default:
		var pe *providers.Error
		if errors.As(err, &pe) {
			return &APIError{Status: http.StatusBadGateway, Kind: KindProviderError, Detail: err.Error()}
		}
		return InternalError(err.Error())
	}
}

// kindForStatus maps framework-originated HTTP statuses onto error kinds.
func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusGone:
		return KindGone
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	case http.StatusServiceUnavailable:
		return KindInsufficientProviders
	case http.StatusBadGateway:
		return KindProviderError
	default:
		return KindInternal
	}
}

// HTTPErrorHandler is the central echo error handler. Handlers return
// *APIError or raw domain errors; everything converges here.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	if ae, ok := err.(*APIError); ok {
		apiErr = ae
	} else if he, ok := err.(*echo.HTTPError); ok {
		apiErr = &APIError{
			Status: he.Code,
			Kind:   kindForStatus(he.Code),
			Detail: fmt.Sprintf("%v", he.Message),
		}
	} else {
		apiErr = mapDomainError(err)
	}

	if apiErr.Status == http.StatusInternalServerError && !c.Echo().Debug {
		apiErr.Detail = "an internal error occurred"
	}

	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		c.Logger().Error(err)
	}
}
