package transport

import (
	"errors"
	"net/http"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/provider"
	"github.com/unillm/unillm/pkg/registry"
)

// HTTPStatusFromError maps an APIError type to its HTTP status code.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// APIErrorFrom normalizes any error into an APIError. Known sentinel and
// typed errors keep their category; everything else becomes a server error.
func APIErrorFrom(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		return api.NewUpstreamError(upstream.Error())
	}
	switch {
	case errors.Is(err, registry.ErrUnknownModel):
		return api.NewNotFoundError(err.Error())
	// Registry misconfiguration is a caller-visible request failure, not a
	// server fault.
	case errors.Is(err, registry.ErrUnknownKeyPool):
		return api.NewInvalidRequestError("", err.Error())
	case errors.Is(err, registry.ErrProxyNotConfigured):
		return api.NewInvalidRequestError("", err.Error())
	case errors.Is(err, provider.ErrEmptyChoices):
		return api.NewUpstreamError(err.Error())
	default:
		return api.NewServerError(err.Error())
	}
}

// WriteError writes an APIError as a plain-text diagnostic body with the
// status derived from its type.
func WriteError(w http.ResponseWriter, apiErr *api.APIError) {
	http.Error(w, apiErr.Message, HTTPStatusFromError(apiErr))
}
