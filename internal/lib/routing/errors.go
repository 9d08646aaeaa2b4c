package routing

import (
	"errors"
	"fmt"
)

var (
	// ErrLocationUnavailable means the device location could not be read
	ErrLocationUnavailable = errors.New("device location unavailable")

	// ErrPermissionDenied means the device refused access to its location
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrEndpointNotFound means geocoding produced no coordinate
	ErrEndpointNotFound = errors.New("location not found")

	// ErrNoRouteFound means the directions provider has no path
	ErrNoRouteFound = errors.New("no route found")

	// ErrProviderError covers transport and parse failures of external services
	ErrProviderError = errors.New("provider error")

	// ErrProviderTimeout is a provider call that exceeded its deadline
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrOutOfRange is an invalid route index
	ErrOutOfRange = errors.New("route index out of range")

	// ErrSearchInProgress is returned when a submission is already running
	ErrSearchInProgress = errors.New("search already in progress")
)

// Endpoint names one side of a search
type Endpoint string

const (
	From Endpoint = "from"
	To   Endpoint = "to"
)

// ParseEndpoint accepts "from" or "to"
func ParseEndpoint(s string) (Endpoint, error) {
	switch Endpoint(s) {
	case From, To:
		return Endpoint(s), nil
	default:
		return "", fmt.Errorf("unknown endpoint %q", s)
	}
}

// EndpointError records which endpoint failed to resolve
type EndpointError struct {
	Endpoint Endpoint
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// UserMessage maps an error to the message shown to the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var endpointErr *EndpointError
	switch {
	case errors.As(err, &endpointErr) && errors.Is(err, ErrEndpointNotFound):
		if endpointErr.Endpoint == From {
			return "From location not found"
		}
		return "To location not found"
	case errors.Is(err, ErrNoRouteFound):
		return "No route found between these locations"
	case errors.Is(err, ErrProviderError), errors.Is(err, ErrProviderTimeout):
		return "Check your connection"
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrLocationUnavailable):
		return "Current location unavailable"
	default:
		return "Something went wrong"
	}
}

// Kind returns a stable machine-readable name for the error's category
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEndpointNotFound):
		return "endpoint_not_found"
	case errors.Is(err, ErrNoRouteFound):
		return "no_route_found"
	case errors.Is(err, ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, ErrProviderError):
		return "provider_error"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, ErrSearchInProgress):
		return "search_in_progress"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	default:
		return "internal"
	}
}
