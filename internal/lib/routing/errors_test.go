package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMessage(t *testing.T) {
	fromErr := &EndpointError{Endpoint: From, Err: ErrEndpointNotFound}
	toErr := &EndpointError{Endpoint: To, Err: ErrEndpointNotFound}

	assert.Equal(t, "From location not found", UserMessage(fromErr))
	assert.Equal(t, "To location not found", UserMessage(toErr))
	assert.Equal(t, "No route found between these locations", UserMessage(ErrNoRouteFound))
	assert.Equal(t, "Check your connection", UserMessage(ErrProviderError))
	assert.Equal(t, "Check your connection", UserMessage(ErrProviderTimeout))
	assert.Equal(t, "", UserMessage(nil))

	messages := map[string]bool{}
	for _, err := range []error{fromErr, toErr, ErrNoRouteFound, ErrProviderError} {
		messages[UserMessage(err)] = true
	}
	assert.Len(t, messages, 4, "four user-visible failures stay distinct")

	assert.True(t, errors.Is(fromErr, ErrEndpointNotFound))
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("from")
	require.NoError(t, err)
	assert.Equal(t, From, e)

	_, err = ParseEndpoint("via")
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "endpoint_not_found", Kind(&EndpointError{Endpoint: To, Err: ErrEndpointNotFound}))
	assert.Equal(t, "no_route_found", Kind(fmt.Errorf("osrm: %w", ErrNoRouteFound)))
	assert.Equal(t, "provider_timeout", Kind(fmt.Errorf("%w: %w", ErrProviderTimeout, context.DeadlineExceeded)))
	assert.Equal(t, "provider_error", Kind(ErrProviderError))
	assert.Equal(t, "out_of_range", Kind(ErrOutOfRange))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
}
