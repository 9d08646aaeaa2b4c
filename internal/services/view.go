package services

import (
	"errors"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/places"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// EndpointView is the client-facing state of one endpoint
type EndpointView struct {
	Text        string              `json:"text"`
	Cached      *geo.Point          `json:"cached,omitempty"`
	Resolution  Resolution          `json:"resolution"`
	Suggestions []places.Suggestion `json:"suggestions"`
}

// ErrorView describes a failure for display
type ErrorView struct {
	Kind     string           `json:"kind"`
	Endpoint routing.Endpoint `json:"endpoint,omitempty"`
	Message  string           `json:"message"`
}

// SessionView is a point-in-time copy of a session
type SessionView struct {
	ID            string                   `json:"id"`
	State         State                    `json:"state"`
	From          EndpointView             `json:"from"`
	To            EndpointView             `json:"to"`
	Device        *geo.Point               `json:"device,omitempty"`
	CurrentPlace  string                   `json:"current_place,omitempty"`
	LocationError *ErrorView               `json:"location_error,omitempty"`
	Routes        []routing.CandidateRoute `json:"routes"`
	Selected      int                      `json:"selected"`
	Viewport      *geo.BoundingBox         `json:"viewport,omitempty"`
	Error         *ErrorView               `json:"error,omitempty"`
}

// View returns a snapshot of the session
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		ID:            s.id,
		State:         s.state,
		From:          s.endpointViewLocked(routing.From),
		To:            s.endpointViewLocked(routing.To),
		Device:        clonePoint(s.device),
		CurrentPlace:  s.currentPlace,
		LocationError: newErrorView(s.locationErr),
		Routes:        s.routes.Routes,
		Selected:      s.routes.Selected,
		Error:         newErrorView(s.lastErr),
	}
	if v.Routes == nil {
		v.Routes = []routing.CandidateRoute{}
	}
	if s.viewport != nil {
		box := *s.viewport
		v.Viewport = &box
	}
	return v
}

func (s *Session) endpointViewLocked(field routing.Endpoint) EndpointView {
	ep := s.endpoints[field]
	suggestions := make([]places.Suggestion, len(ep.suggestions))
	copy(suggestions, ep.suggestions)
	return EndpointView{
		Text:        ep.text,
		Cached:      clonePoint(ep.cached),
		Resolution:  ep.resolution,
		Suggestions: suggestions,
	}
}

func newErrorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	return &ErrorView{
		Kind:     routing.Kind(err),
		Endpoint: endpointOf(err),
		Message:  routing.UserMessage(err),
	}
}

func endpointOf(err error) routing.Endpoint {
	var endpointErr *routing.EndpointError
	if errors.As(err, &endpointErr) {
		return endpointErr.Endpoint
	}
	return ""
}
