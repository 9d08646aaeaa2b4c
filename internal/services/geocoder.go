package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/saferoute/server/internal/cache"
	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// ResolveInput is everything known about one endpoint at submit time
type ResolveInput struct {
	Text         string
	Cached       *geo.Point
	Device       *geo.Point
	CurrentPlace string
}

// Geocoder resolves endpoint text to a coordinate
type Geocoder struct {
	forward  ForwardGeocoder
	reverse  ReverseGeocoder
	cache    *cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	aliases  map[string]bool
}

// NewGeocoder creates a geocoder. cache may be nil.
func NewGeocoder(forward ForwardGeocoder, reverse ReverseGeocoder, c *cache.Cache, cacheTTL, timeout time.Duration, aliases []string) *Geocoder {
	set := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		set[strings.ToLower(strings.TrimSpace(a))] = true
	}
	return &Geocoder{
		forward:  forward,
		reverse:  reverse,
		cache:    c,
		cacheTTL: cacheTTL,
		timeout:  timeout,
		aliases:  set,
	}
}

// Resolve returns the coordinate for an endpoint. Every failure is reported
// as routing.ErrEndpointNotFound; the cause is logged.
func (g *Geocoder) Resolve(ctx context.Context, in ResolveInput) (geo.Point, error) {
	if in.Cached != nil {
		return *in.Cached, nil
	}

	text := strings.TrimSpace(in.Text)
	if in.Device != nil {
		if g.aliases[strings.ToLower(text)] {
			return *in.Device, nil
		}
		if in.CurrentPlace != "" && text == strings.TrimSpace(in.CurrentPlace) {
			return *in.Device, nil
		}
	}

	if text == "" {
		logging.Debugw(ctx, "Geocoder: empty endpoint text")
		return geo.Point{}, fmt.Errorf("%w: empty text", routing.ErrEndpointNotFound)
	}

	if g.cache != nil {
		if p, found, err := g.cache.GetGeocode(text); err == nil && found {
			return p, nil
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	points, err := g.forward.Geocode(lookupCtx, text)
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, routing.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		logging.Warnw(ctx, "Geocoder: forward geocoding failed", "text", text, "reason", reason, "error", err)
		return geo.Point{}, fmt.Errorf("%w: %s", routing.ErrEndpointNotFound, reason)
	}
	if len(points) == 0 {
		logging.Infow(ctx, "Geocoder: no results", "text", text)
		return geo.Point{}, fmt.Errorf("%w: no results", routing.ErrEndpointNotFound)
	}

	if g.cache != nil {
		if err := g.cache.SetGeocode(text, points[0], g.cacheTTL); err != nil {
			logging.Warnw(ctx, "Geocoder: cache write failed", "error", err)
		}
	}
	return points[0], nil
}

// PlaceLabel reverse geocodes p for display. Failures yield "".
func (g *Geocoder) PlaceLabel(ctx context.Context, p geo.Point) string {
	if g.reverse == nil {
		return ""
	}
	if g.cache != nil {
		if label, found, err := g.cache.GetPlaceLabel(p); err == nil && found {
			return label
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	label, err := g.reverse.Reverse(lookupCtx, p)
	if err != nil {
		logging.Warnw(ctx, "Geocoder: reverse geocoding failed", "lat", p.Latitude, "lng", p.Longitude, "error", err)
		return ""
	}
	if label != "" && g.cache != nil {
		if err := g.cache.SetPlaceLabel(p, label, g.cacheTTL); err != nil {
			logging.Warnw(ctx, "Geocoder: cache write failed", "error", err)
		}
	}
	return label
}
