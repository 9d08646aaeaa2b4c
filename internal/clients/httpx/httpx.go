// Package httpx holds the HTTP plumbing shared by the provider clients.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// DefaultTimeout bounds a single HTTP exchange when the caller's context has
// no deadline.
const DefaultTimeout = 30 * time.Second

// HTTPDoer interface for HTTP client (allows mocking)
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives one observation per provider request
type Observer interface {
	ObserveProviderRequest(provider, outcome string, elapsed time.Duration)
}

// NewHTTPClient returns the default transport for provider clients
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

type rateLimited struct {
	next    HTTPDoer
	limiter *rate.Limiter
}

// RateLimited spaces requests to at most rps per second. A non-positive rps
// returns next unchanged.
func RateLimited(next HTTPDoer, rps float64, burst int) HTTPDoer {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Do(req *http.Request) (*http.Response, error) {
	if err := r.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return r.next.Do(req)
}

type instrumented struct {
	next     HTTPDoer
	provider string
	observer Observer
	tracer   trace.Tracer
}

// Instrumented wraps next with a client span and a request observation
// labeled with provider. observer may be nil.
func Instrumented(next HTTPDoer, provider string, observer Observer) HTTPDoer {
	return &instrumented{
		next:     next,
		provider: provider,
		observer: observer,
		tracer:   otel.Tracer("github.com/dpup/saferoute/server/internal/clients/httpx"),
	}
}

func (i *instrumented) Do(req *http.Request) (*http.Response, error) {
	ctx, span := i.tracer.Start(req.Context(), i.provider+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", i.provider),
			attribute.String("http.method", req.Method),
			attribute.String("http.host", req.URL.Host),
			attribute.String("http.path", req.URL.Path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := i.next.Do(req.WithContext(ctx))
	outcome := Outcome(resp, err)

	if i.observer != nil {
		i.observer.ObserveProviderRequest(i.provider, outcome, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return resp, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}

// Outcome labels a finished exchange for metrics
func Outcome(resp *http.Response, err error) string {
	switch {
	case err != nil && isTimeout(err):
		return "timeout"
	case err != nil && errors.Is(err, context.Canceled):
		return "canceled"
	case err != nil:
		return "error"
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case resp.StatusCode >= 500:
		return "server_error"
	case resp.StatusCode >= 400:
		return "client_error"
	default:
		return "ok"
	}
}

// Classify converts a transport error into the routing error taxonomy.
// Deadline overruns become ErrProviderTimeout and everything else
// ErrProviderError; the original error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, routing.ErrProviderError) || errors.Is(err, routing.ErrProviderTimeout) {
		return err
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", routing.ErrProviderTimeout, err)
	}
	return fmt.Errorf("%w: %w", routing.ErrProviderError, err)
}

// CheckStatus returns an ErrProviderError for non-2xx responses, including
// a prefix of the body for diagnostics.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: rate limit exceeded", routing.ErrProviderError)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: API error %d: %s", routing.ErrProviderError, resp.StatusCode, string(body))
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
