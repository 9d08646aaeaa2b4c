package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/saferoute/server/internal/clients/httpx"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

// Client reads and writes the hazard report collection of a Firebase
// Realtime Database through its REST API.
type Client struct {
	databaseURL  string
	path         string
	authToken    string
	httpClient   httpx.HTTPDoer
	streamClient httpx.HTTPDoer
}

// NewClient creates a client for the collection at path
func NewClient(databaseURL, path, authToken string) *Client {
	c := NewClientWithHTTPDoer(databaseURL, path, authToken, httpx.NewHTTPClient())
	// Streams stay open indefinitely, so they cannot share the request timeout
	c.streamClient = &http.Client{}
	return c
}

// NewClientWithHTTPDoer creates a client over a custom transport used for
// both requests and streams.
func NewClientWithHTTPDoer(databaseURL, path, authToken string, doer httpx.HTTPDoer) *Client {
	if path == "" {
		path = "reports"
	}
	return &Client{
		databaseURL:  strings.TrimRight(databaseURL, "/"),
		path:         strings.Trim(path, "/"),
		authToken:    authToken,
		httpClient:   doer,
		streamClient: doer,
	}
}

// WithStreamDoer replaces the transport used for Watch
func (c *Client) WithStreamDoer(doer httpx.HTTPDoer) *Client {
	c.streamClient = doer
	return c
}

// Snapshot reads the whole collection
func (c *Client) Snapshot(ctx context.Context) (hazard.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if err := httpx.CheckStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to read response: %w", err))
	}

	snap, err := hazard.ParseCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode collection: %v", routing.ErrProviderError, err)
	}
	return snap, nil
}

// Watch opens a streaming connection and delivers a freshly read snapshot
// after each change. The channel closes when ctx is done, the server ends
// the stream, or a re-read fails.
func (c *Client) Watch(ctx context.Context) (<-chan hazard.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, httpx.Classify(fmt.Errorf("failed to open stream: %w", err))
	}
	if err := httpx.CheckStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	out := make(chan hazard.Snapshot, 1)
	go c.consume(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) consume(ctx context.Context, body io.ReadCloser, out chan hazard.Snapshot) {
	defer close(out)
	defer body.Close()

	err := readEvents(body, func(ev event) bool {
		switch ev.name {
		case "put", "patch":
			snap, err := c.Snapshot(ctx)
			if err != nil {
				logging.Warnw(ctx, "Firebase: failed to re-read collection", "error", err)
				return false
			}
			// Replace an undelivered snapshot with the fresh one
			select {
			case <-out:
			default:
			}
			out <- snap
			return true
		case "keep-alive":
			return true
		case "cancel", "auth_revoked":
			logging.Warnw(ctx, "Firebase: stream ended by server", "event", ev.name, "data", ev.data)
			return false
		default:
			logging.Debugw(ctx, "Firebase: ignoring stream event", "event", ev.name)
			return true
		}
	})

	if err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		logging.Warnw(ctx, "Firebase: stream read failed", "error", err)
	}
}

// Submit writes a report under its id
func (c *Client) Submit(ctx context.Context, sub hazard.Submission) error {
	if sub.ID == "" {
		return errors.New("report id is required")
	}

	jsonBody, err := json.Marshal(hazard.ToRecord(sub))
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url(c.path+"/"+url.PathEscape(sub.ID)), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpx.Classify(fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	return httpx.CheckStatus(resp)
}

func (c *Client) url(path string) string {
	u := c.databaseURL + "/" + path + ".json"
	if c.authToken != "" {
		u += "?auth=" + url.QueryEscape(c.authToken)
	}
	return u
}
