// Package ors is a client for the openrouteservice HTTP API: isochrones,
// forward and reverse geocoding, and directions.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/time/rate"

	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/resilience"
)

// DefaultBaseURL is the public openrouteservice endpoint.
const DefaultBaseURL = "https://api.openrouteservice.org"

// Client talks to an ORS-compatible service.
type Client interface {
	// Isochrones computes reachability polygons around req.Center. A 5xx
	// reply to a multi-ring request is retried once with the outer ring only.
	Isochrones(ctx context.Context, req IsochroneRequest) (*geojson.FeatureCollection, error)

	// Geocode resolves free text to candidate places, best match first.
	Geocode(ctx context.Context, text string) ([]model.Place, error)

	// ReverseGeocode returns the closest labelled place, or nil if none.
	ReverseGeocode(ctx context.Context, p model.LatLng) (*model.Place, error)

	// Route returns the directions between two points as GeoJSON.
	Route(ctx context.Context, profile model.Profile, start, end model.LatLng) (*geojson.FeatureCollection, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a self-hosted or test instance.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit sets the requests-per-second budget shared by all calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for GET calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

// WithCache enables caching of forward geocoding results.
func WithCache(pc *PlaceCache) Option {
	return func(c *client) {
		c.cache = pc
	}
}

// WithBreaker stops calling the service while it keeps failing transiently.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *client) {
		c.breaker = b
	}
}

// WithGeocodeSize limits the number of geocoding candidates requested.
func WithGeocodeSize(n int) Option {
	return func(c *client) {
		if n > 0 {
			c.geocodeSize = n
		}
	}
}

type client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	cache       *PlaceCache
	breaker     *resilience.Breaker
	geocodeSize int
}

// NewClient returns a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(5, 5),
		retry:       resilience.DefaultRetryConfig(),
		geocodeSize: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("ors", "get")
	}
	return c
}

// getJSON issues a GET with retries on transient failures and decodes the
// body into out.
func (c *client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, op, http.MethodGet, reqURL, nil)
	})
	if err != nil {
		return err
	}
	if err := bodyError(op, http.StatusOK, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "ors: %s: parse response", op)
	}
	return nil
}

// do performs a single rate-limited request and returns the body of a 2xx
// response. Non-2xx responses become *APIError.
func (c *client) do(ctx context.Context, op, method, reqURL string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "ors: %s: rate limit", op)
	}
	body, err := resilience.Guard(c.breaker, func() ([]byte, error) {
		return c.send(ctx, op, method, reqURL, payload)
	})
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return nil, eris.Wrapf(err, "ors: %s", op)
	}
	return body, err
}

func (c *client) send(ctx context.Context, op, method, reqURL string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, eris.Wrapf(err, "ors: %s: build request", op)
	}
	req.Header.Set("Accept", "application/json, application/geo+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "ors: %s: request", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "ors: %s: read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(op, resp.StatusCode, body)
	}
	return body, nil
}
