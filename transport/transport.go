// Package transport implements the HTTP layer every Social Finance API call
// flows through. It applies the two cross-cutting behaviors call sites must
// never repeat: attaching the bearer access token on the way out, and the
// refresh-and-retry-once dance when a response comes back 401.
package transport

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/socialfinance/sofi-go/events"
	"github.com/socialfinance/sofi-go/internal/metrics"
	"github.com/socialfinance/sofi-go/tokens"
)

// ErrNoRefreshToken is returned by Refresh when no refresh token is held.
var ErrNoRefreshToken = errors.New("no refresh token held")

// requestIDHeader carries a per-request correlation ID for server logs.
const requestIDHeader = "X-Request-ID"

// Deps are the required collaborators of a Transport.
type Deps struct {
	// Base executes the actual requests. http.DefaultTransport when nil.
	Base http.RoundTripper

	// Store holds the token pair shared with the session manager.
	Store tokens.Store

	// Bus receives the unauthorized signal when the session becomes
	// unrecoverable from inside a request.
	Bus *events.Bus

	// BaseURL is the versioned API base (".../api/v1"), used to reach the
	// refresh endpoint.
	BaseURL string
}

// Transport is an http.RoundTripper wrapping a base transport.
//
// Concurrency: any number of requests may fail with 401 at once. All of
// them join a single in-flight refresh via the singleflight group, and each
// retries once with the shared outcome, so exactly one refresh call is ever
// issued per authorization-failure episode.
type Transport struct {
	base    http.RoundTripper
	store   tokens.Store
	bus     *events.Bus
	baseURL string

	// refreshClient issues the refresh call itself. It is a bare client
	// that does not go through this Transport, since a 401 from the
	// refresh endpoint must never trigger another refresh.
	refreshClient *http.Client

	group   singleflight.Group
	limiter *rate.Limiter
	metrics *metrics.Collector
	log     zerolog.Logger
}

// Option configures optional Transport behavior.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Transport) { t.metrics = c }
}

// WithRateLimit caps outgoing requests at rps per second. Zero or negative
// disables limiting.
func WithRateLimit(rps float64) Option {
	return func(t *Transport) {
		if rps > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// WithRefreshClient overrides the bare client used for refresh calls.
func WithRefreshClient(c *http.Client) Option {
	return func(t *Transport) { t.refreshClient = c }
}

// New validates deps and builds a Transport.
func New(deps Deps, opts ...Option) (*Transport, error) {
	if deps.Store == nil {
		return nil, errors.New("[transport.New] Store is required")
	}
	if deps.Bus == nil {
		return nil, errors.New("[transport.New] Bus is required")
	}
	if deps.BaseURL == "" {
		return nil, errors.New("[transport.New] BaseURL is required")
	}

	t := &Transport{
		base:          deps.Base,
		store:         deps.Store,
		bus:           deps.Bus,
		baseURL:       deps.BaseURL,
		refreshClient: &http.Client{Timeout: 15 * time.Second},
		log:           zerolog.Nop(),
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}

	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
//
// The retry-once rule is local to this call, not mutation of the caller's
// request: the base transport is invoked at most twice, and only the second
// attempt may have been preceded by a refresh.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	out := t.prepare(req)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.RecordStatus(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// A request whose body cannot be rewound cannot be retried; its 401
	// passes through like any other terminal failure.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	_, refreshToken := t.store.Pair()
	if refreshToken == "" {
		// Nothing to refresh with: drop the unverifiable access token and
		// tell the session manager, but hand the caller its original 401.
		if err := t.store.Clear(); err != nil {
			t.log.Error().Err(err).Msg("clearing token store")
		}
		t.signalUnauthorized()
		return resp, nil
	}

	newAccess, refreshErr := t.Refresh(req.Context())
	if refreshErr != nil {
		// Refresh tears the session down (handled inside Refresh); the
		// caller still sees the original 401 untouched.
		return resp, nil
	}

	// Retry exactly once with the fresh token. Whatever comes back - 401
	// included - is the caller's result.
	resp.Body.Close()

	retry := t.prepare(req)
	retry.Header.Set("Authorization", "Bearer "+newAccess)
	if t.metrics != nil {
		t.metrics.RecordRetry()
	}
	t.log.Debug().Str("url", req.URL.Path).Msg("retrying request with refreshed token")

	retryResp, err := t.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.RecordStatus(retryResp.StatusCode)
	}
	return retryResp, nil
}

// prepare clones req, rewinds its body, and applies the outbound
// interception: bearer access token when held, plus a request ID.
func (t *Transport) prepare(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			out.Body = body
		}
	}

	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.NewString())
	}
	if access, _ := t.store.Pair(); access != "" {
		out.Header.Set("Authorization", "Bearer "+access)
	}
	return out
}

func (t *Transport) signalUnauthorized() {
	if t.metrics != nil {
		t.metrics.RecordUnauthorized()
	}
	t.bus.Publish(events.TopicUnauthorized)
}
