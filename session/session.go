// Package session owns the client-side authentication state: the token
// pair, the cached current user, and every operation that moves the session
// between logged-in and logged-out.
package session

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/events"
	"github.com/socialfinance/sofi-go/tokens"
	"github.com/socialfinance/sofi-go/transport"
	"github.com/socialfinance/sofi-go/users"
)

// tokenResponse is the body of a successful POST /auth/token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Registration is the payload of POST /auth/register. Email and Password
// double as the credentials for the automatic login that follows.
type Registration struct {
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	FullName     string  `json:"full_name,omitempty"`
	Bio          string  `json:"bio,omitempty"`
	ProfileImage string  `json:"profile_image,omitempty"`
	MonthlyFee   float64 `json:"monthly_fee"`
}

// Deps are the required collaborators of a Session.
type Deps struct {
	API       *client.Client       // issues the auth API calls
	Store     tokens.Store         // shared with the transport
	Transport *transport.Transport // owns the singleflight refresh
	Bus       *events.Bus          // delivers the unauthorized signal
}

// Session is the client-side record of the current authentication state.
//
// All state lives behind one mutex, so observers never see a torn update:
// in particular, no reader ever finds the access token cleared while the
// cached user is still set.
type Session struct {
	deps Deps
	log  zerolog.Logger

	mu          sync.RWMutex
	currentUser *users.User
	loading     bool
}

// Option configures optional Session behavior.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// New validates deps, builds a Session, and registers it as the single
// observer of the unauthorized signal for its lifetime.
func New(deps Deps, opts ...Option) (*Session, error) {
	if deps.API == nil {
		return nil, errors.New("[session.New] API client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[session.New] Store is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("[session.New] Transport is required")
	}
	if deps.Bus == nil {
		return nil, errors.New("[session.New] Bus is required")
	}

	s := &Session{
		deps:    deps,
		log:     zerolog.Nop(),
		loading: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	// The transport signals here when a refresh fails mid-request; the
	// session reacts exactly as if the user had logged out.
	deps.Bus.Subscribe(events.TopicUnauthorized, func() {
		s.log.Info().Msg("unauthorized signal received, ending session")
		s.Logout()
	})

	return s, nil
}

// Bootstrap resolves the persisted session at startup. A persisted access
// token is validated with a who-am-I call; if that fails for any reason the
// token is treated as absent and the session is torn down (fail-closed).
// Without a persisted token no network call happens at all.
func (s *Session) Bootstrap(ctx context.Context) error {
	defer s.setLoading(false)

	access, _ := s.deps.Store.Pair()
	if access == "" {
		return nil
	}

	if err := s.fetchUser(ctx); err != nil {
		s.log.Warn().Err(err).Msg("persisted token failed validation, logging out")
		s.Logout()
		return errors.Wrap(err, "[Session.Bootstrap] validate persisted token")
	}
	return nil
}

// Login authenticates with the given identifier and secret. The token
// endpoint's contract is form submission with fields username/password, not
// JSON. On success both tokens are persisted together, then the profile is
// fetched - the user is never observable before the tokens are set.
func (s *Session) Login(ctx context.Context, identifier, secret string) error {
	form := url.Values{}
	form.Set("username", identifier)
	form.Set("password", secret)

	var tr tokenResponse
	if err := s.deps.API.PostForm(ctx, "/auth/token", form, &tr); err != nil {
		s.log.Debug().Err(err).Msg("login rejected")
		return errors.Wrap(err, "[Session.Login]")
	}

	if err := s.deps.Store.SetPair(tr.AccessToken, tr.RefreshToken); err != nil {
		return errors.Wrap(err, "[Session.Login] persist tokens")
	}

	if err := s.fetchUser(ctx); err != nil {
		return errors.Wrap(err, "[Session.Login] fetch profile")
	}

	s.log.Info().Msg("logged in")
	return nil
}

// Register creates an account and then logs in with the submitted
// credentials in one flow. The registration is not rolled back when the
// auto-login fails: the server already persisted the account, and a later
// manual Login with the same credentials will succeed.
func (s *Session) Register(ctx context.Context, reg Registration) error {
	var created users.User
	if err := s.deps.API.PostJSON(ctx, "/auth/register", reg, &created); err != nil {
		return errors.Wrap(err, "[Session.Register]")
	}

	if err := s.Login(ctx, reg.Email, reg.Password); err != nil {
		return errors.Wrap(ErrPostRegisterLogin, err.Error())
	}
	return nil
}

// RefreshAccessToken explicitly mints a new access token with the held
// refresh token, sharing the transport's single-flight guard with any
// refresh a 401 may have triggered. Any failure tears down the whole
// session; refresh is never partial.
func (s *Session) RefreshAccessToken(ctx context.Context) (string, error) {
	if _, refresh := s.deps.Store.Pair(); refresh == "" {
		return "", ErrNoRefreshToken
	}

	access, err := s.deps.Transport.Refresh(ctx)
	if err != nil {
		// The transport already cleared the store and published the
		// unauthorized signal; make the teardown synchronous here too.
		s.Logout()
		return "", errors.Wrap(err, "[Session.RefreshAccessToken]")
	}
	return access, nil
}

// Logout clears the cached user and both tokens, from memory and disk, in
// one atomic step from any observer's perspective. It is idempotent and
// never fails: a store error is logged and the in-memory state still
// clears.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deps.Store.Clear(); err != nil {
		s.log.Error().Err(err).Msg("clearing persisted tokens")
	}
	if s.currentUser != nil {
		s.log.Info().Msg("logged out")
	}
	s.currentUser = nil
}

// UpdateUser merges server-confirmed profile fields into the cached user
// without a network round-trip. Callers pass only fields a profile-save
// call already confirmed; nothing is validated here. A no-op when logged
// out.
func (s *Session) UpdateUser(update users.ProfileUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUser == nil {
		return
	}

	merged := *s.currentUser
	if update.FullName != nil {
		merged.FullName = *update.FullName
	}
	if update.Bio != nil {
		merged.Bio = *update.Bio
	}
	if update.ProfileImage != nil {
		merged.ProfileImage = *update.ProfileImage
	}
	if update.MonthlyFee != nil {
		merged.MonthlyFee = *update.MonthlyFee
	}
	s.currentUser = &merged
}

// CurrentUser returns a copy of the cached authenticated user, or nil when
// logged out.
func (s *Session) CurrentUser() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return nil
	}
	u := *s.currentUser
	return &u
}

// AccessToken returns the current access token, empty when logged out.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	access, _ := s.deps.Store.Pair()
	return access
}

// IsLoading reports whether the startup session resolution is still in
// progress.
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

// fetchUser populates the cached user from the who-am-I endpoint using the
// currently held access token.
func (s *Session) fetchUser(ctx context.Context) error {
	var u users.User
	if err := s.deps.API.GetJSON(ctx, "/auth/me", &u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentUser = &u
	return nil
}
