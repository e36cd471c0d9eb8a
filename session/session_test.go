package session_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/events"
	"github.com/socialfinance/sofi-go/session"
	"github.com/socialfinance/sofi-go/tokens"
	"github.com/socialfinance/sofi-go/transport"
	"github.com/socialfinance/sofi-go/users"
)

// account is a registered user on the fake backend.
type account struct {
	id       int
	username string
	email    string
	password string
}

// authBackend fakes the auth routes of the Social Finance API.
type authBackend struct {
	mu       sync.Mutex
	accounts map[string]*account // by email
	nextID   int

	validAccess  map[string]string // access token -> email
	validRefresh map[string]string // refresh token -> email
	issued       int               // counts token pairs handed out

	rejectLogin   bool // force /auth/token to 401
	rejectRefresh bool // force /auth/refresh to 401
}

func newAuthBackend() *authBackend {
	return &authBackend{
		accounts:     map[string]*account{},
		validAccess:  map[string]string{},
		validRefresh: map[string]string{},
		nextID:       1,
	}
}

func (b *authBackend) addAccount(email, username, password string) *account {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := &account{id: b.nextID, username: username, email: email, password: password}
	b.nextID++
	b.accounts[email] = a
	return a
}

// issueTokens mints a T<n>/R<n> pair for email and marks them valid.
func (b *authBackend) issueTokens(email string) (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issued++
	access := "T" + strings.Repeat("x", b.issued)
	refresh := "R" + strings.Repeat("x", b.issued)
	b.validAccess[access] = email
	b.validRefresh[refresh] = email
	return access, refresh
}

func (b *authBackend) revokeAccess(access string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.validAccess, access)
}

func (b *authBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, `{"detail":"bad form"}`, http.StatusBadRequest)
			return
		}
		email := r.PostForm.Get("username")
		password := r.PostForm.Get("password")

		b.mu.Lock()
		a, ok := b.accounts[email]
		reject := b.rejectLogin
		b.mu.Unlock()
		if reject || !ok || a.password != password {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Incorrect email or password"}`)
			return
		}

		access, refresh := b.issueTokens(email)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "bearer",
		})
	})

	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var reg session.Registration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			http.Error(w, `{"detail":"bad body"}`, http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		_, exists := b.accounts[reg.Email]
		b.mu.Unlock()
		if exists {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"detail":"Email or username already registered"}`)
			return
		}
		a := b.addAccount(reg.Email, reg.Username, reg.Password)
		json.NewEncoder(w).Encode(users.User{ID: a.id, Username: a.username, Email: a.email, CreatedAt: time.Now()})
	})

	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		email, ok := b.validAccess[token]
		a := b.accounts[email]
		b.mu.Unlock()
		if !ok || a == nil {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Could not validate credentials"}`)
			return
		}
		json.NewEncoder(w).Encode(users.User{ID: a.id, Username: a.username, Email: a.email, CreatedAt: time.Now()})
	})

	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		email, ok := b.validRefresh[token]
		reject := b.rejectRefresh
		b.mu.Unlock()
		if reject || !ok {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Invalid refresh token"}`)
			return
		}
		access, _ := b.issueTokens(email)
		json.NewEncoder(w).Encode(map[string]string{"access_token": access, "token_type": "bearer"})
	})

	return mux
}

type fixture struct {
	backend   *authBackend
	store     *tokens.MemoryStore
	bus       *events.Bus
	transport *transport.Transport
	session   *session.Session
	api       *client.Client
}

func setup(t *testing.T) *fixture {
	t.Helper()

	backend := newAuthBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	store := tokens.NewMemoryStore()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	tr, err := transport.New(transport.Deps{
		Store:   store,
		Bus:     bus,
		BaseURL: srv.URL + client.APIPrefix,
	})
	require.NoError(t, err)

	api, err := client.New(srv.URL, &http.Client{Transport: tr}, zerolog.Nop())
	require.NoError(t, err)

	sess, err := session.New(session.Deps{
		API:       api,
		Store:     store,
		Transport: tr,
		Bus:       bus,
	})
	require.NoError(t, err)

	return &fixture{
		backend:   backend,
		store:     store,
		bus:       bus,
		transport: tr,
		session:   sess,
		api:       api,
	}
}

func TestLoginPopulatesUserFromWhoAmI(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")

	require.NoError(t, f.session.Login(context.Background(), "a@b.com", "pw"))

	u := f.session.CurrentUser()
	require.NotNil(t, u)
	require.Equal(t, "a", u.Username)
	require.Equal(t, 1, u.ID)

	access, refresh := f.store.Pair()
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	require.Equal(t, access, f.session.AccessToken())
}

func TestLoginBadCredentials(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")

	err := f.session.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)
	require.True(t, client.IsAuthError(err))
	require.Equal(t, "Incorrect email or password", client.Message(err))

	require.Nil(t, f.session.CurrentUser())
	access, refresh := f.store.Pair()
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	require.NoError(t, f.session.Login(context.Background(), "a@b.com", "pw"))

	f.session.Logout()

	require.Nil(t, f.session.CurrentUser())
	require.Empty(t, f.session.AccessToken())
	access, refresh := f.store.Pair()
	require.Empty(t, access)
	require.Empty(t, refresh)

	// Idempotent.
	f.session.Logout()
	require.Nil(t, f.session.CurrentUser())
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	require.NoError(t, f.session.Login(context.Background(), "a@b.com", "pw"))

	f.backend.rejectRefresh = true
	_, err := f.session.RefreshAccessToken(context.Background())
	require.Error(t, err)

	require.Nil(t, f.session.CurrentUser())
	access, refresh := f.store.Pair()
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestRefreshWithoutTokenFailsImmediately(t *testing.T) {
	f := setup(t)
	_, err := f.session.RefreshAccessToken(context.Background())
	require.ErrorIs(t, err, session.ErrNoRefreshToken)
}

func TestExplicitRefreshReplacesAccessToken(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	require.NoError(t, f.session.Login(context.Background(), "a@b.com", "pw"))
	before := f.session.AccessToken()

	after, err := f.session.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.Equal(t, after, f.session.AccessToken())

	_, refresh := f.store.Pair()
	require.NotEmpty(t, refresh, "refresh token survives an explicit refresh")
}

func TestRegisterAutoLogsIn(t *testing.T) {
	f := setup(t)

	err := f.session.Register(context.Background(), session.Registration{
		Username: "newbie",
		Email:    "new@b.com",
		Password: "pw",
	})
	require.NoError(t, err)

	u := f.session.CurrentUser()
	require.NotNil(t, u)
	require.Equal(t, "newbie", u.Username)
}

func TestRegisterDuplicatePassesMessageVerbatim(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")

	err := f.session.Register(context.Background(), session.Registration{
		Username: "a2",
		Email:    "a@b.com",
		Password: "pw",
	})
	require.Error(t, err)
	require.True(t, client.IsValidationError(err))
	require.Equal(t, "Email or username already registered", client.Message(err))
}

func TestRegisterSurvivesFailedAutoLogin(t *testing.T) {
	f := setup(t)
	f.backend.rejectLogin = true

	err := f.session.Register(context.Background(), session.Registration{
		Username: "newbie",
		Email:    "new@b.com",
		Password: "pw",
	})
	require.ErrorIs(t, err, session.ErrPostRegisterLogin)
	require.Nil(t, f.session.CurrentUser())

	// The account was not rolled back: a later manual login succeeds.
	f.backend.mu.Lock()
	f.backend.rejectLogin = false
	f.backend.mu.Unlock()
	require.NoError(t, f.session.Login(context.Background(), "new@b.com", "pw"))
	require.NotNil(t, f.session.CurrentUser())
}

func TestBootstrapWithValidPersistedToken(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	access, refresh := f.backend.issueTokens("a@b.com")
	require.NoError(t, f.store.SetPair(access, refresh))

	require.True(t, f.session.IsLoading())
	require.NoError(t, f.session.Bootstrap(context.Background()))
	require.False(t, f.session.IsLoading())

	u := f.session.CurrentUser()
	require.NotNil(t, u)
	require.Equal(t, "a", u.Username)
}

func TestBootstrapFailClosedOnBadToken(t *testing.T) {
	f := setup(t)
	// A persisted token the server no longer accepts, and no refresh token
	// to recover with.
	require.NoError(t, f.store.SetPair("stale", ""))

	err := f.session.Bootstrap(context.Background())
	require.Error(t, err)
	require.False(t, f.session.IsLoading())
	require.Nil(t, f.session.CurrentUser())

	access, _ := f.store.Pair()
	require.Empty(t, access, "an unverifiable token is treated as absent")
}

func TestBootstrapWithoutTokenSkipsNetwork(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.session.Bootstrap(context.Background()))
	require.False(t, f.session.IsLoading())
	require.Nil(t, f.session.CurrentUser())
}

func TestBootstrapRecoversViaRefresh(t *testing.T) {
	// The persisted access token is stale but the refresh token is good:
	// the transport refreshes mid-bootstrap and the session comes up.
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	access, refresh := f.backend.issueTokens("a@b.com")
	f.backend.revokeAccess(access)
	require.NoError(t, f.store.SetPair(access, refresh))

	require.NoError(t, f.session.Bootstrap(context.Background()))
	u := f.session.CurrentUser()
	require.NotNil(t, u)
	require.Equal(t, "a", u.Username)

	newAccess, _ := f.store.Pair()
	require.NotEqual(t, access, newAccess)
}

func TestUnauthorizedSignalEndsSession(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	require.NoError(t, f.session.Login(context.Background(), "a@b.com", "pw"))

	f.bus.Publish(events.TopicUnauthorized)

	require.Eventually(t, func() bool {
		return f.session.CurrentUser() == nil && f.session.AccessToken() == ""
	}, time.Second, 5*time.Millisecond)
}

func TestUpdateUserMergesPartial(t *testing.T) {
	f := setup(t)
	f.backend.addAccount("a@b.com", "a", "pw")
	require.NoError(t, f.session.Login(context.Background(), "a@b.com", "pw"))

	bio := "value investor"
	fee := 9.99
	f.session.UpdateUser(users.ProfileUpdate{Bio: &bio, MonthlyFee: &fee})

	u := f.session.CurrentUser()
	require.Equal(t, "value investor", u.Bio)
	require.Equal(t, 9.99, u.MonthlyFee)
	require.Equal(t, "a", u.Username, "untouched fields survive the merge")
}

func TestUpdateUserLoggedOutIsNoOp(t *testing.T) {
	f := setup(t)
	bio := "x"
	f.session.UpdateUser(users.ProfileUpdate{Bio: &bio})
	require.Nil(t, f.session.CurrentUser())
}
