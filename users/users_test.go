package users_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/users"
)

func newService(t *testing.T, handler http.Handler) *users.Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api, err := client.New(srv.URL, srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	svc, err := users.NewService(api)
	require.NoError(t, err)
	return svc
}

func TestListDecodesStats(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/users", r.URL.Path)
		io.WriteString(w, `[{"id":1,"username":"a","email":"a@b.com","monthly_fee":5,
			"total_analyses":3,"subscriber_count":12,"created_at":"2026-08-01T00:00:00Z"}]`)
	}))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "a", list[0].Username)
	require.Equal(t, 3, list[0].TotalAnalyses)
	require.Equal(t, 12, list[0].SubscriberCount)
}

func TestGetNotFound(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"User not found"}`)
	}))

	_, err := svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, client.ErrNotFound)
}

func TestUpdateProfileSendsOnlySetFields(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v1/users/me", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "new bio", body["bio"])
		_, hasName := body["full_name"]
		require.False(t, hasName, "nil fields must stay out of the payload")

		io.WriteString(w, `{"id":1,"username":"a","email":"a@b.com","bio":"new bio","created_at":"2026-08-01T00:00:00Z"}`)
	}))

	bio := "new bio"
	u, err := svc.UpdateProfile(context.Background(), users.ProfileUpdate{Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, "new bio", u.Bio)
}
