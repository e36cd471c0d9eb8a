package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// refreshResponse is the body of a successful POST /auth/refresh.
type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// Refresh mints a new access token using the held refresh token and
// persists it. Concurrent callers collapse onto one in-flight attempt and
// share its outcome.
//
// Failure is never partial: any error here clears both tokens and publishes
// the unauthorized signal before returning.
func (t *Transport) Refresh(ctx context.Context) (string, error) {
	v, err, _ := t.group.Do("refresh", func() (interface{}, error) {
		return t.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *Transport) refresh(ctx context.Context) (string, error) {
	_, refreshToken := t.store.Pair()
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	access, err := t.requestNewAccessToken(ctx, refreshToken)
	if err != nil {
		t.log.Warn().Err(err).Msg("token refresh failed, tearing down session")
		if t.metrics != nil {
			t.metrics.RecordRefresh(true)
		}
		if clearErr := t.store.Clear(); clearErr != nil {
			t.log.Error().Err(clearErr).Msg("clearing token store")
		}
		t.signalUnauthorized()
		return "", err
	}

	if t.metrics != nil {
		t.metrics.RecordRefresh(false)
	}
	if err := t.store.SetAccess(access); err != nil {
		return "", errors.Wrap(err, "[Transport.refresh] persist access token")
	}
	return access, nil
}

// requestNewAccessToken performs the raw refresh call. The request itself
// authenticates with the refresh token as the bearer credential, and it
// goes out on the bare client so it can never recurse into RoundTrip.
func (t *Transport) requestNewAccessToken(ctx context.Context, refreshToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/auth/refresh", nil)
	if err != nil {
		return "", errors.Wrap(err, "[Transport.refresh] build request")
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := t.refreshClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "[Transport.refresh] call refresh endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", errors.Errorf("[Transport.refresh] refresh endpoint returned %d", resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "[Transport.refresh] decode response")
	}
	if body.AccessToken == "" {
		return "", errors.New("[Transport.refresh] empty access token in response")
	}
	return body.AccessToken, nil
}
