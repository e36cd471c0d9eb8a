// Package client is the REST core every API surface builds on: URL joining,
// request encoding, response decoding, and mapping of API failures into the
// client error taxonomy. Token handling never appears here - it lives
// entirely in the transport the injected http.Client carries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// APIPrefix is the versioned path every route lives under.
const APIPrefix = "/api/v1"

// Client issues JSON/form/multipart requests against the Social Finance API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New builds a Client for the API at origin (e.g. "http://localhost:8000").
// httpClient must carry the session transport; it is required so a Client
// can never be built that silently skips the 401 handling.
func New(origin string, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if origin == "" {
		return nil, errors.New("[client.New] origin is required")
	}
	if httpClient == nil {
		return nil, errors.New("[client.New] http client is required")
	}
	return &Client{
		baseURL: strings.TrimRight(origin, "/") + APIPrefix,
		http:    httpClient,
		log:     log,
	}, nil
}

// BaseURL returns the versioned API base, e.g. "http://host/api/v1".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON issues a GET and decodes the 2xx response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

// PostJSON issues a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "[Client.PostJSON] marshal")
	}
	return c.do(ctx, http.MethodPost, path, "application/json", body, out)
}

// PutJSON issues a PUT with a JSON body.
func (c *Client) PutJSON(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "[Client.PutJSON] marshal")
	}
	return c.do(ctx, http.MethodPut, path, "application/json", body, out)
}

// Delete issues a DELETE, decoding any 2xx body into out when non-nil.
func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, "", nil, out)
}

// PostForm issues a POST with an application/x-www-form-urlencoded body.
// The login endpoint is the one consumer: the server's token route reads
// form fields, not JSON, and that contract is fixed.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", []byte(form.Encode()), out)
}

// PostMultipart issues a POST with a multipart/form-data body assembled by
// build. The whole body is buffered up front so the transport can replay it
// if the request is retried after a token refresh.
func (c *Client) PostMultipart(ctx context.Context, path string, build func(*multipart.Writer) error, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := build(mw); err != nil {
		mw.Close()
		return errors.Wrap(err, "[Client.PostMultipart] build body")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "[Client.PostMultipart] close writer")
	}
	return c.do(ctx, http.MethodPost, path, mw.FormDataContentType(), buf.Bytes(), out)
}

// do builds the request from a byte buffer (so GetBody is always rewindable
// for the transport's retry), executes it, and maps the outcome.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "[Client.do] build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed in transit")
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "[Client.do] decode %s %s response", method, path)
	}
	return nil
}

// errorPayload is the API's error body shape.
type errorPayload struct {
	Detail string `json:"detail"`
}

func (c *Client) apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload errorPayload
	detail := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode, Message: detail}
	case http.StatusNotFound:
		return errors.Wrap(ErrNotFound, detail)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return &ValidationError{Status: resp.StatusCode, Message: detail}
	default:
		return errors.Errorf("api returned status %d: %s", resp.StatusCode, detail)
	}
}
