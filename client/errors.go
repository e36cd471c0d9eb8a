package client

import (
	"fmt"

	"github.com/pkg/errors"
)

// The API reports failures as {"detail": "..."} with a conventional status
// code. The client folds them into three families: authorization failures
// (displayable, may force logout), server-side validation failures (message
// passed through verbatim), and transport failures (generic "try again").

// ErrNotFound marks 404 responses for errors.Is checks.
var ErrNotFound = errors.New("not found")

// AuthError is an authentication or authorization failure: bad credentials,
// an expired or invalid token, or a paywall rejection. The message is safe
// to show to the user.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%d): %s", e.Status, e.Message)
}

// ValidationError is a server-side rejection of the submitted data, e.g. a
// duplicate username. The server's message is carried verbatim.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%d): %s", e.Status, e.Message)
}

// NetworkError is a transport-level failure: the request never produced an
// HTTP response. Surfaced to users as a generic "try again".
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Message extracts the user-displayable text from any client error.
func Message(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if IsNetworkError(err) {
		return "Something went wrong. Please try again."
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
