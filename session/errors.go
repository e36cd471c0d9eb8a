package session

import "github.com/pkg/errors"

var (
	// ErrNoRefreshToken is returned by RefreshAccessToken when no refresh
	// token is held.
	ErrNoRefreshToken = errors.New("no refresh token held")

	// ErrPostRegisterLogin marks a registration whose account was created
	// server-side but whose automatic login failed. The account is not
	// rolled back; a later manual login with the same credentials works.
	ErrPostRegisterLogin = errors.New("account created but automatic login failed")
)
