// Package users models platform users and the profile endpoints.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/socialfinance/sofi-go/client"
)

// User is the public record of a platform user, as returned by the API.
type User struct {
	ID           int        `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	ProfileImage string     `json:"profile_image,omitempty"`
	MonthlyFee   float64    `json:"monthly_fee"`
	IsVerified   bool       `json:"is_verified"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// WithStats is a User plus the aggregates shown on listing pages.
type WithStats struct {
	User
	TotalAnalyses   int      `json:"total_analyses"`
	SuccessRate     *float64 `json:"success_rate,omitempty"`
	SubscriberCount int      `json:"subscriber_count"`
}

// ProfileUpdate is a partial profile edit. Nil fields are left unchanged
// server-side.
type ProfileUpdate struct {
	FullName     *string  `json:"full_name,omitempty"`
	Bio          *string  `json:"bio,omitempty"`
	ProfileImage *string  `json:"profile_image,omitempty"`
	MonthlyFee   *float64 `json:"monthly_fee,omitempty"`
}

// Service exposes the /users routes.
type Service struct {
	api *client.Client
}

// NewService builds a user Service over the shared API client.
func NewService(api *client.Client) (*Service, error) {
	if api == nil {
		return nil, errors.New("[users.NewService] api client is required")
	}
	return &Service{api: api}, nil
}

// List returns all users with their statistics.
func (s *Service) List(ctx context.Context) ([]WithStats, error) {
	var out []WithStats
	if err := s.api.GetJSON(ctx, "/users", &out); err != nil {
		return nil, errors.Wrap(err, "[users.Service.List]")
	}
	return out, nil
}

// Get returns one user with statistics.
func (s *Service) Get(ctx context.Context, id int) (*WithStats, error) {
	var out WithStats
	if err := s.api.GetJSON(ctx, fmt.Sprintf("/users/%d", id), &out); err != nil {
		return nil, errors.Wrapf(err, "[users.Service.Get] id=%d", id)
	}
	return &out, nil
}

// Me returns the authenticated user's own profile.
func (s *Service) Me(ctx context.Context) (*User, error) {
	var out User
	if err := s.api.GetJSON(ctx, "/users/me", &out); err != nil {
		return nil, errors.Wrap(err, "[users.Service.Me]")
	}
	return &out, nil
}

// UpdateProfile applies a partial edit to the authenticated user's profile
// and returns the server-confirmed record. Callers that hold a session
// should feed the result to its UpdateUser so the cached user stays in sync.
func (s *Service) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	var out User
	if err := s.api.PutJSON(ctx, "/users/me", update, &out); err != nil {
		return nil, errors.Wrap(err, "[users.Service.UpdateProfile]")
	}
	return &out, nil
}
