// Package subscriptions models paid author subscriptions: creating one
// (which may hand back a Stripe checkout redirect), listing, cancelling,
// and the gate check pages run before rendering paid content.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/users"
)

// Subscription is an active or cancelled paid subscription between a
// subscriber and a creator.
type Subscription struct {
	ID                   int        `json:"id"`
	CreatorID            int        `json:"creator_id"`
	SubscriberID         int        `json:"subscriber_id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	Creator              users.User `json:"creator"`
	Subscriber           users.User `json:"subscriber"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// CreateResult is the outcome of Create. When the payment flow needs a
// browser step, StripeCheckoutURL is set and the subscription is not yet
// active; otherwise Subscription carries the confirmed record.
type CreateResult struct {
	Subscription      *Subscription
	StripeCheckoutURL string
}

// CheckResult reports whether the caller is subscribed to a creator and
// what the creator charges per month.
type CheckResult struct {
	IsSubscribed bool    `json:"is_subscribed"`
	MonthlyPrice float64 `json:"monthly_price"`
}

// createRequest is the body of POST /subscriptions.
type createRequest struct {
	CreatorID    int     `json:"creator_id"`
	MonthlyPrice float64 `json:"monthly_price,omitempty"`
}

// createResponse covers both server reply shapes for Create.
type createResponse struct {
	Subscription
	StripeCheckoutURL string `json:"stripe_checkout_url,omitempty"`
}

// Service exposes the /subscriptions routes.
type Service struct {
	api *client.Client
}

// NewService builds a subscription Service over the shared API client.
func NewService(api *client.Client) (*Service, error) {
	if api == nil {
		return nil, errors.New("[subscriptions.NewService] api client is required")
	}
	return &Service{api: api}, nil
}

// Create subscribes the caller to a creator at the given monthly price.
func (s *Service) Create(ctx context.Context, creatorID int, monthlyPrice float64) (*CreateResult, error) {
	var out createResponse
	req := createRequest{CreatorID: creatorID, MonthlyPrice: monthlyPrice}
	if err := s.api.PostJSON(ctx, "/subscriptions", req, &out); err != nil {
		return nil, errors.Wrapf(err, "[subscriptions.Service.Create] creator=%d", creatorID)
	}

	result := &CreateResult{StripeCheckoutURL: out.StripeCheckoutURL}
	if out.ID != 0 {
		sub := out.Subscription
		result.Subscription = &sub
	}
	return result, nil
}

// Check reports the caller's subscription state for a creator.
func (s *Service) Check(ctx context.Context, creatorID int) (*CheckResult, error) {
	var out CheckResult
	if err := s.api.GetJSON(ctx, fmt.Sprintf("/subscriptions/check/%d", creatorID), &out); err != nil {
		return nil, errors.Wrapf(err, "[subscriptions.Service.Check] creator=%d", creatorID)
	}
	return &out, nil
}

// Mine returns the caller's subscriptions to creators.
func (s *Service) Mine(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	if err := s.api.GetJSON(ctx, "/users/me/subscriptions", &out); err != nil {
		return nil, errors.Wrap(err, "[subscriptions.Service.Mine]")
	}
	return out, nil
}

// Subscribers returns the subscriptions other users hold to the caller.
func (s *Service) Subscribers(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	if err := s.api.GetJSON(ctx, "/users/me/subscribers", &out); err != nil {
		return nil, errors.Wrap(err, "[subscriptions.Service.Subscribers]")
	}
	return out, nil
}

// Cancel ends one of the caller's subscriptions.
func (s *Service) Cancel(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("/subscriptions/%d", id), nil); err != nil {
		return errors.Wrapf(err, "[subscriptions.Service.Cancel] id=%d", id)
	}
	return nil
}
