// Package analyses models published financial analyses and their routes,
// including the paywalled detail view and multipart creation with attached
// chart images.
package analyses

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/socialfinance/sofi-go/client"
	"github.com/socialfinance/sofi-go/users"
)

// maxImages is the number of image form fields the create endpoint accepts
// (image1 through image5).
const maxImages = 5

// Analysis is a published financial analysis. Author, Images and Tags come
// nested in detail responses.
type Analysis struct {
	ID            int        `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	TargetPrice   float64    `json:"target_price"`
	CurrentPrice  *float64   `json:"current_price,omitempty"`
	TimeHorizon   string     `json:"time_horizon"`
	TickerSymbol  string     `json:"ticker_symbol,omitempty"`
	SuccessStatus string     `json:"success_status"`
	AuthorID      int        `json:"author_id"`
	Author        users.User `json:"author"`
	Images        []Image    `json:"images"`
	Tags          []Tag      `json:"tags"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Image is a chart or screenshot attached to an analysis.
type Image struct {
	ID         int       `json:"id"`
	AnalysisID int       `json:"analysis_id"`
	ImagePath  string    `json:"image_path"`
	Caption    string    `json:"caption,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Tag labels an analysis.
type Tag struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the author-supplied content of a new analysis.
type Draft struct {
	Title        string
	Content      string
	TargetPrice  float64
	CurrentPrice *float64
	TimeHorizon  string
	TickerSymbol string
}

// Update is a partial edit of an existing analysis.
type Update struct {
	Title        *string  `json:"title,omitempty"`
	Content      *string  `json:"content,omitempty"`
	TargetPrice  *float64 `json:"target_price,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	TimeHorizon  *string  `json:"time_horizon,omitempty"`
	TickerSymbol *string  `json:"ticker_symbol,omitempty"`
}

// ImageUpload is one image attachment for Create or AddImage.
type ImageUpload struct {
	Filename string
	Caption  string
	Content  io.Reader
}

// ListOptions filter and page the analysis listing.
type ListOptions struct {
	AuthorID     int
	TickerSymbol string
	Skip         int
	Limit        int
}

// Service exposes the /analyses routes.
type Service struct {
	api *client.Client
}

// NewService builds an analysis Service over the shared API client.
func NewService(api *client.Client) (*Service, error) {
	if api == nil {
		return nil, errors.New("[analyses.NewService] api client is required")
	}
	return &Service{api: api}, nil
}

// List returns analyses, newest first, filtered by opts.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Analysis, error) {
	q := url.Values{}
	if opts.AuthorID > 0 {
		q.Set("author_id", strconv.Itoa(opts.AuthorID))
	}
	if opts.TickerSymbol != "" {
		q.Set("ticker_symbol", opts.TickerSymbol)
	}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/analyses"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []Analysis
	if err := s.api.GetJSON(ctx, path, &out); err != nil {
		return nil, errors.Wrap(err, "[analyses.Service.List]")
	}
	return out, nil
}

// Mine returns the authenticated user's own analyses.
func (s *Service) Mine(ctx context.Context) ([]Analysis, error) {
	var out []Analysis
	if err := s.api.GetJSON(ctx, "/users/me/analyses", &out); err != nil {
		return nil, errors.Wrap(err, "[analyses.Service.Mine]")
	}
	return out, nil
}

// Get returns one analysis with nested author, images and tags. Access to
// another author's gated content without an active subscription comes back
// as an AuthError carrying the server's paywall message.
func (s *Service) Get(ctx context.Context, id int) (*Analysis, error) {
	var out Analysis
	if err := s.api.GetJSON(ctx, fmt.Sprintf("/analyses/%d", id), &out); err != nil {
		return nil, errors.Wrapf(err, "[analyses.Service.Get] id=%d", id)
	}
	return &out, nil
}

// Create publishes a new analysis. The endpoint takes multipart form data:
// scalar fields plus up to five optional images named image1..image5.
func (s *Service) Create(ctx context.Context, draft Draft, images ...ImageUpload) (*Analysis, error) {
	if len(images) > maxImages {
		return nil, errors.Errorf("[analyses.Service.Create] at most %d images, got %d", maxImages, len(images))
	}

	build := func(mw *multipart.Writer) error {
		mw.WriteField("title", draft.Title)
		mw.WriteField("content", draft.Content)
		mw.WriteField("target_price", strconv.FormatFloat(draft.TargetPrice, 'f', -1, 64))
		if draft.CurrentPrice != nil {
			mw.WriteField("current_price", strconv.FormatFloat(*draft.CurrentPrice, 'f', -1, 64))
		}
		mw.WriteField("time_horizon", draft.TimeHorizon)
		if draft.TickerSymbol != "" {
			mw.WriteField("ticker_symbol", draft.TickerSymbol)
		}

		for i, img := range images {
			part, err := mw.CreateFormFile(fmt.Sprintf("image%d", i+1), img.Filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, img.Content); err != nil {
				return err
			}
		}
		return nil
	}

	var out Analysis
	if err := s.api.PostMultipart(ctx, "/analyses", build, &out); err != nil {
		return nil, errors.Wrap(err, "[analyses.Service.Create]")
	}
	return &out, nil
}

// Update applies a partial edit to an analysis the caller authored.
func (s *Service) Update(ctx context.Context, id int, update Update) (*Analysis, error) {
	var out Analysis
	if err := s.api.PutJSON(ctx, fmt.Sprintf("/analyses/%d", id), update, &out); err != nil {
		return nil, errors.Wrapf(err, "[analyses.Service.Update] id=%d", id)
	}
	return &out, nil
}

// Delete removes an analysis the caller authored.
func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("/analyses/%d", id), nil); err != nil {
		return errors.Wrapf(err, "[analyses.Service.Delete] id=%d", id)
	}
	return nil
}

// Images lists the images attached to an analysis.
func (s *Service) Images(ctx context.Context, id int) ([]Image, error) {
	var out []Image
	if err := s.api.GetJSON(ctx, fmt.Sprintf("/analyses/%d/images", id), &out); err != nil {
		return nil, errors.Wrapf(err, "[analyses.Service.Images] id=%d", id)
	}
	return out, nil
}

// AddImage attaches one more image to an analysis the caller authored.
func (s *Service) AddImage(ctx context.Context, id int, img ImageUpload) (*Image, error) {
	build := func(mw *multipart.Writer) error {
		part, err := mw.CreateFormFile("image", img.Filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, img.Content); err != nil {
			return err
		}
		if img.Caption != "" {
			mw.WriteField("caption", img.Caption)
		}
		return nil
	}

	var out Image
	if err := s.api.PostMultipart(ctx, fmt.Sprintf("/analyses/%d/images", id), build, &out); err != nil {
		return nil, errors.Wrapf(err, "[analyses.Service.AddImage] id=%d", id)
	}
	return &out, nil
}
