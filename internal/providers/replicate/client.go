// Package replicate adapts the Replicate predictions API to the job poller.
package replicate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/replicate/replicate-go"
	"github.com/sony/gobreaker"

	"airemaster/internal/infra"
	"airemaster/internal/jobs"
)

// Name is the provider key jobs are registered under.
const Name = "replicate"

// ErrMissingToken indicates that the client was configured without credentials.
var ErrMissingToken = errors.New("replicate: api token is required")

type predictionAPI interface {
	CreatePrediction(ctx context.Context, version string, input replicate.PredictionInput, webhook *replicate.Webhook, stream bool) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
	CancelPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// Options configures the Replicate client.
type Options struct {
	Token   string
	BaseURL string
	// Versions maps job kinds to the model version used when a request does
	// not name one.
	Versions       map[jobs.Kind]string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Client submits predictions and reports their status. Calls go through a
// circuit breaker so a failing API is not hammered by every poller at once.
type Client struct {
	api      predictionAPI
	versions map[jobs.Kind]string
	breaker  *gobreaker.CircuitBreaker
	logger   *infra.Logger
}

// NewClient constructs a client backed by replicate-go.
func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, ErrMissingToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clientOpts := []replicate.ClientOption{
		replicate.WithToken(token),
		replicate.WithHTTPClient(httpClient),
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		clientOpts = append(clientOpts, replicate.WithBaseURL(base))
	}
	api, err := replicate.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: new client: %w", err)
	}
	return newClient(api, opts.Versions, opts.Logger), nil
}

func newClient(api predictionAPI, versions map[jobs.Kind]string, logger *infra.Logger) *Client {
	if logger == nil {
		logger = infra.NopLogger()
	}
	c := &Client{api: api, versions: versions, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        Name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("replicate: circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			var gone *callerGoneError
			return err == nil || errors.As(err, &gone)
		},
	})
	return c
}

// Submit creates a prediction for req.
func (c *Client) Submit(ctx context.Context, req jobs.Request) (jobs.Handle, error) {
	version := strings.TrimSpace(req.Model)
	if version == "" {
		version = c.versions[req.Kind]
	}
	if version == "" {
		return jobs.Handle{}, fmt.Errorf("replicate: no model version for %s", req.Kind)
	}
	input := replicate.PredictionInput{}
	for k, v := range req.Input {
		input[k] = v
	}
	pred, err := c.call(ctx, func() (*replicate.Prediction, error) {
		return c.api.CreatePrediction(ctx, version, input, nil, false)
	})
	if err != nil {
		return jobs.Handle{}, fmt.Errorf("replicate: create prediction: %w", err)
	}
	if pred.ID == "" {
		return jobs.Handle{}, errors.New("replicate: prediction without id")
	}
	c.logger.Debug().Str("prediction", pred.ID).Str("status", string(pred.Status)).Msg("replicate: prediction created")
	return jobs.Handle{ExternalID: pred.ID, StatusURL: pred.URLs["get"]}, nil
}

// Check fetches the prediction status once.
func (c *Client) Check(ctx context.Context, h jobs.Handle) (jobs.Observation, error) {
	pred, err := c.call(ctx, func() (*replicate.Prediction, error) {
		return c.api.GetPrediction(ctx, h.ExternalID)
	})
	if err != nil {
		return jobs.Observation{}, fmt.Errorf("replicate: get prediction %s: %w", h.ExternalID, err)
	}
	return jobs.Observation{
		Status: string(pred.Status),
		Output: outputURL(pred.Output),
		Error:  errorMessage(pred.Error),
	}, nil
}

// CancelExternal asks Replicate to stop the prediction.
func (c *Client) CancelExternal(ctx context.Context, h jobs.Handle) error {
	if h.ExternalID == "" {
		return nil
	}
	_, err := c.call(ctx, func() (*replicate.Prediction, error) {
		return c.api.CancelPrediction(ctx, h.ExternalID)
	})
	if err != nil {
		return fmt.Errorf("replicate: cancel prediction %s: %w", h.ExternalID, err)
	}
	return nil
}

// callerGoneError marks a failure that happened after the caller's context
// ended. It says nothing about the API's health and is not counted against
// the breaker.
type callerGoneError struct{ err error }

func (e *callerGoneError) Error() string { return e.err.Error() }
func (e *callerGoneError) Unwrap() error { return e.err }

func (c *Client) call(ctx context.Context, fn func() (*replicate.Prediction, error)) (*replicate.Prediction, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		pred, err := fn()
		if err != nil && ctx.Err() != nil {
			return nil, &callerGoneError{err: err}
		}
		return pred, err
	})
	var gone *callerGoneError
	if errors.As(err, &gone) {
		return nil, gone.err
	}
	if err != nil {
		return nil, err
	}
	pred, ok := res.(*replicate.Prediction)
	if !ok || pred == nil {
		return nil, errors.New("empty prediction")
	}
	return pred, nil
}

// outputURL extracts the result location. Upscalers return a single URL, most
// image models a list of them; the last entry is the final image.
func outputURL(out any) string {
	switch v := out.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for i := len(v) - 1; i >= 0; i-- {
			if s, ok := v[i].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	case []string:
		for i := len(v) - 1; i >= 0; i-- {
			if s := strings.TrimSpace(v[i]); s != "" {
				return s
			}
		}
	case map[string]any:
		for _, key := range []string{"output", "url", "image"} {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func errorMessage(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		if detail, ok := e["detail"].(string); ok {
			return detail
		}
	}
	return fmt.Sprint(v)
}

var (
	_ jobs.Provider  = (*Client)(nil)
	_ jobs.Canceller = (*Client)(nil)
)
