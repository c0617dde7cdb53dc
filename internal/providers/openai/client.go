// Package openai calls the OpenAI images API for synchronous text-to-image.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"airemaster/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "dall-e-2"
	maxImages      = 10
)

// Options configures the images client.
type Options struct {
	APIKey         string
	BaseURL        string
	Organization   string
	Model          string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Client performs HTTP calls to the OpenAI images API.
type Client struct {
	apiKey       string
	baseURL      string
	organization string
	model        string
	httpClient   *http.Client
	logger       *infra.Logger
}

// ImageRequest captures the inputs of one generation call.
type ImageRequest struct {
	Prompt string
	N      int
	// Size is the edge length in pixels ("256", "512", "1024") or a full
	// "WxH" value.
	Size string
}

type generationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewClient constructs a client with defaults applied.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		model:        model,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate creates images for req and returns their temporary URLs.
func (c *Client) Generate(ctx context.Context, req ImageRequest) ([]string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("openai: prompt is required")
	}
	n := req.N
	if n < 1 {
		n = 1
	}
	if n > maxImages {
		n = maxImages
	}
	payload := generationRequest{
		Model:          c.model,
		Prompt:         prompt,
		N:              n,
		Size:           normalizeSize(req.Size),
		ResponseFormat: "url",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			return nil, fmt.Errorf("openai: %s (%s)", detail.Error.Message, detail.Error.Type)
		}
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	urls := make([]string, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		if u := strings.TrimSpace(item.URL); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, errors.New("openai: empty image list")
	}
	c.logger.Debug().Str("model", c.model).Int("images", len(urls)).Msg("openai: generated images")
	return urls, nil
}

// normalizeSize turns "512" into "512x512"; anything else passes through.
func normalizeSize(size string) string {
	size = strings.TrimSpace(size)
	if size == "" {
		return "512x512"
	}
	if _, err := strconv.Atoi(size); err == nil {
		return size + "x" + size
	}
	return size
}
