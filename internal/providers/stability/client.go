// Package stability calls the Stability AI (DreamStudio) text-to-image API.
package stability

import (
	"bytes"
	"context"
	"encoding/base64"
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
var ErrMissingAPIKey = errors.New("stability: api key is required")

const (
	defaultBaseURL = "https://api.stability.ai"
	defaultEngine  = "stable-diffusion-v1-6"
	maxSamples     = 10
	minEdge        = 320
	maxEdge        = 1536
)

// Options configures the text-to-image client.
type Options struct {
	APIKey         string
	BaseURL        string
	Engine         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Client performs HTTP calls to the Stability generation API.
type Client struct {
	apiKey     string
	baseURL    string
	engine     string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageRequest captures the inputs of one generation call.
type ImageRequest struct {
	Prompt string
	N      int
	// Size is the edge length in pixels.
	Size string
}

// Image is one decoded artifact.
type Image struct {
	Data        []byte
	ContentType string
	Seed        int64
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type generationRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	Samples     int          `json:"samples"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	CfgScale    float64      `json:"cfg_scale"`
	Steps       int          `json:"steps"`
}

type generationResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
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
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	engine := strings.TrimSpace(opts.Engine)
	if engine == "" {
		engine = defaultEngine
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		engine:     engine,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Generate renders req and returns the decoded images. Artifacts removed by
// the content filter are skipped; a response with none left is an error.
func (c *Client) Generate(ctx context.Context, req ImageRequest) ([]Image, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("stability: prompt is required")
	}
	samples := req.N
	if samples < 1 {
		samples = 1
	}
	if samples > maxSamples {
		samples = maxSamples
	}
	edge := edgeFor(req.Size)
	body, err := json.Marshal(generationRequest{
		TextPrompts: []textPrompt{{Text: prompt, Weight: 1}},
		Samples:     samples,
		Width:       edge,
		Height:      edge,
		CfgScale:    7,
		Steps:       30,
	})
	if err != nil {
		return nil, fmt.Errorf("stability: encode request: %w", err)
	}
	endpoint := c.baseURL + "/v1/generation/" + c.engine + "/text-to-image"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stability: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("stability: %s (%s)", detail.Message, detail.Name)
		}
		return nil, fmt.Errorf("stability: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("stability: decode response: %w", err)
	}
	images := make([]Image, 0, len(decoded.Artifacts))
	filtered := 0
	for _, a := range decoded.Artifacts {
		if a.FinishReason == "CONTENT_FILTERED" {
			filtered++
			continue
		}
		data, err := base64.StdEncoding.DecodeString(a.Base64)
		if err != nil {
			return nil, fmt.Errorf("stability: decode artifact: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		images = append(images, Image{Data: data, ContentType: "image/png", Seed: a.Seed})
	}
	if len(images) == 0 {
		if filtered > 0 {
			return nil, errors.New("stability: every image was removed by the content filter")
		}
		return nil, errors.New("stability: empty artifact list")
	}
	c.logger.Debug().Str("engine", c.engine).Int("images", len(images)).Int("filtered", filtered).Msg("stability: generated images")
	return images, nil
}

// edgeFor clamps the requested edge into the range the engine accepts, in
// multiples of 64.
func edgeFor(size string) int {
	edge, err := strconv.Atoi(strings.TrimSpace(size))
	if err != nil || edge <= 0 {
		edge = 512
	}
	edge = edge / 64 * 64
	if edge < minEdge {
		edge = 512
	}
	if edge > maxEdge {
		edge = maxEdge
	}
	return edge
}
