// Package rft talks to the reinforcement fine-tuning grader endpoints.
package rft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/signalnine/rftgrader/internal/grader"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"

	ValidatePath = "/fine_tuning/alpha/graders/validate"
	RunPath      = "/fine_tuning/alpha/graders/run"
)

var ErrMissingAPIKey = errors.New("api key not set")

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIKeyFromEnv reads the bearer token from the named variable.
func APIKeyFromEnv(name string) (string, error) {
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}
	return key, nil
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient Doer
	Logger     zerolog.Logger
}

type Client struct {
	baseURL string
	apiKey  string
	http    Doer
	logger  zerolog.Logger
}

// NewClient builds a client. Requests carry no timeout of their own; the
// caller's context bounds them.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		http:    httpClient,
		logger:  opts.Logger,
	}, nil
}

type validateRequest struct {
	Grader *grader.GraderSpec `json:"grader"`
}

// RunRequest is the body of a grader run.
type RunRequest struct {
	Grader      *grader.GraderSpec `json:"grader"`
	Item        map[string]any     `json:"item"`
	ModelSample string             `json:"model_sample"`
}

// Validate asks the service to check that spec is a usable grader.
func (c *Client) Validate(ctx context.Context, spec *grader.GraderSpec) (*Response, error) {
	return c.post(ctx, ValidatePath, validateRequest{Grader: spec})
}

// Run executes spec once against the given item and sample.
func (c *Client) Run(ctx context.Context, req *RunRequest) (*Response, error) {
	return c.post(ctx, RunPath, req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", path, err)
	}
	clientID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Client-Request-Id", clientID)

	c.logger.Debug().Str("url", req.URL.String()).Str("client_request_id", clientID).Msg("posting grader request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	out := &Response{
		Endpoint:        path,
		StatusCode:      resp.StatusCode,
		Body:            string(data),
		RequestID:       resp.Header.Get("X-Request-Id"),
		ClientRequestID: clientID,
	}
	c.logger.Debug().Str("endpoint", path).Int("status", out.StatusCode).Str("request_id", out.RequestID).Msg("grader response")
	return out, nil
}
