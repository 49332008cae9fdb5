package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/shouldiwash/shouldiwash/pkg/common"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.finnhagan.co.uk/api"

	// responses are small JSON documents, anything larger is not from the API
	maxResponseBytes = 1 << 20
)

var (
	// ErrNotLoggedIn is returned, without making a request, when an endpoint
	// that needs a session token is called without one.
	ErrNotLoggedIn = errors.New("not logged in")

	submissionIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Client talks to the "Should I Put My Washing On?" API. It never retries; a
// failed call is returned to the caller as is.
type Client struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// New returns a client for the API at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  common.HTTPClient(timeout),
		baseURL: baseURL,
	}
}

// Configured sets up flags for the API client and returns the instance.
// It uses lflag to register command-line flags for configuration.
func Configured() *Client {
	c := &Client{}
	apiURL := lflag.String("api-url", defaultBaseURL, "Base URL of the Should I Put My Washing On? API")
	timeout := lflag.Duration("api-timeout", 30*time.Second, "Timeout for a single API request")
	minInterval := lflag.Duration("api-min-interval", 0, "Minimum time between API requests (0 means no limit)")

	lflag.Do(func() {
		c.baseURL = *apiURL
		c.client = common.HTTPClient(*timeout)
		if *minInterval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(*minInterval), 1)
		}
		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("api client validation failed: %v", err))
		}
	})

	return c
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("api-url is required")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse api url (%s): %w", c.baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https: %s", c.baseURL)
	}
	return nil
}

type tokenContextKey struct{}

// WithToken returns a context whose requests are authenticated with token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

func (c *Client) endpointURL(endpoint string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (c *Client) newGetRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	u, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) newPostJSONRequest(ctx context.Context, endpoint string, data interface{}) (*http.Request, error) {
	u, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doRequest sends req and decodes a 2xx JSON body into dest. name labels the
// endpoint in logs and metrics.
func (c *Client) doRequest(req *http.Request, name string, dest interface{}) (err error) {
	ctx := req.Context()
	start := time.Now()
	defer func() {
		observeRequest(name, err, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}

	if token := tokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseError(resp.StatusCode, body)
		log.Ctx(ctx).WarnContext(
			ctx,
			"api request rejected",
			slog.String("endpoint", name),
			slog.Int("status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return apiErr
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to decode api response", slog.String("endpoint", name), slog.Any("error", err), slog.String("body", string(body)))
			return fmt.Errorf("failed to decode %s response: %w", name, err)
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "api request success", slog.String("endpoint", name), slog.Duration("took", time.Since(start)))
	return nil
}
