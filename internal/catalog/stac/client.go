// Package stac searches a STAC API for scenes. Requests go through a
// circuit breaker and are retried with exponential backoff on network and
// server errors.
package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/forest-guardian/leaf-mosaic/internal/catalog"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds the connection settings of a STAC API.
type Config struct {
	// BaseURL is the API root; searches are posted to BaseURL/search.
	BaseURL string

	// ClientIDs and ClientSecrets are comma separated credential lists used
	// in turn when the API rejects one. Empty means anonymous access.
	ClientIDs     string
	ClientSecrets string
	TokenURL      string

	// Timeout is the request timeout for individual HTTP calls.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 500ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 10 seconds
	MaxInterval time.Duration

	// PageLimit is the number of items requested per page.
	// Default: 100
	PageLimit int

	// FailureThreshold consecutive failures open the breaker for Cooldown.
	FailureThreshold uint32
	Cooldown         time.Duration
}

func (c *Config) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 10 * time.Second
	}
	if c.PageLimit == 0 {
		c.PageLimit = 100
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
}

// Client is a catalog.Catalog backed by a STAC API.
type Client struct {
	cfg     Config
	clients []*http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// NewClient builds a client. ctx scopes the token sources.
func NewClient(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg.defaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("stac: missing base URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{cfg: cfg, logger: logger}
	if cfg.ClientIDs == "" {
		c.clients = []*http.Client{{Timeout: cfg.Timeout}}
	} else {
		ids := strings.Split(cfg.ClientIDs, ",")
		secrets := strings.Split(cfg.ClientSecrets, ",")
		if len(ids) != len(secrets) || cfg.TokenURL == "" {
			return nil, errors.New("stac: mismatched client IDs and secrets, or missing token URL")
		}
		for i, id := range ids {
			cc := &clientcredentials.Config{
				ClientID:     strings.TrimSpace(id),
				ClientSecret: strings.TrimSpace(secrets[i]),
				TokenURL:     cfg.TokenURL,
			}
			hc := cc.Client(ctx)
			hc.Timeout = cfg.Timeout
			c.clients = append(c.clients, hc)
		}
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "stac",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			var remote *catalog.RemoteError
			return err == nil || errors.As(err, &remote)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state change")
		},
	})
	return c, nil
}

// Search posts q to /search and follows next links until exhausted.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.Item, error) {
	body, err := json.Marshal(searchBody(q, c.cfg.PageLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search: %w", err)
	}

	var items []catalog.Item
	url := c.cfg.BaseURL + "/search"
	method := http.MethodPost
	for page := 0; url != ""; page++ {
		raw, err := c.do(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		res, err := parsePage(raw)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		items = append(items, res.items...)
		url, method, body = res.next.URL, res.next.Method, res.next.Body
	}
	c.logger.Debug().Str("catalog", q.CatalogID).Int("items", len(items)).Msg("stac search")
	return items, nil
}

// do sends one request, rotating credentials on 401/403 and retrying
// transient failures.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var err error
	for i, hc := range c.clients {
		var out []byte
		out, err = c.retry(ctx, hc, method, url, body)
		var remote *catalog.RemoteError
		if errors.As(err, &remote) && (remote.StatusCode == http.StatusUnauthorized || remote.StatusCode == http.StatusForbidden) {
			c.logger.Warn().Int("credential", i).Int("status", remote.StatusCode).Msg("credential rejected, trying next")
			continue
		}
		return out, err
	}
	return nil, err
}

func (c *Client) retry(ctx context.Context, hc *http.Client, method, url string, body []byte) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	var out []byte
	operation := func() error {
		data, err := c.breaker.Execute(func() ([]byte, error) {
			return c.send(ctx, hc, method, url, body)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			var remote *catalog.RemoteError
			if errors.As(err, &remote) {
				return backoff.Permanent(err)
			}
			c.logger.Debug().Err(err).Str("url", url).Msg("catalog request failed, retrying")
			return err
		}
		out = data
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
	if err != nil {
		var server *ServerError
		if errors.As(err, &server) {
			return nil, &catalog.RemoteError{Op: method + " " + url, StatusCode: server.StatusCode, Body: server.Body}
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil && method != http.MethodGet {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/geo+json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: string(data)}
	case resp.StatusCode >= 400:
		return nil, &catalog.RemoteError{Op: method + " " + url, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// BreakerState returns the current state of the circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}
