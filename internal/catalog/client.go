package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/gutensearch/pkg/resilience"
)

// maxBodyBytes bounds a single downloaded body.
const maxBodyBytes = 64 << 20

type Client struct {
	http    *http.Client
	cfg     config.CatalogConfig
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(cfg config.CatalogConfig, m *metrics.Metrics) *Client {
	return &Client{
		http: &http.Client{},
		cfg:  cfg,
		retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxRetries,
			InitialDelay:   2 * time.Second,
			MaxDelay:       60 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.1,
		},
		breaker: resilience.NewCircuitBreaker("gutendex", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, _, to resilience.State) {
				m.BreakerState(name, int(to))
			},
		}),
		logger: logger.WithComponent("catalog-client"),
	}
}

// FetchPage loads one listing page. An empty url loads the first page.
func (c *Client) FetchPage(ctx context.Context, url string) (*Page, error) {
	if url == "" {
		url = c.cfg.BaseURL
	}
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding catalog page %s: %w", url, err)
	}
	c.logger.Debug("catalog page fetched", "url", url, "books", len(page.Results), "next", page.Next)
	return &page, nil
}

// FetchText downloads the plain text of book, trimmed of surrounding
// whitespace.
func (c *Client) FetchText(ctx context.Context, book Book) (string, error) {
	url, ok := book.TextURL()
	if !ok {
		return "", ErrNoText
	}
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := resilience.Retry(ctx, "GET "+url, c.retry, func() error {
		return c.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, c.cfg.RequestTimeout, "GET "+url, func(ctx context.Context) error {
				b, err := c.do(ctx, url)
				body = b
				return err
			})
		})
	})
	return body, err
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", "gutensearch-fetcher")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := &StatusError{URL: url, Code: resp.StatusCode}
		if !retryable(resp.StatusCode) {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
