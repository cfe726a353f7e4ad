package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/config"
	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// APIKeyHeader carries the tracking platform credential.
const APIKeyHeader = "X-Api-Key"

var (
	// ErrRateLimited signals an upstream 429. The fetcher treats the
	// affected request as absent and backs off before the next one.
	ErrRateLimited = errors.New("tracker: rate limited by upstream")

	// ErrUnavailable signals a transient upstream failure (timeout or
	// 5xx) eligible for one retry.
	ErrUnavailable = errors.New("tracker: upstream unavailable")
)

// IsTransient reports whether a lookup error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Client talks to the tracking platform's conversion reporting API.
// It performs no pacing of its own; admission control lives in Fetcher.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates a tracking-platform client from configuration.
func NewClient(cfg config.TrackerConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  logger,
	}
}

// LookupKey fetches the revenue record for a single key. A key unknown
// upstream returns (nil, nil): absence is a valid state, not an error.
func (c *Client) LookupKey(ctx context.Context, key string) (*models.RevenueRecord, error) {
	u := fmt.Sprintf("%s/api/v1/conversions?key=%s", c.baseURL, url.QueryEscape(key))

	var rec models.RevenueRecord
	found, err := c.getJSON(ctx, u, &rec)
	if err != nil || !found {
		return nil, err
	}
	if rec.Key == "" {
		rec.Key = key
	}
	if err := rec.Validate(); err != nil {
		c.logger.Warn("tracker returned malformed row, treating as absent",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, nil
	}
	return &rec, nil
}

// bulkResponse is the wire shape of a multi-key lookup.
type bulkResponse struct {
	Rows []models.RevenueRecord `json:"rows"`
}

// LookupBulk fetches revenue records for several keys in one request.
// Keys the response omits are simply missing from the returned map.
func (c *Client) LookupBulk(ctx context.Context, keys []string) (map[string]*models.RevenueRecord, error) {
	u := fmt.Sprintf("%s/api/v1/conversions/bulk?keys=%s", c.baseURL, url.QueryEscape(strings.Join(keys, ",")))

	var resp bulkResponse
	found, err := c.getJSON(ctx, u, &resp)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.RevenueRecord, len(resp.Rows))
	if !found {
		return out, nil
	}
	for i := range resp.Rows {
		row := resp.Rows[i]
		if err := row.Validate(); err != nil {
			c.logger.Warn("tracker bulk row malformed, skipping",
				zap.String("key", row.Key),
				zap.Error(err),
			)
			continue
		}
		out[row.Key] = &row
	}
	return out, nil
}

// getJSON performs an authenticated GET and decodes the body. The
// boolean is false for a 404 (no data for the key).
func (c *Client) getJSON(ctx context.Context, u string, dst any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("tracker: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return false, ErrRateLimited
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: status %d body=%s", ErrUnavailable, resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("tracker: status %d body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return false, fmt.Errorf("tracker: decode response: %w", err)
	}
	return true, nil
}

// Health probes the tracker API root. Used by the readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("tracker health: status %d", resp.StatusCode)
	}
	return nil
}
