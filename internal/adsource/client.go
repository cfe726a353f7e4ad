package adsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/config"
	"github.com/pearmediallc/creative-library-analytics/internal/models"
)

// Client pulls per-ad spend performance from the advertising platform's
// Graph-style API. It exists for callers that do not supply spend
// records directly; pacing is not needed here, the ads API quota is
// orders of magnitude above one page per call.
type Client struct {
	baseURL     string
	accessToken string
	pageSize    int
	httpc       *http.Client
	logger      *zap.Logger
}

// NewClient creates an advertising-platform client from configuration.
func NewClient(cfg config.AdSourceConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		pageSize:    cfg.PageSize,
		httpc:       &http.Client{Timeout: cfg.HTTPTimeout},
		logger:      logger,
	}
}

// adRow is the wire shape of one ad. The platform reports insight
// numbers as strings.
type adRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Insights struct {
		Data []struct {
			Spend       string `json:"spend"`
			Impressions string `json:"impressions"`
			Clicks      string `json:"clicks"`
		} `json:"data"`
	} `json:"insights"`
}

type adsPage struct {
	Data   []adRow `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// ListSpendRecords fetches every ad of an ad account, following paging
// cursors until exhausted, and converts each ad into a SpendRecord.
// Ads with unparsable insight rows are skipped with a warning.
func (c *Client) ListSpendRecords(ctx context.Context, adAccountID string) ([]models.SpendRecord, error) {
	var out []models.SpendRecord
	after := ""

	for {
		page, err := c.fetchPage(ctx, adAccountID, after)
		if err != nil {
			return nil, err
		}
		for _, row := range page.Data {
			rec, err := rowToRecord(row)
			if err != nil {
				c.logger.Warn("skipping unparsable ad row",
					zap.String("ad_id", row.ID),
					zap.Error(err),
				)
				continue
			}
			out = append(out, rec)
		}
		if page.Paging.Next == "" || page.Paging.Cursors.After == "" {
			break
		}
		after = page.Paging.Cursors.After
	}

	c.logger.Info("spend records fetched",
		zap.String("ad_account_id", adAccountID),
		zap.Int("records", len(out)),
	)
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, adAccountID, after string) (*adsPage, error) {
	q := url.Values{}
	q.Set("fields", "id,name,insights{spend,impressions,clicks}")
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("access_token", c.accessToken)
	if after != "" {
		q.Set("after", after)
	}
	u := fmt.Sprintf("%s/%s/ads?%s", c.baseURL, url.PathEscape(adAccountID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("adsource: build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adsource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("adsource: status %d body=%s", resp.StatusCode, string(body))
	}

	var page adsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("adsource: decode page: %w", err)
	}
	return &page, nil
}

func rowToRecord(row adRow) (models.SpendRecord, error) {
	rec := models.SpendRecord{
		Key:   row.ID,
		Label: row.Name,
		Spend: decimal.Zero,
	}
	// Ads with no delivery have no insight rows; zero values are valid.
	if len(row.Insights.Data) == 0 {
		return rec, nil
	}

	ins := row.Insights.Data[0]
	var err error
	if ins.Spend != "" {
		rec.Spend, err = decimal.NewFromString(ins.Spend)
		if err != nil {
			return rec, fmt.Errorf("spend %q: %w", ins.Spend, err)
		}
	}
	if ins.Impressions != "" {
		rec.Impressions, err = strconv.ParseInt(ins.Impressions, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("impressions %q: %w", ins.Impressions, err)
		}
	}
	if ins.Clicks != "" {
		rec.Clicks, err = strconv.ParseInt(ins.Clicks, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("clicks %q: %w", ins.Clicks, err)
		}
	}
	return rec, nil
}
