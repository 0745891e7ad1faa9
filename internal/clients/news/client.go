// Package news provides the news sentiment feed client. Article classification
// happens upstream; we only consume the positive/negative/neutral counts.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/domain"
)

// Client talks to the news sentiment service.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new news sentiment client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "news").Logger(),
	}
}

type sentimentPayload struct {
	Total         *int `json:"total"`
	PositiveCount *int `json:"positive_count"`
	NegativeCount *int `json:"negative_count"`
	NeutralCount  *int `json:"neutral_count"`
}

// FetchSentiment returns article sentiment counts over the given window.
func (c *Client) FetchSentiment(ctx context.Context, windowDays int) (*domain.SentimentSummary, error) {
	url := fmt.Sprintf("%s/sentiment?window_days=%d", c.baseURL, windowDays)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sentiment request returned status %d", resp.StatusCode)
	}

	var payload sentimentPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment response: %w", err)
	}

	if payload.Total == nil || payload.PositiveCount == nil || payload.NegativeCount == nil || payload.NeutralCount == nil {
		return nil, fmt.Errorf("sentiment: %w: missing counts", domain.ErrInvalidPayload)
	}

	s := &domain.SentimentSummary{
		FetchedAt:     time.Now().UTC(),
		WindowDays:    windowDays,
		Total:         *payload.Total,
		PositiveCount: *payload.PositiveCount,
		NegativeCount: *payload.NegativeCount,
		NeutralCount:  *payload.NeutralCount,
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}
