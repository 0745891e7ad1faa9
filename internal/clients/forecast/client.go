// Package forecast provides the short-horizon price forecast feed client.
// The forecasting model itself is a black box; only its response shape matters.
package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/domain"
)

// Client talks to the forecast service.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new forecast client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "forecast").Logger(),
	}
}

type forecastPayload struct {
	CurrentPrice *float64 `json:"current_price"`
	Predictions  []struct {
		HorizonMinutes *int     `json:"horizon_minutes"`
		PredictedPrice *float64 `json:"predicted_price"`
	} `json:"predictions"`
}

// FetchForecast returns the forecast payload for a symbol.
func (c *Client) FetchForecast(ctx context.Context, symbol domain.Symbol) (*domain.Forecast, error) {
	url := fmt.Sprintf("%s/forecast/%s", c.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast request for %s returned status %d", symbol, resp.StatusCode)
	}

	var payload forecastPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse forecast response for %s: %w", symbol, err)
	}

	if payload.CurrentPrice == nil {
		return nil, fmt.Errorf("forecast for %s: %w: missing current_price", symbol, domain.ErrInvalidPayload)
	}

	f := &domain.Forecast{
		FetchedAt:    time.Now().UTC(),
		Symbol:       symbol,
		CurrentPrice: *payload.CurrentPrice,
		Predictions:  make([]domain.Prediction, 0, len(payload.Predictions)),
	}
	for i, p := range payload.Predictions {
		if p.HorizonMinutes == nil || p.PredictedPrice == nil {
			return nil, fmt.Errorf("forecast for %s: %w: prediction %d missing fields", symbol, domain.ErrInvalidPayload, i)
		}
		f.Predictions = append(f.Predictions, domain.Prediction{
			HorizonMinutes: *p.HorizonMinutes,
			PredictedPrice: *p.PredictedPrice,
		})
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return f, nil
}
