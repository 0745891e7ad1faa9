// Package marketdata provides the market-data feed client: per-symbol price
// snapshot history and OHLCV candle datasets.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/domain"
)

// Client talks to the market-data provider.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new market-data client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "marketdata").Logger(),
	}
}

// snapshotPayload is the wire shape of one observation. Pointer fields mark
// what must be present; absent required fields reject the whole payload.
type snapshotPayload struct {
	Price      *float64 `json:"price"`
	MarketCap  float64  `json:"market_cap"`
	Volume24h  float64  `json:"volume_24h"`
	Change1h   float64  `json:"change_1h"`
	Change24h  float64  `json:"change_24h"`
	Change7d   float64  `json:"change_7d"`
	High24h    float64  `json:"high_24h"`
	Low24h     float64  `json:"low_24h"`
	ObservedAt *int64   `json:"observed_at"` // unix seconds
}

// FetchSnapshots returns the stored snapshot history for a symbol in ascending
// chronological order. Downstream 24h-change derivation depends on the
// ordering, so the response is sorted even when the provider already did.
func (c *Client) FetchSnapshots(ctx context.Context, symbol domain.Symbol) ([]domain.Snapshot, error) {
	url := fmt.Sprintf("%s/snapshots/%s", c.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot request for %s returned status %d", symbol, resp.StatusCode)
	}

	var payloads []snapshotPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot response for %s: %w", symbol, err)
	}

	snapshots := make([]domain.Snapshot, 0, len(payloads))
	for i, p := range payloads {
		if p.Price == nil || p.ObservedAt == nil {
			return nil, fmt.Errorf("snapshot %d for %s: %w: missing price or observed_at", i, symbol, domain.ErrInvalidPayload)
		}
		s := domain.Snapshot{
			Symbol:     symbol,
			Price:      *p.Price,
			MarketCap:  p.MarketCap,
			Volume24h:  p.Volume24h,
			Change1h:   p.Change1h,
			Change24h:  p.Change24h,
			Change7d:   p.Change7d,
			High24h:    p.High24h,
			Low24h:     p.Low24h,
			ObservedAt: time.Unix(*p.ObservedAt, 0).UTC(),
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ObservedAt.Before(snapshots[j].ObservedAt)
	})

	return snapshots, nil
}

// candlePayload is the wire shape of one OHLCV record.
type candlePayload struct {
	Time   *int64   `json:"time"` // unix seconds
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  *float64 `json:"close"`
	Volume float64  `json:"volume"`
}

// FetchCandles returns the raw OHLCV series for a symbol. Indicator series are
// derived locally (internal/candles), not taken from the feed.
func (c *Client) FetchCandles(ctx context.Context, symbol domain.Symbol, timePeriod string) (*domain.CandleDataset, error) {
	url := fmt.Sprintf("%s/candles/%s?period=%s", c.baseURL, symbol, timePeriod)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("candle request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("candle request for %s returned status %d", symbol, resp.StatusCode)
	}

	var payloads []candlePayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("failed to parse candle response for %s: %w", symbol, err)
	}

	ds := &domain.CandleDataset{
		Symbol:     symbol,
		TimePeriod: timePeriod,
		FetchedOn:  time.Now().Format(domain.CandleDateFormat),
		Candles:    make([]domain.Candle, 0, len(payloads)),
	}
	for i, p := range payloads {
		if p.Time == nil || p.Close == nil {
			return nil, fmt.Errorf("candle %d for %s: %w: missing time or close", i, symbol, domain.ErrInvalidPayload)
		}
		ds.Candles = append(ds.Candles, domain.Candle{
			Time:   time.Unix(*p.Time, 0).UTC(),
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  *p.Close,
			Volume: p.Volume,
		})
	}

	sort.Slice(ds.Candles, func(i, j int) bool {
		return ds.Candles[i].Time.Before(ds.Candles[j].Time)
	})

	if err := ds.Validate(); err != nil {
		return nil, err
	}

	return ds, nil
}
