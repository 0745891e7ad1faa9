// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// Symbol identifies one tradable instrument. Immutable once created.
type Symbol string

// String returns the symbol as a plain string.
func (s Symbol) String() string {
	return string(s)
}

// Snapshot is one timestamped market-data observation for a symbol.
// Feeds deliver snapshots in ascending chronological order (ObservedAt).
type Snapshot struct {
	ObservedAt time.Time `json:"observed_at"`
	Symbol     Symbol    `json:"symbol"`
	Price      float64   `json:"price"`
	MarketCap  float64   `json:"market_cap"`
	Volume24h  float64   `json:"volume_24h"`
	Change1h   float64   `json:"change_1h"`
	Change24h  float64   `json:"change_24h"`
	Change7d   float64   `json:"change_7d"`
	High24h    float64   `json:"high_24h"`
	Low24h     float64   `json:"low_24h"`
}

// Validate checks that a snapshot carries the fields every consumer relies on.
// Malformed feed payloads are rejected at the boundary instead of propagating
// zero values into the store.
func (s Snapshot) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("snapshot: %w", ErrMissingSymbol)
	}
	if s.Price <= 0 {
		return fmt.Errorf("snapshot %s: %w: price %f", s.Symbol, ErrInvalidPayload, s.Price)
	}
	if s.ObservedAt.IsZero() {
		return fmt.Errorf("snapshot %s: %w: missing observation time", s.Symbol, ErrInvalidPayload)
	}
	return nil
}

// RankedSnapshot is one entry of the ranked universe list. Change24h is derived
// from the two most recent feed points at aggregation time.
type RankedSnapshot struct {
	Symbol    Symbol  `json:"symbol"`
	Rank      int     `json:"rank"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
	Change24h float64 `json:"change_24h"`
}

// Candle is a single OHLCV record.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CandleDateFormat is the calendar-date stamp format used for candle staleness
// checks. Calendar-date equality, not a 24h rolling window: a dataset fetched
// at 23:59 yesterday is stale at 00:00 today.
const CandleDateFormat = "2006-01-02"

// CandleDataset is a per-symbol, date-stamped collection of OHLCV records plus
// derived indicator series. It persists across refresh cycles until the
// staleness policy triggers replacement.
type CandleDataset struct {
	Symbol     Symbol   `json:"symbol"`
	TimePeriod string   `json:"time_period"`
	FetchedOn  string   `json:"fetched_on"` // calendar date, CandleDateFormat
	Candles    []Candle `json:"candles"`

	// Derived indicator series, aligned index-for-index with Candles.
	// Leading entries are zero until each indicator's warm-up period passes.
	SMA20      []float64 `json:"sma_20"`
	EMA12      []float64 `json:"ema_12"`
	RSI14      []float64 `json:"rsi_14"`
	MACD       []float64 `json:"macd"`
	MACDSignal []float64 `json:"macd_signal"`
	BBUpper    []float64 `json:"bb_upper"`
	BBMiddle   []float64 `json:"bb_middle"`
	BBLower    []float64 `json:"bb_lower"`
}

// Validate checks the dataset is structurally usable.
func (d *CandleDataset) Validate() error {
	if d.Symbol == "" {
		return fmt.Errorf("candle dataset: %w", ErrMissingSymbol)
	}
	if len(d.Candles) == 0 {
		return fmt.Errorf("candle dataset %s: %w: no candles", d.Symbol, ErrInvalidPayload)
	}
	for i, c := range d.Candles {
		if c.Close <= 0 {
			return fmt.Errorf("candle dataset %s: %w: candle %d has close %f", d.Symbol, ErrInvalidPayload, i, c.Close)
		}
	}
	return nil
}

// Signal is a bounded [0,100] score plus explanatory reasoning from one
// analytical source (news, technical, forecast).
type Signal struct {
	Score     float64  `json:"score"`
	Reasoning []string `json:"reasoning"`
}

// Action is the recommendation verdict.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionNeutral Action = "NEUTRAL"
)

// ScoreBreakdown carries the rounded per-source sub-scores of a recommendation.
type ScoreBreakdown struct {
	News      int `json:"news"`
	Technical int `json:"technical"`
	Forecast  int `json:"forecast"`
}

// Recommendation is the engine's final output. Confidence is capped at 95,
// never 100, to avoid false certainty. Scores are rounded to integers only
// here, at the presentation boundary.
type Recommendation struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Symbol      Symbol         `json:"symbol"`
	Action      Action         `json:"action"`
	Confidence  int            `json:"confidence"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	Reasoning   []string       `json:"reasoning"`
}

// Prediction is one forecast point at a minute horizon from now.
type Prediction struct {
	HorizonMinutes int     `json:"horizon_minutes"`
	PredictedPrice float64 `json:"predicted_price"`
}

// Forecast is the forecast feed's payload for one symbol.
type Forecast struct {
	FetchedAt    time.Time    `json:"fetched_at"`
	Symbol       Symbol       `json:"symbol"`
	CurrentPrice float64      `json:"current_price"`
	Predictions  []Prediction `json:"predictions"`
}

// Validate checks the forecast payload is structurally usable.
func (f *Forecast) Validate() error {
	if f.CurrentPrice <= 0 {
		return fmt.Errorf("forecast %s: %w: current price %f", f.Symbol, ErrInvalidPayload, f.CurrentPrice)
	}
	for i, p := range f.Predictions {
		if p.PredictedPrice <= 0 {
			return fmt.Errorf("forecast %s: %w: prediction %d has price %f", f.Symbol, ErrInvalidPayload, i, p.PredictedPrice)
		}
	}
	return nil
}

// SentimentSummary is the news feed's article-count summary over a window.
type SentimentSummary struct {
	FetchedAt     time.Time `json:"fetched_at"`
	WindowDays    int       `json:"window_days"`
	Total         int       `json:"total"`
	PositiveCount int       `json:"positive_count"`
	NegativeCount int       `json:"negative_count"`
	NeutralCount  int       `json:"neutral_count"`
}

// Validate checks the sentiment counts are consistent.
func (s *SentimentSummary) Validate() error {
	if s.Total < 0 || s.PositiveCount < 0 || s.NegativeCount < 0 || s.NeutralCount < 0 {
		return fmt.Errorf("sentiment: %w: negative count", ErrInvalidPayload)
	}
	if s.PositiveCount+s.NegativeCount+s.NeutralCount > s.Total {
		return fmt.Errorf("sentiment: %w: counts exceed total", ErrInvalidPayload)
	}
	return nil
}
