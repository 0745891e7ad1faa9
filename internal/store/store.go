// Package store holds the latest snapshot per feed for the selected
// instrument plus the ranked universe list. Each feed slot has exactly one
// writer (the scheduler or the fan-out aggregator); everything else reads.
// Writes swap whole values, so readers never observe a partially-updated feed.
package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/domain"
)

// Store is the in-memory state holder.
type Store struct {
	mu  sync.RWMutex
	log zerolog.Logger

	selected domain.Symbol

	// Per-symbol feeds, scoped to the selected symbol.
	snapshots      []domain.Snapshot
	candles        *domain.CandleDataset
	forecast       *domain.Forecast
	recommendation *domain.Recommendation

	// Market-wide feeds, unaffected by symbol switches.
	sentiment       *domain.SentimentSummary
	universe        []domain.RankedSnapshot
	universeUpdated time.Time
}

// New creates a state store for the given initially-selected symbol.
func New(selected domain.Symbol, log zerolog.Logger) *Store {
	return &Store{
		selected: selected,
		log:      log.With().Str("component", "store").Logger(),
	}
}

// Selected returns the currently selected symbol.
func (s *Store) Selected() domain.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SwitchSymbol makes newSymbol the selected symbol and drops all per-symbol
// state of the previous one. Market-wide state (sentiment, universe) stays.
func (s *Store) SwitchSymbol(newSymbol domain.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.selected
	s.selected = newSymbol
	s.snapshots = nil
	s.candles = nil
	s.forecast = nil
	s.recommendation = nil

	s.log.Debug().
		Str("from", old.String()).
		Str("to", newSymbol.String()).
		Msg("Cleared per-symbol state for symbol switch")
}

// SetSnapshots replaces the snapshot history for the selected symbol.
// Returns false (and writes nothing) when symbol is no longer selected,
// which discards late results from a cancelled fetch.
func (s *Store) SetSnapshots(symbol domain.Symbol, snaps []domain.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.selected {
		return false
	}
	s.snapshots = snaps
	return true
}

// Snapshots returns a copy of the selected symbol's snapshot history in
// ascending chronological order.
func (s *Store) Snapshots() []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// LatestSnapshot returns the most recent snapshot for the selected symbol,
// or nil when none is stored.
func (s *Store) LatestSnapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap
}

// SetCandles replaces the candle dataset for the selected symbol.
func (s *Store) SetCandles(symbol domain.Symbol, ds *domain.CandleDataset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.selected {
		return false
	}
	s.candles = ds
	return true
}

// Candles returns the selected symbol's candle dataset, or nil.
// The dataset is shared; callers must treat it as read-only.
func (s *Store) Candles() *domain.CandleDataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candles
}

// SetForecast replaces the forecast for the selected symbol.
func (s *Store) SetForecast(symbol domain.Symbol, f *domain.Forecast) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.selected {
		return false
	}
	s.forecast = f
	return true
}

// Forecast returns the selected symbol's forecast, or nil.
func (s *Store) Forecast() *domain.Forecast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forecast
}

// SetSentiment replaces the market-wide sentiment summary.
func (s *Store) SetSentiment(sum *domain.SentimentSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentiment = sum
}

// Sentiment returns the market-wide sentiment summary, or nil.
func (s *Store) Sentiment() *domain.SentimentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sentiment
}

// SetRecommendation replaces the recommendation for the selected symbol.
func (s *Store) SetRecommendation(symbol domain.Symbol, rec *domain.Recommendation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.selected {
		return false
	}
	s.recommendation = rec
	return true
}

// Recommendation returns the selected symbol's recommendation, or nil when no
// computation has landed yet.
func (s *Store) Recommendation() *domain.Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recommendation
}

// SetUniverse replaces the ranked universe list.
func (s *Store) SetUniverse(ranked []domain.RankedSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.universe = ranked
	s.universeUpdated = time.Now()
}

// Universe returns a copy of the ranked universe list.
func (s *Store) Universe() []domain.RankedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RankedSnapshot, len(s.universe))
	copy(out, s.universe)
	return out
}

// UniverseUpdatedAt returns when the universe list last changed.
func (s *Store) UniverseUpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.universeUpdated
}
