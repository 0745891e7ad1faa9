// Package universe implements the fan-out aggregator: concurrent per-symbol
// snapshot fetches over the fixed instrument universe, merged into a ranked
// list that tolerates per-symbol failure.
package universe

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"marketpulse/internal/domain"
)

// SnapshotFetcher fetches the snapshot history for one symbol, ascending by
// observation time.
type SnapshotFetcher interface {
	FetchSnapshots(ctx context.Context, symbol domain.Symbol) ([]domain.Snapshot, error)
}

// Aggregator fans out per-symbol fetches and ranks the merged results.
type Aggregator struct {
	fetcher SnapshotFetcher
	limit   int // ranked list truncation
	log     zerolog.Logger
}

// NewAggregator creates a fan-out aggregator. limit bounds the ranked result
// list (top N by market cap).
func NewAggregator(fetcher SnapshotFetcher, limit int, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		limit:   limit,
		log:     log.With().Str("component", "universe").Logger(),
	}
}

// RefreshUniverse issues one independent fetch per symbol, concurrently, and
// returns the successful results ranked descending by market cap and
// truncated to the configured limit.
//
// A failed symbol (network error, malformed response, fewer than 2 points) is
// excluded from the result; it never aborts or delays the other fetches. If
// fewer symbols succeed than the limit, the result is correspondingly smaller,
// never padded. There are no retries within a pass; the next scheduled pass is
// the retry mechanism.
func (a *Aggregator) RefreshUniverse(ctx context.Context, symbols []domain.Symbol) []domain.RankedSnapshot {
	results := make([]*domain.RankedSnapshot, len(symbols))

	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol domain.Symbol) {
			defer wg.Done()
			entry, err := a.fetchOne(ctx, symbol)
			if err != nil {
				a.log.Warn().Err(err).Str("symbol", symbol.String()).Msg("Universe fetch failed, excluding symbol")
				return
			}
			results[i] = entry
		}(i, symbol)
	}
	wg.Wait()

	ranked := make([]domain.RankedSnapshot, 0, len(symbols))
	for _, r := range results {
		if r != nil {
			ranked = append(ranked, *r)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].MarketCap > ranked[j].MarketCap
	})

	if len(ranked) > a.limit {
		ranked = ranked[:a.limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	a.log.Debug().
		Int("requested", len(symbols)).
		Int("ranked", len(ranked)).
		Msg("Universe refresh completed")

	return ranked
}

// fetchOne fetches and derives the ranked entry for one symbol.
//
// The 24h change is approximated from the two most recent stored points,
// without verifying that they are exactly 24h apart. If the feed cadence
// drifts, this under- or overstates the true 24h change.
func (a *Aggregator) fetchOne(ctx context.Context, symbol domain.Symbol) (*domain.RankedSnapshot, error) {
	snaps, err := a.fetcher.FetchSnapshots(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(snaps) < 2 {
		return nil, domain.ErrInsufficientData
	}

	latest := snaps[len(snaps)-1]
	previous := snaps[len(snaps)-2]
	change := (latest.Price - previous.Price) / previous.Price * 100

	return &domain.RankedSnapshot{
		Symbol:    symbol,
		Price:     latest.Price,
		MarketCap: latest.MarketCap,
		Volume24h: latest.Volume24h,
		Change24h: change,
	}, nil
}
