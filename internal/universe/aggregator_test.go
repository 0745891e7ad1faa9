package universe

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

// fakeFetcher serves canned snapshot histories and records call counts.
type fakeFetcher struct {
	mu      sync.Mutex
	data    map[domain.Symbol][]domain.Snapshot
	errs    map[domain.Symbol]error
	calls   map[domain.Symbol]int
	latency time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data:  make(map[domain.Symbol][]domain.Snapshot),
		errs:  make(map[domain.Symbol]error),
		calls: make(map[domain.Symbol]int),
	}
}

func (f *fakeFetcher) FetchSnapshots(ctx context.Context, symbol domain.Symbol) ([]domain.Snapshot, error) {
	f.mu.Lock()
	f.calls[symbol]++
	latency := f.latency
	err := f.errs[symbol]
	snaps := f.data[symbol]
	f.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// addHistory registers two chronological points so the 24h change works out
// to the given percentage.
func (f *fakeFetcher) addHistory(symbol domain.Symbol, marketCap, prevPrice, changePct float64) {
	latest := prevPrice * (1 + changePct/100)
	now := time.Now()
	f.data[symbol] = []domain.Snapshot{
		{Symbol: symbol, Price: prevPrice, MarketCap: marketCap, ObservedAt: now.Add(-24 * time.Hour)},
		{Symbol: symbol, Price: latest, MarketCap: marketCap, ObservedAt: now},
	}
}

func TestRefreshUniverse_RanksByMarketCapDescending(t *testing.T) {
	f := newFakeFetcher()
	f.addHistory("BTC", 1.2e12, 64000, 2)
	f.addHistory("ETH", 4.0e11, 3000, -1)
	f.addHistory("SOL", 8.0e10, 150, 5)

	agg := NewAggregator(f, 50, zerolog.Nop())
	ranked := agg.RefreshUniverse(context.Background(), []domain.Symbol{"SOL", "ETH", "BTC"})

	require.Len(t, ranked, 3)
	assert.Equal(t, domain.Symbol("BTC"), ranked[0].Symbol)
	assert.Equal(t, domain.Symbol("ETH"), ranked[1].Symbol)
	assert.Equal(t, domain.Symbol("SOL"), ranked[2].Symbol)
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
	assert.InDelta(t, 2.0, ranked[0].Change24h, 1e-9)
	assert.InDelta(t, -1.0, ranked[1].Change24h, 1e-9)
}

func TestRefreshUniverse_FailuresExcludedNotFatal(t *testing.T) {
	f := newFakeFetcher()
	symbols := make([]domain.Symbol, 0, 50)
	for i := 0; i < 50; i++ {
		sym := domain.Symbol(fmt.Sprintf("SYM%02d", i))
		symbols = append(symbols, sym)
		f.addHistory(sym, float64(1000-i), 100, 1)
	}
	// 3 symbols fail
	f.errs["SYM07"] = fmt.Errorf("connection refused")
	f.errs["SYM23"] = fmt.Errorf("malformed response")
	f.data["SYM41"] = f.data["SYM41"][:1] // only one point
	delete(f.errs, "SYM41")

	agg := NewAggregator(f, 50, zerolog.Nop())
	ranked := agg.RefreshUniverse(context.Background(), symbols)

	// SYM41 fails on insufficient data, not on error
	assert.Len(t, ranked, 47)
	assert.True(t, sort.SliceIsSorted(ranked, func(i, j int) bool {
		return ranked[i].MarketCap > ranked[j].MarketCap
	}))
	// Every symbol was attempted exactly once: no retries within a pass
	for _, sym := range symbols {
		assert.Equal(t, 1, f.calls[sym], "symbol %s", sym)
	}
}

func TestRefreshUniverse_TruncatesToLimit(t *testing.T) {
	f := newFakeFetcher()
	symbols := make([]domain.Symbol, 0, 60)
	for i := 0; i < 60; i++ {
		sym := domain.Symbol(fmt.Sprintf("SYM%02d", i))
		symbols = append(symbols, sym)
		f.addHistory(sym, float64(i+1), 100, 0)
	}

	agg := NewAggregator(f, 50, zerolog.Nop())
	ranked := agg.RefreshUniverse(context.Background(), symbols)

	require.Len(t, ranked, 50)
	// Highest caps survive the cut
	assert.Equal(t, 60.0, ranked[0].MarketCap)
	assert.Equal(t, 11.0, ranked[49].MarketCap)
}

func TestRefreshUniverse_InsufficientDataExcluded(t *testing.T) {
	f := newFakeFetcher()
	f.data["ONE"] = []domain.Snapshot{{Symbol: "ONE", Price: 100, ObservedAt: time.Now()}}
	f.data["NONE"] = nil
	f.addHistory("OK", 100, 50, 10)

	agg := NewAggregator(f, 50, zerolog.Nop())
	ranked := agg.RefreshUniverse(context.Background(), []domain.Symbol{"ONE", "NONE", "OK"})

	require.Len(t, ranked, 1)
	assert.Equal(t, domain.Symbol("OK"), ranked[0].Symbol)
	assert.InDelta(t, 10.0, ranked[0].Change24h, 1e-9)
}

func TestRefreshUniverse_EmptyUniverse(t *testing.T) {
	agg := NewAggregator(newFakeFetcher(), 50, zerolog.Nop())
	ranked := agg.RefreshUniverse(context.Background(), nil)
	assert.Empty(t, ranked)
}

func TestRefreshUniverse_FetchesRunConcurrently(t *testing.T) {
	f := newFakeFetcher()
	f.latency = 30 * time.Millisecond
	symbols := make([]domain.Symbol, 0, 20)
	for i := 0; i < 20; i++ {
		sym := domain.Symbol(fmt.Sprintf("SYM%02d", i))
		symbols = append(symbols, sym)
		f.addHistory(sym, float64(i+1), 100, 0)
	}

	agg := NewAggregator(f, 50, zerolog.Nop())
	start := time.Now()
	ranked := agg.RefreshUniverse(context.Background(), symbols)
	elapsed := time.Since(start)

	assert.Len(t, ranked, 20)
	// Sequential would take >=600ms; concurrent stays well under
	assert.Less(t, elapsed, 300*time.Millisecond)
}
