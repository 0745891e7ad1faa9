package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/events"
	"marketpulse/internal/store"
)

// fakeMarketData serves canned snapshot and candle data. A per-symbol gate
// channel lets tests hold a fetch open and release it later.
type fakeMarketData struct {
	mu          sync.Mutex
	snaps       map[domain.Symbol][]domain.Snapshot
	snapErr     error
	snapGates   map[domain.Symbol]chan struct{}
	snapCalls   map[domain.Symbol]int
	candleDS    *domain.CandleDataset
	candleErr   error
	candleCalls int
}

func newFakeMarketData() *fakeMarketData {
	return &fakeMarketData{
		snaps:     make(map[domain.Symbol][]domain.Snapshot),
		snapGates: make(map[domain.Symbol]chan struct{}),
		snapCalls: make(map[domain.Symbol]int),
	}
}

func (f *fakeMarketData) FetchSnapshots(ctx context.Context, symbol domain.Symbol) ([]domain.Snapshot, error) {
	f.mu.Lock()
	f.snapCalls[symbol]++
	gate := f.snapGates[symbol]
	err := f.snapErr
	snaps := f.snaps[symbol]
	f.mu.Unlock()

	if gate != nil {
		// Deliberately ignores ctx so tests can observe a result arriving
		// after its session died.
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

func (f *fakeMarketData) FetchCandles(ctx context.Context, symbol domain.Symbol, timePeriod string) (*domain.CandleDataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	if f.candleErr != nil {
		return nil, f.candleErr
	}
	return f.candleDS, nil
}

func (f *fakeMarketData) snapCallCount(symbol domain.Symbol) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapCalls[symbol]
}

func (f *fakeMarketData) candleCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candleCalls
}

type fakeForecast struct {
	mu       sync.Mutex
	forecast map[domain.Symbol]*domain.Forecast
	err      error
	calls    int
}

func (f *fakeForecast) FetchForecast(ctx context.Context, symbol domain.Symbol) (*domain.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.forecast[symbol], nil
}

type fakeNews struct {
	mu        sync.Mutex
	sentiment *domain.SentimentSummary
	err       error
	calls     int
}

func (f *fakeNews) FetchSentiment(ctx context.Context, windowDays int) (*domain.SentimentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sentiment, nil
}

type fakeUniverse struct {
	mu     sync.Mutex
	ranked []domain.RankedSnapshot
	calls  int
}

func (f *fakeUniverse) RefreshUniverse(ctx context.Context, symbols []domain.Symbol) []domain.RankedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.ranked
}

type fakeCandleCache struct {
	mu     sync.Mutex
	cached map[domain.Symbol]*domain.CandleDataset
	saves  int
}

func newFakeCandleCache() *fakeCandleCache {
	return &fakeCandleCache{cached: make(map[domain.Symbol]*domain.CandleDataset)}
}

func (f *fakeCandleCache) SaveCandleDataset(ds *domain.CandleDataset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.cached[ds.Symbol] = ds
	return nil
}

func (f *fakeCandleCache) LoadCandleDataset(symbol domain.Symbol) (*domain.CandleDataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached[symbol], nil
}

type fixture struct {
	market *fakeMarketData
	fc     *fakeForecast
	news   *fakeNews
	uni    *fakeUniverse
	cache  *fakeCandleCache
	store  *store.Store
	bus    *events.Bus
	sched  *Scheduler
}

// newFixture wires a scheduler with hour-long intervals so that only
// immediate fires and explicit calls drive activity during the test.
func newFixture(t *testing.T, selected domain.Symbol) *fixture {
	t.Helper()

	f := &fixture{
		market: newFakeMarketData(),
		fc:     &fakeForecast{forecast: make(map[domain.Symbol]*domain.Forecast)},
		news:   &fakeNews{},
		uni:    &fakeUniverse{},
		cache:  newFakeCandleCache(),
		store:  store.New(selected, zerolog.Nop()),
		bus:    events.NewBus(),
	}
	cfg := Config{
		Universe:         []domain.Symbol{"BTC", "ETH"},
		PriceInterval:    time.Hour,
		ForecastInterval: time.Hour,
		CandleInterval:   time.Hour,
		SentimentWindow:  7,
		CandleTimePeriod: "6M",
	}
	f.sched = New(cfg, f.store, f.bus, f.market, f.fc, f.news, f.uni, f.cache, nil, zerolog.Nop())
	return f
}

func history(symbol domain.Symbol, prev, latest float64) []domain.Snapshot {
	now := time.Now()
	return []domain.Snapshot{
		{Symbol: symbol, Price: prev, MarketCap: 1e9, ObservedAt: now.Add(-24 * time.Hour)},
		{Symbol: symbol, Price: latest, MarketCap: 1e9, ObservedAt: now},
	}
}

func freshDataset(symbol domain.Symbol, day time.Time) *domain.CandleDataset {
	ds := &domain.CandleDataset{
		Symbol:     symbol,
		TimePeriod: "6M",
		FetchedOn:  day.Format(domain.CandleDateFormat),
	}
	for i := 0; i < 5; i++ {
		ds.Candles = append(ds.Candles, domain.Candle{
			Time:  day.AddDate(0, 0, i-5),
			Open:  100, High: 101, Low: 99, Close: 100, Volume: 1000,
		})
	}
	return ds
}

// currentSession exposes the active session for white-box tests.
func (f *fixture) currentSession() *session {
	f.sched.mu.Lock()
	defer f.sched.mu.Unlock()
	return f.sched.sess
}

// beginSession marks the scheduler running and installs a session without
// starting any tickers, so task bodies can be invoked directly.
func beginSession(s *Scheduler, symbol domain.Symbol) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return s.newSessionLocked(symbol)
}

func TestStart_FiresAllTasksImmediately(t *testing.T) {
	f := newFixture(t, "BTC")
	f.market.snaps["BTC"] = history("BTC", 100, 110)
	f.market.candleDS = freshDataset("BTC", time.Now())
	f.fc.forecast["BTC"] = &domain.Forecast{
		Symbol:       "BTC",
		FetchedAt:    time.Now(),
		CurrentPrice: 110,
		Predictions:  []domain.Prediction{{HorizonMinutes: 60, PredictedPrice: 112}},
	}
	f.news.sentiment = &domain.SentimentSummary{
		FetchedAt: time.Now(), WindowDays: 7,
		Total: 10, PositiveCount: 5, NegativeCount: 3, NeutralCount: 2,
	}
	f.uni.ranked = []domain.RankedSnapshot{{Symbol: "BTC", Rank: 1, MarketCap: 1e9}}

	f.sched.Start("BTC")
	defer f.sched.Stop()

	assert.Eventually(t, func() bool {
		return f.store.LatestSnapshot() != nil &&
			f.store.Forecast() != nil &&
			f.store.Sentiment() != nil &&
			f.store.Candles() != nil &&
			len(f.store.Universe()) == 1 &&
			f.store.Recommendation() != nil
	}, 2*time.Second, 10*time.Millisecond, "all feeds should populate on the immediate fire")

	rec := f.store.Recommendation()
	assert.Equal(t, domain.Symbol("BTC"), rec.Symbol)
}

func TestFire_DropsTickWhilePreviousInFlight(t *testing.T) {
	f := newFixture(t, "BTC")
	gate := make(chan struct{})
	f.market.snapGates["BTC"] = gate
	f.market.snaps["BTC"] = history("BTC", 100, 110)

	f.sched.Start("BTC")
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		return f.market.snapCallCount("BTC") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Extra ticks while the first fetch is blocked must be dropped, not
	// queued for later.
	sess := f.currentSession()
	pr := f.sched.tasks[TaskPriceRefresh]
	for i := 0; i < 5; i++ {
		f.sched.fire(sess, pr)
	}
	close(gate)

	assert.Eventually(t, func() bool {
		pr.mu.Lock()
		defer pr.mu.Unlock()
		return pr.busyEpoch == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.market.snapCallCount("BTC"))
}

func TestSwitchSymbol_DiscardsLateResult(t *testing.T) {
	f := newFixture(t, "BTC")
	gate := make(chan struct{})
	f.market.snapGates["BTC"] = gate
	f.market.snaps["BTC"] = history("BTC", 100, 110)
	f.market.snaps["ETH"] = history("ETH", 3000, 3100)

	f.sched.Start("BTC")
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		return f.market.snapCallCount("BTC") == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.sched.SwitchSymbol("ETH")

	require.Eventually(t, func() bool {
		snap := f.store.LatestSnapshot()
		return snap != nil && snap.Symbol == "ETH"
	}, 2*time.Second, 10*time.Millisecond)

	// The BTC fetch now completes, after its session died. Its result must
	// never become visible.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, domain.Symbol("ETH"), f.store.Selected())
	snap := f.store.LatestSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, domain.Symbol("ETH"), snap.Symbol)
}

func TestSwitchSymbol_ClearsStateAndResetsCountdowns(t *testing.T) {
	f := newFixture(t, "BTC")
	f.market.snaps["BTC"] = history("BTC", 100, 110)
	f.market.snaps["ETH"] = history("ETH", 3000, 3100)

	f.sched.Start("BTC")
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		return f.store.LatestSnapshot() != nil
	}, 2*time.Second, 10*time.Millisecond)

	pr := f.sched.tasks[TaskPriceRefresh]
	pr.mu.Lock()
	pr.countdown = 7
	pr.mu.Unlock()

	var switched bool
	f.bus.Subscribe(events.SymbolSwitched, func(e *events.Event) { switched = true })

	f.sched.SwitchSymbol("ETH")

	cd, err := f.sched.GetCountdown(TaskPriceRefresh)
	require.NoError(t, err)
	assert.InDelta(t, 3600, cd, 1, "countdown resets to the base interval on switch")
	assert.True(t, switched)
	assert.Equal(t, domain.Symbol("ETH"), f.sched.Symbol())

	require.Eventually(t, func() bool {
		return f.market.snapCallCount("ETH") >= 1
	}, 2*time.Second, 10*time.Millisecond, "switch fires an immediate refresh")
}

func TestStop_IsIdempotentAndHaltsScheduling(t *testing.T) {
	f := newFixture(t, "BTC")
	f.market.snaps["BTC"] = history("BTC", 100, 110)

	f.sched.Start("BTC")
	require.True(t, f.sched.Running())

	f.sched.Stop()
	f.sched.Stop()

	assert.False(t, f.sched.Running())
	assert.Equal(t, domain.Symbol(""), f.sched.Symbol())

	// Switching after stop is a no-op.
	f.sched.SwitchSymbol("ETH")
	assert.Equal(t, 0, f.market.snapCallCount("ETH"))
}

func TestPriceRefresh_FailureKeepsPreviousData(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	previous := history("BTC", 100, 110)
	require.True(t, f.store.SetSnapshots("BTC", previous))

	f.market.snapErr = fmt.Errorf("upstream 503")
	f.sched.runPriceRefresh(context.Background(), sess)

	snap := f.store.LatestSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 110.0, snap.Price)
}

func TestCandleCheck_SkipsFetchWhenDatasetFresh(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	require.True(t, f.store.SetCandles("BTC", freshDataset("BTC", time.Now())))
	f.sched.runCandleCheck(context.Background(), sess)

	assert.Equal(t, 0, f.market.candleCallCount())
}

func TestCandleCheck_RefetchesStaleDataset(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	yesterday := time.Now().AddDate(0, 0, -1)
	require.True(t, f.store.SetCandles("BTC", freshDataset("BTC", yesterday)))
	f.market.candleDS = freshDataset("BTC", time.Now())

	f.sched.runCandleCheck(context.Background(), sess)

	assert.Equal(t, 1, f.market.candleCallCount())
	ds := f.store.Candles()
	require.NotNil(t, ds)
	assert.Equal(t, time.Now().Format(domain.CandleDateFormat), ds.FetchedOn)
	assert.Equal(t, 1, f.cache.saves, "refetched dataset goes to the persistent cache")
}

func TestCandleCheck_ServesSameDayCacheOnColdStart(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	cached := freshDataset("BTC", time.Now())
	require.NoError(t, f.cache.SaveCandleDataset(cached))
	f.cache.saves = 0

	f.sched.runCandleCheck(context.Background(), sess)

	assert.Equal(t, 0, f.market.candleCallCount(), "same-day cache avoids the network")
	ds := f.store.Candles()
	require.NotNil(t, ds)
	assert.Equal(t, cached.FetchedOn, ds.FetchedOn)
}

func TestCandleCheck_NilDatasetTreatedAsFetchFailure(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	yesterday := time.Now().AddDate(0, 0, -1)
	previous := freshDataset("BTC", yesterday)
	require.True(t, f.store.SetCandles("BTC", previous))

	// Fetch succeeds but yields no dataset. The stale one must survive.
	f.market.candleDS = nil
	f.sched.runCandleCheck(context.Background(), sess)

	assert.Equal(t, 1, f.market.candleCallCount())
	ds := f.store.Candles()
	require.NotNil(t, ds)
	assert.Equal(t, previous.FetchedOn, ds.FetchedOn)
	assert.Equal(t, 0, f.cache.saves)
}

func TestCandleCheck_EmptyDatasetTreatedAsFetchFailure(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	yesterday := time.Now().AddDate(0, 0, -1)
	previous := freshDataset("BTC", yesterday)
	require.True(t, f.store.SetCandles("BTC", previous))

	f.market.candleDS = &domain.CandleDataset{
		Symbol:     "BTC",
		TimePeriod: "6M",
		FetchedOn:  time.Now().Format(domain.CandleDateFormat),
	}
	f.sched.runCandleCheck(context.Background(), sess)

	ds := f.store.Candles()
	require.NotNil(t, ds)
	assert.Equal(t, previous.FetchedOn, ds.FetchedOn, "candle-free dataset is rejected at the boundary")
}

func TestCandleCheck_IgnoresStaleCacheOnColdStart(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, f.cache.SaveCandleDataset(freshDataset("BTC", yesterday)))
	f.market.candleDS = freshDataset("BTC", time.Now())

	f.sched.runCandleCheck(context.Background(), sess)

	assert.Equal(t, 1, f.market.candleCallCount())
}

func TestForecastRefresh_PartialFailureKeepsOtherFeed(t *testing.T) {
	f := newFixture(t, "BTC")
	sess := beginSession(f.sched, "BTC")

	f.fc.err = fmt.Errorf("forecast service down")
	f.news.sentiment = &domain.SentimentSummary{
		FetchedAt: time.Now(), WindowDays: 7,
		Total: 4, PositiveCount: 4,
	}

	f.sched.runForecastRefresh(context.Background(), sess)

	assert.Nil(t, f.store.Forecast())
	require.NotNil(t, f.store.Sentiment())
	assert.Equal(t, 4, f.store.Sentiment().PositiveCount)
	assert.NotNil(t, f.store.Recommendation(), "sentiment alone still triggers a recompute")
}

func TestGetCountdown_UnknownTask(t *testing.T) {
	f := newFixture(t, "BTC")
	_, err := f.sched.GetCountdown("nope")
	assert.Error(t, err)
}
