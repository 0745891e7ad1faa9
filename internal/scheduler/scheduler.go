// Package scheduler owns the named periodic refresh tasks for the selected
// instrument: priceRefresh (snapshots + universe fan-out), forecastRefresh
// (forecast + news sentiment) and candleCheck (staleness-gated candle
// refetch). Each task has its own cadence, in-flight guard and cosmetic
// countdown, and every fetch result is published atomically to the state
// store before the recommendation is recomputed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"marketpulse/internal/domain"
	"marketpulse/internal/events"
	"marketpulse/internal/store"
)

// Task names.
const (
	TaskPriceRefresh    = "priceRefresh"
	TaskForecastRefresh = "forecastRefresh"
	TaskCandleCheck     = "candleCheck"
)

// MarketDataClient fetches snapshot history and candle datasets.
type MarketDataClient interface {
	FetchSnapshots(ctx context.Context, symbol domain.Symbol) ([]domain.Snapshot, error)
	FetchCandles(ctx context.Context, symbol domain.Symbol, timePeriod string) (*domain.CandleDataset, error)
}

// ForecastClient fetches the short-horizon forecast for a symbol.
type ForecastClient interface {
	FetchForecast(ctx context.Context, symbol domain.Symbol) (*domain.Forecast, error)
}

// NewsClient fetches market-wide news sentiment counts.
type NewsClient interface {
	FetchSentiment(ctx context.Context, windowDays int) (*domain.SentimentSummary, error)
}

// UniverseRefresher runs one fan-out pass over the instrument universe.
type UniverseRefresher interface {
	RefreshUniverse(ctx context.Context, symbols []domain.Symbol) []domain.RankedSnapshot
}

// CandleCache persists candle datasets across restarts. Optional.
type CandleCache interface {
	SaveCandleDataset(ds *domain.CandleDataset) error
	LoadCandleDataset(symbol domain.Symbol) (*domain.CandleDataset, error)
}

// HistoryRecorder appends universe refresh results to persistent history. Optional.
type HistoryRecorder interface {
	RecordUniverse(ranked []domain.RankedSnapshot) error
}

// Config holds scheduler construction parameters.
type Config struct {
	Universe         []domain.Symbol
	PriceInterval    time.Duration
	ForecastInterval time.Duration
	CandleInterval   time.Duration
	SentimentWindow  int // days
	CandleTimePeriod string
}

// task is one named periodic refresh with its own cadence and in-flight guard.
type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context, sess *session)

	mu        sync.Mutex
	busyEpoch uint64 // session epoch of the running invocation, 0 when idle
	countdown int    // seconds until next tick; cosmetic, never gates scheduling
}

// session is one symbol's scheduling context. Switching symbols replaces the
// session wholesale; the epoch stamp lets late fetch results from a dead
// session be recognized and discarded.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	epoch  uint64
	symbol domain.Symbol
}

// Scheduler drives the periodic refresh tasks.
type Scheduler struct {
	cfg      Config
	store    *store.Store
	bus      *events.Bus
	market   MarketDataClient
	forecast ForecastClient
	news     NewsClient
	universe UniverseRefresher
	cache    CandleCache
	history  HistoryRecorder
	log      zerolog.Logger

	// now is swappable for tests of the calendar-day staleness path.
	now func() time.Time

	mu      sync.Mutex
	running bool
	epoch   uint64
	sess    *session
	tasks   map[string]*task
	wg      sync.WaitGroup
}

// New creates a scheduler. cache and history may be nil to disable candle
// persistence and universe history recording.
func New(
	cfg Config,
	st *store.Store,
	bus *events.Bus,
	market MarketDataClient,
	forecastClient ForecastClient,
	newsClient NewsClient,
	universeRefresher UniverseRefresher,
	cache CandleCache,
	history HistoryRecorder,
	log zerolog.Logger,
) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		market:   market,
		forecast: forecastClient,
		news:     newsClient,
		universe: universeRefresher,
		cache:    cache,
		history:  history,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
	s.tasks = map[string]*task{
		TaskPriceRefresh:    {name: TaskPriceRefresh, interval: cfg.PriceInterval, run: s.runPriceRefresh},
		TaskForecastRefresh: {name: TaskForecastRefresh, interval: cfg.ForecastInterval, run: s.runForecastRefresh},
		TaskCandleCheck:     {name: TaskCandleCheck, interval: cfg.CandleInterval, run: s.runCandleCheck},
	}
	s.resetCountdowns()
	return s
}

// Start begins scheduling for the given symbol and immediately fires a
// best-effort refresh of every task.
func (s *Scheduler) Start(symbol domain.Symbol) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Scheduler already started, ignoring")
		return
	}
	s.running = true
	sess := s.newSessionLocked(symbol)
	s.mu.Unlock()

	s.log.Info().Str("symbol", symbol.String()).Msg("Scheduler started")
	s.launchSession(sess)
}

// Stop cancels all timers and outstanding fetch contexts. Late results from
// fetches that were in flight are discarded by the epoch check; a stopped
// scheduler performs no further state mutation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.epoch++ // invalidate in-flight results
	if s.sess != nil {
		s.sess.cancel()
		s.sess = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// SwitchSymbol cancels the current session, clears the previous symbol's
// state, resets all countdowns and immediately fires every task for the new
// symbol. Outstanding fetches for the old symbol become unobservable: their
// results fail the epoch check and never reach the store.
func (s *Scheduler) SwitchSymbol(newSymbol domain.Symbol) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warn().Str("symbol", newSymbol.String()).Msg("SwitchSymbol on stopped scheduler, ignoring")
		return
	}
	old := s.sess.symbol
	s.sess.cancel()
	sess := s.newSessionLocked(newSymbol)
	s.mu.Unlock()

	s.store.SwitchSymbol(newSymbol)
	s.bus.Publish(events.SymbolSwitched, map[string]string{
		"from": old.String(),
		"to":   newSymbol.String(),
	})

	s.log.Info().
		Str("from", old.String()).
		Str("to", newSymbol.String()).
		Msg("Switched selected symbol")

	s.launchSession(sess)
}

// Running reports whether the scheduler is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Symbol returns the currently scheduled symbol, or empty when stopped.
func (s *Scheduler) Symbol() domain.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.symbol
}

// GetCountdown returns the advisory seconds until a task's next tick.
func (s *Scheduler) GetCountdown(taskName string) (int, error) {
	t, ok := s.tasks[taskName]
	if !ok {
		return 0, fmt.Errorf("unknown task: %s", taskName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countdown, nil
}

// Countdowns returns the advisory countdown of every task.
func (s *Scheduler) Countdowns() map[string]int {
	out := make(map[string]int, len(s.tasks))
	for name, t := range s.tasks {
		t.mu.Lock()
		out[name] = t.countdown
		t.mu.Unlock()
	}
	return out
}

// newSessionLocked bumps the epoch and installs a fresh session.
// Caller holds s.mu.
func (s *Scheduler) newSessionLocked(symbol domain.Symbol) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s.epoch++
	sess := &session{ctx: ctx, cancel: cancel, epoch: s.epoch, symbol: symbol}
	s.sess = sess
	return sess
}

// launchSession starts the per-task tickers and the countdown ticker for a
// session, then fires every task immediately (no waiting for the first
// natural tick).
func (s *Scheduler) launchSession(sess *session) {
	s.resetCountdowns()

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.taskLoop(sess, t)
	}

	s.wg.Add(1)
	go s.countdownLoop(sess)

	for _, t := range s.tasks {
		s.fire(sess, t)
	}
}

// taskLoop ticks one task at its configured interval until the session ends.
func (s *Scheduler) taskLoop(sess *session, t *task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			s.fire(sess, t)
		}
	}
}

// countdownLoop decrements every task's countdown once per second, wrapping
// to the base interval at zero. The countdown is advisory for external
// observers and never gates scheduling.
func (s *Scheduler) countdownLoop(sess *session) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			for _, t := range s.tasks {
				t.mu.Lock()
				t.countdown--
				if t.countdown <= 0 {
					t.countdown = int(t.interval / time.Second)
				}
				t.mu.Unlock()
			}
		}
	}
}

// resetCountdowns restores every task's countdown to its base interval.
func (s *Scheduler) resetCountdowns() {
	for _, t := range s.tasks {
		t.mu.Lock()
		t.countdown = int(t.interval / time.Second)
		t.mu.Unlock()
	}
}

// fire executes one task tick. If the previous invocation from the same
// session has not completed, the tick is dropped entirely: not queued, not
// deferred. A run left over from a superseded session does not block the new
// session's fire; its late result is discarded by the epoch check anyway.
func (s *Scheduler) fire(sess *session, t *task) {
	t.mu.Lock()
	if t.busyEpoch == sess.epoch {
		t.mu.Unlock()
		s.log.Debug().
			Str("task", t.name).
			Msg("Tick skipped, previous invocation still in flight")
		return
	}
	t.busyEpoch = sess.epoch
	t.mu.Unlock()

	runID := uuid.NewString()
	go func() {
		defer func() {
			t.mu.Lock()
			if t.busyEpoch == sess.epoch {
				t.busyEpoch = 0
			}
			t.mu.Unlock()
		}()

		start := s.now()
		t.run(sess.ctx, sess)
		s.log.Debug().
			Str("task", t.name).
			Str("run_id", runID).
			Str("symbol", sess.symbol.String()).
			Dur("took", s.now().Sub(start)).
			Msg("Task run completed")
	}()
}

// sessionAlive reports whether the session is still the current one. Results
// of a fetch started in a dead session must not be written anywhere.
func (s *Scheduler) sessionAlive(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.epoch == sess.epoch
}
