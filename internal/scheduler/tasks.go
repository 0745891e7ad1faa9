package scheduler

import (
	"context"
	"fmt"

	"marketpulse/internal/candles"
	"marketpulse/internal/domain"
	"marketpulse/internal/events"
	"marketpulse/internal/recommendation"
)

// runPriceRefresh fetches the selected symbol's snapshot history and then
// runs one fan-out pass over the universe. A failed snapshot fetch does not
// skip the universe pass.
func (s *Scheduler) runPriceRefresh(ctx context.Context, sess *session) {
	snaps, err := s.market.FetchSnapshots(ctx, sess.symbol)
	switch {
	case err != nil:
		s.log.Warn().Err(err).
			Str("symbol", sess.symbol.String()).
			Msg("Snapshot fetch failed, keeping previous data")
	case !s.sessionAlive(sess):
		s.log.Debug().
			Str("symbol", sess.symbol.String()).
			Msg("Discarding snapshots from superseded session")
	case s.store.SetSnapshots(sess.symbol, snaps):
		s.bus.Publish(events.SnapshotUpdated, map[string]interface{}{
			"symbol": sess.symbol.String(),
			"count":  len(snaps),
		})
		s.recompute(sess)
	}

	if len(s.cfg.Universe) == 0 {
		return
	}
	ranked := s.universe.RefreshUniverse(ctx, s.cfg.Universe)
	if !s.sessionAlive(sess) {
		return
	}
	s.store.SetUniverse(ranked)
	s.bus.Publish(events.UniverseUpdated, map[string]interface{}{
		"count": len(ranked),
	})

	if s.history != nil {
		if err := s.history.RecordUniverse(ranked); err != nil {
			s.log.Warn().Err(err).Msg("Failed to record universe history")
		}
	}
}

// runForecastRefresh fetches the selected symbol's forecast and the
// market-wide news sentiment. Either fetch failing leaves the other's result
// intact.
func (s *Scheduler) runForecastRefresh(ctx context.Context, sess *session) {
	changed := false

	forecast, err := s.forecast.FetchForecast(ctx, sess.symbol)
	switch {
	case err != nil:
		s.log.Warn().Err(err).
			Str("symbol", sess.symbol.String()).
			Msg("Forecast fetch failed, keeping previous data")
	case !s.sessionAlive(sess):
		s.log.Debug().
			Str("symbol", sess.symbol.String()).
			Msg("Discarding forecast from superseded session")
		return
	case s.store.SetForecast(sess.symbol, forecast):
		changed = true
	}

	sentiment, err := s.news.FetchSentiment(ctx, s.cfg.SentimentWindow)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Msg("Sentiment fetch failed, keeping previous data")
	case !s.sessionAlive(sess):
		return
	default:
		s.store.SetSentiment(sentiment)
		changed = true
	}

	if changed {
		s.recompute(sess)
	}
}

// runCandleCheck refetches the candle dataset only when the stored one was
// not fetched today. On a cold start it first tries the persistent cache, so
// a same-day restart serves cached candles without a network round trip.
func (s *Scheduler) runCandleCheck(ctx context.Context, sess *session) {
	today := s.now()

	current := s.store.Candles()
	if current == nil && s.cache != nil {
		cached, err := s.cache.LoadCandleDataset(sess.symbol)
		if err != nil {
			s.log.Warn().Err(err).
				Str("symbol", sess.symbol.String()).
				Msg("Candle cache read failed")
		} else if cached != nil && !candles.IsStale(cached, today) {
			if !s.sessionAlive(sess) {
				return
			}
			if s.store.SetCandles(sess.symbol, cached) {
				s.log.Info().
					Str("symbol", sess.symbol.String()).
					Str("fetched_on", cached.FetchedOn).
					Msg("Serving candle dataset from cache")
				s.recompute(sess)
			}
			return
		}
		current = cached
	}

	if !candles.IsStale(current, today) {
		s.log.Debug().
			Str("symbol", sess.symbol.String()).
			Str("fetched_on", current.FetchedOn).
			Msg("Candle dataset fresh, skipping fetch")
		return
	}

	ds, err := s.market.FetchCandles(ctx, sess.symbol, s.cfg.CandleTimePeriod)
	if err == nil {
		// A structurally unusable response counts as a fetch failure.
		if ds == nil {
			err = fmt.Errorf("candle feed: %w", domain.ErrInvalidPayload)
		} else {
			err = ds.Validate()
		}
	}
	if err != nil {
		// Stale data stays visible until a later check succeeds.
		s.log.Warn().Err(err).
			Str("symbol", sess.symbol.String()).
			Msg("Candle fetch failed, keeping previous dataset")
		return
	}
	candles.ComputeIndicators(ds)

	if !s.sessionAlive(sess) {
		s.log.Debug().
			Str("symbol", sess.symbol.String()).
			Msg("Discarding candles from superseded session")
		return
	}
	if !s.store.SetCandles(sess.symbol, ds) {
		return
	}

	if s.cache != nil {
		if err := s.cache.SaveCandleDataset(ds); err != nil {
			s.log.Warn().Err(err).
				Str("symbol", sess.symbol.String()).
				Msg("Candle cache write failed")
		}
	}
	s.recompute(sess)
}

// recompute rebuilds the recommendation from the store's current feeds and
// publishes it. Runs after any feed for the selected symbol changes.
func (s *Scheduler) recompute(sess *session) {
	in := recommendation.Inputs{
		Sentiment: s.store.Sentiment(),
		Candles:   s.store.Candles(),
		Forecast:  s.store.Forecast(),
		Snapshot:  s.store.LatestSnapshot(),
	}

	rec := recommendation.Compute(sess.symbol, in, s.now())
	if !s.sessionAlive(sess) {
		return
	}
	if !s.store.SetRecommendation(sess.symbol, &rec) {
		return
	}

	s.bus.Publish(events.RecommendationUpdated, rec)
	s.log.Info().
		Str("symbol", sess.symbol.String()).
		Str("action", string(rec.Action)).
		Int("confidence", rec.Confidence).
		Msg("Recommendation updated")
}
