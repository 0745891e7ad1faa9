// Package candles owns the per-symbol OHLCV dataset: the calendar-day
// staleness policy that gates refetching, and the derived indicator series.
package candles

import (
	"time"

	"marketpulse/internal/domain"
)

// IsStale reports whether a candle dataset must be refetched.
//
// The rule is calendar-date equality, not a 24h rolling window: a dataset
// fetched at 23:59 yesterday is stale at 00:00 today, regardless of how few
// wall-clock hours have elapsed. A nil dataset is always stale.
//
// Pure function: no side effects, no I/O, idempotent for unchanged inputs.
func IsStale(ds *domain.CandleDataset, today time.Time) bool {
	if ds == nil {
		return true
	}
	return ds.FetchedOn != today.Format(domain.CandleDateFormat)
}
