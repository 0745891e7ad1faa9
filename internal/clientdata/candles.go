package clientdata

import (
	"fmt"

	"marketpulse/internal/domain"
)

// SaveCandleDataset persists a candle dataset so a same-day restart serves the
// cache instead of refetching. The staleness policy still decides whether a
// loaded dataset is usable; the TTL only bounds disk growth.
func (r *Repository) SaveCandleDataset(ds *domain.CandleDataset) error {
	if ds == nil {
		return fmt.Errorf("cannot cache nil candle dataset")
	}
	return r.Store("candle_datasets", ds.Symbol.String(), ds, TTLCandleDataset)
}

// LoadCandleDataset returns the cached dataset for a symbol, or nil when none
// is cached. Expiration is intentionally ignored here: the caller applies the
// calendar-day staleness rule, which is stricter than the TTL.
func (r *Repository) LoadCandleDataset(symbol domain.Symbol) (*domain.CandleDataset, error) {
	var ds domain.CandleDataset
	found, err := r.Get("candle_datasets", symbol.String(), &ds)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &ds, nil
}
