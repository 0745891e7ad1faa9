package candles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"marketpulse/internal/domain"
)

func TestIsStale(t *testing.T) {
	today := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ds   *domain.CandleDataset
		want bool
	}{
		{"nil dataset", nil, true},
		{"fetched today", &domain.CandleDataset{FetchedOn: "2026-08-25"}, false},
		{"fetched yesterday", &domain.CandleDataset{FetchedOn: "2026-08-24"}, true},
		{"fetched last month, same day-of-month", &domain.CandleDataset{FetchedOn: "2026-07-25"}, true},
		{"fetched last year, same date", &domain.CandleDataset{FetchedOn: "2025-08-25"}, true},
		{"empty stamp", &domain.CandleDataset{FetchedOn: ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStale(tt.ds, today))
		})
	}
}

// A dataset fetched at 23:59 is stale one minute later: the policy compares
// calendar dates, not elapsed hours.
func TestIsStale_MidnightBoundary(t *testing.T) {
	ds := &domain.CandleDataset{FetchedOn: "2026-08-24"}

	lateYesterday := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)
	justPastMidnight := time.Date(2026, 8, 25, 0, 0, 1, 0, time.UTC)

	assert.False(t, IsStale(ds, lateYesterday))
	assert.True(t, IsStale(ds, justPastMidnight))
}

func TestIsStale_Idempotent(t *testing.T) {
	today := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	ds := &domain.CandleDataset{FetchedOn: "2026-08-25"}

	first := IsStale(ds, today)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, IsStale(ds, today))
	}
}
