package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
)

func TestFetchSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentiment", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("window_days"))
		_, _ = w.Write([]byte(`{"total": 10, "positive_count": 8, "negative_count": 1, "neutral_count": 1}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	s, err := client.FetchSentiment(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 8, s.PositiveCount)
	assert.Equal(t, 7, s.WindowDays)
}

func TestFetchSentiment_MissingCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 10, "positive_count": 8}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.FetchSentiment(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestFetchSentiment_InconsistentCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 2, "positive_count": 8, "negative_count": 1, "neutral_count": 1}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.FetchSentiment(context.Background(), 7)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestFetchSentiment_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	_, err := client.FetchSentiment(context.Background(), 7)
	assert.Error(t, err)
}
