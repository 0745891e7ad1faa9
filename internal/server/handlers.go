package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"marketpulse/internal/domain"
	"marketpulse/internal/portfolio"
	"marketpulse/internal/universe"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetSymbol returns the currently selected symbol.
func (s *Server) handleGetSymbol(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  s.store.Selected(),
		"running": s.sched.Running(),
	})
}

// handleSwitchSymbol changes the selected symbol. The response confirms the
// switch; fresh data arrives asynchronously via the refresh tasks.
func (s *Server) handleSwitchSymbol(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	symbol := domain.Symbol(strings.ToUpper(strings.TrimSpace(req.Symbol)))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol must not be empty")
		return
	}
	if symbol == s.store.Selected() {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbol":   symbol,
			"switched": false,
		})
		return
	}

	s.sched.SwitchSymbol(symbol)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"switched": true,
	})
}

// handleSnapshot returns the latest snapshot of the selected symbol.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.store.LatestSnapshot()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no snapshot available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// handleSnapshots returns the selected symbol's full snapshot history.
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    s.store.Selected(),
		"snapshots": s.store.Snapshots(),
	})
}

// handleCandles returns the selected symbol's candle dataset with indicators.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Candles()
	if ds == nil {
		s.writeError(w, http.StatusNotFound, "no candle dataset available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, ds)
}

// handleForecast returns the selected symbol's forecast.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	f := s.store.Forecast()
	if f == nil {
		s.writeError(w, http.StatusNotFound, "no forecast available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

// handleSentiment returns the market-wide news sentiment summary.
func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	sum := s.store.Sentiment()
	if sum == nil {
		s.writeError(w, http.StatusNotFound, "no sentiment data available yet")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

// handleRecommendation returns the selected symbol's current recommendation.
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	rec := s.store.Recommendation()
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "no recommendation computed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleUniverse returns the ranked universe list.
func (s *Server) handleUniverse(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated_at": s.store.UniverseUpdatedAt(),
		"entries":    s.store.Universe(),
	})
}

// handleUniverseStats returns breadth statistics over the ranked list.
func (s *Server) handleUniverseStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, universe.ComputeStats(s.store.Universe()))
}

// handleUniverseHistory returns a symbol's persisted universe observations.
// Query param hours bounds the window (default 24).
func (s *Server) handleUniverseHistory(w http.ResponseWriter, r *http.Request) {
	symbol := domain.Symbol(strings.ToUpper(chi.URLParam(r, "symbol")))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol must not be empty")
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	points, err := s.history.SymbolHistory(symbol, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol.String()).Msg("History query failed")
		s.writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"hours":  hours,
		"points": points,
	})
}

// handleCountdowns returns the advisory countdown of every task.
func (s *Server) handleCountdowns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sched.Countdowns())
}

// handleCountdown returns the advisory countdown of one task.
func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	seconds, err := s.sched.GetCountdown(task)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"task":    task,
		"seconds": seconds,
	})
}

// handlePortfolioPositions returns all open positions.
func (s *Server) handlePortfolioPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.portfolio.Positions()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load positions")
		s.writeError(w, http.StatusInternalServerError, "failed to load positions")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// handlePortfolioSummary values the book against the latest known prices
// (ranked universe entries plus the selected symbol's snapshot).
func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	prices := make(map[domain.Symbol]float64)
	for _, entry := range s.store.Universe() {
		prices[entry.Symbol] = entry.Price
	}
	if snap := s.store.LatestSnapshot(); snap != nil {
		prices[snap.Symbol] = snap.Price
	}

	summary, err := s.portfolio.Summarize(prices)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to summarize portfolio")
		s.writeError(w, http.StatusInternalServerError, "failed to summarize portfolio")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// orderRequest is the body of buy and sell requests.
type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// handlePortfolioBuy records a buy.
func (s *Server) handlePortfolioBuy(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, s.portfolio.RecordBuy)
}

// handlePortfolioSell records a sell.
func (s *Server) handlePortfolioSell(w http.ResponseWriter, r *http.Request) {
	s.handleOrder(w, r, s.portfolio.RecordSell)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, record func(domain.Symbol, float64, float64) (portfolio.Position, error)) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	symbol := domain.Symbol(strings.ToUpper(strings.TrimSpace(req.Symbol)))
	pos, err := record(symbol, req.Quantity, req.Price)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
