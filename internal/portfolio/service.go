// Package portfolio tracks a simple paper-trading book: positions keyed by
// symbol with quantity and average cost, persisted as one KV blob so the book
// survives restarts.
package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/clientdata"
	"marketpulse/internal/domain"
)

// positionsKey is the kv_store key holding the whole position book.
const positionsKey = "portfolio_positions"

// KV is the persistence surface the service needs from the cache repository.
type KV interface {
	Store(table, key string, value interface{}, ttl time.Duration) error
	Get(table, key string, dest interface{}) (bool, error)
}

// Position is one open holding.
type Position struct {
	Symbol    domain.Symbol `json:"symbol" msgpack:"symbol"`
	Quantity  float64       `json:"quantity" msgpack:"quantity"`
	AvgCost   float64       `json:"avg_cost" msgpack:"avg_cost"`
	UpdatedAt time.Time     `json:"updated_at" msgpack:"updated_at"`
}

// Holding is a position enriched with a current price.
type Holding struct {
	Position
	LastPrice     float64 `json:"last_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Summary aggregates the whole book.
type Summary struct {
	Holdings   []Holding `json:"holdings"`
	TotalCost  float64   `json:"total_cost"`
	TotalValue float64   `json:"total_value"`
	TotalPnL   float64   `json:"total_pnl"`
}

// Service provides position bookkeeping over the KV store.
type Service struct {
	mu  sync.Mutex
	kv  KV
	log zerolog.Logger
}

// New creates a portfolio service.
func New(kv KV, log zerolog.Logger) *Service {
	return &Service{
		kv:  kv,
		log: log.With().Str("service", "portfolio").Logger(),
	}
}

// RecordBuy adds quantity at price to a position, blending the average cost.
func (s *Service) RecordBuy(symbol domain.Symbol, quantity, price float64) (Position, error) {
	if err := validateOrder(symbol, quantity, price); err != nil {
		return Position{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.load()
	if err != nil {
		return Position{}, err
	}

	pos := book[symbol]
	totalCost := pos.AvgCost*pos.Quantity + price*quantity
	pos.Symbol = symbol
	pos.Quantity += quantity
	pos.AvgCost = totalCost / pos.Quantity
	pos.UpdatedAt = time.Now().UTC()
	book[symbol] = pos

	if err := s.save(book); err != nil {
		return Position{}, err
	}

	s.log.Info().
		Str("symbol", symbol.String()).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("Recorded buy")
	return pos, nil
}

// RecordSell removes quantity from a position. Selling the full quantity
// closes the position; selling more than held is an error.
func (s *Service) RecordSell(symbol domain.Symbol, quantity, price float64) (Position, error) {
	if err := validateOrder(symbol, quantity, price); err != nil {
		return Position{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.load()
	if err != nil {
		return Position{}, err
	}

	pos, ok := book[symbol]
	if !ok {
		return Position{}, fmt.Errorf("no open position for %s", symbol)
	}
	if quantity > pos.Quantity {
		return Position{}, fmt.Errorf("cannot sell %.8f of %s, only %.8f held", quantity, symbol, pos.Quantity)
	}

	pos.Quantity -= quantity
	pos.UpdatedAt = time.Now().UTC()
	if pos.Quantity == 0 {
		delete(book, symbol)
	} else {
		book[symbol] = pos
	}

	if err := s.save(book); err != nil {
		return Position{}, err
	}

	s.log.Info().
		Str("symbol", symbol.String()).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("Recorded sell")
	return pos, nil
}

// Positions returns all open positions sorted by symbol.
func (s *Service) Positions() ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.load()
	if err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(book))
	for _, pos := range book {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})
	return positions, nil
}

// Summarize values the book against the given last prices. Positions without
// a known price contribute cost but no market value.
func (s *Service) Summarize(prices map[domain.Symbol]float64) (Summary, error) {
	positions, err := s.Positions()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Holdings: make([]Holding, 0, len(positions))}
	for _, pos := range positions {
		cost := pos.AvgCost * pos.Quantity
		h := Holding{Position: pos}
		if price, ok := prices[pos.Symbol]; ok {
			h.LastPrice = price
			h.MarketValue = price * pos.Quantity
			h.UnrealizedPnL = h.MarketValue - cost
		}
		summary.Holdings = append(summary.Holdings, h)
		summary.TotalCost += cost
		summary.TotalValue += h.MarketValue
		summary.TotalPnL += h.UnrealizedPnL
	}
	return summary, nil
}

func validateOrder(symbol domain.Symbol, quantity, price float64) error {
	if symbol == "" {
		return domain.ErrMissingSymbol
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", quantity)
	}
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}

func (s *Service) load() (map[domain.Symbol]Position, error) {
	book := make(map[domain.Symbol]Position)
	if _, err := s.kv.Get("kv_store", positionsKey, &book); err != nil {
		return nil, fmt.Errorf("failed to load position book: %w", err)
	}
	return book, nil
}

func (s *Service) save(book map[domain.Symbol]Position) error {
	if err := s.kv.Store("kv_store", positionsKey, book, clientdata.TTLPortfolio); err != nil {
		return fmt.Errorf("failed to save position book: %w", err)
	}
	return nil
}
