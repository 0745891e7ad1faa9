// Package recommendation combines the latest sentiment, technical and
// forecast signals for the selected instrument into a single bounded
// recommendation with a confidence score.
package recommendation

import (
	"fmt"
	"math"
	"time"

	"marketpulse/internal/domain"
)

// Source weights. Technical carries the most weight because it is the most
// frequently refreshed signal.
const (
	weightNews      = 0.3
	weightTechnical = 0.4
	weightForecast  = 0.3
)

// Action thresholds on the weighted overall score.
const (
	buyThreshold  = 70.0
	sellThreshold = 30.0
)

// maxConfidence caps confidence below 100 to avoid false certainty.
const maxConfidence = 95.0

// neutralScore is the default when a source has no usable data.
const neutralScore = 50.0

// Inputs carries the latest per-source state for one computation. Any field
// may be nil; a missing source degrades to a neutral sub-score with an
// explanatory reason, never an error.
type Inputs struct {
	Sentiment *domain.SentimentSummary
	Candles   *domain.CandleDataset
	Forecast  *domain.Forecast
	Snapshot  *domain.Snapshot
}

// Compute produces a recommendation from the given inputs. Pure function of
// its arguments: no hidden state, safe to invoke on every store change.
// Sub-scores stay float64 through the whole chain; rounding to integers
// happens only here, at the presentation boundary.
func Compute(symbol domain.Symbol, in Inputs, now time.Time) domain.Recommendation {
	news := newsScore(in.Sentiment)
	technical := technicalScore(in.Candles)
	forecast := forecastScore(in.Forecast, in.Snapshot)

	overall := news.Score*weightNews + technical.Score*weightTechnical + forecast.Score*weightForecast

	var action domain.Action
	var confidence float64
	switch {
	case overall >= buyThreshold:
		action = domain.ActionBuy
		confidence = math.Min(overall, maxConfidence)
	case overall <= sellThreshold:
		action = domain.ActionSell
		confidence = math.Min(100-overall, maxConfidence)
	default:
		action = domain.ActionNeutral
		// Bounded to <=40 inside the neutral band, far from the 95 cap
		confidence = math.Abs(50-overall) * 2
	}

	reasoning := make([]string, 0, len(news.Reasoning)+len(technical.Reasoning)+len(forecast.Reasoning)+1)
	reasoning = append(reasoning, news.Reasoning...)
	reasoning = append(reasoning, technical.Reasoning...)
	reasoning = append(reasoning, forecast.Reasoning...)
	reasoning = append(reasoning, fmt.Sprintf("overall %.1f -> %s", overall, action))

	return domain.Recommendation{
		GeneratedAt: now,
		Symbol:      symbol,
		Action:      action,
		Confidence:  int(math.Round(confidence)),
		Breakdown: domain.ScoreBreakdown{
			News:      int(math.Round(news.Score)),
			Technical: int(math.Round(technical.Score)),
			Forecast:  int(math.Round(forecast.Score)),
		},
		Reasoning: reasoning,
	}
}

// newsScore maps article sentiment ratios to [0,100].
func newsScore(s *domain.SentimentSummary) domain.Signal {
	if s == nil || s.Total == 0 {
		return domain.Signal{
			Score:     neutralScore,
			Reasoning: []string{"news: no articles in window, defaulting to neutral"},
		}
	}

	pr := float64(s.PositiveCount) / float64(s.Total)
	nr := float64(s.NegativeCount) / float64(s.Total)

	var score float64
	var why string
	switch {
	case pr > 0.6:
		score = 75 + pr*25
		why = fmt.Sprintf("news: strongly positive (%.0f%% of %d articles)", pr*100, s.Total)
	case nr > 0.6:
		score = 25 - nr*25
		why = fmt.Sprintf("news: strongly negative (%.0f%% of %d articles)", nr*100, s.Total)
	default:
		score = 40 + (pr-nr)*20
		why = fmt.Sprintf("news: mixed sentiment (+%.0f%%/-%.0f%% of %d articles)", pr*100, nr*100, s.Total)
	}

	return domain.Signal{Score: clamp(score, 0, 100), Reasoning: []string{why}}
}

// forecastHorizon is the prediction window considered by the forecast score.
const forecastHorizon = 24 * 60 // minutes

// forecastScore maps the nearest in-horizon prediction's expected change to
// [0,100]. The current price comes from the live snapshot when available,
// falling back to the price the forecast service observed.
func forecastScore(f *domain.Forecast, snap *domain.Snapshot) domain.Signal {
	if f == nil || len(f.Predictions) == 0 {
		return domain.Signal{
			Score:     neutralScore,
			Reasoning: []string{"forecast: no predictions available, defaulting to neutral"},
		}
	}

	current := f.CurrentPrice
	if snap != nil && snap.Price > 0 {
		current = snap.Price
	}
	if current <= 0 {
		return domain.Signal{
			Score:     neutralScore,
			Reasoning: []string{"forecast: no current price available, defaulting to neutral"},
		}
	}

	// Nearest prediction within the 24h horizon
	var nearest *domain.Prediction
	for i := range f.Predictions {
		p := &f.Predictions[i]
		if p.HorizonMinutes <= 0 || p.HorizonMinutes > forecastHorizon {
			continue
		}
		if nearest == nil || p.HorizonMinutes < nearest.HorizonMinutes {
			nearest = p
		}
	}
	if nearest == nil {
		return domain.Signal{
			Score:     neutralScore,
			Reasoning: []string{"forecast: no prediction within 24h horizon, defaulting to neutral"},
		}
	}

	changePercent := (nearest.PredictedPrice - current) / current * 100

	var score float64
	switch {
	case changePercent > 5:
		score = 75 + math.Min(changePercent, 25)
	case changePercent < -5:
		score = 25 + math.Max(changePercent, -25)
	default:
		score = 50 + changePercent*5
	}

	why := fmt.Sprintf("forecast: %+.1f%% expected over %dm horizon", changePercent, nearest.HorizonMinutes)
	return domain.Signal{Score: clamp(score, 0, 100), Reasoning: []string{why}}
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
