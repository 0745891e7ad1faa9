package recommendation

import (
	"fmt"

	"marketpulse/internal/domain"
)

// vote is one indicator's verdict. Indicators whose series are cold (not
// enough history) abstain rather than bias the score.
type vote int

const (
	voteAbstain vote = iota
	voteBullish
	voteBearish
)

// RSI bands for the momentum vote.
const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// technicalScore derives the technical Signal from four independent indicator
// votes: momentum (RSI), trend (MACD vs signal line), moving-average (price vs
// SMA) and band position (price vs Bollinger bands). The score is the bullish
// share of cast votes scaled to [0,100]; with no votes the signal is neutral.
func technicalScore(ds *domain.CandleDataset) domain.Signal {
	if ds == nil || len(ds.Candles) == 0 {
		return domain.Signal{
			Score:     neutralScore,
			Reasoning: []string{"technical: no candle data, defaulting to neutral"},
		}
	}

	last := len(ds.Candles) - 1
	price := ds.Candles[last].Close

	var bullish, bearish int
	reasons := make([]string, 0, 4)

	countVote := func(v vote, name, why string) {
		switch v {
		case voteBullish:
			bullish++
			reasons = append(reasons, fmt.Sprintf("technical: %s bullish (%s)", name, why))
		case voteBearish:
			bearish++
			reasons = append(reasons, fmt.Sprintf("technical: %s bearish (%s)", name, why))
		default:
			reasons = append(reasons, fmt.Sprintf("technical: %s abstained (%s)", name, why))
		}
	}

	countVote(momentumVote(ds, last))
	countVote(trendVote(ds, last))
	countVote(movingAverageVote(ds, last, price))
	countVote(bandVote(ds, last, price))

	if bullish+bearish == 0 {
		return domain.Signal{
			Score:     neutralScore,
			Reasoning: append(reasons, "technical: no indicator votes, defaulting to neutral"),
		}
	}

	score := float64(bullish) / float64(bullish+bearish) * 100
	return domain.Signal{Score: clamp(score, 0, 100), Reasoning: reasons}
}

// momentumVote reads RSI: oversold is a bullish setup, overbought bearish.
func momentumVote(ds *domain.CandleDataset, last int) (vote, string, string) {
	if last >= len(ds.RSI14) {
		return voteAbstain, "momentum", "RSI series not warm"
	}
	rsi := ds.RSI14[last]
	switch {
	case rsi < rsiOversold:
		return voteBullish, "momentum", fmt.Sprintf("RSI %.1f oversold", rsi)
	case rsi > rsiOverbought:
		return voteBearish, "momentum", fmt.Sprintf("RSI %.1f overbought", rsi)
	default:
		return voteAbstain, "momentum", fmt.Sprintf("RSI %.1f in neutral band", rsi)
	}
}

// trendVote reads MACD against its signal line.
func trendVote(ds *domain.CandleDataset, last int) (vote, string, string) {
	if last >= len(ds.MACD) || last >= len(ds.MACDSignal) {
		return voteAbstain, "trend", "MACD series not warm"
	}
	macd, signal := ds.MACD[last], ds.MACDSignal[last]
	if macd > signal {
		return voteBullish, "trend", fmt.Sprintf("MACD %.4f above signal %.4f", macd, signal)
	}
	if macd < signal {
		return voteBearish, "trend", fmt.Sprintf("MACD %.4f below signal %.4f", macd, signal)
	}
	return voteAbstain, "trend", "MACD on signal line"
}

// movingAverageVote compares the latest close with its 20-period SMA.
func movingAverageVote(ds *domain.CandleDataset, last int, price float64) (vote, string, string) {
	if last >= len(ds.SMA20) || ds.SMA20[last] == 0 {
		return voteAbstain, "moving-average", "SMA series not warm"
	}
	sma := ds.SMA20[last]
	if price > sma {
		return voteBullish, "moving-average", fmt.Sprintf("price %.2f above SMA20 %.2f", price, sma)
	}
	if price < sma {
		return voteBearish, "moving-average", fmt.Sprintf("price %.2f below SMA20 %.2f", price, sma)
	}
	return voteAbstain, "moving-average", "price on SMA20"
}

// bandVote reads the Bollinger band position: a close below the lower band is
// a bullish reversion setup, above the upper band bearish.
func bandVote(ds *domain.CandleDataset, last int, price float64) (vote, string, string) {
	if last >= len(ds.BBUpper) || last >= len(ds.BBLower) || ds.BBUpper[last] == 0 {
		return voteAbstain, "band", "Bollinger series not warm"
	}
	upper, lower := ds.BBUpper[last], ds.BBLower[last]
	if price < lower {
		return voteBullish, "band", fmt.Sprintf("price %.2f below lower band %.2f", price, lower)
	}
	if price > upper {
		return voteBearish, "band", fmt.Sprintf("price %.2f above upper band %.2f", price, upper)
	}
	return voteAbstain, "band", "price inside bands"
}
