package candles

import (
	"github.com/markcheno/go-talib"

	"marketpulse/internal/domain"
)

// Indicator parameters. Standard settings; the technical vote derivation in
// internal/recommendation depends on these matching the series names on the
// dataset.
const (
	smaPeriod  = 20
	emaPeriod  = 12
	rsiPeriod  = 14
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bbPeriod   = 20
	bbDevUp    = 2.0
	bbDevDown  = 2.0
)

// ComputeIndicators populates the derived indicator series on a dataset from
// its candle closes. Series whose warm-up period exceeds the available history
// are left nil; consumers treat missing series as an abstained vote, never an
// error. Each talib output is aligned index-for-index with Candles, with
// leading zeros during warm-up.
func ComputeIndicators(ds *domain.CandleDataset) {
	closes := make([]float64, len(ds.Candles))
	for i, c := range ds.Candles {
		closes[i] = c.Close
	}

	if len(closes) >= smaPeriod {
		ds.SMA20 = talib.Sma(closes, smaPeriod)
	}
	if len(closes) >= emaPeriod {
		ds.EMA12 = talib.Ema(closes, emaPeriod)
	}
	// talib's RSI defines the zero-average-loss case as 100, a capped extreme,
	// so an all-gains window scores overbought instead of dividing by zero.
	if len(closes) > rsiPeriod {
		ds.RSI14 = talib.Rsi(closes, rsiPeriod)
	}
	if len(closes) >= macdSlow+macdSignal {
		macd, signal, _ := talib.Macd(closes, macdFast, macdSlow, macdSignal)
		ds.MACD = macd
		ds.MACDSignal = signal
	}
	if len(closes) >= bbPeriod {
		upper, middle, lower := talib.BBands(closes, bbPeriod, bbDevUp, bbDevDown, talib.SMA)
		ds.BBUpper = upper
		ds.BBMiddle = middle
		ds.BBLower = lower
	}
}
