package indicators

import "math"

// ATR is Wilder's Average True Range: the exponential weighted mean (alpha
// = 1/period, adjust=False) of the true range, matching the reference
// implementation's indicators/volatility.py exactly.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return ewm(tr, 1.0/float64(period))
}

// RSI is Wilder's Relative Strength Index: the exponential weighted mean
// (alpha = 1/period) of gains over the exponential weighted mean of losses.
func RSI(close []float64, period int) []float64 {
	n := len(close)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := close[i] - close[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := ewm(gains, 1.0/float64(period))
	avgLoss := ewm(losses, 1.0/float64(period))

	out := nanSlice(n)
	for i := 0; i < n; i++ {
		if i == 0 {
			continue
		}
		if avgLoss[i] == 0 {
			if avgGain[i] == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// StochRSI applies a stochastic normalization to RSI over rsiPeriod bars,
// then smooths %K and %D with smoothK/smoothD-bar simple moving averages.
// Returns (%K, %D).
func StochRSI(close []float64, rsiPeriod, stochPeriod, smoothK, smoothD int) ([]float64, []float64) {
	rsi := RSI(close, rsiPeriod)
	n := len(rsi)
	raw := nanSlice(n)
	for i := 0; i < n; i++ {
		if i < stochPeriod-1 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		valid := true
		for j := i - stochPeriod + 1; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				valid = false
				break
			}
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if !valid {
			continue
		}
		if hi == lo {
			raw[i] = 0
			continue
		}
		raw[i] = 100 * (rsi[i] - lo) / (hi - lo)
	}
	k := SimpleMA(raw, smoothK)
	d := SimpleMA(k, smoothD)
	return k, d
}
