// Package indicators provides pure functions over OHLCV price/volume
// series: moving averages, ATR, RSI, and StochRSI. All functions operate on
// plain []float64 and propagate NaN the way the pandas/numpy reference
// implementation does — a decision point downstream that reads a NaN
// indicator value suppresses itself rather than panicking.
package indicators

import "math"

// MAType names one of the eleven supported moving-average families.
type MAType string

const (
	SMA  MAType = "SMA"
	EMA  MAType = "EMA"
	WMA  MAType = "WMA"
	HMA  MAType = "HMA"
	VWMA MAType = "VWMA"
	VWAP MAType = "VWAP"
	ALMA MAType = "ALMA"
	DEMA MAType = "DEMA"
	KAMA MAType = "KAMA"
	TMA  MAType = "TMA"
	T3   MAType = "T3"
)

// ValidMATypes is the set of recognized MA type codes, used to validate
// strategy parameter payloads (spec §4.1 "unknown MA type" is an
// InputValidation error).
var ValidMATypes = map[MAType]bool{
	SMA: true, EMA: true, WMA: true, HMA: true, VWMA: true, VWAP: true,
	ALMA: true, DEMA: true, KAMA: true, TMA: true, T3: true,
}

const (
	factorT3 = 0.7
	fastKAMA = 2.0
	slowKAMA = 30.0
)

// MA dispatches to the requested moving-average family. volume/high/low are
// only consulted by VWMA/VWAP; callers may pass nil otherwise.
func MA(kind MAType, close []float64, length int, volume, high, low []float64) []float64 {
	switch kind {
	case SMA:
		return SimpleMA(close, length)
	case EMA:
		return ExponentialMA(close, length)
	case WMA:
		return WeightedMA(close, length)
	case HMA:
		return HullMA(close, length)
	case VWMA:
		return VolumeWeightedMA(close, volume, length)
	case VWAP:
		return VolumeWeightedAveragePrice(high, low, close, volume)
	case ALMA:
		return ArnaudLegouxMA(close, length, 0.85, 6.0)
	case DEMA:
		return DoubleExponentialMA(close, length)
	case KAMA:
		return AdaptiveMA(close, length)
	case TMA:
		return TriangularMA(close, length)
	case T3:
		return TillsonT3(close, length)
	default:
		out := make([]float64, len(close))
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SimpleMA is the rolling arithmetic mean over length bars (min_periods = length).
func SimpleMA(series []float64, length int) []float64 {
	out := nanSlice(len(series))
	if length <= 0 {
		return out
	}
	var sum float64
	for i, v := range series {
		sum += v
		if i >= length {
			sum -= series[i-length]
		}
		if i >= length-1 {
			out[i] = sum / float64(length)
		}
	}
	return out
}

// ExponentialMA matches pandas' ewm(span=length, adjust=False): alpha =
// 2/(length+1), recursive from the first observation.
func ExponentialMA(series []float64, length int) []float64 {
	return ewm(series, 2.0/(float64(length)+1.0))
}

// ewm implements pandas' adjust=False exponential weighted mean recursion,
// seeding on the first non-NaN value.
func ewm(series []float64, alpha float64) []float64 {
	out := make([]float64, len(series))
	seeded := false
	var prev float64
	for i, v := range series {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		if !seeded {
			prev = v
			seeded = true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// WeightedMA assigns linearly increasing weights 1..length to the window,
// heaviest on the most recent bar.
func WeightedMA(series []float64, length int) []float64 {
	out := nanSlice(len(series))
	if length <= 0 {
		return out
	}
	denom := float64(length*(length+1)) / 2.0
	for i := range series {
		if i < length-1 {
			continue
		}
		var sum float64
		for w := 0; w < length; w++ {
			sum += series[i-length+1+w] * float64(w+1)
		}
		out[i] = sum / denom
	}
	return out
}

// HullMA reduces lag via WMA(2*WMA(n/2) - WMA(n), sqrt(n)).
func HullMA(series []float64, length int) []float64 {
	if length <= 1 {
		return WeightedMA(series, length)
	}
	halfLen := length / 2
	sqrtLen := int(math.Round(math.Sqrt(float64(length))))
	if sqrtLen < 1 {
		sqrtLen = 1
	}
	wmaHalf := WeightedMA(series, halfLen)
	wmaFull := WeightedMA(series, length)
	diff := make([]float64, len(series))
	for i := range series {
		diff[i] = 2*wmaHalf[i] - wmaFull[i]
	}
	return WeightedMA(diff, sqrtLen)
}

// VolumeWeightedMA is a rolling volume-weighted average of close over
// length bars.
func VolumeWeightedMA(close, volume []float64, length int) []float64 {
	out := nanSlice(len(close))
	if length <= 0 || volume == nil {
		return out
	}
	for i := range close {
		if i < length-1 {
			continue
		}
		var num, den float64
		for w := 0; w < length; w++ {
			idx := i - length + 1 + w
			num += close[idx] * volume[idx]
			den += volume[idx]
		}
		if den != 0 {
			out[i] = num / den
		}
	}
	return out
}

// VolumeWeightedAveragePrice is the cumulative (anchored-from-series-start)
// VWAP over the typical price (H+L+C)/3.
func VolumeWeightedAveragePrice(high, low, close, volume []float64) []float64 {
	out := nanSlice(len(close))
	var cumPV, cumV float64
	for i := range close {
		typical := (high[i] + low[i] + close[i]) / 3.0
		cumPV += typical * volume[i]
		cumV += volume[i]
		if cumV != 0 {
			out[i] = cumPV / cumV
		}
	}
	return out
}

// ArnaudLegouxMA is a Gaussian-weighted moving average biased toward recent
// bars by offset (0..1) with smoothness sigma.
func ArnaudLegouxMA(series []float64, length int, offset, sigma float64) []float64 {
	out := nanSlice(len(series))
	if length <= 0 {
		return out
	}
	m := math.Floor(offset * float64(length-1))
	s := float64(length) / sigma
	weights := make([]float64, length)
	var wsum float64
	for j := 0; j < length; j++ {
		w := math.Exp(-((float64(j) - m) * (float64(j) - m)) / (2 * s * s))
		weights[j] = w
		wsum += w
	}
	for i := range series {
		if i < length-1 {
			continue
		}
		var sum float64
		for j := 0; j < length; j++ {
			sum += series[i-length+1+j] * weights[j]
		}
		out[i] = sum / wsum
	}
	return out
}

// DoubleExponentialMA reduces EMA lag: 2*EMA(n) - EMA(EMA(n),n).
func DoubleExponentialMA(series []float64, length int) []float64 {
	e1 := ExponentialMA(series, length)
	e2 := ExponentialMA(e1, length)
	out := make([]float64, len(series))
	for i := range series {
		out[i] = 2*e1[i] - e2[i]
	}
	return out
}

// AdaptiveMA is Kaufman's Adaptive Moving Average: the smoothing constant
// adapts between fast (2-period) and slow (30-period) EMA bounds based on
// the efficiency ratio over length bars.
func AdaptiveMA(series []float64, length int) []float64 {
	out := nanSlice(len(series))
	if length <= 0 || len(series) == 0 {
		return out
	}
	fastSC := 2.0 / (fastKAMA + 1.0)
	slowSC := 2.0 / (slowKAMA + 1.0)

	var prev float64
	seeded := false
	for i := range series {
		if i < length {
			continue
		}
		change := math.Abs(series[i] - series[i-length])
		var volatility float64
		for j := i - length + 1; j <= i; j++ {
			volatility += math.Abs(series[j] - series[j-1])
		}
		var er float64
		if volatility != 0 {
			er = change / volatility
		}
		sc := er*(fastSC-slowSC) + slowSC
		sc *= sc
		if !seeded {
			prev = series[i]
			seeded = true
		} else {
			prev = prev + sc*(series[i]-prev)
		}
		out[i] = prev
	}
	return out
}

// TriangularMA double-smooths with SMA(SMA(series, length), length), more
// heavily weighting the middle of the window than SMA alone.
func TriangularMA(series []float64, length int) []float64 {
	return SimpleMA(SimpleMA(series, length), length)
}

// TillsonT3 is Tillson's T3, a six-pass EMA cascade combined with a
// volume-factor blend (factorT3) that reduces lag relative to a plain EMA.
func TillsonT3(series []float64, length int) []float64 {
	a := factorT3
	e1 := ExponentialMA(series, length)
	e2 := ExponentialMA(e1, length)
	e3 := ExponentialMA(e2, length)
	e4 := ExponentialMA(e3, length)
	e5 := ExponentialMA(e4, length)
	e6 := ExponentialMA(e5, length)

	c1 := -a * a * a
	c2 := 3*a*a + 3*a*a*a
	c3 := -6*a*a - 3*a - 3*a*a*a
	c4 := 1 + 3*a + a*a*a + 3*a*a

	out := make([]float64, len(series))
	for i := range series {
		out[i] = c1*e6[i] + c2*e5[i] + c3*e4[i] + c4*e3[i]
	}
	return out
}
