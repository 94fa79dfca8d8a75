package dataflows

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// IndicatorValue represents a single indicator value at a specific date
type IndicatorValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// IndicatorDescriptions explains every supported indicator to the model.
var IndicatorDescriptions = map[string]string{
	"close_50_sma":  "50 SMA: A medium-term trend indicator. Usage: Identify trend direction and serve as dynamic support/resistance. Tips: It lags price; combine with faster indicators for timely signals.",
	"close_200_sma": "200 SMA: A long-term trend benchmark. Usage: Confirm overall market trend and identify golden/death cross setups. Tips: It reacts slowly; best for strategic trend confirmation rather than frequent trading entries.",
	"close_10_ema":  "10 EMA: A responsive short-term average. Usage: Capture quick shifts in momentum and potential entry points. Tips: Prone to noise in choppy markets; use alongside longer averages for filtering false signals.",
	"vwma":          "VWMA: A moving average weighted by volume. Usage: Confirm trends by integrating price action with volume data. Tips: Watch for skewed results from volume spikes.",
	"macd":          "MACD: Computes momentum via differences of EMAs. Usage: Look for crossovers and divergence as signals of trend changes. Tips: Confirm with other indicators in low-volatility or sideways markets.",
	"macds":         "MACD Signal: An EMA smoothing of the MACD line. Usage: Use crossovers with the MACD line to trigger trades. Tips: Should be part of a broader strategy to avoid false positives.",
	"macdh":         "MACD Histogram: Shows the gap between the MACD line and its signal. Usage: Visualize momentum strength and spot divergence early. Tips: Can be volatile; complement with additional filters.",
	"rsi":           "RSI: Measures momentum to flag overbought/oversold conditions. Usage: Apply 70/30 thresholds and watch for divergence to signal reversals. Tips: In strong trends, RSI may remain extreme.",
	"mfi":           "MFI: Uses price and volume to measure buying and selling pressure. Usage: Identify overbought (>80) or oversold (<20) conditions. Tips: Divergence between price and MFI can indicate potential reversals.",
	"boll":          "Bollinger Middle: A 20 SMA serving as the basis for Bollinger Bands. Usage: Acts as a dynamic benchmark for price movement.",
	"boll_ub":       "Bollinger Upper Band: Typically 2 standard deviations above the middle line. Usage: Signals potential overbought conditions and breakout zones.",
	"boll_lb":       "Bollinger Lower Band: Typically 2 standard deviations below the middle line. Usage: Indicates potential oversold conditions.",
	"atr":           "ATR: Averages true range to measure volatility. Usage: Set stop-loss levels and adjust position sizes based on current market volatility.",
}

// SupportedIndicators lists indicator names in sorted order.
func SupportedIndicators() []string {
	names := make([]string, 0, len(IndicatorDescriptions))
	for k := range IndicatorDescriptions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type series struct {
	dates  []string
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

func toSeries(data []*MarketData) series {
	sorted := append([]*MarketData(nil), data...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	s := series{}
	for _, d := range sorted {
		s.dates = append(s.dates, d.Day())
		s.open = append(s.open, d.Open.InexactFloat64())
		s.high = append(s.high, d.High.InexactFloat64())
		s.low = append(s.low, d.Low.InexactFloat64())
		s.close = append(s.close, d.Close.InexactFloat64())
		s.volume = append(s.volume, float64(d.Volume))
	}
	return s
}

// CalculateIndicator computes indicator over data and returns the values
// whose dates fall inside [start, end].
func CalculateIndicator(data []*MarketData, indicator string, start, end time.Time) ([]IndicatorValue, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no data available")
	}
	s := toSeries(data)

	var values []float64
	switch indicator {
	case "close_50_sma":
		values = sma(s.close, 50)
	case "close_200_sma":
		values = sma(s.close, 200)
	case "close_10_ema":
		values = ema(s.close, 10)
	case "rsi":
		values = rsi(s.close, 14)
	case "macd":
		values, _, _ = macd(s.close)
	case "macds":
		_, values, _ = macd(s.close)
	case "macdh":
		_, _, values = macd(s.close)
	case "boll":
		values, _, _ = bollinger(s.close, 20, 2)
	case "boll_ub":
		_, values, _ = bollinger(s.close, 20, 2)
	case "boll_lb":
		_, _, values = bollinger(s.close, 20, 2)
	case "atr":
		values = atr(s, 14)
	case "vwma":
		values = vwma(s, 20)
	case "mfi":
		values = mfi(s, 14)
	default:
		return nil, fmt.Errorf("indicator %s is not supported. Please choose from: %s",
			indicator, strings.Join(SupportedIndicators(), ", "))
	}

	startDay, endDay := start.Format("2006-01-02"), end.Format("2006-01-02")
	var out []IndicatorValue
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		d := s.dates[i]
		if d < startDay || d > endDay {
			continue
		}
		out = append(out, IndicatorValue{Date: d, Value: v})
	}
	return out, nil
}

// Every helper returns a slice aligned with its input; positions without
// enough history hold NaN.

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func sma(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// ema seeds with the SMA of the first non-NaN window.
func ema(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	first := 0
	for first < len(xs) && math.IsNaN(xs[first]) {
		first++
	}
	if len(xs)-first < period {
		return out
	}
	k := 2.0 / (float64(period) + 1.0)
	var seed float64
	for i := first; i < first+period; i++ {
		seed += xs[i]
	}
	prev := seed / float64(period)
	out[first+period-1] = prev
	for i := first + period; i < len(xs); i++ {
		prev = xs[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

func rsi(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if len(xs) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := xs[i] - xs[i-1]
		avgGain += math.Max(change, 0)
		avgLoss += math.Max(-change, 0)
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(xs); i++ {
		change := xs[i] - xs[i-1]
		avgGain = (avgGain*float64(period-1) + math.Max(change, 0)) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + math.Max(-change, 0)) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

func macd(xs []float64) (line, signal, hist []float64) {
	fast, slow := ema(xs, 12), ema(xs, 26)
	line = nanSlice(len(xs))
	for i := range xs {
		line[i] = fast[i] - slow[i]
	}
	signal = ema(line, 9)
	hist = nanSlice(len(xs))
	for i := range xs {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

func bollinger(xs []float64, period int, width float64) (mid, upper, lower []float64) {
	mid = sma(xs, period)
	upper, lower = nanSlice(len(xs)), nanSlice(len(xs))
	for i := period - 1; i < len(xs); i++ {
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := xs[j] - mid[i]
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))
		upper[i] = mid[i] + width*std
		lower[i] = mid[i] - width*std
	}
	return mid, upper, lower
}

func atr(s series, period int) []float64 {
	tr := nanSlice(len(s.close))
	for i := 1; i < len(s.close); i++ {
		tr[i] = math.Max(s.high[i]-s.low[i],
			math.Max(math.Abs(s.high[i]-s.close[i-1]), math.Abs(s.low[i]-s.close[i-1])))
	}
	out := nanSlice(len(tr))
	for i := period; i < len(tr); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += tr[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

func vwma(s series, period int) []float64 {
	out := nanSlice(len(s.close))
	for i := period - 1; i < len(s.close); i++ {
		var vol, weighted float64
		for j := i - period + 1; j <= i; j++ {
			vol += s.volume[j]
			weighted += s.close[j] * s.volume[j]
		}
		if vol > 0 {
			out[i] = weighted / vol
		}
	}
	return out
}

func mfi(s series, period int) []float64 {
	out := nanSlice(len(s.close))
	typical := make([]float64, len(s.close))
	for i := range s.close {
		typical[i] = (s.high[i] + s.low[i] + s.close[i]) / 3
	}
	for i := period; i < len(s.close); i++ {
		var pos, neg float64
		for j := i - period + 1; j <= i; j++ {
			flow := typical[j] * s.volume[j]
			switch {
			case typical[j] > typical[j-1]:
				pos += flow
			case typical[j] < typical[j-1]:
				neg += flow
			}
		}
		if neg == 0 {
			out[i] = 100
		} else {
			out[i] = 100 - 100/(1+pos/neg)
		}
	}
	return out
}
