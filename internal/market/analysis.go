package market

// sma returns the simple moving average of the last period closes, or nil
// when there is not enough history.
func sma(candles []Candle, period int) *float64 {
	if period <= 0 || len(candles) < period {
		return nil
	}
	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}
	avg := sum / float64(period)
	return &avg
}

// rsi returns the Wilder-smoothed relative strength index over period, or
// nil when there is not enough history.
func rsi(candles []Candle, period int) *float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		v := 100.0
		return &v
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return &v
}

// volumeRatio compares the latest volume to its trailing average. Zero
// volume days are common around holidays and are kept in the average.
func volumeRatio(candles []Candle, period int) *float64 {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}
	recent := candles[len(candles)-period-1 : len(candles)-1]
	sum := int64(0)
	for _, c := range recent {
		sum += c.Volume
	}
	if sum == 0 {
		return nil
	}
	avg := float64(sum) / float64(period)
	ratio := float64(candles[len(candles)-1].Volume) / avg
	return &ratio
}

// Analyze builds a technical snapshot from daily candles (oldest first).
// Returns ErrNoData when there are no candles at all; indicators that need
// more history than is available come back nil rather than failing.
func Analyze(symbol string, candles []Candle) (*Analysis, error) {
	if len(candles) == 0 {
		return nil, ErrNoData
	}

	latest := candles[len(candles)-1]
	a := &Analysis{
		Symbol: symbol,
		Price:  latest.Close,
		SMA25:  sma(candles, 25),
		SMA75:  sma(candles, 75),
		RSI14:  rsi(candles, 14),
		AsOf:   latest.Time,
	}
	a.VolumeRatio = volumeRatio(candles, 25)

	if a.SMA25 != nil && *a.SMA25 > 0 {
		pct := (latest.Close - *a.SMA25) / *a.SMA25 * 100
		a.PriceVsSMA25Pct = &pct
	}
	if a.SMA75 != nil && *a.SMA75 > 0 {
		pct := (latest.Close - *a.SMA75) / *a.SMA75 * 100
		a.PriceVsSMA75Pct = &pct
	}

	high, low := latest.Close, latest.Close
	for _, c := range candles {
		if c.High > high {
			high = c.High
		}
		if c.Low > 0 && c.Low < low {
			low = c.Low
		}
	}
	a.High52W = high
	a.Low52W = low
	if high > low {
		a.RangePosition = (latest.Close - low) / (high - low) * 100
	} else {
		a.RangePosition = 50
	}

	a.Trend = trendLabel(latest.Close, a.SMA25, a.SMA75)
	return a, nil
}

// trendLabel classifies the trend from the price's side of both moving
// averages; mixed or missing averages read as SIDEWAYS.
func trendLabel(price float64, sma25, sma75 *float64) string {
	if sma25 == nil || sma75 == nil {
		return "SIDEWAYS"
	}
	switch {
	case price > *sma25 && *sma25 > *sma75:
		return "UPTREND"
	case price < *sma25 && *sma25 < *sma75:
		return "DOWNTREND"
	default:
		return "SIDEWAYS"
	}
}
