// Package talib wraps the cinar/indicator moving averages used to smooth
// period win-rate series.
package talib

import (
	"strings"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// Moving average kinds.
const (
	SMA = 0
	EMA = 1
)

// ParseKind maps "sma" or "ema" (any case) to a kind; anything else is SMA.
func ParseKind(name string) int {
	if strings.EqualFold(strings.TrimSpace(name), "ema") {
		return EMA
	}
	return SMA
}

func Sma(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	c := helper.SliceToChan(values)
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(c))
}

func Ema(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	c := helper.SliceToChan(values)
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(c))
}

// MovingAverage returns one entry per input value. The indicator skips its
// idle head, so the first period-1 entries are nil, as are all entries when
// the series is shorter than period.
func MovingAverage(kind int, values []float64, period int) []*float64 {
	aligned := make([]*float64, len(values))

	var out []float64
	switch kind {
	case EMA:
		out = Ema(values, period)
	default:
		out = Sma(values, period)
	}

	offset := len(values) - len(out)
	for i, v := range out {
		v := v
		aligned[offset+i] = &v
	}
	return aligned
}
