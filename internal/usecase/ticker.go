package usecase

import (
	"time"

	"github.com/lthibault/jitterbug/v2"
)

// Ticker delivers poll ticks to the worker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory starts a ticker for the given interval.
type TickerFactory func(interval time.Duration) Ticker

type jitterTicker struct {
	t *jitterbug.Ticker
}

func (j jitterTicker) C() <-chan time.Time { return j.t.C }
func (j jitterTicker) Stop()               { j.t.Stop() }

// JitterTicker returns a factory whose ticks are spread around the interval
// by a normal distribution with the given standard deviation.
func JitterTicker(stdev time.Duration) TickerFactory {
	return func(interval time.Duration) Ticker {
		return jitterTicker{t: jitterbug.New(interval, &jitterbug.Norm{Stdev: stdev})}
	}
}
