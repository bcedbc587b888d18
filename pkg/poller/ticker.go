package poller

import "time"

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Ticker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

// realTicker adapts *time.Ticker to Ticker.
type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) Chan() <-chan time.Time {
	return r.t.C
}

func (r *realTicker) Stop() {
	r.t.Stop()
}
