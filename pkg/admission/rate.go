package admission

import "time"

const (
	DefaultAlpha = 0.3
	minInterval  = time.Millisecond
)

// RateEstimator tracks the join-request arrival rate of a cycle as an
// exponentially weighted moving average over inter-arrival times.
// It is not safe for concurrent use; the owning cycle serializes access.
type RateEstimator struct {
	alpha    float64
	interval float64
	last     time.Time
}

// NewRateEstimator starts measuring from start. A positive prior seeds
// the estimate in requests per second.
func NewRateEstimator(alpha, prior float64, start time.Time) *RateEstimator {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}

	e := &RateEstimator{
		alpha: alpha,
		last:  start,
	}
	if prior > 0 {
		e.interval = 1 / prior
	}

	return e
}

// Observe records an arrival at now and returns the updated rate.
func (e *RateEstimator) Observe(now time.Time) float64 {
	dt := now.Sub(e.last)
	if dt < minInterval {
		dt = minInterval
	}
	if now.After(e.last) {
		e.last = now
	}

	sample := dt.Seconds()
	switch e.interval {
	case 0:
		e.interval = sample
	default:
		e.interval = e.alpha*sample + (1-e.alpha)*e.interval
	}

	return e.Rate()
}

// Rate returns requests per second, or zero before any observation.
func (e *RateEstimator) Rate() float64 {
	if e.interval == 0 {
		return 0
	}

	return 1 / e.interval
}
