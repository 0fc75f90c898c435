package admission

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Below this capacity a whole-number scan is cheap.
	scanThreshold = 50
	maxBisections = 100
)

// Survival returns P(X >= k) for X ~ Poisson(mu). A fractional k counts
// as the next whole headcount.
func Survival(k, mu float64) float64 {
	if k <= 0 {
		return 1
	}
	if mu <= 0 {
		return 0
	}

	return distuv.Poisson{Lambda: mu}.Survival(math.Ceil(k) - 1)
}

// SolveMu finds the smallest expected number of arrivals mu in [0, 3k]
// for which P(X >= k) reaches confidence. Small k is scanned over whole
// numbers and refined between the two neighbours that bracket the target
// when the whole number overshoots. ok is false when the result is not
// within tolerance of confidence.
func SolveMu(k, confidence, tolerance float64) (mu float64, ok bool) {
	hi := 3 * k
	lo := 0.0

	if k < scanThreshold {
		top := math.Ceil(hi)
		m := 0.0
		for ; m <= top; m++ {
			if Survival(k, m) >= confidence {
				break
			}
		}
		if m > top {
			return top, withinTolerance(k, top, confidence, tolerance)
		}
		if m == 0 || withinTolerance(k, m, confidence, tolerance) {
			return m, true
		}
		lo, hi = m-1, m
	}

	mu = (lo + hi) / 2
	for range maxBisections {
		mu = (lo + hi) / 2
		sf := Survival(k, mu)
		if math.Abs(sf-confidence) <= tolerance {
			return mu, true
		}
		if sf < confidence {
			lo = mu
		} else {
			hi = mu
		}
	}

	return mu, withinTolerance(k, mu, confidence, tolerance)
}

func withinTolerance(k, mu, confidence, tolerance float64) bool {
	return math.Abs(Survival(k, mu)-confidence) <= tolerance
}

// RejectProbability returns max(0, 1 - target/actual) clamped to [0, 1].
func RejectProbability(target, actual float64) float64 {
	if actual <= 0 || target <= 0 {
		return 0
	}

	return math.Min(1, math.Max(0, 1-target/actual))
}

// Ceiling is the admission cap max_workers * (1 + failure_rate).
func Ceiling(maxWorkers uint64, failureRate float64) uint64 {
	return uint64(math.Floor(float64(maxWorkers)*(1+failureRate) + 1e-9))
}
