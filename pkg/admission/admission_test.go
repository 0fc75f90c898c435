package admission_test

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/absmach/fedcycle/pkg/admission"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
	"pgregory.net/rapid"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSolveMuBisection(t *testing.T) {
	k := 100 * (1 + 0.2)
	mu, ok := admission.SolveMu(k, 0.95, 0.01)
	require.True(t, ok)

	// P(X >= 120) is P(X > 119).
	sf := distuv.Poisson{Lambda: mu}.Survival(119)
	assert.LessOrEqual(t, math.Abs(sf-0.95), 0.01)
	assert.GreaterOrEqual(t, mu, 0.0)
	assert.LessOrEqual(t, mu, 3*k)
}

func TestSolveMuScan(t *testing.T) {
	cases := []struct {
		desc string
		k    float64
	}{
		{desc: "ten workers with 20% failures", k: 10 * (1 + 0.2)},
		{desc: "five workers with 20% failures", k: 5 * (1 + 0.2)},
		{desc: "fractional headcount", k: 7 * (1 + 0.3)},
		{desc: "single worker", k: 1},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			mu, ok := admission.SolveMu(tc.k, 0.95, 0.01)
			require.True(t, ok)

			headcount := math.Ceil(tc.k)
			sf := distuv.Poisson{Lambda: mu}.Survival(headcount - 1)
			assert.LessOrEqual(t, math.Abs(sf-0.95), 0.01)

			if below := math.Ceil(mu) - 1; below > 0 {
				prev := distuv.Poisson{Lambda: below}.Survival(headcount - 1)
				assert.Less(t, prev, 0.95, "a smaller whole rate already reaches the confidence")
			}
		})
	}
}

func TestSolveMuNoConvergence(t *testing.T) {
	cases := []struct {
		desc string
		k    float64
	}{
		{desc: "bisection", k: 120},
		{desc: "scan", k: 12},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, ok := admission.SolveMu(tc.k, 0.95, -1)
			assert.False(t, ok)
		})
	}
}

func TestSurvival(t *testing.T) {
	assert.Equal(t, 1.0, admission.Survival(0, 3))
	assert.Equal(t, 0.0, admission.Survival(5, 0))
	assert.InDelta(t, distuv.Poisson{Lambda: 4}.Survival(4), admission.Survival(5, 4), 1e-12)
	assert.InDelta(t, admission.Survival(5, 4), admission.Survival(4.2, 4), 1e-12)
}

func TestRejectProbability(t *testing.T) {
	cases := []struct {
		desc   string
		target float64
		actual float64
		want   float64
	}{
		{desc: "arrivals slower than target", target: 2, actual: 1, want: 0},
		{desc: "arrivals equal to target", target: 2, actual: 2, want: 0},
		{desc: "arrivals twice the target", target: 1, actual: 2, want: 0.5},
		{desc: "no observed arrivals", target: 1, actual: 0, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.InDelta(t, tc.want, admission.RejectProbability(tc.target, tc.actual), 1e-9)
		})
	}
}

func TestCeiling(t *testing.T) {
	assert.Equal(t, uint64(12), admission.Ceiling(10, 0.2))
	assert.Equal(t, uint64(6), admission.Ceiling(5, 0.2))
	assert.Equal(t, uint64(120), admission.Ceiling(100, 0.2))
	assert.Equal(t, uint64(3), admission.Ceiling(3, 0))
}

func TestFCFS(t *testing.T) {
	now := time.Now()
	cfg := admission.Config{MaxWorkers: 10, FailureRate: 0.2, MinUpload: 2000, MinDownload: 4000}
	policy := admission.NewFCFS(cfg)

	base := admission.Request{
		Now:        now,
		CycleEnd:   now.Add(time.Hour),
		Upload:     5000,
		Download:   5000,
		CooledDown: true,
	}

	cases := []struct {
		desc   string
		mutate func(r *admission.Request)
		accept bool
		reason string
	}{
		{desc: "accept under ceiling", mutate: func(r *admission.Request) { r.Admitted = 11 }, accept: true},
		{desc: "reject at ceiling", mutate: func(r *admission.Request) { r.Admitted = 12 }, reason: admission.ReasonCapacity},
		{desc: "reject in cooldown", mutate: func(r *admission.Request) { r.CooledDown = false }, reason: admission.ReasonCooldown},
		{desc: "reject slow upload", mutate: func(r *admission.Request) { r.Upload = 1999 }, reason: admission.ReasonBandwidth},
		{desc: "reject slow download", mutate: func(r *admission.Request) { r.Download = 10 }, reason: admission.ReasonBandwidth},
		{desc: "reject expired cycle", mutate: func(r *admission.Request) { r.CycleEnd = now }, reason: admission.ReasonExpired},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			d := policy.Admit(req)
			assert.Equal(t, tc.accept, d.Accept, fmt.Sprintf("%s: unexpected decision %+v", tc.desc, d))
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestProbabilistic(t *testing.T) {
	now := time.Now()
	cfg := admission.Config{MaxWorkers: 100, FailureRate: 0.2, Confidence: 0.95, Tolerance: 0.01, FallbackRejectProb: 0.1}
	k := 100 * 1.2
	mu, ok := admission.SolveMu(k, cfg.Confidence, cfg.Tolerance)
	require.True(t, ok)

	tLeft := time.Hour
	target := mu / tLeft.Seconds()

	cases := []struct {
		desc   string
		draw   float64
		rate   float64
		accept bool
	}{
		{desc: "slow arrivals always accepted", draw: 0.001, rate: target / 2, accept: true},
		{desc: "draw above reject probability", draw: 0.6, rate: target * 2, accept: true},
		{desc: "draw below reject probability", draw: 0.4, rate: target * 2, accept: false},
		{desc: "draw equal to reject probability", draw: 0.5, rate: target * 2, accept: false},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			policy := admission.NewProbabilistic(cfg, func() float64 { return tc.draw }, logger)
			d := policy.Admit(admission.Request{
				Now:         now,
				CycleEnd:    now.Add(tLeft),
				CooledDown:  true,
				ArrivalRate: tc.rate,
			})
			assert.Equal(t, tc.accept, d.Accept, fmt.Sprintf("%s: unexpected decision %+v", tc.desc, d))
			if !tc.accept {
				assert.Equal(t, admission.ReasonThrottled, d.Reason)
			}
		})
	}
}

func TestProbabilisticFallback(t *testing.T) {
	now := time.Now()
	cfg := admission.Config{MaxWorkers: 100, FailureRate: 0.2, Confidence: 0.95, Tolerance: -1, FallbackRejectProb: 0.1}
	policy := admission.NewProbabilistic(cfg, func() float64 { return 0.05 }, logger)

	d := policy.Admit(admission.Request{Now: now, CycleEnd: now.Add(time.Hour), CooledDown: true, ArrivalRate: 1e-9})
	assert.False(t, d.Accept)
	assert.Equal(t, 0.1, d.RejectProb)
}

func TestNewSelectsPolicy(t *testing.T) {
	cfg := admission.ConfigFrom(fl.ServerConfig{MaxWorkers: 10})
	now := time.Now()
	req := admission.Request{Now: now, CycleEnd: now.Add(time.Hour), CooledDown: true, ArrivalRate: 1e6}

	fcfs := admission.New(fl.PoolIterate, cfg, func() float64 { return 0 }, logger)
	assert.True(t, fcfs.Admit(req).Accept, "fcfs ignores the arrival rate")
	assert.Equal(t, uint64(12), fcfs.Ceiling())

	random := admission.New(fl.PoolRandom, cfg, func() float64 { return 0 }, logger)
	assert.Equal(t, uint64(12), random.Ceiling())
	d := random.Admit(req)
	assert.False(t, d.Accept, "probabilistic policy throttles a flood of arrivals")
	assert.Equal(t, admission.ReasonThrottled, d.Reason)

	assert.Equal(t, uint64(12), admission.New(fl.PoolRandom, cfg, nil, logger).Ceiling())
}

func TestPolicyNeverExceedsCeiling(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxWorkers := rapid.Uint64Range(1, 200).Draw(rt, "maxWorkers")
		rate := rapid.Float64Range(0, 1).Draw(rt, "failureRate")
		admitted := rapid.Uint64Range(0, 500).Draw(rt, "admitted")
		draw := rapid.Float64Range(0, 0.999).Draw(rt, "draw")
		arrival := rapid.Float64Range(0, 100).Draw(rt, "arrival")

		cfg := admission.Config{MaxWorkers: maxWorkers, FailureRate: rate, Confidence: 0.95, Tolerance: 0.01, FallbackRejectProb: 0.1}
		now := time.Now()
		req := admission.Request{Now: now, CycleEnd: now.Add(time.Hour), Admitted: admitted, CooledDown: true, ArrivalRate: arrival}

		for _, p := range []admission.Policy{
			admission.NewFCFS(cfg),
			admission.NewProbabilistic(cfg, func() float64 { return draw }, logger),
		} {
			d := p.Admit(req)
			if admitted >= p.Ceiling() && d.Accept {
				rt.Fatalf("accepted at admitted=%d with ceiling=%d", admitted, p.Ceiling())
			}
			if d.RejectProb < 0 || d.RejectProb > 1 {
				rt.Fatalf("reject probability out of range: %v", d.RejectProb)
			}
		}
	})
}

func TestRateEstimator(t *testing.T) {
	start := time.Now()
	est := admission.NewRateEstimator(0.3, 0, start)
	assert.Equal(t, 0.0, est.Rate())

	var rate float64
	for i := 1; i <= 20; i++ {
		rate = est.Observe(start.Add(time.Duration(i) * 500 * time.Millisecond))
	}
	assert.InDelta(t, 2.0, rate, 1e-9)

	for i := 1; i <= 60; i++ {
		rate = est.Observe(start.Add(10*time.Second + time.Duration(i)*100*time.Millisecond))
	}
	assert.InDelta(t, 10.0, rate, 0.01)
}

func TestRateEstimatorPrior(t *testing.T) {
	est := admission.NewRateEstimator(0, 4, time.Now())
	assert.InDelta(t, 4.0, est.Rate(), 1e-9)
}
