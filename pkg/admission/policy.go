// Package admission decides whether a worker may join an open cycle.
//
// The probabilistic policy is a best-effort heuristic: it models join
// arrivals as a Poisson process, solves for the arrival rate that fills
// the cycle with the configured confidence, and throttles requests that
// arrive faster than that rate. It does not guarantee fairness or exact
// fill levels; the hard ceiling is always enforced separately.
package admission

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/absmach/fedcycle/pkg/fl"
)

const DefaultFallbackRejectProb = 0.1

const (
	ReasonCooldown  = "worker is in cooldown for this model"
	ReasonBandwidth = "insufficient bandwidth"
	ReasonCapacity  = "cycle is full"
	ReasonThrottled = "throttled"
	ReasonExpired   = "cycle expired"
)

type Config struct {
	MaxWorkers         uint64
	FailureRate        float64
	Confidence         float64
	Tolerance          float64
	MinUpload          float64
	MinDownload        float64
	FallbackRejectProb float64
}

func ConfigFrom(sc fl.ServerConfig) Config {
	sc = sc.WithDefaults()

	return Config{
		MaxWorkers:         sc.MaxWorkers,
		FailureRate:        sc.ExpectedFailureRate,
		Confidence:         sc.Confidence,
		Tolerance:          sc.SearchTolerance,
		MinUpload:          sc.MinUploadSpeed,
		MinDownload:        sc.MinDownloadSpeed,
		FallbackRejectProb: DefaultFallbackRejectProb,
	}
}

// Request is a snapshot of the state a decision is made on.
type Request struct {
	Now         time.Time
	CycleEnd    time.Time
	Admitted    uint64
	Upload      float64
	Download    float64
	CooledDown  bool
	ArrivalRate float64
}

type Decision struct {
	Accept     bool    `json:"accept"`
	Reason     string  `json:"reason,omitempty"`
	RejectProb float64 `json:"reject_prob"`
}

type Policy interface {
	Admit(req Request) Decision
	Ceiling() uint64
}

// New returns the policy named by selection: fl.PoolIterate yields
// first-come-first-served, anything else the probabilistic policy. A nil
// draw uses math/rand/v2.
func New(selection string, cfg Config, draw func() float64, logger *slog.Logger) Policy {
	if selection == fl.PoolIterate {
		return NewFCFS(cfg)
	}
	if draw == nil {
		draw = rand.Float64
	}

	return NewProbabilistic(cfg, draw, logger)
}

type fcfs struct {
	cfg     Config
	ceiling uint64
}

func NewFCFS(cfg Config) Policy {
	return &fcfs{
		cfg:     cfg,
		ceiling: Ceiling(cfg.MaxWorkers, cfg.FailureRate),
	}
}

func (p *fcfs) Ceiling() uint64 {
	return p.ceiling
}

func (p *fcfs) Admit(req Request) Decision {
	if d, ok := precheck(p.cfg, p.ceiling, req); !ok {
		return d
	}

	return Decision{Accept: true}
}

type probabilistic struct {
	cfg      Config
	ceiling  uint64
	mu       float64
	fallback bool
	draw     func() float64
}

// NewProbabilistic solves for the target arrival count once. draw must
// return uniform values in [0, 1) and be safe for concurrent use.
func NewProbabilistic(cfg Config, draw func() float64, logger *slog.Logger) Policy {
	k := float64(cfg.MaxWorkers) * (1 + cfg.FailureRate)
	mu, ok := SolveMu(k, cfg.Confidence, cfg.Tolerance)
	if !ok {
		logger.Warn("Admission solver did not converge, using fallback reject probability",
			slog.Float64("k", k),
			slog.Float64("mu", mu),
			slog.Float64("confidence", cfg.Confidence),
			slog.Float64("fallback", cfg.FallbackRejectProb),
		)
	}

	return &probabilistic{
		cfg:      cfg,
		ceiling:  Ceiling(cfg.MaxWorkers, cfg.FailureRate),
		mu:       mu,
		fallback: !ok,
		draw:     draw,
	}
}

func (p *probabilistic) Ceiling() uint64 {
	return p.ceiling
}

func (p *probabilistic) Admit(req Request) Decision {
	if d, ok := precheck(p.cfg, p.ceiling, req); !ok {
		return d
	}

	rejectProb := p.cfg.FallbackRejectProb
	if !p.fallback {
		target := p.mu / req.CycleEnd.Sub(req.Now).Seconds()
		rejectProb = RejectProbability(target, req.ArrivalRate)
	}

	if p.draw() > rejectProb {
		return Decision{Accept: true, RejectProb: rejectProb}
	}

	return Decision{Reason: ReasonThrottled, RejectProb: rejectProb}
}

func precheck(cfg Config, ceiling uint64, req Request) (Decision, bool) {
	switch {
	case !req.Now.Before(req.CycleEnd):
		return Decision{Reason: ReasonExpired}, false
	case !req.CooledDown:
		return Decision{Reason: ReasonCooldown}, false
	case req.Upload < cfg.MinUpload, req.Download < cfg.MinDownload:
		return Decision{Reason: ReasonBandwidth}, false
	case req.Admitted >= ceiling:
		return Decision{Reason: ReasonCapacity}, false
	}

	return Decision{}, true
}
