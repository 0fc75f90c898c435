package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/fedcycle/pkg/admission"
	"github.com/absmach/fedcycle/pkg/auth"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/google/uuid"
)

const (
	defOffset = 0
	defLimit  = 100
)

type Config struct {
	FallbackRejectProb float64       `env:"FEDCYCLE_FALLBACK_REJECT_PROB" envDefault:"0.1"`
	RateAlpha          float64       `env:"FEDCYCLE_RATE_ALPHA"           envDefault:"0.3"`
	AveragingTimeout   time.Duration `env:"FEDCYCLE_AVERAGING_TIMEOUT"    envDefault:"5m"`
}

type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *service) {
		svc.now = now
	}
}

// WithDraw replaces the uniform random source used by admission.
func WithDraw(draw func() float64) Option {
	return func(svc *service) {
		svc.draw = draw
	}
}

type service struct {
	repos    *storage.Repositories
	auth     auth.Authenticator
	codec    fl.Codec
	events   events.Emitter
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	draw     func() float64
	registry *registry
	ledger   *ledger

	// createMu serializes cycle creation so a model never has two open cycles.
	createMu sync.Mutex
	mu       sync.RWMutex
	cycles   map[string]*cycleState
	open     map[string]*cycleState
	models   map[string]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewService(repos *storage.Repositories, authn auth.Authenticator, codec fl.Codec, emitter events.Emitter, cfg Config, logger *slog.Logger, opts ...Option) Service {
	if cfg.FallbackRejectProb <= 0 {
		cfg.FallbackRejectProb = admission.DefaultFallbackRejectProb
	}
	if cfg.RateAlpha <= 0 {
		cfg.RateAlpha = admission.DefaultAlpha
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &service{
		repos:  repos,
		auth:   authn,
		codec:  codec,
		events: emitter,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
		draw:   rand.Float64,
		cycles: make(map[string]*cycleState),
		open:   make(map[string]*cycleState),
		models: make(map[string]string),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.registry = newRegistry(repos.Workers, svc.now)
	svc.ledger = newLedger(repos.Participation)

	return svc
}

func (svc *service) HostProcess(ctx context.Context, req HostRequest) (fl.Process, fl.Cycle, error) {
	if svc.closed.Load() {
		return fl.Process{}, fl.Cycle{}, ErrShuttingDown
	}
	if req.Name == "" || req.Version == "" {
		return fl.Process{}, fl.Cycle{}, fmt.Errorf("%w: process name and version are required", pkgerrors.ErrInvalidData)
	}

	sc := req.ServerConfig.WithDefaults()
	if err := sc.Validate(); err != nil {
		return fl.Process{}, fl.Cycle{}, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
	}
	if _, err := svc.codec.Decode(req.Model); err != nil {
		return fl.Process{}, fl.Cycle{}, fmt.Errorf("%w: %w: %w", pkgerrors.ErrInvalidData, ErrInvalidModel, err)
	}
	if len(req.AveragingPlan) > 0 {
		if err := fl.ValidateWasm(ctx, req.AveragingPlan); err != nil {
			return fl.Process{}, fl.Cycle{}, fmt.Errorf("%w: %w: %w", pkgerrors.ErrInvalidData, ErrInvalidAveragePlan, err)
		}
	}

	p := fl.Process{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Version:       req.Version,
		ModelID:       uuid.NewString(),
		Plans:         req.Plans,
		AveragingPlan: req.AveragingPlan,
		ClientConfig:  req.ClientConfig,
		ServerConfig:  sc,
		CreatedAt:     svc.now().UTC(),
	}
	if err := svc.repos.Processes.Create(ctx, p); err != nil {
		return fl.Process{}, fl.Cycle{}, err
	}

	cp, err := svc.repos.Checkpoints.Save(ctx, p.ModelID, req.Model)
	if err != nil {
		return fl.Process{}, fl.Cycle{}, err
	}

	svc.mu.Lock()
	svc.models[p.ModelID] = p.ID
	svc.mu.Unlock()

	svc.createMu.Lock()
	defer svc.createMu.Unlock()

	c, err := svc.createCycle(ctx, p, 1, cp.Number, sc.MaxWorkers, sc.MinWorkers, sc.CycleDuration())
	if err != nil {
		return fl.Process{}, fl.Cycle{}, err
	}

	return p, c, nil
}

func (svc *service) Authenticate(ctx context.Context, req AuthRequest) (AuthResponse, error) {
	if _, err := svc.auth.CurrentUser(ctx, req.Token); err != nil {
		return AuthResponse{}, err
	}

	var speedTest bool
	if req.ModelName != "" {
		p, err := svc.repos.Processes.GetByName(ctx, req.ModelName, req.ModelVersion)
		if err != nil {
			return AuthResponse{}, err
		}
		speedTest = p.ServerConfig.MinUploadSpeed > 0 || p.ServerConfig.MinDownloadSpeed > 0
	}

	w, err := svc.registry.Register(ctx)
	if err != nil {
		return AuthResponse{}, err
	}

	return AuthResponse{Worker: w, RequiresSpeedTest: speedTest}, nil
}

func (svc *service) ReportMetrics(ctx context.Context, workerID string, m Metrics) (fl.Worker, error) {
	return svc.registry.UpdateMetrics(ctx, workerID, m)
}

func (svc *service) GetCycle(ctx context.Context, modelID string) (fl.Cycle, error) {
	if st, ok := svc.openState(modelID); ok {
		return st.snapshot(), nil
	}

	// A cycle that won the averaging race is no longer open but still active.
	svc.mu.RLock()
	states := make([]*cycleState, 0, len(svc.cycles))
	for _, st := range svc.cycles {
		states = append(states, st)
	}
	svc.mu.RUnlock()

	var active fl.Cycle
	for _, st := range states {
		if c := st.snapshot(); c.ModelID == modelID && c.Status != fl.CycleClosed && c.Sequence > active.Sequence {
			active = c
		}
	}
	if active.ID == "" {
		return fl.Cycle{}, fmt.Errorf("%w: %w", pkgerrors.ErrNotFound, ErrNoOpenCycle)
	}

	return active, nil
}

func (svc *service) GetProcessCycle(ctx context.Context, processID string) (fl.Cycle, error) {
	p, err := svc.repos.Processes.Get(ctx, processID)
	if err != nil {
		return fl.Cycle{}, err
	}

	return svc.GetCycle(ctx, p.ModelID)
}

func (svc *service) CreateCycle(ctx context.Context, modelID string, version, maxWorkers, minWorkers uint64, duration time.Duration) (fl.Cycle, error) {
	if svc.closed.Load() {
		return fl.Cycle{}, ErrShuttingDown
	}

	p, err := svc.processForModel(ctx, modelID)
	if err != nil {
		return fl.Cycle{}, err
	}

	sc := p.ServerConfig
	if maxWorkers == 0 {
		maxWorkers = sc.MaxWorkers
	}
	if minWorkers == 0 {
		minWorkers = sc.MinWorkers
	}
	if minWorkers > maxWorkers {
		return fl.Cycle{}, fmt.Errorf("%w: min workers exceed max workers", pkgerrors.ErrInvalidData)
	}
	if duration <= 0 {
		duration = sc.CycleDuration()
	}

	svc.createMu.Lock()
	defer svc.createMu.Unlock()

	if version == 0 {
		cp, err := svc.repos.Checkpoints.Latest(ctx, modelID)
		if err != nil {
			return fl.Cycle{}, err
		}
		version = cp.Number
	}

	seq := uint64(1)
	latest, err := svc.repos.Cycles.Latest(ctx, modelID)
	switch {
	case err == nil:
		seq = latest.Sequence + 1
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return fl.Cycle{}, err
	}

	return svc.createCycle(ctx, p, seq, version, maxWorkers, minWorkers, duration)
}

func (svc *service) ListCheckpoints(ctx context.Context, modelID string, offset, limit uint64) (fl.CheckpointPage, error) {
	cps, total, err := svc.repos.Checkpoints.List(ctx, modelID, offset, limit)
	if err != nil {
		return fl.CheckpointPage{}, err
	}
	for i := range cps {
		cps[i].Payload = nil
	}

	return fl.CheckpointPage{
		Offset:      offset,
		Limit:       limit,
		Total:       total,
		Checkpoints: cps,
	}, nil
}

func (svc *service) Shutdown(ctx context.Context) error {
	if !svc.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		svc.cancel()

		return nil
	case <-ctx.Done():
		svc.cancel()

		return ctx.Err()
	}
}

func (svc *service) processForModel(ctx context.Context, modelID string) (fl.Process, error) {
	svc.mu.RLock()
	processID, ok := svc.models[modelID]
	svc.mu.RUnlock()
	if ok {
		return svc.repos.Processes.Get(ctx, processID)
	}

	if err := svc.loadProcesses(ctx); err != nil {
		return fl.Process{}, err
	}

	svc.mu.RLock()
	processID, ok = svc.models[modelID]
	svc.mu.RUnlock()
	if !ok {
		return fl.Process{}, fmt.Errorf("%w: unknown model %s", pkgerrors.ErrNotFound, modelID)
	}

	return svc.repos.Processes.Get(ctx, processID)
}

func (svc *service) loadProcesses(ctx context.Context) error {
	for offset := uint64(defOffset); ; offset += defLimit {
		processes, total, err := svc.repos.Processes.List(ctx, offset, defLimit)
		if err != nil {
			return err
		}

		svc.mu.Lock()
		for _, p := range processes {
			svc.models[p.ModelID] = p.ID
		}
		svc.mu.Unlock()

		if offset+defLimit >= total || len(processes) == 0 {
			return nil
		}
	}
}

// retryTransient runs fn again once when it fails with a transient storage
// error. A second transient failure surfaces as a conflict.
func retryTransient(fn func() error) error {
	err := fn()
	if !errors.Is(err, pkgerrors.ErrTransient) {
		return err
	}

	if err = fn(); errors.Is(err, pkgerrors.ErrTransient) {
		return fmt.Errorf("%w: %w", pkgerrors.ErrConflict, err)
	}

	return err
}
