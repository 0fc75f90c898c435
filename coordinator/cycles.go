package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/fedcycle/pkg/admission"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/google/uuid"
)

// cycleState is the in-memory runtime of an active cycle. mu guards cycle,
// admitted, reported, sealed and rate. retiring is set exactly once, by
// whoever moves the cycle out of open. sealed is set when averaging takes
// its snapshot of the reported diffs; reports are stored only while it is
// unset. Lock order is st.mu before svc.mu.
type cycleState struct {
	mu       sync.Mutex
	cycle    fl.Cycle
	process  fl.Process
	base     fl.Params
	policy   admission.Policy
	rate     *admission.RateEstimator
	admitted uint64
	reported uint64
	sealed   bool
	retiring atomic.Bool
}

func (st *cycleState) snapshot() fl.Cycle {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.cycle
}

// readyToAverage requires st.mu held.
func (st *cycleState) readyToAverage(now time.Time) bool {
	c := st.cycle
	if c.Status != fl.CycleOpen || st.reported < c.MinWorkers {
		return false
	}

	return c.Expired(now) || st.reported >= c.MaxWorkers
}

func (svc *service) newState(c fl.Cycle, p fl.Process, base fl.Params) *cycleState {
	cfg := admission.ConfigFrom(p.ServerConfig)
	cfg.MaxWorkers = c.MaxWorkers
	cfg.FallbackRejectProb = svc.cfg.FallbackRejectProb

	policy := admission.New(p.ServerConfig.PoolSelection, cfg, svc.draw, svc.logger)

	return &cycleState{
		cycle:   c,
		process: p,
		base:    base,
		policy:  policy,
		rate:    admission.NewRateEstimator(svc.cfg.RateAlpha, p.ServerConfig.PriorRequestRate, c.Start),
	}
}

func (svc *service) loadBase(ctx context.Context, modelID string, version uint64) (fl.Params, error) {
	cp, err := svc.repos.Checkpoints.Get(ctx, modelID, version)
	if err != nil {
		return nil, err
	}

	base, err := svc.codec.Decode(cp.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: checkpoint %d of model %s: %w", pkgerrors.ErrFatal, ErrCorruptedChain, version, modelID, err)
	}

	return base, nil
}

// createCycle requires svc.createMu held.
func (svc *service) createCycle(ctx context.Context, p fl.Process, seq, version, maxWorkers, minWorkers uint64, duration time.Duration) (fl.Cycle, error) {
	svc.mu.RLock()
	_, exists := svc.open[p.ModelID]
	svc.mu.RUnlock()
	if exists {
		return fl.Cycle{}, fmt.Errorf("%w: %w", pkgerrors.ErrConflict, ErrCycleOpen)
	}

	base, err := svc.loadBase(ctx, p.ModelID, version)
	if err != nil {
		return fl.Cycle{}, err
	}

	now := svc.now().UTC()
	c := fl.Cycle{
		ID:         uuid.NewString(),
		ProcessID:  p.ID,
		ModelID:    p.ModelID,
		Version:    version,
		Sequence:   seq,
		Start:      now,
		End:        now.Add(duration),
		MaxWorkers: maxWorkers,
		MinWorkers: minWorkers,
		Status:     fl.CycleOpen,
	}
	if err := retryTransient(func() error { return svc.repos.Cycles.Create(ctx, c) }); err != nil {
		return fl.Cycle{}, err
	}

	st := svc.newState(c, p, base)
	svc.mu.Lock()
	svc.cycles[c.ID] = st
	svc.open[c.ModelID] = st
	svc.models[p.ModelID] = p.ID
	svc.mu.Unlock()

	svc.emit(ctx, events.CycleOpened, c)

	return c, nil
}

func (svc *service) state(cycleID string) (*cycleState, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	st, ok := svc.cycles[cycleID]

	return st, ok
}

func (svc *service) openState(modelID string) (*cycleState, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	st, ok := svc.open[modelID]

	return st, ok
}

func (svc *service) leaveOpen(st *cycleState) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if cur, ok := svc.open[st.cycle.ModelID]; ok && cur == st {
		delete(svc.open, st.cycle.ModelID)
	}
}

func (svc *service) forget(st *cycleState) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.cycles, st.cycle.ID)
	if cur, ok := svc.open[st.cycle.ModelID]; ok && cur == st {
		delete(svc.open, st.cycle.ModelID)
	}
}

// startAveraging moves st from open to averaging and launches the
// aggregation. Only the first caller wins; the rest return false.
// Requires st.mu held.
func (svc *service) startAveraging(ctx context.Context, st *cycleState) bool {
	if !st.retiring.CompareAndSwap(false, true) {
		return false
	}

	st.cycle.Status = fl.CycleAveraging
	c := st.cycle
	if err := retryTransient(func() error { return svc.repos.Cycles.Update(ctx, c) }); err != nil {
		svc.logger.Warn("Failed to persist averaging status",
			slog.String("cycle_id", c.ID),
			slog.Any("error", err),
		)
	}
	svc.leaveOpen(st)
	svc.emit(ctx, events.CycleAveraging, c)

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.average(svc.ctx, st)
	}()

	return true
}

// failCycle closes an open cycle without a new checkpoint. Requires st.mu
// held when st is still open.
func (svc *service) failCycle(ctx context.Context, st *cycleState, cause error) {
	st.cycle.Status = fl.CycleClosed
	st.cycle.Error = cause.Error()
	c := st.cycle

	if err := retryTransient(func() error { return svc.repos.Cycles.Update(ctx, c) }); err != nil {
		svc.logger.Error("Failed to persist failed cycle",
			slog.String("cycle_id", c.ID),
			slog.Any("error", err),
		)
	}
	svc.forget(st)

	svc.logger.Error("Cycle failed",
		slog.Group("cycle",
			slog.String("id", c.ID),
			slog.String("model_id", c.ModelID),
			slog.Uint64("sequence", c.Sequence),
		),
		slog.Any("error", cause),
	)
	svc.emit(ctx, events.CycleFailed, c)
}

func (svc *service) closeCycle(ctx context.Context, st *cycleState, cp fl.Checkpoint) {
	st.mu.Lock()
	st.cycle.Status = fl.CycleClosed
	st.cycle.CheckpointNumber = cp.Number
	c := st.cycle
	st.mu.Unlock()

	if err := retryTransient(func() error { return svc.repos.Cycles.Update(ctx, c) }); err != nil {
		svc.logger.Error("Failed to persist closed cycle",
			slog.String("cycle_id", c.ID),
			slog.Any("error", err),
		)
	}
	svc.forget(st)
	svc.emit(ctx, events.CycleClosed, c)

	svc.spawnSuccessor(ctx, c, cp.Number)
}

func (svc *service) spawnSuccessor(ctx context.Context, prev fl.Cycle, version uint64) {
	if svc.closed.Load() {
		return
	}

	p, err := svc.repos.Processes.Get(ctx, prev.ProcessID)
	if err != nil {
		svc.logger.Warn("Failed to load process for successor cycle",
			slog.String("process_id", prev.ProcessID),
			slog.Any("error", err),
		)

		return
	}
	if p.Terminated || (p.ServerConfig.NumCycles > 0 && prev.Sequence >= p.ServerConfig.NumCycles) {
		return
	}

	svc.createMu.Lock()
	defer svc.createMu.Unlock()

	c, err := svc.createCycle(ctx, p, prev.Sequence+1, version, prev.MaxWorkers, prev.MinWorkers, prev.End.Sub(prev.Start))
	if err != nil {
		svc.logger.Warn("Failed to open successor cycle",
			slog.String("model_id", prev.ModelID),
			slog.Uint64("sequence", prev.Sequence+1),
			slog.Any("error", err),
		)

		return
	}

	svc.logger.Info("Opened successor cycle",
		slog.String("cycle_id", c.ID),
		slog.String("model_id", c.ModelID),
		slog.Uint64("sequence", c.Sequence),
		slog.Uint64("version", c.Version),
	)
}

func (svc *service) Sweep(ctx context.Context) error {
	now := svc.now()

	svc.mu.RLock()
	open := make([]*cycleState, 0, len(svc.open))
	for _, st := range svc.open {
		open = append(open, st)
	}
	svc.mu.RUnlock()

	for _, st := range open {
		st.mu.Lock()
		switch {
		case st.cycle.Status != fl.CycleOpen || !st.cycle.Expired(now):
		case st.readyToAverage(now):
			svc.startAveraging(ctx, st)
		case st.retiring.CompareAndSwap(false, true):
			svc.failCycle(ctx, st, fmt.Errorf("%w: %w: %d of %d diffs reported by the deadline",
				pkgerrors.ErrFatal, ErrInsufficientDiffs, st.reported, st.cycle.MinWorkers))
		}
		st.mu.Unlock()
	}

	return nil
}

func (svc *service) Recover(ctx context.Context) error {
	if err := svc.loadProcesses(ctx); err != nil {
		return err
	}

	cycles, err := svc.repos.Cycles.ListByStatus(ctx, fl.CycleOpen, fl.CycleAveraging)
	if err != nil {
		return err
	}

	svc.createMu.Lock()
	defer svc.createMu.Unlock()

	for _, c := range cycles {
		if _, ok := svc.state(c.ID); ok {
			continue
		}
		if err := svc.recoverCycle(ctx, c); err != nil {
			svc.logger.Warn("Failed to recover cycle",
				slog.String("cycle_id", c.ID),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

func (svc *service) recoverCycle(ctx context.Context, c fl.Cycle) error {
	p, err := svc.repos.Processes.Get(ctx, c.ProcessID)
	if err != nil {
		return err
	}

	base, err := svc.loadBase(ctx, c.ModelID, c.Version)
	if err != nil {
		return err
	}

	bindings, err := svc.repos.WorkerCycles.ListByCycle(ctx, c.ID)
	if err != nil {
		return err
	}

	st := svc.newState(c, p, base)
	st.admitted = uint64(len(bindings))
	for _, wc := range bindings {
		if wc.Completed() {
			st.reported++
		}
	}

	svc.mu.Lock()
	svc.cycles[c.ID] = st
	if c.Status == fl.CycleOpen {
		if _, taken := svc.open[c.ModelID]; !taken {
			svc.open[c.ModelID] = st
		}
	}
	svc.mu.Unlock()

	if c.Status == fl.CycleAveraging {
		st.retiring.Store(true)
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			svc.average(svc.ctx, st)
		}()
	}

	svc.logger.Info("Recovered cycle",
		slog.String("cycle_id", c.ID),
		slog.String("status", string(c.Status)),
		slog.Uint64("admitted", st.admitted),
		slog.Uint64("reported", st.reported),
	)

	return nil
}

func (svc *service) emit(ctx context.Context, t events.Type, c fl.Cycle) {
	if err := svc.events.Emit(ctx, events.FromCycle(t, c)); err != nil {
		svc.logger.Warn("Failed to emit cycle event",
			slog.String("type", string(t)),
			slog.String("cycle_id", c.ID),
			slog.Any("error", err),
		)
	}
}
