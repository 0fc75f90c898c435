package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/absmach/fedcycle/pkg/admission"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/google/uuid"
)

func (svc *service) RequestJoin(ctx context.Context, req JoinRequest) (JoinResponse, error) {
	if svc.closed.Load() {
		return JoinResponse{}, ErrShuttingDown
	}
	if req.WorkerID == "" || req.ModelName == "" {
		return JoinResponse{}, fmt.Errorf("%w: worker id and model name are required", pkgerrors.ErrInvalidData)
	}

	w, err := svc.registry.UpdateMetrics(ctx, req.WorkerID, req.Metrics)
	if err != nil {
		return JoinResponse{}, err
	}

	p, err := svc.repos.Processes.GetByName(ctx, req.ModelName, req.ModelVersion)
	if err != nil {
		return JoinResponse{}, err
	}

	st, ok := svc.openState(p.ModelID)
	if !ok {
		return svc.noOpenCycle(ctx, p)
	}

	now := svc.now()
	c := st.snapshot()
	resp := JoinResponse{
		ProcessID: p.ID,
		ModelID:   p.ModelID,
		CycleID:   c.ID,
		Timeout:   secondsLeft(c, now),
	}

	existing, err := svc.repos.WorkerCycles.Get(ctx, w.ID, c.ID)
	switch {
	case err == nil && existing.Completed():
		return rejected(resp, ReasonReported), nil
	case err == nil:
		return accepted(resp, p, c, existing.RequestKey), nil
	case !errors.Is(err, pkgerrors.ErrNotFound):
		return JoinResponse{}, err
	}

	if left := c.End.Sub(now); left < time.Duration(p.ServerConfig.MinCycleTimeLeft)*time.Second {
		return rejected(resp, ReasonTimeLeft), nil
	}

	unlock := svc.ledger.lock(w.ID, p.ModelID)
	defer unlock()

	cooled, err := svc.ledger.IsCooledDown(ctx, w.ID, p.ModelID, p.Version, c.Sequence, p.ServerConfig.CooldownCycles)
	if err != nil {
		return JoinResponse{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.cycle.Status != fl.CycleOpen || st.retiring.Load() {
		return rejected(resp, ReasonClosing), nil
	}

	decision := st.policy.Admit(admission.Request{
		Now:         now,
		CycleEnd:    st.cycle.End,
		Admitted:    st.admitted,
		Upload:      w.AvgUpload,
		Download:    w.AvgDownload,
		CooledDown:  cooled,
		ArrivalRate: st.rate.Observe(now),
	})
	if !decision.Accept {
		return rejected(resp, decision.Reason), nil
	}

	undo, err := svc.ledger.Record(ctx, w.ID, p.ModelID, p.Version, c.Sequence)
	if err != nil {
		return JoinResponse{}, err
	}

	wc := fl.WorkerCycle{
		WorkerID:   w.ID,
		CycleID:    c.ID,
		RequestKey: newRequestKey(),
		JoinedAt:   now.UTC(),
	}
	if err := retryTransient(func() error { return svc.repos.WorkerCycles.Create(ctx, wc) }); err != nil {
		if uerr := undo(ctx); uerr != nil {
			svc.logger.Warn("Failed to roll back participation record",
				slog.String("worker_id", w.ID),
				slog.String("model_id", p.ModelID),
				slog.Any("error", uerr),
			)
		}
		if errors.Is(err, pkgerrors.ErrEntityExists) {
			return JoinResponse{}, fmt.Errorf("%w: %w", pkgerrors.ErrConflict, err)
		}

		return JoinResponse{}, err
	}
	st.admitted++

	return accepted(resp, p, c, wc.RequestKey), nil
}

func (svc *service) noOpenCycle(ctx context.Context, p fl.Process) (JoinResponse, error) {
	resp := JoinResponse{ProcessID: p.ID, ModelID: p.ModelID}

	if c, err := svc.GetCycle(ctx, p.ModelID); err == nil {
		resp.CycleID = c.ID
		return rejected(resp, ReasonClosing), nil
	}

	latest, err := svc.repos.Cycles.Latest(ctx, p.ModelID)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
	case err != nil:
		return JoinResponse{}, err
	case p.Terminated, p.ServerConfig.NumCycles > 0 && latest.Sequence >= p.ServerConfig.NumCycles:
		return rejected(resp, ReasonCycleLimit), nil
	}

	return JoinResponse{}, fmt.Errorf("%w: %w", pkgerrors.ErrNotFound, ErrNoOpenCycle)
}

func (svc *service) Validate(ctx context.Context, workerID, cycleID, requestKey string) bool {
	_, _, err := svc.validate(ctx, workerID, cycleID, requestKey)

	return err == nil
}

func (svc *service) validate(ctx context.Context, workerID, cycleID, requestKey string) (*cycleState, fl.Cycle, error) {
	if workerID == "" || cycleID == "" || requestKey == "" {
		return nil, fl.Cycle{}, pkgerrors.ErrUnauthorized
	}

	st, ok := svc.state(cycleID)
	if !ok {
		return nil, fl.Cycle{}, pkgerrors.ErrUnauthorized
	}
	c := st.snapshot()
	if c.Status != fl.CycleOpen || c.Expired(svc.now()) {
		return nil, fl.Cycle{}, pkgerrors.ErrUnauthorized
	}

	wc, err := svc.repos.WorkerCycles.GetByKey(ctx, requestKey)
	if err != nil || wc.WorkerID != workerID || wc.CycleID != cycleID || wc.Completed() {
		return nil, fl.Cycle{}, pkgerrors.ErrUnauthorized
	}

	return st, c, nil
}

func (svc *service) DownloadCheckpoint(ctx context.Context, workerID, cycleID, requestKey string) (fl.Checkpoint, error) {
	_, c, err := svc.validate(ctx, workerID, cycleID, requestKey)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return svc.repos.Checkpoints.Get(ctx, c.ModelID, c.Version)
}

func (svc *service) DownloadPlan(ctx context.Context, workerID, cycleID, requestKey, name string) ([]byte, error) {
	st, _, err := svc.validate(ctx, workerID, cycleID, requestKey)
	if err != nil {
		return nil, err
	}

	plan, ok := st.process.Plans[name]
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", pkgerrors.ErrNotFound, name)
	}

	return plan, nil
}

func accepted(resp JoinResponse, p fl.Process, c fl.Cycle, key string) JoinResponse {
	resp.Status = StatusAccepted
	resp.RequestKey = key
	resp.Version = c.Version
	resp.ClientConfig = p.ClientConfig
	resp.Plans = make([]string, 0, len(p.Plans))
	for name := range p.Plans {
		resp.Plans = append(resp.Plans, name)
	}
	slices.Sort(resp.Plans)

	return resp
}

func rejected(resp JoinResponse, reason string) JoinResponse {
	resp.Status = StatusRejected
	resp.Reason = reason

	return resp
}

func secondsLeft(c fl.Cycle, now time.Time) uint64 {
	left := c.End.Sub(now)
	if left <= 0 {
		return 0
	}

	return uint64(left.Seconds())
}

// newRequestKey returns an unguessable one-time credential.
func newRequestKey() string {
	return uuid.NewString()
}
