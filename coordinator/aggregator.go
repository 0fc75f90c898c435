package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
)

func (svc *service) SubmitDiff(ctx context.Context, workerID, requestKey string, diff []byte) error {
	if workerID == "" || requestKey == "" {
		return pkgerrors.ErrUnauthorized
	}

	wc, err := svc.repos.WorkerCycles.GetByKey(ctx, requestKey)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		return fmt.Errorf("%w: unknown request key", pkgerrors.ErrUnauthorized)
	case err != nil:
		return err
	case wc.WorkerID != workerID:
		return fmt.Errorf("%w: request key belongs to another worker", pkgerrors.ErrUnauthorized)
	case wc.Completed():
		return fmt.Errorf("%w: %w", pkgerrors.ErrUnauthorized, pkgerrors.ErrKeyConsumed)
	}

	st, ok := svc.state(wc.CycleID)
	if !ok {
		return fmt.Errorf("%w: cycle %s is closed", pkgerrors.ErrUnauthorized, wc.CycleID)
	}

	params, err := svc.codec.Decode(diff)
	if err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrMalformedDiff, err)
	}
	if !fl.SameShape(st.base, params) {
		return fmt.Errorf("%w: %w", pkgerrors.ErrMalformedDiff, fl.ErrShapeMismatch)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case st.cycle.Status == fl.CycleClosed:
		return fmt.Errorf("%w: cycle %s is closed", pkgerrors.ErrUnauthorized, wc.CycleID)
	case st.sealed:
		return fmt.Errorf("%w: cycle %s is already being averaged", pkgerrors.ErrConflict, wc.CycleID)
	}

	if err := retryTransient(func() error {
		_, err := svc.repos.WorkerCycles.Consume(ctx, requestKey, diff, svc.now().UTC())
		return err
	}); err != nil {
		if errors.Is(err, pkgerrors.ErrKeyConsumed) || errors.Is(err, pkgerrors.ErrNotFound) {
			return fmt.Errorf("%w: %w", pkgerrors.ErrUnauthorized, err)
		}

		return err
	}

	st.reported++
	if st.readyToAverage(svc.now()) {
		svc.startAveraging(ctx, st)
	}

	return nil
}

// average folds the reported diffs of st into a new checkpoint, closes the
// cycle and opens its successor.
func (svc *service) average(ctx context.Context, st *cycleState) {
	c := st.snapshot()
	logger := svc.logger.With(slog.Group("cycle",
		slog.String("id", c.ID),
		slog.String("model_id", c.ModelID),
		slog.Uint64("sequence", c.Sequence),
	))

	cp, err := svc.aggregate(ctx, st, c)
	if err != nil {
		st.mu.Lock()
		svc.failCycle(ctx, st, err)
		st.mu.Unlock()

		return
	}

	logger.Info("Averaged cycle diffs", slog.Uint64("checkpoint", cp.Number))
	svc.closeCycle(ctx, st, cp)
}

func (svc *service) aggregate(ctx context.Context, st *cycleState, c fl.Cycle) (fl.Checkpoint, error) {
	st.mu.Lock()
	st.sealed = true
	st.mu.Unlock()

	bindings, err := svc.repos.WorkerCycles.ListByCycle(ctx, c.ID)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	raw := make([][]byte, 0, len(bindings))
	for _, wc := range bindings {
		if wc.Completed() {
			raw = append(raw, wc.Diff)
		}
	}
	if uint64(len(raw)) < c.MinWorkers {
		return fl.Checkpoint{}, fmt.Errorf("%w: %w: %d of %d", pkgerrors.ErrFatal, ErrInsufficientDiffs, len(raw), c.MinWorkers)
	}
	raw = sample(raw, c.MaxWorkers)

	diffs := make([]fl.Params, 0, len(raw))
	for _, d := range raw {
		p, err := svc.codec.Decode(d)
		if err != nil {
			return fl.Checkpoint{}, fmt.Errorf("%w: %w", pkgerrors.ErrMalformedDiff, err)
		}
		diffs = append(diffs, p)
	}

	averager, err := svc.averager(st.process)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	params, err := averager.Average(ctx, st.base, diffs)
	if err != nil {
		return fl.Checkpoint{}, fmt.Errorf("%w: %w", pkgerrors.ErrFatal, err)
	}

	payload, err := svc.codec.Encode(params)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	var cp fl.Checkpoint
	err = retryTransient(func() error {
		var err error
		cp, err = svc.repos.Checkpoints.Save(ctx, c.ModelID, payload)
		return err
	})

	return cp, err
}

func (svc *service) averager(p fl.Process) (fl.Averager, error) {
	if len(p.AveragingPlan) == 0 {
		return fl.NewMeanAverager(), nil
	}

	return fl.NewWasmAverager(p.AveragingPlan, svc.cfg.AveragingTimeout)
}

// sample keeps at most n diffs chosen uniformly at random so late
// arrivals do not outweigh early ones.
func sample(diffs [][]byte, n uint64) [][]byte {
	if n == 0 || uint64(len(diffs)) <= n {
		return diffs
	}

	out := make([][]byte, 0, n)
	for _, i := range rand.Perm(len(diffs))[:n] {
		out = append(out, diffs[i])
	}

	return out
}
