package coordinator

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/storage"
)

const ledgerStripes = 64

// ledger tracks the last cycle sequence each worker joined per model
// version. Callers hold the (worker, model) stripe across check and record.
type ledger struct {
	repo    storage.ParticipationRepository
	stripes [ledgerStripes]sync.Mutex
}

func newLedger(repo storage.ParticipationRepository) *ledger {
	return &ledger{repo: repo}
}

func (l *ledger) lock(workerID, modelID string) func() {
	h := fnv.New32a()
	h.Write([]byte(workerID))
	h.Write([]byte{0})
	h.Write([]byte(modelID))

	m := &l.stripes[h.Sum32()%ledgerStripes]
	m.Lock()

	return m.Unlock
}

func (l *ledger) IsCooledDown(ctx context.Context, workerID, modelID, version string, current, cooldown uint64) (bool, error) {
	rec, err := l.repo.Get(ctx, workerID, modelID, version)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		return true, nil
	case err != nil:
		return false, err
	}

	return cooledDown(rec.LastSequence, current, cooldown), nil
}

// Record stores sequence as the worker's last join and returns a function
// that puts back whatever was recorded before.
func (l *ledger) Record(ctx context.Context, workerID, modelID, version string, sequence uint64) (func(context.Context) error, error) {
	prev, err := l.repo.Get(ctx, workerID, modelID, version)
	found := err == nil
	if err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}

	if err := retryTransient(func() error {
		return l.repo.Upsert(ctx, fl.ParticipationRecord{
			WorkerID:     workerID,
			ModelID:      modelID,
			Version:      version,
			LastSequence: sequence,
		})
	}); err != nil {
		return nil, err
	}

	undo := func(ctx context.Context) error {
		if found {
			return retryTransient(func() error { return l.repo.Upsert(ctx, prev) })
		}

		return retryTransient(func() error { return l.repo.Delete(ctx, workerID, modelID, version) })
	}

	return undo, nil
}

func cooledDown(last, current, cooldown uint64) bool {
	if current < last {
		return false
	}

	return current-last >= cooldown
}
