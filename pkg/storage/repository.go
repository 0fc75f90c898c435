package storage

import (
	"context"
	"time"

	"github.com/absmach/fedcycle/pkg/fl"
)

type ProcessRepository interface {
	// Create fails with ErrEntityExists when the id or the (name, version) pair is taken.
	Create(ctx context.Context, p fl.Process) error
	Get(ctx context.Context, id string) (fl.Process, error)
	GetByName(ctx context.Context, name, version string) (fl.Process, error)
	Update(ctx context.Context, p fl.Process) error
	List(ctx context.Context, offset, limit uint64) ([]fl.Process, uint64, error)
}

type CheckpointRepository interface {
	// Save appends payload as checkpoint count+1 of the model and makes it
	// the only latest checkpoint, in one atomic step.
	Save(ctx context.Context, modelID string, payload []byte) (fl.Checkpoint, error)
	Latest(ctx context.Context, modelID string) (fl.Checkpoint, error)
	Get(ctx context.Context, modelID string, number uint64) (fl.Checkpoint, error)
	List(ctx context.Context, modelID string, offset, limit uint64) ([]fl.Checkpoint, uint64, error)
}

type CycleRepository interface {
	// Create fails with ErrConflict when the model already has a cycle with the same sequence.
	Create(ctx context.Context, c fl.Cycle) error
	Get(ctx context.Context, id string) (fl.Cycle, error)
	Update(ctx context.Context, c fl.Cycle) error
	// Latest returns the cycle of the model with the highest sequence.
	Latest(ctx context.Context, modelID string) (fl.Cycle, error)
	ListByStatus(ctx context.Context, statuses ...fl.CycleStatus) ([]fl.Cycle, error)
}

type WorkerRepository interface {
	Create(ctx context.Context, w fl.Worker) error
	Get(ctx context.Context, id string) (fl.Worker, error)
	Update(ctx context.Context, w fl.Worker) error
	List(ctx context.Context, offset, limit uint64) ([]fl.Worker, uint64, error)
}

type WorkerCycleRepository interface {
	// Create fails with ErrEntityExists when the worker is already bound to the cycle.
	Create(ctx context.Context, wc fl.WorkerCycle) error
	Get(ctx context.Context, workerID, cycleID string) (fl.WorkerCycle, error)
	GetByKey(ctx context.Context, requestKey string) (fl.WorkerCycle, error)
	// Consume stores the diff and marks the request key used. It succeeds
	// exactly once per key; later calls fail with ErrKeyConsumed.
	Consume(ctx context.Context, requestKey string, diff []byte, at time.Time) (fl.WorkerCycle, error)
	ListByCycle(ctx context.Context, cycleID string) ([]fl.WorkerCycle, error)
}

type ParticipationRepository interface {
	Get(ctx context.Context, workerID, modelID, version string) (fl.ParticipationRecord, error)
	Upsert(ctx context.Context, r fl.ParticipationRecord) error
	Delete(ctx context.Context, workerID, modelID, version string) error
}
