package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
)

func listAll[T any](ctx context.Context, s Storage, keep func(T) bool) ([]T, error) {
	data, _, err := s.List(ctx, 0, math.MaxUint64)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(data))
	for _, d := range data {
		v, ok := d.(T)
		if !ok {
			return nil, pkgerrors.ErrInvalidData
		}
		if keep == nil || keep(v) {
			items = append(items, v)
		}
	}

	return items, nil
}

func get[T any](ctx context.Context, s Storage, key string) (T, error) {
	var zero T
	data, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	v, ok := data.(T)
	if !ok {
		return zero, pkgerrors.ErrInvalidData
	}

	return v, nil
}

func page[T any](items []T, offset, limit uint64) []T {
	total := uint64(len(items))
	if offset >= total {
		return []T{}
	}
	end := offset + limit
	if end > total || end < offset {
		end = total
	}

	return items[offset:end]
}

type memoryProcessRepo struct {
	mu      sync.Mutex
	storage Storage
}

func newMemoryProcessRepository(s Storage) ProcessRepository {
	return &memoryProcessRepo{storage: s}
}

func (r *memoryProcessRepo) Create(ctx context.Context, p fl.Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dup, err := listAll(ctx, r.storage, func(e fl.Process) bool {
		return e.Name == p.Name && e.Version == p.Version
	})
	if err != nil {
		return err
	}
	if len(dup) > 0 {
		return pkgerrors.ErrEntityExists
	}

	return r.storage.Create(ctx, p.ID, p)
}

func (r *memoryProcessRepo) Get(ctx context.Context, id string) (fl.Process, error) {
	return get[fl.Process](ctx, r.storage, id)
}

func (r *memoryProcessRepo) GetByName(ctx context.Context, name, version string) (fl.Process, error) {
	found, err := listAll(ctx, r.storage, func(e fl.Process) bool {
		return e.Name == name && e.Version == version
	})
	if err != nil {
		return fl.Process{}, err
	}
	if len(found) == 0 {
		return fl.Process{}, pkgerrors.ErrNotFound
	}

	return found[0], nil
}

func (r *memoryProcessRepo) Update(ctx context.Context, p fl.Process) error {
	return r.storage.Update(ctx, p.ID, p)
}

func (r *memoryProcessRepo) List(ctx context.Context, offset, limit uint64) ([]fl.Process, uint64, error) {
	all, err := listAll[fl.Process](ctx, r.storage, nil)
	if err != nil {
		return nil, 0, err
	}

	return page(all, offset, limit), uint64(len(all)), nil
}

type memoryCheckpointRepo struct {
	mu      sync.Mutex
	storage Storage
	counts  map[string]uint64
}

func newMemoryCheckpointRepository(s Storage) CheckpointRepository {
	return &memoryCheckpointRepo{
		storage: s,
		counts:  make(map[string]uint64),
	}
}

func checkpointKey(modelID string, number uint64) string {
	return fmt.Sprintf("%s/%020d", modelID, number)
}

func (r *memoryCheckpointRepo) Save(ctx context.Context, modelID string, payload []byte) (fl.Checkpoint, error) {
	if modelID == "" {
		return fl.Checkpoint{}, pkgerrors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.counts[modelID]
	if prev > 0 {
		latest, err := get[fl.Checkpoint](ctx, r.storage, checkpointKey(modelID, prev))
		if err != nil {
			return fl.Checkpoint{}, err
		}
		latest.Latest = false
		if err := r.storage.Update(ctx, checkpointKey(modelID, prev), latest); err != nil {
			return fl.Checkpoint{}, err
		}
	}

	cp := fl.Checkpoint{
		ModelID:   modelID,
		Number:    prev + 1,
		Payload:   payload,
		Latest:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.storage.Create(ctx, checkpointKey(modelID, cp.Number), cp); err != nil {
		return fl.Checkpoint{}, err
	}
	r.counts[modelID] = cp.Number

	return cp, nil
}

func (r *memoryCheckpointRepo) Latest(ctx context.Context, modelID string) (fl.Checkpoint, error) {
	r.mu.Lock()
	n := r.counts[modelID]
	r.mu.Unlock()

	if n == 0 {
		return fl.Checkpoint{}, pkgerrors.ErrNotFound
	}

	return r.Get(ctx, modelID, n)
}

func (r *memoryCheckpointRepo) Get(ctx context.Context, modelID string, number uint64) (fl.Checkpoint, error) {
	return get[fl.Checkpoint](ctx, r.storage, checkpointKey(modelID, number))
}

func (r *memoryCheckpointRepo) List(ctx context.Context, modelID string, offset, limit uint64) ([]fl.Checkpoint, uint64, error) {
	all, err := listAll(ctx, r.storage, func(c fl.Checkpoint) bool {
		return c.ModelID == modelID
	})
	if err != nil {
		return nil, 0, err
	}

	return page(all, offset, limit), uint64(len(all)), nil
}

type memoryCycleRepo struct {
	mu      sync.Mutex
	storage Storage
}

func newMemoryCycleRepository(s Storage) CycleRepository {
	return &memoryCycleRepo{storage: s}
}

func (r *memoryCycleRepo) Create(ctx context.Context, c fl.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dup, err := listAll(ctx, r.storage, func(e fl.Cycle) bool {
		return e.ModelID == c.ModelID && e.Sequence == c.Sequence
	})
	if err != nil {
		return err
	}
	if len(dup) > 0 {
		return pkgerrors.ErrConflict
	}

	return r.storage.Create(ctx, c.ID, c)
}

func (r *memoryCycleRepo) Get(ctx context.Context, id string) (fl.Cycle, error) {
	return get[fl.Cycle](ctx, r.storage, id)
}

func (r *memoryCycleRepo) Update(ctx context.Context, c fl.Cycle) error {
	return r.storage.Update(ctx, c.ID, c)
}

func (r *memoryCycleRepo) Latest(ctx context.Context, modelID string) (fl.Cycle, error) {
	cycles, err := listAll(ctx, r.storage, func(e fl.Cycle) bool {
		return e.ModelID == modelID
	})
	if err != nil {
		return fl.Cycle{}, err
	}
	if len(cycles) == 0 {
		return fl.Cycle{}, pkgerrors.ErrNotFound
	}

	latest := cycles[0]
	for _, c := range cycles[1:] {
		if c.Sequence > latest.Sequence {
			latest = c
		}
	}

	return latest, nil
}

func (r *memoryCycleRepo) ListByStatus(ctx context.Context, statuses ...fl.CycleStatus) ([]fl.Cycle, error) {
	return listAll(ctx, r.storage, func(e fl.Cycle) bool {
		for _, s := range statuses {
			if e.Status == s {
				return true
			}
		}

		return false
	})
}

type memoryWorkerRepo struct {
	storage Storage
}

func newMemoryWorkerRepository(s Storage) WorkerRepository {
	return &memoryWorkerRepo{storage: s}
}

func (r *memoryWorkerRepo) Create(ctx context.Context, w fl.Worker) error {
	return r.storage.Create(ctx, w.ID, w)
}

func (r *memoryWorkerRepo) Get(ctx context.Context, id string) (fl.Worker, error) {
	return get[fl.Worker](ctx, r.storage, id)
}

func (r *memoryWorkerRepo) Update(ctx context.Context, w fl.Worker) error {
	return r.storage.Update(ctx, w.ID, w)
}

func (r *memoryWorkerRepo) List(ctx context.Context, offset, limit uint64) ([]fl.Worker, uint64, error) {
	data, total, err := r.storage.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	workers := make([]fl.Worker, len(data))
	for i, d := range data {
		w, ok := d.(fl.Worker)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		workers[i] = w
	}

	return workers, total, nil
}

type memoryWorkerCycleRepo struct {
	mu      sync.Mutex
	storage Storage
	keys    map[string]string
}

func newMemoryWorkerCycleRepository(s Storage) WorkerCycleRepository {
	return &memoryWorkerCycleRepo{
		storage: s,
		keys:    make(map[string]string),
	}
}

func workerCycleKey(workerID, cycleID string) string {
	return workerID + "/" + cycleID
}

func (r *memoryWorkerCycleRepo) Create(ctx context.Context, wc fl.WorkerCycle) error {
	if wc.RequestKey == "" {
		return pkgerrors.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[wc.RequestKey]; ok {
		return pkgerrors.ErrEntityExists
	}
	key := workerCycleKey(wc.WorkerID, wc.CycleID)
	if err := r.storage.Create(ctx, key, wc); err != nil {
		return err
	}
	r.keys[wc.RequestKey] = key

	return nil
}

func (r *memoryWorkerCycleRepo) Get(ctx context.Context, workerID, cycleID string) (fl.WorkerCycle, error) {
	return get[fl.WorkerCycle](ctx, r.storage, workerCycleKey(workerID, cycleID))
}

func (r *memoryWorkerCycleRepo) GetByKey(ctx context.Context, requestKey string) (fl.WorkerCycle, error) {
	r.mu.Lock()
	key, ok := r.keys[requestKey]
	r.mu.Unlock()

	if !ok {
		return fl.WorkerCycle{}, pkgerrors.ErrNotFound
	}

	return get[fl.WorkerCycle](ctx, r.storage, key)
}

func (r *memoryWorkerCycleRepo) Consume(ctx context.Context, requestKey string, diff []byte, at time.Time) (fl.WorkerCycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[requestKey]
	if !ok {
		return fl.WorkerCycle{}, pkgerrors.ErrNotFound
	}
	wc, err := get[fl.WorkerCycle](ctx, r.storage, key)
	if err != nil {
		return fl.WorkerCycle{}, err
	}
	if wc.Completed() {
		return fl.WorkerCycle{}, pkgerrors.ErrKeyConsumed
	}

	wc.Diff = diff
	wc.CompletedAt = at
	if err := r.storage.Update(ctx, key, wc); err != nil {
		return fl.WorkerCycle{}, err
	}

	return wc, nil
}

func (r *memoryWorkerCycleRepo) ListByCycle(ctx context.Context, cycleID string) ([]fl.WorkerCycle, error) {
	return listAll(ctx, r.storage, func(wc fl.WorkerCycle) bool {
		return wc.CycleID == cycleID
	})
}

type memoryParticipationRepo struct {
	mu      sync.Mutex
	storage Storage
}

func newMemoryParticipationRepository(s Storage) ParticipationRepository {
	return &memoryParticipationRepo{storage: s}
}

func participationKey(workerID, modelID, version string) string {
	return workerID + "/" + modelID + "/" + version
}

func (r *memoryParticipationRepo) Get(ctx context.Context, workerID, modelID, version string) (fl.ParticipationRecord, error) {
	return get[fl.ParticipationRecord](ctx, r.storage, participationKey(workerID, modelID, version))
}

func (r *memoryParticipationRepo) Upsert(ctx context.Context, rec fl.ParticipationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := participationKey(rec.WorkerID, rec.ModelID, rec.Version)
	err := r.storage.Update(ctx, key, rec)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return r.storage.Create(ctx, key, rec)
	}

	return err
}

func (r *memoryParticipationRepo) Delete(ctx context.Context, workerID, modelID, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.storage.Delete(ctx, participationKey(workerID, modelID, version))
}
