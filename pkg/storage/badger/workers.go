package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/dgraph-io/badger/v4"
)

const (
	workerPrefix        = "worker:"
	workerCyclePrefix   = "worker_cycle:"
	requestKeyPrefix    = "request_key:"
	participationPrefix = "participation:"
)

type WorkerRepository struct {
	db *Database
}

func workerKey(id string) []byte {
	return []byte(workerPrefix + id)
}

func (r *WorkerRepository) Create(ctx context.Context, w fl.Worker) error {
	if w.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.db.update(ErrCreate, func(txn *badger.Txn) error {
		found, err := exists(txn, workerKey(w.ID))
		if err != nil {
			return err
		}
		if found {
			return pkgerrors.ErrEntityExists
		}

		return setJSON(txn, workerKey(w.ID), w)
	})
}

func (r *WorkerRepository) Get(ctx context.Context, id string) (fl.Worker, error) {
	var w fl.Worker
	err := r.db.view(func(txn *badger.Txn) error {
		return getJSON(txn, workerKey(id), &w)
	})

	return w, err
}

func (r *WorkerRepository) Update(ctx context.Context, w fl.Worker) error {
	return r.db.update(ErrUpdate, func(txn *badger.Txn) error {
		found, err := exists(txn, workerKey(w.ID))
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.ErrNotFound
		}

		return setJSON(txn, workerKey(w.ID), w)
	})
}

func (r *WorkerRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Worker, uint64, error) {
	var (
		values [][]byte
		total  uint64
	)
	err := r.db.view(func(txn *badger.Txn) error {
		var err error
		values, total, err = listWithPrefix(txn, []byte(workerPrefix), offset, limit)

		return err
	})
	if err != nil {
		return nil, 0, err
	}

	workers := make([]fl.Worker, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &workers[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return workers, total, nil
}

type WorkerCycleRepository struct {
	db *Database
}

func workerCycleKey(workerID, cycleID string) []byte {
	return []byte(workerCyclePrefix + cycleID + ":" + workerID)
}

func requestKey(key string) []byte {
	return []byte(requestKeyPrefix + key)
}

func (r *WorkerCycleRepository) Create(ctx context.Context, wc fl.WorkerCycle) error {
	if wc.RequestKey == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.db.update(ErrCreate, func(txn *badger.Txn) error {
		for _, key := range [][]byte{workerCycleKey(wc.WorkerID, wc.CycleID), requestKey(wc.RequestKey)} {
			found, err := exists(txn, key)
			if err != nil {
				return err
			}
			if found {
				return pkgerrors.ErrEntityExists
			}
		}

		if err := txn.Set(requestKey(wc.RequestKey), workerCycleKey(wc.WorkerID, wc.CycleID)); err != nil {
			return err
		}

		return setJSON(txn, workerCycleKey(wc.WorkerID, wc.CycleID), wc)
	})
}

func (r *WorkerCycleRepository) Get(ctx context.Context, workerID, cycleID string) (fl.WorkerCycle, error) {
	var wc fl.WorkerCycle
	err := r.db.view(func(txn *badger.Txn) error {
		return getJSON(txn, workerCycleKey(workerID, cycleID), &wc)
	})

	return wc, err
}

func (r *WorkerCycleRepository) GetByKey(ctx context.Context, key string) (fl.WorkerCycle, error) {
	var wc fl.WorkerCycle
	err := r.db.view(func(txn *badger.Txn) error {
		wcKey, err := getRaw(txn, requestKey(key))
		if err != nil {
			return err
		}

		return getJSON(txn, wcKey, &wc)
	})

	return wc, err
}

// Consume relies on badger's optimistic transactions: two concurrent
// consumers of one key conflict and only one commit succeeds.
func (r *WorkerCycleRepository) Consume(ctx context.Context, key string, diff []byte, at time.Time) (fl.WorkerCycle, error) {
	var wc fl.WorkerCycle
	err := r.db.update(ErrUpdate, func(txn *badger.Txn) error {
		wcKey, err := getRaw(txn, requestKey(key))
		if err != nil {
			return err
		}
		if err := getJSON(txn, wcKey, &wc); err != nil {
			return err
		}
		if wc.Completed() {
			return pkgerrors.ErrKeyConsumed
		}

		wc.Diff = diff
		wc.CompletedAt = at

		return setJSON(txn, wcKey, wc)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fl.WorkerCycle{}, errors.Join(err, pkgerrors.ErrKeyConsumed)
	}
	if err != nil {
		return fl.WorkerCycle{}, err
	}

	return wc, nil
}

func (r *WorkerCycleRepository) ListByCycle(ctx context.Context, cycleID string) ([]fl.WorkerCycle, error) {
	wcs := []fl.WorkerCycle{}
	err := r.db.view(func(txn *badger.Txn) error {
		return eachWithPrefix(txn, []byte(workerCyclePrefix+cycleID+":"), func(val []byte) error {
			var wc fl.WorkerCycle
			if err := json.Unmarshal(val, &wc); err != nil {
				return fmt.Errorf("unmarshal error: %w", err)
			}
			wcs = append(wcs, wc)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return wcs, nil
}

type ParticipationRepository struct {
	db *Database
}

func participationKey(workerID, modelID, version string) []byte {
	return []byte(participationPrefix + workerID + ":" + modelID + ":" + version)
}

func (r *ParticipationRepository) Get(ctx context.Context, workerID, modelID, version string) (fl.ParticipationRecord, error) {
	var rec fl.ParticipationRecord
	err := r.db.view(func(txn *badger.Txn) error {
		return getJSON(txn, participationKey(workerID, modelID, version), &rec)
	})

	return rec, err
}

func (r *ParticipationRepository) Upsert(ctx context.Context, rec fl.ParticipationRecord) error {
	return r.db.update(ErrUpdate, func(txn *badger.Txn) error {
		return setJSON(txn, participationKey(rec.WorkerID, rec.ModelID, rec.Version), rec)
	})
}

func (r *ParticipationRepository) Delete(ctx context.Context, workerID, modelID, version string) error {
	return r.db.update(ErrDelete, func(txn *badger.Txn) error {
		return txn.Delete(participationKey(workerID, modelID, version))
	})
}
