package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/dgraph-io/badger/v4"
)

const (
	cyclePrefix    = "cycle:"
	cycleSeqPrefix = "cycle_seq:"
)

type CycleRepository struct {
	db *Database
}

func cycleKey(id string) []byte {
	return []byte(cyclePrefix + id)
}

func cycleSeqModelPrefix(modelID string) []byte {
	return []byte(cycleSeqPrefix + modelID + ":")
}

func cycleSeqKey(modelID string, seq uint64) []byte {
	return fmt.Appendf(cycleSeqModelPrefix(modelID), "%020d", seq)
}

func (r *CycleRepository) Create(ctx context.Context, c fl.Cycle) error {
	if c.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.db.update(ErrCreate, func(txn *badger.Txn) error {
		found, err := exists(txn, cycleSeqKey(c.ModelID, c.Sequence))
		if err != nil {
			return err
		}
		if found {
			return pkgerrors.ErrConflict
		}
		if found, err = exists(txn, cycleKey(c.ID)); err != nil {
			return err
		}
		if found {
			return pkgerrors.ErrEntityExists
		}

		if err := txn.Set(cycleSeqKey(c.ModelID, c.Sequence), []byte(c.ID)); err != nil {
			return err
		}

		return setJSON(txn, cycleKey(c.ID), c)
	})
}

func (r *CycleRepository) Get(ctx context.Context, id string) (fl.Cycle, error) {
	var c fl.Cycle
	err := r.db.view(func(txn *badger.Txn) error {
		return getJSON(txn, cycleKey(id), &c)
	})

	return c, err
}

func (r *CycleRepository) Update(ctx context.Context, c fl.Cycle) error {
	return r.db.update(ErrUpdate, func(txn *badger.Txn) error {
		found, err := exists(txn, cycleKey(c.ID))
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.ErrNotFound
		}

		return setJSON(txn, cycleKey(c.ID), c)
	})
}

func (r *CycleRepository) Latest(ctx context.Context, modelID string) (fl.Cycle, error) {
	var c fl.Cycle
	err := r.db.view(func(txn *badger.Txn) error {
		id, err := lastWithPrefix(txn, cycleSeqModelPrefix(modelID))
		if err != nil {
			return err
		}

		return getJSON(txn, cycleKey(string(id)), &c)
	})

	return c, err
}

func (r *CycleRepository) ListByStatus(ctx context.Context, statuses ...fl.CycleStatus) ([]fl.Cycle, error) {
	cycles := []fl.Cycle{}
	err := r.db.view(func(txn *badger.Txn) error {
		return eachWithPrefix(txn, []byte(cyclePrefix), func(val []byte) error {
			var c fl.Cycle
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("unmarshal error: %w", err)
			}
			if slices.Contains(statuses, c.Status) {
				cycles = append(cycles, c)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return cycles, nil
}
