package badger

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/dgraph-io/badger/v4"
)

const (
	processPrefix     = "process:"
	processNamePrefix = "process_name:"
)

type ProcessRepository struct {
	db *Database
}

func processKey(id string) []byte {
	return []byte(processPrefix + id)
}

func processNameKey(name, version string) []byte {
	return []byte(processNamePrefix + name + "\x00" + version)
}

func (r *ProcessRepository) Create(ctx context.Context, p fl.Process) error {
	if p.ID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.db.update(ErrCreate, func(txn *badger.Txn) error {
		for _, key := range [][]byte{processKey(p.ID), processNameKey(p.Name, p.Version)} {
			found, err := exists(txn, key)
			if err != nil {
				return err
			}
			if found {
				return pkgerrors.ErrEntityExists
			}
		}

		if err := txn.Set(processNameKey(p.Name, p.Version), []byte(p.ID)); err != nil {
			return err
		}

		return setJSON(txn, processKey(p.ID), p)
	})
}

func (r *ProcessRepository) Get(ctx context.Context, id string) (fl.Process, error) {
	var p fl.Process
	err := r.db.view(func(txn *badger.Txn) error {
		return getJSON(txn, processKey(id), &p)
	})

	return p, err
}

func (r *ProcessRepository) GetByName(ctx context.Context, name, version string) (fl.Process, error) {
	var p fl.Process
	err := r.db.view(func(txn *badger.Txn) error {
		id, err := getRaw(txn, processNameKey(name, version))
		if err != nil {
			return err
		}

		return getJSON(txn, processKey(string(id)), &p)
	})

	return p, err
}

func (r *ProcessRepository) Update(ctx context.Context, p fl.Process) error {
	return r.db.update(ErrUpdate, func(txn *badger.Txn) error {
		found, err := exists(txn, processKey(p.ID))
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.ErrNotFound
		}

		return setJSON(txn, processKey(p.ID), p)
	})
}

func (r *ProcessRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Process, uint64, error) {
	var (
		values [][]byte
		total  uint64
	)
	err := r.db.view(func(txn *badger.Txn) error {
		var err error
		values, total, err = listWithPrefix(txn, []byte(processPrefix), offset, limit)

		return err
	})
	if err != nil {
		return nil, 0, err
	}

	processes := make([]fl.Process, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &processes[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return processes, total, nil
}
