package badger

import (
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrCreate       = errors.New("create error")
	ErrUpdate       = errors.New("update error")
	ErrDelete       = errors.New("delete error")
)

type Repositories struct {
	Processes     *ProcessRepository
	Checkpoints   *CheckpointRepository
	Cycles        *CycleRepository
	Workers       *WorkerRepository
	WorkerCycles  *WorkerCycleRepository
	Participation *ParticipationRepository
}

func NewRepositories(db *Database) *Repositories {
	return &Repositories{
		Processes:     &ProcessRepository{db: db},
		Checkpoints:   &CheckpointRepository{db: db},
		Cycles:        &CycleRepository{db: db},
		Workers:       &WorkerRepository{db: db},
		WorkerCycles:  &WorkerCycleRepository{db: db},
		Participation: &ParticipationRepository{db: db},
	}
}

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// update runs fn in a read-write transaction. Commit conflicts surface
// as transient errors.
func (d *Database) update(kind error, fn func(txn *badger.Txn) error) error {
	err := d.db.Update(fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %w: %w", pkgerrors.ErrTransient, kind, err)
	case isDomainErr(err):
		return err
	default:
		return fmt.Errorf("%w: %w", kind, err)
	}
}

func (d *Database) view(fn func(txn *badger.Txn) error) error {
	err := d.db.View(fn)
	switch {
	case err == nil:
		return nil
	case isDomainErr(err):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
}

func isDomainErr(err error) bool {
	return errors.Is(err, pkgerrors.ErrNotFound) ||
		errors.Is(err, pkgerrors.ErrEntityExists) ||
		errors.Is(err, pkgerrors.ErrConflict) ||
		errors.Is(err, pkgerrors.ErrKeyConsumed) ||
		errors.Is(err, pkgerrors.ErrEmptyKey)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return pkgerrors.ErrNotFound
		}

		return err
	}

	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("unmarshal error: %w", err)
		}

		return nil
	})
}

func getRaw(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, pkgerrors.ErrNotFound
		}

		return nil, err
	}

	return item.ValueCopy(nil)
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return txn.Set(key, val)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// eachWithPrefix walks values under prefix in key order.
func eachWithPrefix(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}

	return nil
}

func listWithPrefix(txn *badger.Txn, prefix []byte, offset, limit uint64) ([][]byte, uint64, error) {
	var items [][]byte
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	total := uint64(0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if total >= offset && uint64(len(items)) < limit {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, val)
		}
		total++
	}

	return items, total, nil
}

// lastWithPrefix returns the value of the greatest key under prefix.
func lastWithPrefix(txn *badger.Txn, prefix []byte) ([]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return nil, pkgerrors.ErrNotFound
	}

	return it.Item().ValueCopy(nil)
}
