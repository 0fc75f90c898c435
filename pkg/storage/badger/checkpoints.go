package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/dgraph-io/badger/v4"
)

const (
	checkpointPrefix      = "checkpoint:"
	checkpointCountPrefix = "checkpoint_count:"
)

type CheckpointRepository struct {
	db *Database
}

func checkpointModelPrefix(modelID string) []byte {
	return []byte(checkpointPrefix + modelID + ":")
}

func checkpointKey(modelID string, number uint64) []byte {
	return fmt.Appendf(checkpointModelPrefix(modelID), "%020d", number)
}

func checkpointCountKey(modelID string) []byte {
	return []byte(checkpointCountPrefix + modelID)
}

func (r *CheckpointRepository) Save(ctx context.Context, modelID string, payload []byte) (fl.Checkpoint, error) {
	if modelID == "" {
		return fl.Checkpoint{}, pkgerrors.ErrEmptyKey
	}

	cp := fl.Checkpoint{
		ModelID:   modelID,
		Payload:   payload,
		Latest:    true,
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.update(ErrCreate, func(txn *badger.Txn) error {
		count := uint64(0)
		raw, err := getRaw(txn, checkpointCountKey(modelID))
		switch {
		case err == nil:
			count = binary.BigEndian.Uint64(raw)
		case !errors.Is(err, pkgerrors.ErrNotFound):
			return err
		}

		if count > 0 {
			var prev fl.Checkpoint
			if err := getJSON(txn, checkpointKey(modelID, count), &prev); err != nil {
				return err
			}
			prev.Latest = false
			if err := setJSON(txn, checkpointKey(modelID, count), prev); err != nil {
				return err
			}
		}

		cp.Number = count + 1
		if err := setJSON(txn, checkpointKey(modelID, cp.Number), cp); err != nil {
			return err
		}

		return txn.Set(checkpointCountKey(modelID), binary.BigEndian.AppendUint64(nil, cp.Number))
	})
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return cp, nil
}

func (r *CheckpointRepository) Latest(ctx context.Context, modelID string) (fl.Checkpoint, error) {
	var cp fl.Checkpoint
	err := r.db.view(func(txn *badger.Txn) error {
		val, err := lastWithPrefix(txn, checkpointModelPrefix(modelID))
		if err != nil {
			return err
		}

		return json.Unmarshal(val, &cp)
	})

	return cp, err
}

func (r *CheckpointRepository) Get(ctx context.Context, modelID string, number uint64) (fl.Checkpoint, error) {
	var cp fl.Checkpoint
	err := r.db.view(func(txn *badger.Txn) error {
		return getJSON(txn, checkpointKey(modelID, number), &cp)
	})

	return cp, err
}

func (r *CheckpointRepository) List(ctx context.Context, modelID string, offset, limit uint64) ([]fl.Checkpoint, uint64, error) {
	var (
		values [][]byte
		total  uint64
	)
	err := r.db.view(func(txn *badger.Txn) error {
		var err error
		values, total, err = listWithPrefix(txn, checkpointModelPrefix(modelID), offset, limit)

		return err
	})
	if err != nil {
		return nil, 0, err
	}

	checkpoints := make([]fl.Checkpoint, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &checkpoints[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return checkpoints, total, nil
}
