package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/jmoiron/sqlx"
)

type CheckpointRepository struct {
	repo
}

type dbCheckpoint struct {
	ModelID   string    `db:"model_id"`
	Number    uint64    `db:"number"`
	Payload   []byte    `db:"payload"`
	Latest    bool      `db:"latest"`
	CreatedAt time.Time `db:"created_at"`
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

	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var count uint64
		if err := tx.GetContext(ctx, &count, r.q(`SELECT COUNT(*) FROM checkpoints WHERE model_id = ?`), modelID); err != nil {
			return r.wrap(ErrDBQuery, err)
		}
		cp.Number = count + 1

		if _, err := tx.ExecContext(ctx, r.q(`UPDATE checkpoints SET latest = ? WHERE model_id = ? AND latest = ?`), false, modelID, true); err != nil {
			return r.wrap(ErrUpdate, err)
		}

		query := r.q(`INSERT INTO checkpoints (model_id, number, payload, latest, created_at) VALUES (?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, query, cp.ModelID, cp.Number, cp.Payload, cp.Latest, cp.CreatedAt); err != nil {
			if r.unique(err) {
				return errors.Join(pkgerrors.ErrTransient, pkgerrors.ErrConflict)
			}

			return r.wrap(ErrCreate, err)
		}

		return nil
	})
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return cp, nil
}

func (r *CheckpointRepository) Latest(ctx context.Context, modelID string) (fl.Checkpoint, error) {
	return r.getOne(ctx, `SELECT model_id, number, payload, latest, created_at FROM checkpoints WHERE model_id = ? AND latest = ?`, modelID, true)
}

func (r *CheckpointRepository) Get(ctx context.Context, modelID string, number uint64) (fl.Checkpoint, error) {
	return r.getOne(ctx, `SELECT model_id, number, payload, latest, created_at FROM checkpoints WHERE model_id = ? AND number = ?`, modelID, number)
}

func (r *CheckpointRepository) getOne(ctx context.Context, query string, args ...any) (fl.Checkpoint, error) {
	var dbc dbCheckpoint
	if err := r.db.GetContext(ctx, &dbc, r.q(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Checkpoint{}, pkgerrors.ErrNotFound
		}

		return fl.Checkpoint{}, r.wrap(ErrDBQuery, err)
	}

	return fl.Checkpoint(dbc), nil
}

func (r *CheckpointRepository) List(ctx context.Context, modelID string, offset, limit uint64) ([]fl.Checkpoint, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, r.q(`SELECT COUNT(*) FROM checkpoints WHERE model_id = ?`), modelID); err != nil {
		return nil, 0, r.wrap(ErrDBQuery, err)
	}

	var rows []dbCheckpoint
	query := r.q(`SELECT model_id, number, payload, latest, created_at FROM checkpoints WHERE model_id = ? ORDER BY number LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, modelID, clampLimit(limit), offset); err != nil {
		return nil, 0, r.wrap(ErrDBQuery, err)
	}

	checkpoints := make([]fl.Checkpoint, len(rows))
	for i, row := range rows {
		checkpoints[i] = fl.Checkpoint(row)
	}

	return checkpoints, total, nil
}
