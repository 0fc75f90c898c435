package sqldb

import (
	"context"
	"database/sql"
	"errors"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
)

type ParticipationRepository struct {
	repo
}

type dbParticipation struct {
	WorkerID     string `db:"worker_id"`
	ModelID      string `db:"model_id"`
	Version      string `db:"version"`
	LastSequence uint64 `db:"last_seq"`
}

func (r *ParticipationRepository) Get(ctx context.Context, workerID, modelID, version string) (fl.ParticipationRecord, error) {
	var row dbParticipation
	query := r.q(`SELECT worker_id, model_id, version, last_seq FROM participation WHERE worker_id = ? AND model_id = ? AND version = ?`)
	if err := r.db.GetContext(ctx, &row, query, workerID, modelID, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.ParticipationRecord{}, pkgerrors.ErrNotFound
		}

		return fl.ParticipationRecord{}, r.wrap(ErrDBQuery, err)
	}

	return fl.ParticipationRecord(row), nil
}

func (r *ParticipationRepository) Upsert(ctx context.Context, rec fl.ParticipationRecord) error {
	query := `INSERT INTO participation (worker_id, model_id, version, last_seq)
		VALUES (:worker_id, :model_id, :version, :last_seq)
		ON CONFLICT (worker_id, model_id, version) DO UPDATE SET last_seq = excluded.last_seq`
	if _, err := r.db.NamedExecContext(ctx, query, dbParticipation(rec)); err != nil {
		return r.wrap(ErrUpdate, err)
	}

	return nil
}

func (r *ParticipationRepository) Delete(ctx context.Context, workerID, modelID, version string) error {
	query := r.q(`DELETE FROM participation WHERE worker_id = ? AND model_id = ? AND version = ?`)
	if _, err := r.db.ExecContext(ctx, query, workerID, modelID, version); err != nil {
		return r.wrap(ErrDelete, err)
	}

	return nil
}
