package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
)

type WorkerRepository struct {
	repo
}

type dbWorker struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Ping             float64   `db:"ping"`
	AvgDownload      float64   `db:"avg_download"`
	AvgUpload        float64   `db:"avg_upload"`
	FormatPreference string    `db:"format_preference"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

const workerColumns = `id, name, ping, avg_download, avg_upload, format_preference, created_at, updated_at`

func (r *WorkerRepository) Create(ctx context.Context, w fl.Worker) error {
	query := `INSERT INTO workers (` + workerColumns + `)
		VALUES (:id, :name, :ping, :avg_download, :avg_upload, :format_preference, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dbWorker(w)); err != nil {
		if r.unique(err) {
			return pkgerrors.ErrEntityExists
		}

		return r.wrap(ErrCreate, err)
	}

	return nil
}

func (r *WorkerRepository) Get(ctx context.Context, id string) (fl.Worker, error) {
	var dbw dbWorker
	if err := r.db.GetContext(ctx, &dbw, r.q(`SELECT `+workerColumns+` FROM workers WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Worker{}, pkgerrors.ErrNotFound
		}

		return fl.Worker{}, r.wrap(ErrDBQuery, err)
	}

	return fl.Worker(dbw), nil
}

func (r *WorkerRepository) Update(ctx context.Context, w fl.Worker) error {
	query := `UPDATE workers SET name = :name, ping = :ping, avg_download = :avg_download, avg_upload = :avg_upload,
		format_preference = :format_preference, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, dbWorker(w))
	if err != nil {
		return r.wrap(ErrUpdate, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *WorkerRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Worker, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM workers`); err != nil {
		return nil, 0, r.wrap(ErrDBQuery, err)
	}

	var rows []dbWorker
	query := r.q(`SELECT ` + workerColumns + ` FROM workers ORDER BY created_at, id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, clampLimit(limit), offset); err != nil {
		return nil, 0, r.wrap(ErrDBQuery, err)
	}

	workers := make([]fl.Worker, len(rows))
	for i, row := range rows {
		workers[i] = fl.Worker(row)
	}

	return workers, total, nil
}
