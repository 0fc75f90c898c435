package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
)

type ProcessRepository struct {
	repo
}

type dbProcess struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Version       string    `db:"version"`
	ModelID       string    `db:"model_id"`
	Plans         []byte    `db:"plans"`
	AveragingPlan []byte    `db:"averaging_plan"`
	ClientConfig  []byte    `db:"client_config"`
	ServerConfig  []byte    `db:"server_config"`
	Terminated    bool      `db:"terminated"`
	CreatedAt     time.Time `db:"created_at"`
}

const processColumns = `id, name, version, model_id, plans, averaging_plan, client_config, server_config, terminated, created_at`

func (r *ProcessRepository) Create(ctx context.Context, p fl.Process) error {
	dbp, err := toDBProcess(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO processes (` + processColumns + `)
		VALUES (:id, :name, :version, :model_id, :plans, :averaging_plan, :client_config, :server_config, :terminated, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dbp); err != nil {
		if r.unique(err) {
			return pkgerrors.ErrEntityExists
		}

		return r.wrap(ErrCreate, err)
	}

	return nil
}

func (r *ProcessRepository) Get(ctx context.Context, id string) (fl.Process, error) {
	return r.getOne(ctx, `SELECT `+processColumns+` FROM processes WHERE id = ?`, id)
}

func (r *ProcessRepository) GetByName(ctx context.Context, name, version string) (fl.Process, error) {
	return r.getOne(ctx, `SELECT `+processColumns+` FROM processes WHERE name = ? AND version = ?`, name, version)
}

func (r *ProcessRepository) getOne(ctx context.Context, query string, args ...any) (fl.Process, error) {
	var dbp dbProcess
	if err := r.db.GetContext(ctx, &dbp, r.q(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Process{}, pkgerrors.ErrNotFound
		}

		return fl.Process{}, r.wrap(ErrDBQuery, err)
	}

	return dbp.toProcess()
}

func (r *ProcessRepository) Update(ctx context.Context, p fl.Process) error {
	dbp, err := toDBProcess(p)
	if err != nil {
		return err
	}

	query := `UPDATE processes SET plans = :plans, averaging_plan = :averaging_plan, client_config = :client_config,
		server_config = :server_config, terminated = :terminated WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, dbp)
	if err != nil {
		return r.wrap(ErrUpdate, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *ProcessRepository) List(ctx context.Context, offset, limit uint64) ([]fl.Process, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM processes`); err != nil {
		return nil, 0, r.wrap(ErrDBQuery, err)
	}

	var rows []dbProcess
	query := r.q(`SELECT ` + processColumns + ` FROM processes ORDER BY created_at, id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, query, clampLimit(limit), offset); err != nil {
		return nil, 0, r.wrap(ErrDBQuery, err)
	}

	processes := make([]fl.Process, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProcess()
		if err != nil {
			return nil, 0, err
		}
		processes = append(processes, p)
	}

	return processes, total, nil
}

func toDBProcess(p fl.Process) (dbProcess, error) {
	plans, err := jsonBytes(p.Plans)
	if err != nil {
		return dbProcess{}, fmt.Errorf("marshal error: %w", err)
	}
	clientCfg, err := jsonBytes(p.ClientConfig)
	if err != nil {
		return dbProcess{}, fmt.Errorf("marshal error: %w", err)
	}
	serverCfg, err := jsonBytes(p.ServerConfig)
	if err != nil {
		return dbProcess{}, fmt.Errorf("marshal error: %w", err)
	}

	return dbProcess{
		ID:            p.ID,
		Name:          p.Name,
		Version:       p.Version,
		ModelID:       p.ModelID,
		Plans:         plans,
		AveragingPlan: p.AveragingPlan,
		ClientConfig:  clientCfg,
		ServerConfig:  serverCfg,
		Terminated:    p.Terminated,
		CreatedAt:     p.CreatedAt,
	}, nil
}

func (dbp dbProcess) toProcess() (fl.Process, error) {
	p := fl.Process{
		ID:            dbp.ID,
		Name:          dbp.Name,
		Version:       dbp.Version,
		ModelID:       dbp.ModelID,
		AveragingPlan: dbp.AveragingPlan,
		Terminated:    dbp.Terminated,
		CreatedAt:     dbp.CreatedAt,
	}
	if err := jsonUnmarshal(dbp.Plans, &p.Plans); err != nil {
		return fl.Process{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := jsonUnmarshal(dbp.ClientConfig, &p.ClientConfig); err != nil {
		return fl.Process{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := jsonUnmarshal(dbp.ServerConfig, &p.ServerConfig); err != nil {
		return fl.Process{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return p, nil
}
