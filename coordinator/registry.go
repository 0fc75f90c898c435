package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/google/uuid"
)

var namegen = namegenerator.NewGenerator()

type registry struct {
	repo storage.WorkerRepository
	now  func() time.Time
}

func newRegistry(repo storage.WorkerRepository, now func() time.Time) *registry {
	return &registry{repo: repo, now: now}
}

func (r *registry) Register(ctx context.Context) (fl.Worker, error) {
	now := r.now().UTC()
	w := fl.Worker{
		ID:        uuid.NewString(),
		Name:      namegen.Generate(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.Create(ctx, w); err != nil {
		return fl.Worker{}, err
	}

	return w, nil
}

// Get resolves a known worker. Unknown workers are unauthorized.
func (r *registry) Get(ctx context.Context, id string) (fl.Worker, error) {
	w, err := r.repo.Get(ctx, id)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return fl.Worker{}, fmt.Errorf("%w: unknown worker %s", pkgerrors.ErrUnauthorized, id)
	}

	return w, err
}

func (r *registry) UpdateMetrics(ctx context.Context, id string, m Metrics) (fl.Worker, error) {
	w, err := r.Get(ctx, id)
	if err != nil {
		return fl.Worker{}, err
	}

	if m == (Metrics{}) {
		return w, nil
	}
	if m.Ping > 0 {
		w.Ping = m.Ping
	}
	if m.Download > 0 {
		w.AvgDownload = m.Download
	}
	if m.Upload > 0 {
		w.AvgUpload = m.Upload
	}
	w.UpdatedAt = r.now().UTC()

	if err := retryTransient(func() error { return r.repo.Update(ctx, w) }); err != nil {
		return fl.Worker{}, err
	}

	return w, nil
}
