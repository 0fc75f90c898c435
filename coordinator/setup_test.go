package coordinator_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/auth"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/stretchr/testify/require"
)

var codec = fl.NewCBORCodec(false)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)

	return nil
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}

	return out
}

type env struct {
	svc    coordinator.Service
	repos  *storage.Repositories
	clock  *clock
	events *recorder
}

func newEnv(t *testing.T, opts ...coordinator.Option) *env {
	t.Helper()

	e := &env{
		repos:  storage.NewMemoryRepositories(),
		clock:  newClock(),
		events: &recorder{},
	}
	e.svc = e.newService(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.svc.Shutdown(ctx)
	})

	return e
}

func (e *env) newService(opts ...coordinator.Option) coordinator.Service {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	opts = append([]coordinator.Option{coordinator.WithClock(e.clock.Now)}, opts...)

	return coordinator.NewService(e.repos, auth.NewAnonymous(), codec, e.events, coordinator.Config{}, logger, opts...)
}

func encode(t *testing.T, p fl.Params) []byte {
	t.Helper()

	data, err := codec.Encode(p)
	require.NoError(t, err)

	return data
}

func serverConfig(maxWorkers, minWorkers uint64) fl.ServerConfig {
	return fl.ServerConfig{
		MaxWorkers:    maxWorkers,
		MinWorkers:    minWorkers,
		PoolSelection: fl.PoolIterate,
		CycleLength:   60,
	}
}

func (e *env) host(t *testing.T, name string, sc fl.ServerConfig) (fl.Process, fl.Cycle) {
	t.Helper()

	return e.hostModel(t, name, sc, fl.Params{{0, 0}})
}

func (e *env) hostModel(t *testing.T, name string, sc fl.ServerConfig, model fl.Params) (fl.Process, fl.Cycle) {
	t.Helper()

	p, c, err := e.svc.HostProcess(context.Background(), coordinator.HostRequest{
		Name:         name,
		Version:      "1.0",
		Model:        encode(t, model),
		Plans:        map[string][]byte{"training_plan": []byte("plan")},
		ClientConfig: map[string]any{"batch_size": 64},
		ServerConfig: sc,
	})
	require.NoError(t, err)

	return p, c
}

func (e *env) worker(t *testing.T) string {
	t.Helper()

	resp, err := e.svc.Authenticate(context.Background(), coordinator.AuthRequest{})
	require.NoError(t, err)

	return resp.Worker.ID
}

func (e *env) join(t *testing.T, workerID, name string) coordinator.JoinResponse {
	t.Helper()

	resp, err := e.svc.RequestJoin(context.Background(), coordinator.JoinRequest{
		WorkerID:     workerID,
		ModelName:    name,
		ModelVersion: "1.0",
	})
	require.NoError(t, err)

	return resp
}
