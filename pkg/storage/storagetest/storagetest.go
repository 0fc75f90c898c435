// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invalidID = "invalid-id-that-does-not-exist"

// Run exercises repos against the repository contracts.
func Run(t *testing.T, repos *storage.Repositories) {
	t.Run("processes", func(t *testing.T) { testProcesses(t, repos.Processes) })
	t.Run("checkpoints", func(t *testing.T) { testCheckpoints(t, repos.Checkpoints) })
	t.Run("cycles", func(t *testing.T) { testCycles(t, repos.Cycles) })
	t.Run("workers", func(t *testing.T) { testWorkers(t, repos.Workers) })
	t.Run("worker cycles", func(t *testing.T) { testWorkerCycles(t, repos.Cycles, repos.WorkerCycles) })
	t.Run("participation", func(t *testing.T) { testParticipation(t, repos.Participation) })
}

func Process() fl.Process {
	return fl.Process{
		ID:            uuid.NewString(),
		Name:          "mnist-" + uuid.NewString()[:8],
		Version:       "1.0",
		ModelID:       uuid.NewString(),
		Plans:         map[string][]byte{"training_plan": []byte("plan")},
		AveragingPlan: nil,
		ClientConfig:  map[string]any{"batch_size": float64(64)},
		ServerConfig:  fl.ServerConfig{MaxWorkers: 10, CooldownCycles: 2}.WithDefaults(),
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func Cycle(modelID string, seq uint64) fl.Cycle {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return fl.Cycle{
		ID:         uuid.NewString(),
		ProcessID:  uuid.NewString(),
		ModelID:    modelID,
		Version:    1,
		Sequence:   seq,
		Start:      now,
		End:        now.Add(time.Hour),
		MaxWorkers: 10,
		MinWorkers: 2,
		Status:     fl.CycleOpen,
	}
}

// Binding returns an uncompleted worker binding to cycleID under key.
func Binding(cycleID, key string) fl.WorkerCycle {
	return fl.WorkerCycle{
		WorkerID:   uuid.NewString(),
		CycleID:    cycleID,
		RequestKey: key,
		JoinedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testProcesses(t *testing.T, repo storage.ProcessRepository) {
	ctx := context.Background()
	p := Process()

	cases := []struct {
		desc    string
		process fl.Process
		err     error
	}{
		{desc: "create new process", process: p, err: nil},
		{
			desc: "create process with duplicate name and version",
			process: func() fl.Process {
				dup := Process()
				dup.Name, dup.Version = p.Name, p.Version
				return dup
			}(),
			err: pkgerrors.ErrEntityExists,
		},
		{
			desc: "create same name with new version",
			process: func() fl.Process {
				next := Process()
				next.Name, next.Version = p.Name, "2.0"
				return next
			}(),
			err: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := repo.Create(ctx, tc.process)
			assert.ErrorIs(t, err, tc.err, fmt.Sprintf("%s: expected error %v, got %v", tc.desc, tc.err, err))
		})
	}

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.ModelID, got.ModelID)
	assert.Equal(t, p.Plans, got.Plans)
	assert.Equal(t, p.ServerConfig, got.ServerConfig)
	assert.Equal(t, p.ClientConfig, got.ClientConfig)

	byName, err := repo.GetByName(ctx, p.Name, p.Version)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	_, err = repo.Get(ctx, invalidID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	_, err = repo.GetByName(ctx, p.Name, "9.9")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	p.Terminated = true
	require.NoError(t, repo.Update(ctx, p))
	got, err = repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Terminated)

	assert.ErrorIs(t, repo.Update(ctx, fl.Process{ID: invalidID}), pkgerrors.ErrNotFound)

	list, total, err := repo.List(ctx, 0, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, uint64(2))
	assert.GreaterOrEqual(t, len(list), 2)
}

func testCheckpoints(t *testing.T, repo storage.CheckpointRepository) {
	ctx := context.Background()
	modelID := uuid.NewString()

	_, err := repo.Latest(ctx, modelID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = repo.Save(ctx, "", []byte("x"))
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyKey)

	const n = 5
	for i := 1; i <= n; i++ {
		cp, err := repo.Save(ctx, modelID, []byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), cp.Number)
		assert.True(t, cp.Latest)
	}

	all, total, err := repo.List(ctx, modelID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), total)
	require.Len(t, all, n)

	latestCount := 0
	for i, cp := range all {
		assert.Equal(t, uint64(i+1), cp.Number, "checkpoints are numbered 1..n")
		assert.Equal(t, []byte{byte(i + 1)}, cp.Payload, "payloads are immutable")
		if cp.Latest {
			latestCount++
		}
	}
	assert.Equal(t, 1, latestCount, "exactly one latest checkpoint")

	latest, err := repo.Latest(ctx, modelID)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), latest.Number)

	second, err := repo.Get(ctx, modelID, 2)
	require.NoError(t, err)
	assert.False(t, second.Latest)

	_, err = repo.Get(ctx, modelID, n+1)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	paged, total, err := repo.List(ctx, modelID, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), total)
	require.Len(t, paged, 2)
	assert.Equal(t, uint64(4), paged[0].Number)

	other, err := repo.Save(ctx, uuid.NewString(), []byte("other"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), other.Number, "numbering is per model")
}

func testCycles(t *testing.T, repo storage.CycleRepository) {
	ctx := context.Background()
	modelID := uuid.NewString()

	first := Cycle(modelID, 1)
	second := Cycle(modelID, 2)

	cases := []struct {
		desc  string
		cycle fl.Cycle
		err   error
	}{
		{desc: "create first cycle", cycle: first, err: nil},
		{desc: "create successor", cycle: second, err: nil},
		{desc: "create duplicate sequence", cycle: Cycle(modelID, 2), err: pkgerrors.ErrConflict},
		{desc: "same sequence for another model", cycle: Cycle(uuid.NewString(), 1), err: nil},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := repo.Create(ctx, tc.cycle)
			assert.ErrorIs(t, err, tc.err, fmt.Sprintf("%s: expected error %v, got %v", tc.desc, tc.err, err))
		})
	}

	latest, err := repo.Latest(ctx, modelID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = repo.Latest(ctx, invalidID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	first.Status = fl.CycleClosed
	first.CheckpointNumber = 2
	require.NoError(t, repo.Update(ctx, first))

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.CycleClosed, got.Status)
	assert.Equal(t, uint64(2), got.CheckpointNumber)
	assert.Equal(t, uint64(1), got.Sequence)

	_, err = repo.Get(ctx, invalidID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	open, err := repo.ListByStatus(ctx, fl.CycleOpen, fl.CycleAveraging)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, c := range open {
		ids[c.ID] = true
	}
	assert.True(t, ids[second.ID])
	assert.False(t, ids[first.ID])
}

func testWorkers(t *testing.T, repo storage.WorkerRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	w := fl.Worker{ID: uuid.NewString(), Name: "worker", CreatedAt: now, UpdatedAt: now}

	require.NoError(t, repo.Create(ctx, w))
	assert.ErrorIs(t, repo.Create(ctx, w), pkgerrors.ErrEntityExists)

	w.Ping, w.AvgDownload, w.AvgUpload = 10, 5000, 3000
	require.NoError(t, repo.Update(ctx, w))

	got, err := repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, got.AvgDownload)
	assert.Equal(t, 3000.0, got.AvgUpload)

	_, err = repo.Get(ctx, invalidID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, fl.Worker{ID: invalidID}), pkgerrors.ErrNotFound)

	_, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, uint64(1))
}

func testWorkerCycles(t *testing.T, cycles storage.CycleRepository, repo storage.WorkerCycleRepository) {
	ctx := context.Background()
	c := Cycle(uuid.NewString(), 1)
	require.NoError(t, cycles.Create(ctx, c))

	wc := fl.WorkerCycle{
		WorkerID:   uuid.NewString(),
		CycleID:    c.ID,
		RequestKey: uuid.NewString(),
		JoinedAt:   time.Now().UTC(),
	}

	cases := []struct {
		desc string
		wc   fl.WorkerCycle
		err  error
	}{
		{desc: "bind worker", wc: wc, err: nil},
		{
			desc: "bind worker twice",
			wc: func() fl.WorkerCycle {
				dup := wc
				dup.RequestKey = uuid.NewString()
				return dup
			}(),
			err: pkgerrors.ErrEntityExists,
		},
		{
			desc: "bind without request key",
			wc:   fl.WorkerCycle{WorkerID: uuid.NewString(), CycleID: c.ID},
			err:  pkgerrors.ErrEmptyKey,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := repo.Create(ctx, tc.wc)
			assert.ErrorIs(t, err, tc.err, fmt.Sprintf("%s: expected error %v, got %v", tc.desc, tc.err, err))
		})
	}

	got, err := repo.GetByKey(ctx, wc.RequestKey)
	require.NoError(t, err)
	assert.Equal(t, wc.WorkerID, got.WorkerID)
	assert.False(t, got.Completed())

	byPair, err := repo.Get(ctx, wc.WorkerID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, wc.RequestKey, byPair.RequestKey)

	consumed, err := repo.Consume(ctx, wc.RequestKey, []byte("diff"), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, consumed.Completed())
	assert.Equal(t, []byte("diff"), consumed.Diff)

	_, err = repo.Consume(ctx, wc.RequestKey, []byte("again"), time.Now().UTC())
	assert.ErrorIs(t, err, pkgerrors.ErrKeyConsumed, "a request key authorizes one report")

	_, err = repo.Consume(ctx, invalidID, []byte("diff"), time.Now().UTC())
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = repo.GetByKey(ctx, invalidID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	other := fl.WorkerCycle{WorkerID: uuid.NewString(), CycleID: c.ID, RequestKey: uuid.NewString(), JoinedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, other))

	list, err := repo.ListByCycle(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	stored, err := repo.GetByKey(ctx, wc.RequestKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("diff"), stored.Diff, "failed reports leave the stored diff untouched")
}

func testParticipation(t *testing.T, repo storage.ParticipationRepository) {
	ctx := context.Background()
	rec := fl.ParticipationRecord{WorkerID: uuid.NewString(), ModelID: uuid.NewString(), Version: "1.0", LastSequence: 5}

	_, err := repo.Get(ctx, rec.WorkerID, rec.ModelID, rec.Version)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, rec))
	got, err := repo.Get(ctx, rec.WorkerID, rec.ModelID, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	rec.LastSequence = 9
	require.NoError(t, repo.Upsert(ctx, rec))
	got, err = repo.Get(ctx, rec.WorkerID, rec.ModelID, rec.Version)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.LastSequence)

	_, err = repo.Get(ctx, rec.WorkerID, rec.ModelID, "2.0")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, rec.WorkerID, rec.ModelID, rec.Version))
	_, err = repo.Get(ctx, rec.WorkerID, rec.ModelID, rec.Version)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	assert.NoError(t, repo.Delete(ctx, rec.WorkerID, rec.ModelID, rec.Version), "deleting a missing record is a no-op")
}
