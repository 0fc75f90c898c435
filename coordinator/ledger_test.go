package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCooldown(t *testing.T) {
	l := newLedger(storage.NewMemoryRepositories().Participation)
	ctx := context.Background()

	ok, err := l.IsCooledDown(ctx, "w", "m", "1.0", 1, 4)
	require.NoError(t, err)
	assert.True(t, ok, "workers without history are cooled down")

	_, err = l.Record(ctx, "w", "m", "1.0", 5)
	require.NoError(t, err)

	cases := []struct {
		desc    string
		version string
		current uint64
		want    bool
	}{
		{desc: "same cycle", version: "1.0", current: 5, want: false},
		{desc: "one cycle before the boundary", version: "1.0", current: 8, want: false},
		{desc: "at the boundary", version: "1.0", current: 9, want: true},
		{desc: "after the boundary", version: "1.0", current: 12, want: true},
		{desc: "other process version", version: "2.0", current: 6, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ok, err := l.IsCooledDown(ctx, "w", "m", tc.version, tc.current, 4)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestLedgerRecordUndo(t *testing.T) {
	repo := storage.NewMemoryRepositories().Participation
	l := newLedger(repo)
	ctx := context.Background()

	undo, err := l.Record(ctx, "w", "m", "1.0", 2)
	require.NoError(t, err)
	require.NoError(t, undo(ctx))
	_, err = repo.Get(ctx, "w", "m", "1.0")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound, "undo removes a first record")

	_, err = l.Record(ctx, "w", "m", "1.0", 2)
	require.NoError(t, err)
	undo, err = l.Record(ctx, "w", "m", "1.0", 6)
	require.NoError(t, err)
	require.NoError(t, undo(ctx))

	rec, err := repo.Get(ctx, "w", "m", "1.0")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.LastSequence, "undo restores the previous sequence")
}

func TestLedgerStripes(t *testing.T) {
	l := newLedger(storage.NewMemoryRepositories().Participation)
	ctx := context.Background()

	const attempts = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("w", "m")
			defer unlock()

			ok, err := l.IsCooledDown(ctx, "w", "m", "1.0", 3, 1)
			assert.NoError(t, err)
			if !ok {
				return
			}
			_, err = l.Record(ctx, "w", "m", "1.0", 3)
			assert.NoError(t, err)

			mu.Lock()
			joined++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, joined, "check and record are atomic per worker and model")
}

func TestSample(t *testing.T) {
	diffs := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}

	cases := []struct {
		desc string
		n    uint64
		want int
	}{
		{desc: "under capacity", n: 10, want: 4},
		{desc: "at capacity", n: 4, want: 4},
		{desc: "over capacity", n: 2, want: 2},
		{desc: "unbounded", n: 0, want: 4},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got := sample(diffs, tc.n)
			assert.Len(t, got, tc.want)

			seen := make(map[string]bool)
			for _, d := range got {
				assert.False(t, seen[string(d)], "diffs are sampled without replacement")
				seen[string(d)] = true
			}
		})
	}
}

func TestRetryTransient(t *testing.T) {
	other := errors.New("other")

	cases := []struct {
		desc     string
		failures []error
		calls    int
		err      error
	}{
		{desc: "success", failures: []error{nil}, calls: 1, err: nil},
		{desc: "non transient error", failures: []error{other}, calls: 1, err: other},
		{desc: "transient then success", failures: []error{pkgerrors.ErrTransient, nil}, calls: 2, err: nil},
		{desc: "transient twice", failures: []error{pkgerrors.ErrTransient, pkgerrors.ErrTransient}, calls: 2, err: pkgerrors.ErrConflict},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			calls := 0
			err := retryTransient(func() error {
				err := tc.failures[calls]
				calls++

				return err
			})
			assert.ErrorIs(t, err, tc.err, fmt.Sprintf("%s: expected error %v, got %v", tc.desc, tc.err, err))
			assert.Equal(t, tc.calls, calls)
		})
	}
}
