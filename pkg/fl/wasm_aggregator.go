package fl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

const defWasmTimeout = time.Minute

var _ Averager = (*WasmAverager)(nil)

// WasmAverager runs a WASI averaging plan. The plan reads
// {"base": Params, "diffs": [Params]} as JSON on stdin and writes the
// resulting Params as JSON on stdout.
type WasmAverager struct {
	binary  []byte
	timeout time.Duration
}

type wasmInput struct {
	Base  Params   `json:"base"`
	Diffs []Params `json:"diffs"`
}

func NewWasmAverager(binary []byte, timeout time.Duration) (*WasmAverager, error) {
	if len(binary) == 0 {
		return nil, ErrEmptyPayload
	}
	if timeout <= 0 {
		timeout = defWasmTimeout
	}

	return &WasmAverager{
		binary:  binary,
		timeout: timeout,
	}, nil
}

// ValidateWasm compiles binary without running it.
func ValidateWasm(ctx context.Context, binary []byte) error {
	if len(binary) == 0 {
		return ErrEmptyPayload
	}

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		return fmt.Errorf("failed to compile averaging plan: %w", err)
	}

	return compiled.Close(ctx)
}

func (w *WasmAverager) Average(ctx context.Context, base Params, diffs []Params) (Params, error) {
	if len(diffs) == 0 {
		return nil, ErrNoUpdates
	}

	in, err := json.Marshal(wasmInput{Base: base, Diffs: diffs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal averaging input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	defer r.Close(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("averaging-plan").
		WithArgs("averaging-plan").
		WithStdin(bytes.NewReader(in)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := r.InstantiateWithConfig(ctx, w.binary, cfg)
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("averaging plan failed: %w: %s", err, stderr.String())
		}
	}
	if mod != nil {
		defer mod.Close(ctx)
	}

	var out Params
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal averaged params: %w", err)
	}
	if !SameShape(base, out) {
		return nil, ErrShapeMismatch
	}

	return out, nil
}
