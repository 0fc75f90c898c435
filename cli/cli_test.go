package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/fedcycle/cli"
	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/coordinator/api"
	"github.com/absmach/fedcycle/pkg/auth"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/sdk"
	"github.com/absmach/fedcycle/pkg/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()

	color.NoColor = true
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := coordinator.NewService(storage.NewMemoryRepositories(), auth.NewAnonymous(), fl.NewCBORCodec(false), events.NewNoop(), coordinator.Config{}, logger)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test"))
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	cli.SetSDK(sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL}))
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	return stdout.String(), stderr.String()
}

func TestHostAndViewCycle(t *testing.T) {
	setup(t)

	dir := t.TempDir()
	model, err := fl.NewCBORCodec(false).Encode(fl.Params{{0, 0}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.ckpt"), model, 0o600))
	config := `
[[processes]]
name = "mnist"
version = "1.0"
model = "model.ckpt"

[processes.server_config]
max_workers = 4
min_workers = 2
cycle_length = 60
`
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))

	out, errOut := run(t, cli.NewProcessesCmd(), "host", path)
	require.Empty(t, errOut)

	var hosted sdk.HostedProcess
	require.NoError(t, json.Unmarshal(bytes.TrimSpace([]byte(out)), &hosted))
	assert.Equal(t, "mnist", hosted.Process.Name)
	assert.Equal(t, uint64(1), hosted.Cycle.Sequence)

	out, errOut = run(t, cli.NewCyclesCmd(), "view", hosted.Process.ModelID)
	require.Empty(t, errOut)

	var c sdk.Cycle
	require.NoError(t, json.Unmarshal(bytes.TrimSpace([]byte(out)), &c))
	assert.Equal(t, hosted.Cycle.ID, c.ID)

	_, errOut = run(t, cli.NewCyclesCmd(), "create", hosted.Process.ModelID)
	assert.Contains(t, errOut, "409")
}

func TestUsage(t *testing.T) {
	setup(t)

	cases := []struct {
		desc string
		cmd  *cobra.Command
		args []string
	}{
		{desc: "cycles view", cmd: cli.NewCyclesCmd(), args: []string{"view"}},
		{desc: "processes host", cmd: cli.NewProcessesCmd(), args: []string{"host"}},
		{desc: "workers join", cmd: cli.NewWorkersCmd(), args: []string{"join", "worker"}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			out, _ := run(t, tc.cmd, tc.args...)
			assert.Contains(t, out, "usage:")
		})
	}
}
