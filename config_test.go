package fedcycle_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/fedcycle"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bootstrap = `
[coordinator]
client_id = "coordinator"
client_key = "secret"
domain_id = "domain"
channel_id = "channel"

[[processes]]
name = "mnist"
version = "1.0"
model = "mnist.ckpt"

[processes.plans]
training_plan = "plans/train.wasm"

[processes.client_config]
batch_size = 64
lr = 0.005

[processes.server_config]
max_workers = 10
min_workers = 5
pool_selection = "iterate"
num_cycles = 5
do_not_reuse_workers_until_cycle = 4
cycle_length = 28800
`

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, []byte(bootstrap))
	writeFile(t, filepath.Join(dir, "mnist.ckpt"), []byte{1, 2})
	writeFile(t, filepath.Join(dir, "plans", "train.wasm"), []byte{3})

	cfg, err := fedcycle.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, fedcycle.CoordinatorConfig{
		ClientID:  "coordinator",
		ClientKey: "secret",
		DomainID:  "domain",
		ChannelID: "channel",
	}, cfg.Coordinator)
	require.Len(t, cfg.Processes, 1)

	p := cfg.Processes[0]
	assert.Equal(t, "mnist", p.Name)
	assert.Equal(t, filepath.Join(dir, "mnist.ckpt"), p.Model)
	assert.Equal(t, fl.ServerConfig{
		MaxWorkers:     10,
		MinWorkers:     5,
		PoolSelection:  fl.PoolIterate,
		NumCycles:      5,
		CooldownCycles: 4,
		CycleLength:    28800,
	}, p.ServerConfig)
	assert.EqualValues(t, 64, p.ClientConfig["batch_size"])

	a, err := p.ReadArtifacts()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, a.Model)
	assert.Equal(t, map[string][]byte{"training_plan": {3}}, a.Plans)
	assert.Nil(t, a.AveragingPlan)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		desc    string
		content string
	}{
		{desc: "missing file"},
		{desc: "invalid toml", content: "[coordinator"},
		{desc: "wrong type", content: "[[processes]]\nname = 5\n"},
	}

	for i, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			path := filepath.Join(dir, tc.desc+".toml")
			if tc.content != "" {
				writeFile(t, path, []byte(tc.content))
			}
			_, err := fedcycle.LoadConfig(path)
			assert.Error(t, err, "case %d", i)
		})
	}
}

func TestReadArtifactsMissingModel(t *testing.T) {
	_, err := fedcycle.ProcessConfig{Name: "mnist"}.ReadArtifacts()
	assert.Error(t, err)

	_, err = fedcycle.ProcessConfig{Name: "mnist", Model: filepath.Join(t.TempDir(), "none")}.ReadArtifacts()
	assert.Error(t, err)
}
