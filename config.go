package fedcycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/pelletier/go-toml"
)

var errMissingModelPath = errors.New("missing model path")

type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Processes   []ProcessConfig   `toml:"processes"`
}

// CoordinatorConfig holds the MQTT identity of the coordinator.
type CoordinatorConfig struct {
	ClientID  string `toml:"client_id"`
	ClientKey string `toml:"client_key"`
	DomainID  string `toml:"domain_id"`
	ChannelID string `toml:"channel_id"`
}

// ProcessConfig describes an FL process hosted at startup. Artifact paths
// are relative to the config file.
type ProcessConfig struct {
	Name          string            `toml:"name"`
	Version       string            `toml:"version"`
	Model         string            `toml:"model"`
	Plans         map[string]string `toml:"plans"`
	AveragingPlan string            `toml:"averaging_plan"`
	ClientConfig  map[string]any    `toml:"client_config"`
	ServerConfig  fl.ServerConfig   `toml:"server_config"`
}

// Artifacts holds the file contents a ProcessConfig points to.
type Artifacts struct {
	Model         []byte
	Plans         map[string][]byte
	AveragingPlan []byte
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range cfg.Processes {
		cfg.Processes[i].resolve(dir)
	}

	return &cfg, nil
}

func (p *ProcessConfig) resolve(dir string) {
	abs := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}

		return filepath.Join(dir, path)
	}

	p.Model = abs(p.Model)
	p.AveragingPlan = abs(p.AveragingPlan)
	for name, path := range p.Plans {
		p.Plans[name] = abs(path)
	}
}

func (p ProcessConfig) ReadArtifacts() (Artifacts, error) {
	if p.Model == "" {
		return Artifacts{}, fmt.Errorf("process %s: %w", p.Name, errMissingModelPath)
	}

	model, err := os.ReadFile(p.Model)
	if err != nil {
		return Artifacts{}, fmt.Errorf("error reading model of %s: %w", p.Name, err)
	}

	a := Artifacts{
		Model: model,
		Plans: make(map[string][]byte, len(p.Plans)),
	}
	for name, path := range p.Plans {
		plan, err := os.ReadFile(path)
		if err != nil {
			return Artifacts{}, fmt.Errorf("error reading plan %s of %s: %w", name, p.Name, err)
		}
		a.Plans[name] = plan
	}
	if p.AveragingPlan != "" {
		if a.AveragingPlan, err = os.ReadFile(p.AveragingPlan); err != nil {
			return Artifacts{}, fmt.Errorf("error reading averaging plan of %s: %w", p.Name, err)
		}
	}

	return a, nil
}
