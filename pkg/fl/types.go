package fl

import (
	"context"
	"time"
)

type CycleStatus string

const (
	CycleOpen      CycleStatus = "open"
	CycleAveraging CycleStatus = "averaging"
	CycleClosed    CycleStatus = "closed"
)

const (
	PoolRandom  = "random"
	PoolIterate = "iterate"
)

// Params is a model parameter set: one flattened slice per tensor.
type Params [][]float64

// ServerConfig controls how a hosted process runs its cycles.
// Durations are expressed in seconds.
type ServerConfig struct {
	MaxWorkers          uint64  `json:"max_workers"                      toml:"max_workers"`
	MinWorkers          uint64  `json:"min_workers"                      toml:"min_workers"`
	PoolSelection       string  `json:"pool_selection"                   toml:"pool_selection"`
	NumCycles           uint64  `json:"num_cycles"                       toml:"num_cycles"`
	CooldownCycles      uint64  `json:"do_not_reuse_workers_until_cycle" toml:"do_not_reuse_workers_until_cycle"`
	CycleLength         uint64  `json:"cycle_length"                     toml:"cycle_length"`
	MinUploadSpeed      float64 `json:"minimum_upload_speed"             toml:"minimum_upload_speed"`
	MinDownloadSpeed    float64 `json:"minimum_download_speed"           toml:"minimum_download_speed"`
	ExpectedFailureRate float64 `json:"expected_failure_rate"            toml:"expected_failure_rate"`
	Confidence          float64 `json:"confidence"                       toml:"confidence"`
	SearchTolerance     float64 `json:"search_tolerance"                 toml:"search_tolerance"`
	MinCycleTimeLeft    uint64  `json:"minimum_cycle_time_left"          toml:"minimum_cycle_time_left"`
	PriorRequestRate    float64 `json:"prior_request_rate"               toml:"prior_request_rate"`
}

const (
	DefaultCycleLength         = 8 * 60 * 60
	DefaultExpectedFailureRate = 0.2
	DefaultConfidence          = 0.95
	DefaultSearchTolerance     = 0.01
)

// WithDefaults fills zero-valued tunables. MaxWorkers has no default.
func (c ServerConfig) WithDefaults() ServerConfig {
	if c.MinWorkers == 0 {
		c.MinWorkers = 1
	}
	if c.PoolSelection == "" {
		c.PoolSelection = PoolRandom
	}
	if c.CycleLength == 0 {
		c.CycleLength = DefaultCycleLength
	}
	if c.ExpectedFailureRate == 0 {
		c.ExpectedFailureRate = DefaultExpectedFailureRate
	}
	if c.Confidence == 0 {
		c.Confidence = DefaultConfidence
	}
	if c.SearchTolerance == 0 {
		c.SearchTolerance = DefaultSearchTolerance
	}

	return c
}

func (c ServerConfig) Validate() error {
	switch {
	case c.MaxWorkers == 0:
		return ErrInvalidConfig
	case c.MinWorkers > c.MaxWorkers:
		return ErrInvalidConfig
	case c.PoolSelection != PoolRandom && c.PoolSelection != PoolIterate:
		return ErrInvalidConfig
	case c.ExpectedFailureRate < 0, c.Confidence <= 0, c.Confidence >= 1:
		return ErrInvalidConfig
	}

	return nil
}

func (c ServerConfig) CycleDuration() time.Duration {
	return time.Duration(c.CycleLength) * time.Second
}

type Process struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	ModelID       string            `json:"model_id"`
	Plans         map[string][]byte `json:"plans,omitempty"`
	AveragingPlan []byte            `json:"averaging_plan,omitempty"`
	ClientConfig  map[string]any    `json:"client_config,omitempty"`
	ServerConfig  ServerConfig      `json:"server_config"`
	Terminated    bool              `json:"terminated"`
	CreatedAt     time.Time         `json:"created_at"`
}

type Checkpoint struct {
	ModelID   string    `json:"model_id"`
	Number    uint64    `json:"number"`
	Payload   []byte    `json:"payload,omitempty"`
	Latest    bool      `json:"latest"`
	CreatedAt time.Time `json:"created_at"`
}

type CheckpointPage struct {
	Offset      uint64       `json:"offset"`
	Limit       uint64       `json:"limit"`
	Total       uint64       `json:"total"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

type Cycle struct {
	ID         string      `json:"id"`
	ProcessID  string      `json:"process_id"`
	ModelID    string      `json:"model_id"`
	Version    uint64      `json:"version"`
	Sequence   uint64      `json:"sequence"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	MaxWorkers uint64      `json:"max_workers"`
	MinWorkers uint64      `json:"min_workers"`
	Status     CycleStatus `json:"status"`
	// CheckpointNumber is the checkpoint produced when the cycle closed.
	CheckpointNumber uint64 `json:"checkpoint_number,omitempty"`
	Error            string `json:"error,omitempty"`
}

func (c Cycle) Expired(now time.Time) bool {
	return !now.Before(c.End)
}

type Worker struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Ping             float64   `json:"ping"`
	AvgDownload      float64   `json:"avg_download"`
	AvgUpload        float64   `json:"avg_upload"`
	FormatPreference string    `json:"format_preference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type WorkerCycle struct {
	WorkerID    string    `json:"worker_id"`
	CycleID     string    `json:"cycle_id"`
	RequestKey  string    `json:"request_key"`
	JoinedAt    time.Time `json:"joined_at"`
	Diff        []byte    `json:"diff,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func (wc WorkerCycle) Completed() bool {
	return !wc.CompletedAt.IsZero()
}

type ParticipationRecord struct {
	WorkerID     string `json:"worker_id"`
	ModelID      string `json:"model_id"`
	Version      string `json:"version"`
	LastSequence uint64 `json:"last_sequence"`
}

type Codec interface {
	Encode(p Params) ([]byte, error)
	Decode(data []byte) (Params, error)
}

// Averager folds the diffs of a cycle into the base parameters and
// returns the parameters of the next checkpoint.
type Averager interface {
	Average(ctx context.Context, base Params, diffs []Params) (Params, error)
}
