package coordinator

import (
	"context"
	"time"

	"github.com/absmach/fedcycle/pkg/fl"
)

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

type Service interface {
	// HostProcess registers an FL process with its initial model and opens
	// its first cycle.
	HostProcess(ctx context.Context, req HostRequest) (fl.Process, fl.Cycle, error)
	// Authenticate checks the worker token and registers a new worker.
	Authenticate(ctx context.Context, req AuthRequest) (AuthResponse, error)
	// ReportMetrics refreshes the network measurements of a worker.
	ReportMetrics(ctx context.Context, workerID string, m Metrics) (fl.Worker, error)

	// RequestJoin runs admission for the open cycle of a model. A declined
	// worker gets a rejected response, not an error.
	RequestJoin(ctx context.Context, req JoinRequest) (JoinResponse, error)
	// Validate reports whether requestKey binds workerID to the open cycle
	// cycleID. It fails closed.
	Validate(ctx context.Context, workerID, cycleID, requestKey string) bool
	DownloadCheckpoint(ctx context.Context, workerID, cycleID, requestKey string) (fl.Checkpoint, error)
	DownloadPlan(ctx context.Context, workerID, cycleID, requestKey, name string) ([]byte, error)
	// SubmitDiff stores the diff of a worker and consumes its request key.
	// It returns once the diff is durable; averaging runs in the background.
	SubmitDiff(ctx context.Context, workerID, requestKey string, diff []byte) error

	GetCycle(ctx context.Context, modelID string) (fl.Cycle, error)
	GetProcessCycle(ctx context.Context, processID string) (fl.Cycle, error)
	// CreateCycle opens a cycle for a model that has none open. Zero values
	// fall back to the server config of the process and the latest checkpoint.
	CreateCycle(ctx context.Context, modelID string, version, maxWorkers, minWorkers uint64, duration time.Duration) (fl.Cycle, error)
	ListCheckpoints(ctx context.Context, modelID string, offset, limit uint64) (fl.CheckpointPage, error)

	// Sweep retires open cycles whose deadline passed.
	Sweep(ctx context.Context) error
	// Recover reloads open and averaging cycles from storage.
	Recover(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type HostRequest struct {
	Name          string
	Version       string
	Model         []byte
	Plans         map[string][]byte
	AveragingPlan []byte
	ClientConfig  map[string]any
	ServerConfig  fl.ServerConfig
}

type AuthRequest struct {
	Token        string
	ModelName    string
	ModelVersion string
}

type AuthResponse struct {
	Worker            fl.Worker `json:"worker"`
	RequiresSpeedTest bool      `json:"requires_speed_test"`
}

// Metrics are network measurements reported by a worker. Zero values keep
// the previously known measurement.
type Metrics struct {
	Ping     float64 `json:"ping"`
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

type JoinRequest struct {
	WorkerID     string
	ModelName    string
	ModelVersion string
	Metrics
}

type JoinResponse struct {
	Status       string         `json:"status"`
	Reason       string         `json:"reason,omitempty"`
	RequestKey   string         `json:"request_key,omitempty"`
	ProcessID    string         `json:"process_id,omitempty"`
	ModelID      string         `json:"model_id,omitempty"`
	CycleID      string         `json:"cycle_id,omitempty"`
	Version      uint64         `json:"version,omitempty"`
	Plans        []string       `json:"plans,omitempty"`
	ClientConfig map[string]any `json:"client_config,omitempty"`
	// Timeout is the number of seconds left in the cycle.
	Timeout uint64 `json:"timeout,omitempty"`
}
