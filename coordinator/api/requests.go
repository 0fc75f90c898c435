package api

import (
	"errors"

	"github.com/absmach/fedcycle/pkg/api"
	"github.com/absmach/fedcycle/pkg/fl"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var (
	errMissingModel      = errors.New("missing model")
	errMissingVersion    = errors.New("missing version")
	errLimitSize         = errors.New("limit exceeds maximum")
	errMissingRequestKey = errors.New("missing request key")
	errMissingDiff       = errors.New("missing diff")
	errMissingPlan       = errors.New("missing plan name")
	errNegativeMetric    = errors.New("metrics must not be negative")
)

type hostProcessReq struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Model         []byte            `json:"model"`
	Plans         map[string][]byte `json:"plans,omitempty"`
	AveragingPlan []byte            `json:"averaging_plan,omitempty"`
	ClientConfig  map[string]any    `json:"client_config,omitempty"`
	ServerConfig  fl.ServerConfig   `json:"server_config"`
}

func (req *hostProcessReq) validate() error {
	if req.Name == "" {
		return apiutil.ErrMissingName
	}
	if req.Version == "" {
		return errMissingVersion
	}
	if len(req.Model) == 0 {
		return errMissingModel
	}

	return nil
}

type authReq struct {
	Token        string `json:"auth_token"`
	ModelName    string `json:"model_name,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
}

// The token is optional: an anonymous coordinator accepts an empty one.
func (req *authReq) validate() error {
	return nil
}

type metricsReq struct {
	workerID string
	Ping     float64 `json:"ping"`
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

func (req *metricsReq) validate() error {
	if req.workerID == "" {
		return apiutil.ErrMissingID
	}
	if req.Ping < 0 || req.Download < 0 || req.Upload < 0 {
		return errNegativeMetric
	}

	return nil
}

type joinReq struct {
	WorkerID     string  `json:"worker_id"`
	ModelName    string  `json:"model"`
	ModelVersion string  `json:"version,omitempty"`
	Ping         float64 `json:"ping,omitempty"`
	Download     float64 `json:"download,omitempty"`
	Upload       float64 `json:"upload,omitempty"`
}

func (req *joinReq) validate() error {
	if req.WorkerID == "" {
		return apiutil.ErrMissingID
	}
	if req.ModelName == "" {
		return apiutil.ErrMissingName
	}
	if req.Ping < 0 || req.Download < 0 || req.Upload < 0 {
		return errNegativeMetric
	}

	return nil
}

type downloadReq struct {
	workerID   string
	cycleID    string
	requestKey string
	plan       string
}

func (req *downloadReq) validate() error {
	if req.workerID == "" || req.cycleID == "" {
		return apiutil.ErrMissingID
	}
	if req.requestKey == "" {
		return errMissingRequestKey
	}

	return nil
}

type planReq struct {
	downloadReq
}

func (req *planReq) validate() error {
	if err := req.downloadReq.validate(); err != nil {
		return err
	}
	if req.plan == "" {
		return errMissingPlan
	}

	return nil
}

type reportReq struct {
	WorkerID   string `json:"worker_id"`
	RequestKey string `json:"request_key"`
	Diff       []byte `json:"diff"`
}

func (req *reportReq) validate() error {
	if req.WorkerID == "" {
		return apiutil.ErrMissingID
	}
	if req.RequestKey == "" {
		return errMissingRequestKey
	}
	if len(req.Diff) == 0 {
		return errMissingDiff
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type createCycleReq struct {
	modelID    string
	Version    uint64 `json:"version,omitempty"`
	MaxWorkers uint64 `json:"max_workers,omitempty"`
	MinWorkers uint64 `json:"min_workers,omitempty"`
	// Duration is the cycle length in seconds.
	Duration uint64 `json:"cycle_length,omitempty"`
}

func (req *createCycleReq) validate() error {
	if req.modelID == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listCheckpointsReq struct {
	modelID       string
	offset, limit uint64
}

func (req *listCheckpointsReq) validate() error {
	if req.modelID == "" {
		return apiutil.ErrMissingID
	}
	if req.limit > api.MaxLimitSize {
		return errLimitSize
	}

	return nil
}
