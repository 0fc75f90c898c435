package sdk

import (
	"encoding/json"
	"net/http"
	"time"
)

const processesEndpoint = "/processes"

type ServerConfig struct {
	MaxWorkers          uint64  `json:"max_workers"`
	MinWorkers          uint64  `json:"min_workers,omitempty"`
	PoolSelection       string  `json:"pool_selection,omitempty"`
	NumCycles           uint64  `json:"num_cycles,omitempty"`
	CooldownCycles      uint64  `json:"do_not_reuse_workers_until_cycle,omitempty"`
	CycleLength         uint64  `json:"cycle_length,omitempty"`
	MinUploadSpeed      float64 `json:"minimum_upload_speed,omitempty"`
	MinDownloadSpeed    float64 `json:"minimum_download_speed,omitempty"`
	ExpectedFailureRate float64 `json:"expected_failure_rate,omitempty"`
	Confidence          float64 `json:"confidence,omitempty"`
	SearchTolerance     float64 `json:"search_tolerance,omitempty"`
	MinCycleTimeLeft    uint64  `json:"minimum_cycle_time_left,omitempty"`
	PriorRequestRate    float64 `json:"prior_request_rate,omitempty"`
}

type HostProcessRequest struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Model         []byte            `json:"model"`
	Plans         map[string][]byte `json:"plans,omitempty"`
	AveragingPlan []byte            `json:"averaging_plan,omitempty"`
	ClientConfig  map[string]any    `json:"client_config,omitempty"`
	ServerConfig  ServerConfig      `json:"server_config"`
}

type Process struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	ModelID      string         `json:"model_id"`
	ClientConfig map[string]any `json:"client_config,omitempty"`
	ServerConfig ServerConfig   `json:"server_config"`
	Terminated   bool           `json:"terminated"`
	CreatedAt    time.Time      `json:"created_at"`
}

type HostedProcess struct {
	Process Process `json:"process"`
	Cycle   Cycle   `json:"cycle"`
}

func (sdk *flSDK) HostProcess(req HostProcessRequest) (HostedProcess, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return HostedProcess{}, err
	}

	var hp HostedProcess
	err = sdk.doJSON(request{
		method:   http.MethodPost,
		url:      sdk.coordinatorURL + processesEndpoint,
		data:     data,
		expected: http.StatusCreated,
	}, &hp)

	return hp, err
}

func (sdk *flSDK) GetProcessCycle(processID string) (Cycle, error) {
	var c Cycle
	err := sdk.doJSON(request{
		method:   http.MethodGet,
		url:      sdk.coordinatorURL + processesEndpoint + "/" + processID + "/cycle",
		expected: http.StatusOK,
	}, &c)

	return c, err
}
