package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	cyclesEndpoint = "/cycles"
	modelsEndpoint = "/models"
)

type Cycle struct {
	ID               string    `json:"id"`
	ProcessID        string    `json:"process_id"`
	ModelID          string    `json:"model_id"`
	Version          uint64    `json:"version"`
	Sequence         uint64    `json:"sequence"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	MaxWorkers       uint64    `json:"max_workers"`
	MinWorkers       uint64    `json:"min_workers"`
	Status           string    `json:"status"`
	CheckpointNumber uint64    `json:"checkpoint_number,omitempty"`
	Error            string    `json:"error,omitempty"`
}

type CycleRequest struct {
	Version    uint64 `json:"version,omitempty"`
	MaxWorkers uint64 `json:"max_workers,omitempty"`
	MinWorkers uint64 `json:"min_workers,omitempty"`
	// CycleLength is in seconds.
	CycleLength uint64 `json:"cycle_length,omitempty"`
}

type JoinRequest struct {
	WorkerID string  `json:"worker_id"`
	Model    string  `json:"model"`
	Version  string  `json:"version,omitempty"`
	Ping     float64 `json:"ping,omitempty"`
	Download float64 `json:"download,omitempty"`
	Upload   float64 `json:"upload,omitempty"`
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
	Timeout      uint64         `json:"timeout,omitempty"`
}

type Checkpoint struct {
	ModelID   string    `json:"model_id"`
	Number    uint64    `json:"number"`
	Payload   []byte    `json:"payload,omitempty"`
	Latest    bool      `json:"latest"`
	CreatedAt time.Time `json:"created_at"`
}

type CheckpointPage struct {
	PageMetadata
	Total       uint64       `json:"total"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

func (sdk *flSDK) RequestJoin(req JoinRequest) (JoinResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return JoinResponse{}, err
	}

	var res JoinResponse
	err = sdk.doJSON(request{
		method:   http.MethodPost,
		url:      sdk.coordinatorURL + cyclesEndpoint + "/request",
		data:     data,
		expected: http.StatusOK,
	}, &res)

	return res, err
}

func (sdk *flSDK) keyURL(workerID, cycleID, requestKey, path string) string {
	q := url.Values{}
	q.Set("worker_id", workerID)
	q.Set("request_key", requestKey)

	return sdk.coordinatorURL + cyclesEndpoint + "/" + cycleID + path + "?" + q.Encode()
}

func (sdk *flSDK) ValidateKey(workerID, cycleID, requestKey string) (bool, error) {
	var res struct {
		Valid bool `json:"valid"`
	}
	err := sdk.doJSON(request{
		method:   http.MethodGet,
		url:      sdk.keyURL(workerID, cycleID, requestKey, "/validate"),
		expected: http.StatusOK,
	}, &res)

	return res.Valid, err
}

func (sdk *flSDK) DownloadCheckpoint(workerID, cycleID, requestKey string) (Checkpoint, error) {
	header, body, err := sdk.processRequest(request{
		method:   http.MethodGet,
		url:      sdk.keyURL(workerID, cycleID, requestKey, "/checkpoint"),
		expected: http.StatusOK,
	})
	if err != nil {
		return Checkpoint{}, err
	}

	number, err := strconv.ParseUint(header.Get("X-Checkpoint-Number"), 10, 64)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("invalid checkpoint number: %w", err)
	}

	return Checkpoint{
		ModelID: header.Get("X-Model-ID"),
		Number:  number,
		Payload: body,
	}, nil
}

func (sdk *flSDK) DownloadPlan(workerID, cycleID, requestKey, name string) ([]byte, error) {
	_, body, err := sdk.processRequest(request{
		method:   http.MethodGet,
		url:      sdk.keyURL(workerID, cycleID, requestKey, "/plans/"+url.PathEscape(name)),
		expected: http.StatusOK,
	})

	return body, err
}

func (sdk *flSDK) Report(workerID, requestKey string, diff []byte) error {
	data, err := json.Marshal(map[string]any{
		"worker_id":   workerID,
		"request_key": requestKey,
		"diff":        diff,
	})
	if err != nil {
		return err
	}

	return sdk.doJSON(request{
		method:   http.MethodPost,
		url:      sdk.coordinatorURL + cyclesEndpoint + "/report",
		data:     data,
		expected: http.StatusOK,
	}, nil)
}

func (sdk *flSDK) GetCycle(modelID string) (Cycle, error) {
	var c Cycle
	err := sdk.doJSON(request{
		method:   http.MethodGet,
		url:      sdk.coordinatorURL + modelsEndpoint + "/" + modelID + "/cycle",
		expected: http.StatusOK,
	}, &c)

	return c, err
}

func (sdk *flSDK) CreateCycle(modelID string, req CycleRequest) (Cycle, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Cycle{}, err
	}

	var c Cycle
	err = sdk.doJSON(request{
		method:   http.MethodPost,
		url:      sdk.coordinatorURL + modelsEndpoint + "/" + modelID + "/cycles",
		data:     data,
		expected: http.StatusCreated,
	}, &c)

	return c, err
}

func (sdk *flSDK) ListCheckpoints(modelID string, offset, limit uint64) (CheckpointPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	reqURL := sdk.coordinatorURL + modelsEndpoint + "/" + modelID + "/checkpoints"
	if len(queries) > 0 {
		reqURL += "?" + strings.Join(queries, "&")
	}

	var page CheckpointPage
	err := sdk.doJSON(request{
		method:   http.MethodGet,
		url:      reqURL,
		expected: http.StatusOK,
	}, &page)

	return page, err
}
