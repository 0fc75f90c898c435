package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const CTJSON string = "application/json"

var ErrUnexpectedResponse = errors.New("unexpected response code")

type PageMetadata struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type SDK interface {
	// HostProcess registers an FL process and opens its first cycle.
	//
	// example:
	//  hosted, _ := sdk.HostProcess(sdk.HostProcessRequest{
	//    Name:    "mnist",
	//    Version: "1.0",
	//    Model:   model,
	//    ServerConfig: sdk.ServerConfig{MaxWorkers: 10},
	//  })
	//  fmt.Println(hosted.Cycle.ID)
	HostProcess(req HostProcessRequest) (HostedProcess, error)

	// Authenticate exchanges a worker token for a worker id.
	//
	// example:
	//  auth, _ := sdk.Authenticate(token, "mnist", "1.0")
	//  fmt.Println(auth.Worker.ID)
	Authenticate(token, modelName, modelVersion string) (Auth, error)

	// ReportMetrics refreshes the network measurements of a worker.
	ReportMetrics(workerID string, m Metrics) (Worker, error)

	// RequestJoin asks to join the open cycle of a model.
	//
	// example:
	//  res, _ := sdk.RequestJoin(sdk.JoinRequest{WorkerID: id, Model: "mnist"})
	//  if res.Status == "accepted" {
	//    fmt.Println(res.RequestKey)
	//  }
	RequestJoin(req JoinRequest) (JoinResponse, error)

	// ValidateKey reports whether a request key may still act on a cycle.
	ValidateKey(workerID, cycleID, requestKey string) (bool, error)

	// DownloadCheckpoint fetches the checkpoint a cycle trains on.
	DownloadCheckpoint(workerID, cycleID, requestKey string) (Checkpoint, error)

	// DownloadPlan fetches a named client plan.
	DownloadPlan(workerID, cycleID, requestKey, name string) ([]byte, error)

	// Report submits a diff and consumes the request key.
	//
	// example:
	//  err := sdk.Report(workerID, res.RequestKey, diff)
	Report(workerID, requestKey string, diff []byte) error

	// GetCycle gets the current cycle of a model.
	GetCycle(modelID string) (Cycle, error)

	// GetProcessCycle gets the current cycle of a process.
	GetProcessCycle(processID string) (Cycle, error)

	// CreateCycle opens a cycle for a model with no open cycle.
	CreateCycle(modelID string, req CycleRequest) (Cycle, error)

	// ListCheckpoints lists checkpoint metadata of a model.
	//
	// example:
	//  page, _ := sdk.ListCheckpoints(modelID, 0, 10)
	//  fmt.Println(page.Total)
	ListCheckpoints(modelID string, offset, limit uint64) (CheckpointPage, error)
}

type flSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type request struct {
	method   string
	url      string
	data     []byte
	token    string
	expected int
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *flSDK) processRequest(r request) (http.Header, []byte, error) {
	var body io.Reader
	if r.data != nil {
		body = bytes.NewReader(r.data)
	}
	req, err := http.NewRequest(r.method, r.url, body)
	if err != nil {
		return nil, []byte{}, err
	}

	if r.data != nil {
		req.Header.Add("Content-Type", CTJSON)
	}
	if r.token != "" {
		req.Header.Add("Authorization", "Bearer "+r.token)
	}

	resp, err := sdk.client.Do(req)
	if err != nil {
		return nil, []byte{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, []byte{}, err
	}

	if resp.StatusCode != r.expected {
		var e errorRes
		if err := json.Unmarshal(data, &e); err == nil && e.Err != "" {
			return nil, []byte{}, fmt.Errorf("%w: %d: %s", ErrUnexpectedResponse, resp.StatusCode, e.Err)
		}

		return nil, []byte{}, fmt.Errorf("%w: %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	return resp.Header, data, nil
}

func (sdk *flSDK) doJSON(r request, res any) error {
	_, body, err := sdk.processRequest(r)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	return json.Unmarshal(body, res)
}
