package api_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/coordinator/api"
	"github.com/absmach/fedcycle/coordinator/mocks"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const contentType = "application/json"

type testRequest struct {
	method      string
	url         string
	contentType string
	token       string
	body        string
}

func (tr testRequest) do(t *testing.T, client *http.Client) *http.Response {
	t.Helper()

	var body io.Reader
	if tr.body != "" {
		body = strings.NewReader(tr.body)
	}
	req, err := http.NewRequest(tr.method, tr.url, body)
	require.NoError(t, err)
	if tr.contentType != "" {
		req.Header.Set("Content-Type", tr.contentType)
	}
	if tr.token != "" {
		req.Header.Set("Authorization", "Bearer "+tr.token)
	}

	res, err := client.Do(req)
	require.NoError(t, err)

	return res
}

func newServer(svc coordinator.Service) *httptest.Server {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	return httptest.NewServer(api.MakeHandler(svc, logger, "test"))
}

func TestRequestJoin(t *testing.T) {
	svc := new(mocks.MockService)
	ts := newServer(svc)
	defer ts.Close()

	accepted := coordinator.JoinResponse{
		Status:     coordinator.StatusAccepted,
		RequestKey: "key",
		CycleID:    "cycle",
		Version:    1,
		Plans:      []string{"training_plan"},
		Timeout:    60,
	}
	svc.On("RequestJoin", mock.Anything, coordinator.JoinRequest{WorkerID: "w1", ModelName: "mnist", ModelVersion: "1.0", Metrics: coordinator.Metrics{Ping: 8}}).Return(accepted, nil)
	svc.On("RequestJoin", mock.Anything, mock.MatchedBy(func(req coordinator.JoinRequest) bool { return req.WorkerID == "ghost" })).Return(coordinator.JoinResponse{}, pkgerrors.ErrUnauthorized)
	svc.On("RequestJoin", mock.Anything, mock.MatchedBy(func(req coordinator.JoinRequest) bool { return req.ModelName == "unknown" })).Return(coordinator.JoinResponse{}, fmt.Errorf("%w: process", pkgerrors.ErrNotFound))

	cases := []struct {
		desc        string
		body        string
		contentType string
		status      int
		res         coordinator.JoinResponse
	}{
		{
			desc:        "accepted join",
			body:        `{"worker_id":"w1","model":"mnist","version":"1.0","ping":8}`,
			contentType: contentType,
			status:      http.StatusOK,
			res:         accepted,
		},
		{
			desc:        "unknown worker",
			body:        `{"worker_id":"ghost","model":"mnist"}`,
			contentType: contentType,
			status:      http.StatusUnauthorized,
		},
		{
			desc:        "unknown model",
			body:        `{"worker_id":"w1","model":"unknown"}`,
			contentType: contentType,
			status:      http.StatusNotFound,
		},
		{
			desc:        "missing worker id",
			body:        `{"model":"mnist"}`,
			contentType: contentType,
			status:      http.StatusBadRequest,
		},
		{
			desc:        "negative metrics",
			body:        `{"worker_id":"w1","model":"mnist","ping":-1}`,
			contentType: contentType,
			status:      http.StatusBadRequest,
		},
		{
			desc:        "wrong content type",
			body:        `{"worker_id":"w1","model":"mnist"}`,
			contentType: "text/plain",
			status:      http.StatusBadRequest,
		},
		{
			desc:        "malformed body",
			body:        `{"worker_id":`,
			contentType: contentType,
			status:      http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/cycles/request",
				contentType: tc.contentType,
				body:        tc.body,
			}.do(t, ts.Client())
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				return
			}
			var got coordinator.JoinResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
			assert.Equal(t, tc.res, got)
		})
	}
}

func TestReport(t *testing.T) {
	svc := new(mocks.MockService)
	ts := newServer(svc)
	defer ts.Close()

	diff := []byte{1, 2, 3}
	svc.On("SubmitDiff", mock.Anything, "w1", "key", diff).Return(nil)
	svc.On("SubmitDiff", mock.Anything, "w1", "used", diff).Return(pkgerrors.ErrUnauthorized)
	svc.On("SubmitDiff", mock.Anything, "w1", "shape", diff).Return(pkgerrors.ErrMalformedDiff)

	cases := []struct {
		desc   string
		body   string
		status int
	}{
		{desc: "accepted report", body: `{"worker_id":"w1","request_key":"key","diff":"AQID"}`, status: http.StatusOK},
		{desc: "consumed key", body: `{"worker_id":"w1","request_key":"used","diff":"AQID"}`, status: http.StatusUnauthorized},
		{desc: "malformed diff", body: `{"worker_id":"w1","request_key":"shape","diff":"AQID"}`, status: http.StatusBadRequest},
		{desc: "missing diff", body: `{"worker_id":"w1","request_key":"key"}`, status: http.StatusBadRequest},
		{desc: "missing key", body: `{"worker_id":"w1","diff":"AQID"}`, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/cycles/report",
				contentType: contentType,
				body:        tc.body,
			}.do(t, ts.Client())
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
		})
	}
}

func TestDownloads(t *testing.T) {
	svc := new(mocks.MockService)
	ts := newServer(svc)
	defer ts.Close()

	cp := fl.Checkpoint{ModelID: "model", Number: 3, Payload: []byte{9, 8, 7}, Latest: true}
	svc.On("DownloadCheckpoint", mock.Anything, "w1", "cycle", "key").Return(cp, nil)
	svc.On("DownloadCheckpoint", mock.Anything, "w1", "cycle", "bad").Return(fl.Checkpoint{}, pkgerrors.ErrUnauthorized)
	svc.On("DownloadPlan", mock.Anything, "w1", "cycle", "key", "training_plan").Return([]byte("plan"), nil)
	svc.On("DownloadPlan", mock.Anything, "w1", "cycle", "key", "missing").Return(nil, pkgerrors.ErrNotFound)
	svc.On("Validate", mock.Anything, "w1", "cycle", "key").Return(true)

	cases := []struct {
		desc   string
		url    string
		status int
		body   []byte
		header map[string]string
	}{
		{
			desc:   "checkpoint",
			url:    "/cycles/cycle/checkpoint?worker_id=w1&request_key=key",
			status: http.StatusOK,
			body:   cp.Payload,
			header: map[string]string{"X-Checkpoint-Number": "3", "X-Model-ID": "model", "Content-Type": "application/octet-stream"},
		},
		{
			desc:   "checkpoint with bad key",
			url:    "/cycles/cycle/checkpoint?worker_id=w1&request_key=bad",
			status: http.StatusUnauthorized,
		},
		{
			desc:   "checkpoint without key",
			url:    "/cycles/cycle/checkpoint?worker_id=w1",
			status: http.StatusBadRequest,
		},
		{
			desc:   "plan",
			url:    "/cycles/cycle/plans/training_plan?worker_id=w1&request_key=key",
			status: http.StatusOK,
			body:   []byte("plan"),
		},
		{
			desc:   "unknown plan",
			url:    "/cycles/cycle/plans/missing?worker_id=w1&request_key=key",
			status: http.StatusNotFound,
		},
		{
			desc:   "validate",
			url:    "/cycles/cycle/validate?worker_id=w1&request_key=key",
			status: http.StatusOK,
			body:   []byte("{\"valid\":true}\n"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := testRequest{method: http.MethodGet, url: ts.URL + tc.url}.do(t, ts.Client())
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			for k, v := range tc.header {
				assert.Equal(t, v, res.Header.Get(k), k)
			}
			if tc.body != nil {
				body, err := io.ReadAll(res.Body)
				require.NoError(t, err)
				assert.Equal(t, tc.body, body)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc := new(mocks.MockService)
	ts := newServer(svc)
	defer ts.Close()

	worker := fl.Worker{ID: "w1", Name: "calm_turing"}
	svc.On("Authenticate", mock.Anything, coordinator.AuthRequest{Token: "header", ModelName: "mnist"}).Return(coordinator.AuthResponse{Worker: worker}, nil)
	svc.On("Authenticate", mock.Anything, coordinator.AuthRequest{Token: "body"}).Return(coordinator.AuthResponse{Worker: worker, RequiresSpeedTest: true}, nil)
	svc.On("Authenticate", mock.Anything, coordinator.AuthRequest{Token: "expired"}).Return(coordinator.AuthResponse{}, pkgerrors.ErrUnauthorized)

	cases := []struct {
		desc   string
		req    testRequest
		status int
		speed  bool
	}{
		{
			desc:   "bearer token",
			req:    testRequest{token: "header", contentType: contentType, body: `{"model_name":"mnist"}`},
			status: http.StatusOK,
		},
		{
			desc:   "body token",
			req:    testRequest{contentType: contentType, body: `{"auth_token":"body"}`},
			status: http.StatusOK,
			speed:  true,
		},
		{
			desc:   "rejected token",
			req:    testRequest{token: "expired"},
			status: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			tc.req.method = http.MethodPost
			tc.req.url = ts.URL + "/workers/authenticate"
			res := tc.req.do(t, ts.Client())
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				return
			}
			var got coordinator.AuthResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
			assert.Equal(t, worker.ID, got.Worker.ID)
			assert.Equal(t, tc.speed, got.RequiresSpeedTest)
		})
	}
}

func TestCycles(t *testing.T) {
	svc := new(mocks.MockService)
	ts := newServer(svc)
	defer ts.Close()

	open := fl.Cycle{ID: "c2", ModelID: "model", Sequence: 2, Version: 2, Status: fl.CycleOpen}
	svc.On("GetCycle", mock.Anything, "model").Return(open, nil)
	svc.On("GetCycle", mock.Anything, "idle").Return(fl.Cycle{}, pkgerrors.ErrNotFound)
	svc.On("GetProcessCycle", mock.Anything, "process").Return(open, nil)
	svc.On("CreateCycle", mock.Anything, "model", uint64(0), uint64(5), uint64(2), 30*time.Second).Return(open, nil)
	svc.On("CreateCycle", mock.Anything, "busy", uint64(0), uint64(0), uint64(0), time.Duration(0)).Return(fl.Cycle{}, pkgerrors.ErrConflict)
	svc.On("ListCheckpoints", mock.Anything, "model", uint64(1), uint64(10)).Return(fl.CheckpointPage{Offset: 1, Limit: 10, Total: 2}, nil)

	cases := []struct {
		desc   string
		req    testRequest
		status int
	}{
		{desc: "get cycle", req: testRequest{method: http.MethodGet, url: "/models/model/cycle"}, status: http.StatusOK},
		{desc: "get missing cycle", req: testRequest{method: http.MethodGet, url: "/models/idle/cycle"}, status: http.StatusNotFound},
		{desc: "get process cycle", req: testRequest{method: http.MethodGet, url: "/processes/process/cycle"}, status: http.StatusOK},
		{
			desc:   "create cycle",
			req:    testRequest{method: http.MethodPost, url: "/models/model/cycles", contentType: contentType, body: `{"max_workers":5,"min_workers":2,"cycle_length":30}`},
			status: http.StatusCreated,
		},
		{desc: "create cycle while open", req: testRequest{method: http.MethodPost, url: "/models/busy/cycles"}, status: http.StatusConflict},
		{desc: "list checkpoints", req: testRequest{method: http.MethodGet, url: "/models/model/checkpoints?offset=1&limit=10"}, status: http.StatusOK},
		{desc: "list checkpoints over limit", req: testRequest{method: http.MethodGet, url: "/models/model/checkpoints?limit=1000"}, status: http.StatusBadRequest},
		{desc: "list checkpoints bad offset", req: testRequest{method: http.MethodGet, url: "/models/model/checkpoints?offset=abc"}, status: http.StatusBadRequest},
		{desc: "health", req: testRequest{method: http.MethodGet, url: "/health"}, status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			tc.req.url = ts.URL + tc.req.url
			res := tc.req.do(t, ts.Client())
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
		})
	}
}

func TestHostProcess(t *testing.T) {
	svc := new(mocks.MockService)
	ts := newServer(svc)
	defer ts.Close()

	svc.On("HostProcess", mock.Anything, mock.MatchedBy(func(req coordinator.HostRequest) bool {
		return req.Name == "mnist" && req.ServerConfig.MaxWorkers == 10
	})).Return(fl.Process{ID: "p1", Name: "mnist", Plans: map[string][]byte{"training_plan": {1}}}, fl.Cycle{ID: "c1", Sequence: 1}, nil)

	cases := []struct {
		desc   string
		body   string
		status int
	}{
		{
			desc:   "host process",
			body:   `{"name":"mnist","version":"1.0","model":"AQID","plans":{"training_plan":"AQ=="},"server_config":{"max_workers":10}}`,
			status: http.StatusCreated,
		},
		{desc: "missing model", body: `{"name":"mnist","version":"1.0"}`, status: http.StatusBadRequest},
		{desc: "missing name", body: `{"version":"1.0","model":"AQID"}`, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/processes",
				contentType: contentType,
				body:        tc.body,
			}.do(t, ts.Client())
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusCreated {
				return
			}
			assert.Equal(t, "/processes/p1", res.Header.Get("Location"))

			var got struct {
				Process fl.Process `json:"process"`
				Cycle   fl.Cycle   `json:"cycle"`
			}
			require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
			assert.Nil(t, got.Process.Plans)
			assert.Equal(t, uint64(1), got.Cycle.Sequence)
		})
	}
}
