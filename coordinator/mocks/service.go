package mocks

import (
	"context"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) HostProcess(ctx context.Context, req coordinator.HostRequest) (fl.Process, fl.Cycle, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(fl.Process), args.Get(1).(fl.Cycle), args.Error(2)
}

func (m *MockService) Authenticate(ctx context.Context, req coordinator.AuthRequest) (coordinator.AuthResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(coordinator.AuthResponse), args.Error(1)
}

func (m *MockService) ReportMetrics(ctx context.Context, workerID string, metrics coordinator.Metrics) (fl.Worker, error) {
	args := m.Called(ctx, workerID, metrics)
	return args.Get(0).(fl.Worker), args.Error(1)
}

func (m *MockService) RequestJoin(ctx context.Context, req coordinator.JoinRequest) (coordinator.JoinResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(coordinator.JoinResponse), args.Error(1)
}

func (m *MockService) Validate(ctx context.Context, workerID, cycleID, requestKey string) bool {
	args := m.Called(ctx, workerID, cycleID, requestKey)
	return args.Bool(0)
}

func (m *MockService) DownloadCheckpoint(ctx context.Context, workerID, cycleID, requestKey string) (fl.Checkpoint, error) {
	args := m.Called(ctx, workerID, cycleID, requestKey)
	return args.Get(0).(fl.Checkpoint), args.Error(1)
}

func (m *MockService) DownloadPlan(ctx context.Context, workerID, cycleID, requestKey, name string) ([]byte, error) {
	args := m.Called(ctx, workerID, cycleID, requestKey, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockService) SubmitDiff(ctx context.Context, workerID, requestKey string, diff []byte) error {
	args := m.Called(ctx, workerID, requestKey, diff)
	return args.Error(0)
}

func (m *MockService) GetCycle(ctx context.Context, modelID string) (fl.Cycle, error) {
	args := m.Called(ctx, modelID)
	return args.Get(0).(fl.Cycle), args.Error(1)
}

func (m *MockService) GetProcessCycle(ctx context.Context, processID string) (fl.Cycle, error) {
	args := m.Called(ctx, processID)
	return args.Get(0).(fl.Cycle), args.Error(1)
}

func (m *MockService) CreateCycle(ctx context.Context, modelID string, version, maxWorkers, minWorkers uint64, duration time.Duration) (fl.Cycle, error) {
	args := m.Called(ctx, modelID, version, maxWorkers, minWorkers, duration)
	return args.Get(0).(fl.Cycle), args.Error(1)
}

func (m *MockService) ListCheckpoints(ctx context.Context, modelID string, offset, limit uint64) (fl.CheckpointPage, error) {
	args := m.Called(ctx, modelID, offset, limit)
	return args.Get(0).(fl.CheckpointPage), args.Error(1)
}

func (m *MockService) Sweep(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockService) Recover(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
