package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) HostProcess(ctx context.Context, req coordinator.HostRequest) (fl.Process, fl.Cycle, error) {
	defer mm.observe("host-process", time.Now())

	return mm.svc.HostProcess(ctx, req)
}

func (mm *metricsMiddleware) Authenticate(ctx context.Context, req coordinator.AuthRequest) (coordinator.AuthResponse, error) {
	defer mm.observe("authenticate", time.Now())

	return mm.svc.Authenticate(ctx, req)
}

func (mm *metricsMiddleware) ReportMetrics(ctx context.Context, workerID string, m coordinator.Metrics) (fl.Worker, error) {
	defer mm.observe("report-metrics", time.Now())

	return mm.svc.ReportMetrics(ctx, workerID, m)
}

func (mm *metricsMiddleware) RequestJoin(ctx context.Context, req coordinator.JoinRequest) (coordinator.JoinResponse, error) {
	defer mm.observe("request-join", time.Now())

	return mm.svc.RequestJoin(ctx, req)
}

func (mm *metricsMiddleware) Validate(ctx context.Context, workerID, cycleID, requestKey string) bool {
	defer mm.observe("validate", time.Now())

	return mm.svc.Validate(ctx, workerID, cycleID, requestKey)
}

func (mm *metricsMiddleware) DownloadCheckpoint(ctx context.Context, workerID, cycleID, requestKey string) (fl.Checkpoint, error) {
	defer mm.observe("download-checkpoint", time.Now())

	return mm.svc.DownloadCheckpoint(ctx, workerID, cycleID, requestKey)
}

func (mm *metricsMiddleware) DownloadPlan(ctx context.Context, workerID, cycleID, requestKey, name string) ([]byte, error) {
	defer mm.observe("download-plan", time.Now())

	return mm.svc.DownloadPlan(ctx, workerID, cycleID, requestKey, name)
}

func (mm *metricsMiddleware) SubmitDiff(ctx context.Context, workerID, requestKey string, diff []byte) error {
	defer mm.observe("submit-diff", time.Now())

	return mm.svc.SubmitDiff(ctx, workerID, requestKey, diff)
}

func (mm *metricsMiddleware) GetCycle(ctx context.Context, modelID string) (fl.Cycle, error) {
	defer mm.observe("get-cycle", time.Now())

	return mm.svc.GetCycle(ctx, modelID)
}

func (mm *metricsMiddleware) GetProcessCycle(ctx context.Context, processID string) (fl.Cycle, error) {
	defer mm.observe("get-process-cycle", time.Now())

	return mm.svc.GetProcessCycle(ctx, processID)
}

func (mm *metricsMiddleware) CreateCycle(ctx context.Context, modelID string, version, maxWorkers, minWorkers uint64, duration time.Duration) (fl.Cycle, error) {
	defer mm.observe("create-cycle", time.Now())

	return mm.svc.CreateCycle(ctx, modelID, version, maxWorkers, minWorkers, duration)
}

func (mm *metricsMiddleware) ListCheckpoints(ctx context.Context, modelID string, offset, limit uint64) (fl.CheckpointPage, error) {
	defer mm.observe("list-checkpoints", time.Now())

	return mm.svc.ListCheckpoints(ctx, modelID, offset, limit)
}

func (mm *metricsMiddleware) Sweep(ctx context.Context) error {
	defer mm.observe("sweep", time.Now())

	return mm.svc.Sweep(ctx)
}

func (mm *metricsMiddleware) Recover(ctx context.Context) error {
	defer mm.observe("recover", time.Now())

	return mm.svc.Recover(ctx)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	return mm.svc.Shutdown(ctx)
}
