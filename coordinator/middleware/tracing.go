package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) HostProcess(ctx context.Context, req coordinator.HostRequest) (fl.Process, fl.Cycle, error) {
	ctx, span := tm.tracer.Start(ctx, "host-process", trace.WithAttributes(
		attribute.String("name", req.Name),
		attribute.String("version", req.Version),
	))
	defer span.End()

	return tm.svc.HostProcess(ctx, req)
}

func (tm *tracing) Authenticate(ctx context.Context, req coordinator.AuthRequest) (coordinator.AuthResponse, error) {
	ctx, span := tm.tracer.Start(ctx, "authenticate", trace.WithAttributes(
		attribute.String("model_name", req.ModelName),
	))
	defer span.End()

	return tm.svc.Authenticate(ctx, req)
}

func (tm *tracing) ReportMetrics(ctx context.Context, workerID string, m coordinator.Metrics) (fl.Worker, error) {
	ctx, span := tm.tracer.Start(ctx, "report-metrics", trace.WithAttributes(
		attribute.String("worker_id", workerID),
	))
	defer span.End()

	return tm.svc.ReportMetrics(ctx, workerID, m)
}

func (tm *tracing) RequestJoin(ctx context.Context, req coordinator.JoinRequest) (coordinator.JoinResponse, error) {
	ctx, span := tm.tracer.Start(ctx, "request-join", trace.WithAttributes(
		attribute.String("worker_id", req.WorkerID),
		attribute.String("model_name", req.ModelName),
		attribute.String("model_version", req.ModelVersion),
	))
	defer span.End()

	return tm.svc.RequestJoin(ctx, req)
}

func (tm *tracing) Validate(ctx context.Context, workerID, cycleID, requestKey string) bool {
	ctx, span := tm.tracer.Start(ctx, "validate", trace.WithAttributes(
		attribute.String("worker_id", workerID),
		attribute.String("cycle_id", cycleID),
	))
	defer span.End()

	return tm.svc.Validate(ctx, workerID, cycleID, requestKey)
}

func (tm *tracing) DownloadCheckpoint(ctx context.Context, workerID, cycleID, requestKey string) (fl.Checkpoint, error) {
	ctx, span := tm.tracer.Start(ctx, "download-checkpoint", trace.WithAttributes(
		attribute.String("worker_id", workerID),
		attribute.String("cycle_id", cycleID),
	))
	defer span.End()

	return tm.svc.DownloadCheckpoint(ctx, workerID, cycleID, requestKey)
}

func (tm *tracing) DownloadPlan(ctx context.Context, workerID, cycleID, requestKey, name string) ([]byte, error) {
	ctx, span := tm.tracer.Start(ctx, "download-plan", trace.WithAttributes(
		attribute.String("worker_id", workerID),
		attribute.String("cycle_id", cycleID),
		attribute.String("plan", name),
	))
	defer span.End()

	return tm.svc.DownloadPlan(ctx, workerID, cycleID, requestKey, name)
}

func (tm *tracing) SubmitDiff(ctx context.Context, workerID, requestKey string, diff []byte) error {
	ctx, span := tm.tracer.Start(ctx, "submit-diff", trace.WithAttributes(
		attribute.String("worker_id", workerID),
		attribute.Int("size", len(diff)),
	))
	defer span.End()

	return tm.svc.SubmitDiff(ctx, workerID, requestKey, diff)
}

func (tm *tracing) GetCycle(ctx context.Context, modelID string) (fl.Cycle, error) {
	ctx, span := tm.tracer.Start(ctx, "get-cycle", trace.WithAttributes(
		attribute.String("model_id", modelID),
	))
	defer span.End()

	return tm.svc.GetCycle(ctx, modelID)
}

func (tm *tracing) GetProcessCycle(ctx context.Context, processID string) (fl.Cycle, error) {
	ctx, span := tm.tracer.Start(ctx, "get-process-cycle", trace.WithAttributes(
		attribute.String("process_id", processID),
	))
	defer span.End()

	return tm.svc.GetProcessCycle(ctx, processID)
}

func (tm *tracing) CreateCycle(ctx context.Context, modelID string, version, maxWorkers, minWorkers uint64, duration time.Duration) (fl.Cycle, error) {
	ctx, span := tm.tracer.Start(ctx, "create-cycle", trace.WithAttributes(
		attribute.String("model_id", modelID),
		attribute.Int64("version", int64(version)),
		attribute.Int64("max_workers", int64(maxWorkers)),
		attribute.Int64("min_workers", int64(minWorkers)),
		attribute.String("duration", duration.String()),
	))
	defer span.End()

	return tm.svc.CreateCycle(ctx, modelID, version, maxWorkers, minWorkers, duration)
}

func (tm *tracing) ListCheckpoints(ctx context.Context, modelID string, offset, limit uint64) (fl.CheckpointPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-checkpoints", trace.WithAttributes(
		attribute.String("model_id", modelID),
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListCheckpoints(ctx, modelID, offset, limit)
}

func (tm *tracing) Sweep(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "sweep")
	defer span.End()

	return tm.svc.Sweep(ctx)
}

func (tm *tracing) Recover(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "recover")
	defer span.End()

	return tm.svc.Recover(ctx)
}

func (tm *tracing) Shutdown(ctx context.Context) error {
	return tm.svc.Shutdown(ctx)
}
