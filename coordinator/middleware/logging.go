package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) HostProcess(ctx context.Context, req coordinator.HostRequest) (p fl.Process, c fl.Cycle, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("process",
				slog.String("name", req.Name),
				slog.String("version", req.Version),
				slog.String("id", p.ID),
				slog.String("model_id", p.ModelID),
			),
			slog.Group("cycle",
				slog.String("id", c.ID),
				slog.Uint64("sequence", c.Sequence),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Host process failed", args...)

			return
		}
		lm.logger.Info("Host process completed successfully", args...)
	}(time.Now())

	return lm.svc.HostProcess(ctx, req)
}

func (lm *loggingMiddleware) Authenticate(ctx context.Context, req coordinator.AuthRequest) (resp coordinator.AuthResponse, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("worker",
				slog.String("id", resp.Worker.ID),
				slog.String("name", resp.Worker.Name),
			),
			slog.String("model_name", req.ModelName),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Authenticate worker failed", args...)

			return
		}
		lm.logger.Info("Authenticate worker completed successfully", args...)
	}(time.Now())

	return lm.svc.Authenticate(ctx, req)
}

func (lm *loggingMiddleware) ReportMetrics(ctx context.Context, workerID string, m coordinator.Metrics) (w fl.Worker, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("worker",
				slog.String("id", workerID),
				slog.Float64("ping", m.Ping),
				slog.Float64("download", m.Download),
				slog.Float64("upload", m.Upload),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Report metrics failed", args...)

			return
		}
		lm.logger.Info("Report metrics completed successfully", args...)
	}(time.Now())

	return lm.svc.ReportMetrics(ctx, workerID, m)
}

func (lm *loggingMiddleware) RequestJoin(ctx context.Context, req coordinator.JoinRequest) (resp coordinator.JoinResponse, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("worker",
				slog.String("id", req.WorkerID),
			),
			slog.Group("model",
				slog.String("name", req.ModelName),
				slog.String("version", req.ModelVersion),
			),
			slog.Group("cycle",
				slog.String("id", resp.CycleID),
				slog.String("status", resp.Status),
				slog.String("reason", resp.Reason),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Request join failed", args...)

			return
		}
		lm.logger.Info("Request join completed successfully", args...)
	}(time.Now())

	return lm.svc.RequestJoin(ctx, req)
}

func (lm *loggingMiddleware) Validate(ctx context.Context, workerID, cycleID, requestKey string) (ok bool) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("worker_id", workerID),
			slog.String("cycle_id", cycleID),
			slog.Bool("valid", ok),
		}
		lm.logger.Debug("Validate request key completed", args...)
	}(time.Now())

	return lm.svc.Validate(ctx, workerID, cycleID, requestKey)
}

func (lm *loggingMiddleware) DownloadCheckpoint(ctx context.Context, workerID, cycleID, requestKey string) (cp fl.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("worker_id", workerID),
			slog.String("cycle_id", cycleID),
			slog.Group("checkpoint",
				slog.String("model_id", cp.ModelID),
				slog.Uint64("number", cp.Number),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Download checkpoint failed", args...)

			return
		}
		lm.logger.Info("Download checkpoint completed successfully", args...)
	}(time.Now())

	return lm.svc.DownloadCheckpoint(ctx, workerID, cycleID, requestKey)
}

func (lm *loggingMiddleware) DownloadPlan(ctx context.Context, workerID, cycleID, requestKey, name string) (plan []byte, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("worker_id", workerID),
			slog.String("cycle_id", cycleID),
			slog.String("plan", name),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Download plan failed", args...)

			return
		}
		lm.logger.Info("Download plan completed successfully", args...)
	}(time.Now())

	return lm.svc.DownloadPlan(ctx, workerID, cycleID, requestKey, name)
}

func (lm *loggingMiddleware) SubmitDiff(ctx context.Context, workerID, requestKey string, diff []byte) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("worker_id", workerID),
			slog.Int("size", len(diff)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit diff failed", args...)

			return
		}
		lm.logger.Info("Submit diff completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitDiff(ctx, workerID, requestKey, diff)
}

func (lm *loggingMiddleware) GetCycle(ctx context.Context, modelID string) (c fl.Cycle, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("model_id", modelID),
			slog.Group("cycle",
				slog.String("id", c.ID),
				slog.String("status", string(c.Status)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get cycle failed", args...)

			return
		}
		lm.logger.Info("Get cycle completed successfully", args...)
	}(time.Now())

	return lm.svc.GetCycle(ctx, modelID)
}

func (lm *loggingMiddleware) GetProcessCycle(ctx context.Context, processID string) (c fl.Cycle, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("process_id", processID),
			slog.Group("cycle",
				slog.String("id", c.ID),
				slog.String("status", string(c.Status)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get process cycle failed", args...)

			return
		}
		lm.logger.Info("Get process cycle completed successfully", args...)
	}(time.Now())

	return lm.svc.GetProcessCycle(ctx, processID)
}

func (lm *loggingMiddleware) CreateCycle(ctx context.Context, modelID string, version, maxWorkers, minWorkers uint64, duration time.Duration) (c fl.Cycle, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("model_id", modelID),
			slog.Group("cycle",
				slog.String("id", c.ID),
				slog.Uint64("sequence", c.Sequence),
				slog.Uint64("version", c.Version),
				slog.Uint64("max_workers", c.MaxWorkers),
				slog.Uint64("min_workers", c.MinWorkers),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Create cycle failed", args...)

			return
		}
		lm.logger.Info("Create cycle completed successfully", args...)
	}(time.Now())

	return lm.svc.CreateCycle(ctx, modelID, version, maxWorkers, minWorkers, duration)
}

func (lm *loggingMiddleware) ListCheckpoints(ctx context.Context, modelID string, offset, limit uint64) (page fl.CheckpointPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("model_id", modelID),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List checkpoints failed", args...)

			return
		}
		lm.logger.Info("List checkpoints completed successfully", args...)
	}(time.Now())

	return lm.svc.ListCheckpoints(ctx, modelID, offset, limit)
}

// Sweep runs on a ticker, so only failures are logged.
func (lm *loggingMiddleware) Sweep(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		if err != nil {
			lm.logger.Warn("Sweep cycles failed",
				slog.String("duration", time.Since(begin).String()),
				slog.Any("error", err),
			)
		}
	}(time.Now())

	return lm.svc.Sweep(ctx)
}

func (lm *loggingMiddleware) Recover(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Recover cycles failed", args...)

			return
		}
		lm.logger.Info("Recover cycles completed successfully", args...)
	}(time.Now())

	return lm.svc.Recover(ctx)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
