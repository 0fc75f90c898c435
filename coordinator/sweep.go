package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcycle/pkg/cron"
)

const defaultSweepInterval = 5 * time.Second

// Sweeper periodically retires expired cycles.
type Sweeper interface {
	Start(ctx context.Context) error
	Stop()
}

type sweeper struct {
	service  Service
	logger   *slog.Logger
	schedule *cron.Schedule
	stopChan chan struct{}
}

// NewSweeper runs Sweep on schedule. A nil schedule sweeps every five seconds.
func NewSweeper(service Service, schedule *cron.Schedule, logger *slog.Logger) Sweeper {
	if schedule == nil {
		schedule = cron.Every(defaultSweepInterval)
	}

	return &sweeper{
		service:  service,
		logger:   logger,
		schedule: schedule,
		stopChan: make(chan struct{}),
	}
}

func (s *sweeper) Start(ctx context.Context) error {
	now := time.Now()
	timer := time.NewTimer(s.schedule.Next(now).Sub(now))
	defer timer.Stop()

	s.logger.Info("cycle sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cycle sweeper stopping")

			return ctx.Err()
		case <-s.stopChan:
			s.logger.Info("cycle sweeper stopped")

			return nil
		case <-timer.C:
			if err := s.service.Sweep(ctx); err != nil {
				s.logger.Error("error sweeping expired cycles", slog.String("error", err.Error()))
			}
			now := time.Now()
			timer.Reset(s.schedule.Next(now).Sub(now))
		}
	}
}

func (s *sweeper) Stop() {
	close(s.stopChan)
}
