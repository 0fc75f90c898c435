package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/mqtt"
)

var errInvalidWorkerID = errors.New("invalid worker_id")

// MetricsMessage is what workers publish on the worker metrics topic.
type MetricsMessage struct {
	WorkerID string  `json:"worker_id"`
	Ping     float64 `json:"ping"`
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// Subscribe listens for worker network measurements published on the bus
// and feeds them into the worker registry.
func Subscribe(ctx context.Context, topics *events.TopicBuilder, pubsub mqtt.PubSub, svc Service, logger *slog.Logger) error {
	return pubsub.Subscribe(ctx, topics.WorkerMetricsTopic(), Handle(topics, svc, logger))
}

func Handle(topics *events.TopicBuilder, svc Service, logger *slog.Logger) mqtt.Handler {
	return func(ctx context.Context, topic string, payload []byte) error {
		if topic != topics.WorkerMetricsTopic() {
			return nil
		}

		var msg MetricsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
		}
		if msg.WorkerID == "" {
			return errInvalidWorkerID
		}

		m := Metrics{
			Ping:     nonNegative(msg.Ping),
			Download: nonNegative(msg.Download),
			Upload:   nonNegative(msg.Upload),
		}
		if _, err := svc.ReportMetrics(ctx, msg.WorkerID, m); err != nil {
			return err
		}

		logger.DebugContext(ctx, "updated worker metrics", slog.String("worker_id", msg.WorkerID))

		return nil
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}

	return v
}
