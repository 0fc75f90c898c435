package events

import (
	"context"
	"fmt"

	"github.com/absmach/fedcycle/pkg/mqtt"
)

type mqttEmitter struct {
	pubsub mqtt.PubSub
	topics *TopicBuilder
}

func NewMQTTEmitter(pubsub mqtt.PubSub, topics *TopicBuilder) Emitter {
	return &mqttEmitter{
		pubsub: pubsub,
		topics: topics,
	}
}

func (e *mqttEmitter) Emit(ctx context.Context, ev Event) error {
	if err := e.pubsub.Publish(ctx, e.topics.CycleTopic(ev.ModelID, ev.Type), ev); err != nil {
		return fmt.Errorf("failed to publish %s event for cycle %s: %w", ev.Type, ev.CycleID, err)
	}

	return nil
}
