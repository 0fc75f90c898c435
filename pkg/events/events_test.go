package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/fedcycle/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestTopics(t *testing.T) {
	tb := events.NewTopicBuilder("domain", "channel")

	assert.Equal(t, "m/domain/c/channel", tb.BaseTopic())
	assert.Equal(t, "m/domain/c/channel/fl/models/mnist/cycles/opened", tb.CycleTopic("mnist", events.CycleOpened))
	assert.Equal(t, "m/domain/c/channel/fl/models/+/cycles/+", tb.CycleTopics())
	assert.Equal(t, "m/domain/c/channel/fl/workers/metrics", tb.WorkerMetricsTopic())
}

func TestFromCycle(t *testing.T) {
	c := fl.Cycle{ID: "c1", ModelID: "m1", Sequence: 3, Version: 2, Error: "not enough diffs"}

	cases := []struct {
		desc     string
		typ      events.Type
		severity events.Severity
	}{
		{desc: "opened is informational", typ: events.CycleOpened, severity: events.SeverityInfo},
		{desc: "closed is informational", typ: events.CycleClosed, severity: events.SeverityInfo},
		{desc: "failed is fatal", typ: events.CycleFailed, severity: events.SeverityFatal},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ev := events.FromCycle(tc.typ, c)
			assert.Equal(t, tc.severity, ev.Severity)
			assert.Equal(t, c.ID, ev.CycleID)
			assert.Equal(t, c.Sequence, ev.Sequence)
			assert.Equal(t, c.Error, ev.Error)
		})
	}
}

func TestMQTTEmitter(t *testing.T) {
	tb := events.NewTopicBuilder("d", "c")
	ev := events.FromCycle(events.CycleClosed, fl.Cycle{ID: "c1", ModelID: "m1"})

	cases := []struct {
		desc string
		err  error
	}{
		{desc: "publish succeeds", err: nil},
		{desc: "publish fails", err: errors.New("broker down")},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ps := new(mocks.MockPubSub)
			ps.On("Publish", mock.Anything, tb.CycleTopic("m1", events.CycleClosed), ev).Return(tc.err)

			err := events.NewMQTTEmitter(ps, tb).Emit(context.Background(), ev)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
			ps.AssertExpectations(t)
		})
	}

	assert.NoError(t, events.NewNoop().Emit(context.Background(), ev))
}
