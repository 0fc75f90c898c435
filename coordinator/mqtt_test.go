package coordinator_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/absmach/fedcycle/coordinator"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/events"
	"github.com/absmach/fedcycle/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkerMetricsHandler(t *testing.T) {
	e := newEnv(t)
	workerID := e.worker(t)
	topics := events.NewTopicBuilder("domain", "channel")
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ps := new(mocks.MockPubSub)
	ps.On("Subscribe", mock.Anything, topics.WorkerMetricsTopic(), mock.Anything).Return(nil)
	require.NoError(t, coordinator.Subscribe(context.Background(), topics, ps, e.svc, logger))
	ps.AssertExpectations(t)

	handle := coordinator.Handle(topics, e.svc, logger)

	metrics := func(msg coordinator.MetricsMessage) []byte {
		data, err := json.Marshal(msg)
		require.NoError(t, err)

		return data
	}

	cases := []struct {
		desc    string
		topic   string
		payload []byte
		err     error
		fail    bool
	}{
		{
			desc:    "update metrics",
			topic:   topics.WorkerMetricsTopic(),
			payload: metrics(coordinator.MetricsMessage{WorkerID: workerID, Ping: 12, Download: 80, Upload: 40}),
		},
		{
			desc:    "ignore other topics",
			topic:   topics.CoordinatorStatusTopic(),
			payload: []byte(`{}`),
		},
		{
			desc:    "malformed payload",
			topic:   topics.WorkerMetricsTopic(),
			payload: []byte("not json"),
			err:     pkgerrors.ErrInvalidData,
			fail:    true,
		},
		{
			desc:    "missing worker id",
			topic:   topics.WorkerMetricsTopic(),
			payload: metrics(coordinator.MetricsMessage{Ping: 1}),
			fail:    true,
		},
		{
			desc:    "unknown worker",
			topic:   topics.WorkerMetricsTopic(),
			payload: metrics(coordinator.MetricsMessage{WorkerID: "unknown", Ping: 1}),
			err:     pkgerrors.ErrUnauthorized,
			fail:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := handle(context.Background(), tc.topic, tc.payload)
			if !tc.fail {
				assert.NoError(t, err)

				return
			}
			assert.Error(t, err)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}

	w, err := e.repos.Workers.Get(context.Background(), workerID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, w.Ping)
	assert.Equal(t, 80.0, w.AvgDownload)
	assert.Equal(t, 40.0, w.AvgUpload)
}
