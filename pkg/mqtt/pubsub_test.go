package mqtt

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestNewPubSubRequiresClientID(t *testing.T) {
	_, err := NewPubSub(Config{URL: "tcp://localhost:1883"}, logger)
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestClientOptionsWill(t *testing.T) {
	cases := []struct {
		desc    string
		cfg     Config
		enabled bool
		payload string
		fail    bool
	}{
		{
			desc: "no will",
			cfg:  Config{ClientID: "c1"},
		},
		{
			desc:    "json will",
			cfg:     Config{ClientID: "c1", QoS: 1, WillTopic: "status", Will: map[string]string{"status": "offline"}},
			enabled: true,
			payload: `{"status":"offline"}`,
		},
		{
			desc: "will that cannot be encoded",
			cfg:  Config{ClientID: "c1", WillTopic: "status", Will: func() {}},
			fail: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			opts, err := clientOptions(tc.cfg, logger)
			if tc.fail {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, opts.WillEnabled)
			if tc.enabled {
				assert.Equal(t, tc.cfg.WillTopic, opts.WillTopic)
				assert.JSONEq(t, tc.payload, string(opts.WillPayload))
				assert.Equal(t, tc.cfg.QoS, opts.WillQos)
			}
		})
	}
}

func TestPublishAndSubscribeValidation(t *testing.T) {
	ps := &pubsub{
		client:  paho.NewClient(paho.NewClientOptions().SetClientID("offline")),
		timeout: time.Second,
		logger:  logger,
	}
	ctx := context.Background()
	noop := func(context.Context, string, []byte) error { return nil }

	assert.ErrorIs(t, ps.Publish(ctx, "", map[string]string{}), ErrEmptyTopic)
	assert.ErrorIs(t, ps.Subscribe(ctx, "", noop), ErrEmptyTopic)
	assert.Error(t, ps.Publish(ctx, "fl/events", func() {}), "unencodable message")
	assert.Error(t, ps.Publish(ctx, "fl/events", map[string]string{"a": "b"}), "client is not connected")
}
