// Package mqtt carries coordinator traffic over an MQTT broker: cycle
// events out, worker measurements in.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 10 * time.Second
	maxReconnectDelay = time.Minute
	quiesceMillis     = 250
	defTimeout        = 30 * time.Second
)

var (
	ErrTimeout    = errors.New("mqtt operation timed out")
	ErrEmptyTopic = errors.New("empty topic")
	ErrEmptyID    = errors.New("empty client id")
	ErrConnect    = errors.New("failed to connect to MQTT broker")
)

type Config struct {
	URL      string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
	// Will is published by the broker on WillTopic when the connection
	// drops without a clean disconnect.
	WillTopic string
	Will      any
}

// Handler receives the raw payload of a message. Returning an error only
// logs it; the message is acknowledged either way.
type Handler func(ctx context.Context, topic string, payload []byte) error

type PubSub interface {
	// Publish sends msg encoded as JSON.
	Publish(ctx context.Context, topic string, msg any) error
	// Subscribe delivers messages on topic to h until ctx is done.
	Subscribe(ctx context.Context, topic string, h Handler) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client  paho.Client
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

func NewPubSub(cfg Config, logger *slog.Logger) (PubSub, error) {
	if cfg.ClientID == "" {
		return nil, ErrEmptyID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defTimeout
	}

	opts, err := clientOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := paho.NewClient(opts)
	if err := wait(client.Connect(), cfg.Timeout); err != nil {
		return nil, errors.Join(ErrConnect, err)
	}

	return &pubsub{
		client:  client,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		logger:  logger,
	}, nil
}

func (ps *pubsub) Publish(_ context.Context, topic string, msg any) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}

	return wait(ps.client.Publish(topic, ps.qos, false, data), ps.timeout)
}

func (ps *pubsub) Subscribe(ctx context.Context, topic string, h Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	deliver := func(_ paho.Client, m paho.Message) {
		defer m.Ack()
		if ctx.Err() != nil {
			return
		}
		if err := h(ctx, m.Topic(), m.Payload()); err != nil {
			ps.logger.Warn("Failed to handle MQTT message",
				slog.String("topic", m.Topic()),
				slog.Any("error", err),
			)
		}
	}

	return wait(ps.client.Subscribe(topic, ps.qos, deliver), ps.timeout)
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps.client.Disconnect(quiesceMillis)

	return nil
}

func clientOptions(cfg Config, logger *slog.Logger) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetMaxReconnectInterval(maxReconnectDelay)

	if cfg.WillTopic != "" {
		will, err := json.Marshal(cfg.Will)
		if err != nil {
			return nil, fmt.Errorf("failed to encode will message: %w", err)
		}
		opts.SetBinaryWill(cfg.WillTopic, will, cfg.QoS, false)
	}

	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("MQTT connection established", slog.String("client_id", cfg.ClientID))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", slog.Any("error", err))
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Info("MQTT reconnecting", slog.String("client_id", cfg.ClientID))
	})

	return opts, nil
}

func wait(token paho.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}

	return token.Error()
}
