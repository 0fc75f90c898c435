// Package events publishes cycle lifecycle notifications for workers and
// operators listening on the message bus.
package events

import (
	"context"
	"time"

	"github.com/absmach/fedcycle/pkg/fl"
)

type Type string

const (
	CycleOpened    Type = "opened"
	CycleAveraging Type = "averaging"
	CycleClosed    Type = "closed"
	CycleFailed    Type = "failed"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityFatal Severity = "fatal"
)

type Event struct {
	Type       Type      `json:"type"`
	Severity   Severity  `json:"severity"`
	ModelID    string    `json:"model_id"`
	CycleID    string    `json:"cycle_id"`
	Sequence   uint64    `json:"sequence"`
	Version    uint64    `json:"version"`
	Checkpoint uint64    `json:"checkpoint,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// FromCycle builds an event describing c. Failed events are fatal.
func FromCycle(t Type, c fl.Cycle) Event {
	sev := SeverityInfo
	if t == CycleFailed {
		sev = SeverityFatal
	}

	return Event{
		Type:       t,
		Severity:   sev,
		ModelID:    c.ModelID,
		CycleID:    c.ID,
		Sequence:   c.Sequence,
		Version:    c.Version,
		Checkpoint: c.CheckpointNumber,
		Error:      c.Error,
		Timestamp:  time.Now().UTC(),
	}
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// CoordinatorStatus is published on the coordinator status topic when the
// coordinator comes up, and left with the broker as the offline will.
type CoordinatorStatus struct {
	Status        string    `json:"status"`
	CoordinatorID string    `json:"coordinator_id"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
}

type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

type noop struct{}

// NewNoop returns an emitter that drops every event. It is used when no
// message broker is configured.
func NewNoop() Emitter {
	return noop{}
}

func (noop) Emit(context.Context, Event) error {
	return nil
}
