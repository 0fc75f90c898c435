package cron

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidCronExpression = errors.New("invalid cron expression")

// Schedule tells when a periodic job runs next.
type Schedule struct {
	spec cron.Schedule
}

// Parse accepts standard five-field expressions, an optional leading seconds
// field, and descriptors such as "@every 5s" or "@hourly".
func Parse(expr string) (*Schedule, error) {
	if expr == "" {
		return nil, ErrInvalidCronExpression
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronExpression, err)
	}

	return &Schedule{spec: spec}, nil
}

// Every runs at a fixed delay, rounded down to the second with a minimum of one second.
func Every(d time.Duration) *Schedule {
	return &Schedule{spec: cron.Every(d)}
}

func (s *Schedule) Next(from time.Time) time.Time {
	if s == nil || s.spec == nil {
		return time.Time{}
	}

	return s.spec.Next(from)
}
