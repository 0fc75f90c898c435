package cron_test

import (
	"testing"
	"time"

	"github.com/absmach/fedcycle/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		desc string
		expr string
		next time.Time
		err  error
	}{
		{desc: "every five seconds", expr: "@every 5s", next: from.Add(5 * time.Second)},
		{desc: "hourly", expr: "@hourly", next: from.Add(time.Hour)},
		{desc: "five fields", expr: "*/10 * * * *", next: from.Add(10 * time.Minute)},
		{desc: "six fields", expr: "*/30 * * * * *", next: from.Add(30 * time.Second)},
		{desc: "empty", expr: "", err: cron.ErrInvalidCronExpression},
		{desc: "garbage", expr: "not a schedule", err: cron.ErrInvalidCronExpression},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := cron.Parse(tc.expr)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.next, s.Next(from))
		})
	}
}

func TestEvery(t *testing.T) {
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, from.Add(2*time.Second), cron.Every(2*time.Second).Next(from))
	assert.Equal(t, from.Add(time.Second), cron.Every(10*time.Millisecond).Next(from))

	var s *cron.Schedule
	assert.True(t, s.Next(from).IsZero())
}
