package run_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterwatch/meterwatch/internal/run"
)

func TestSchedulerNext(t *testing.T) {
	s, err := run.NewScheduler(nil, "08:00")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before today's slot",
			time.Date(2024, 3, 15, 6, 30, 0, 0, time.UTC),
			time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
		},
		{
			"exactly at the slot rolls to tomorrow",
			time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC),
		},
		{
			"after today's slot",
			time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC),
		},
		{
			"month boundary",
			time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC),
			time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Next(tt.now))
		})
	}
}

func TestSchedulerRejectsBadTime(t *testing.T) {
	_, err := run.NewScheduler(nil, "8 o'clock")
	assert.Error(t, err)
}
