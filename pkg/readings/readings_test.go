package readings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterwatch/meterwatch/pkg/constants"
)

func TestFromRow(t *testing.T) {
	row := map[string]string{
		FieldDeviceID:  "D100",
		FieldChannel:   "m1",
		FieldTimestamp: "2024-01-02T15:04:05",
		FieldValue:     "12.5",
	}

	rec, err := FromRow(row, "bms-jan-2024")
	require.NoError(t, err)
	assert.Equal(t, "D100", rec.DeviceID)
	assert.Equal(t, "m1", rec.Channel)
	assert.Equal(t, "bms-jan-2024", rec.SourcePartition)
	assert.Equal(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), rec.Timestamp)

	v, err := rec.Value()
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
}

func TestFromRowRejectsBadTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   string
	}{
		{"empty", ""},
		{"garbage", "yesterday"},
		{"partial", "2024-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRow(map[string]string{FieldTimestamp: tt.ts}, "p")
			assert.Error(t, err)
		})
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"iso with T", "2017-01-02T08:30:00"},
		{"fractional seconds", "2017-01-02T08:30:00.250000"},
		{"space separated", "2017-01-02 08:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.Equal(t, 2017, ts.Year())
			assert.Equal(t, 8, ts.Hour())
		})
	}

	t.Run("canonical round trip", func(t *testing.T) {
		want := time.Date(2017, 1, 2, 8, 30, 0, 0, time.UTC)
		ts, err := ParseTimestamp(want.Format(constants.TimeFormatReading))
		require.NoError(t, err)
		assert.True(t, ts.Equal(want))
	})
}

func TestValueUnparseable(t *testing.T) {
	rec := Record{RawValue: "12..5"}
	_, err := rec.Value()
	assert.Error(t, err)
}

func TestSeriesSortDescending(t *testing.T) {
	at := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }

	s := Series{
		{Timestamp: at(2)},
		{Timestamp: at(9)},
		{Timestamp: at(5)},
	}
	s.SortDescending()

	assert.Equal(t, at(9), s[0].Timestamp)
	assert.Equal(t, at(5), s[1].Timestamp)
	assert.Equal(t, at(2), s[2].Timestamp)
}

func TestSeriesNewest(t *testing.T) {
	_, ok := Series{}.Newest()
	assert.False(t, ok)

	s := Series{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), RawValue: "1"},
		{Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), RawValue: "2"},
	}
	newest, ok := s.Newest()
	require.True(t, ok)
	assert.Equal(t, "2", newest.RawValue)
}
