// Package readings defines the time-series reading model produced by the
// aggregation layer and consumed by quality evaluation. A reading keeps its
// value as the raw decimal text from the catalog; parsing happens during
// evaluation so an unparseable value surfaces as a quality finding instead
// of a fetch failure.
package readings

import (
	"sort"
	"strconv"
	"time"

	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
)

// Field names used in raw catalog reading rows.
const (
	FieldDeviceID  = "device_id"
	FieldChannel   = "module_key"
	FieldTimestamp = "timestamp"
	FieldValue     = "param_value"
)

// timestampLayouts are the layouts observed in catalog rows, tried in
// order. The canonical layout leads, with and without fractional seconds.
var timestampLayouts = []string{
	constants.TimeFormatReading + ".999999",
	constants.TimeFormatReading,
	"2006-01-02 15:04:05",
}

// Record is one reading taken from one partition.
type Record struct {
	DeviceID        string
	Channel         string
	Timestamp       time.Time
	RawValue        string
	SourcePartition string
}

// Value parses the reading's decimal text.
func (r Record) Value() (float64, error) {
	v, err := strconv.ParseFloat(r.RawValue, 64)
	if err != nil {
		return 0, errors.NewParseError("decimal", r.RawValue, "not a decimal reading value", err)
	}
	return v, nil
}

// FromRow converts one raw catalog row into a Record.
// Rows without a parseable timestamp cannot be ordered and are rejected.
func FromRow(row map[string]string, sourcePartition string) (Record, error) {
	ts, err := ParseTimestamp(row[FieldTimestamp])
	if err != nil {
		return Record{}, err
	}
	return Record{
		DeviceID:        row[FieldDeviceID],
		Channel:         row[FieldChannel],
		Timestamp:       ts,
		RawValue:        row[FieldValue],
		SourcePartition: sourcePartition,
	}, nil
}

// ParseTimestamp parses a catalog timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.NewParseError("timestamp", s, "empty timestamp", nil)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.NewParseError("timestamp", s, "unrecognized timestamp layout", nil)
}

// Series is a merged sequence of readings for one device.
type Series []Record

// SortDescending orders the series newest first, the order quality
// evaluation expects. Ties may land in either order.
func (s Series) SortDescending() {
	sort.Slice(s, func(i, j int) bool {
		return s[i].Timestamp.After(s[j].Timestamp)
	})
}

// Newest returns the most recent record. Callers must check ok on an
// empty series.
func (s Series) Newest() (Record, bool) {
	if len(s) == 0 {
		return Record{}, false
	}
	newest := s[0]
	for _, r := range s[1:] {
		if r.Timestamp.After(newest.Timestamp) {
			newest = r
		}
	}
	return newest, true
}
