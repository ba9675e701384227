// Package quality implements the data-quality layer: the defect model, the
// metadata cross-reference checks, and the rule battery applied to merged
// reading series. Findings are recorded through a Sink; evaluation itself
// never fails a run.
package quality

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meterwatch/meterwatch/pkg/assets"
)

// Kind identifies one defect category. The numeric values are the ids of
// the persisted error-type lookup table and match historical data, so they
// must never be renumbered.
type Kind int

// Defect kinds.
const (
	KindOrphanLogger             Kind = 1
	KindLoggerMissingBuilding    Kind = 2
	KindLoggerMissingDescription Kind = 3
	KindOrphanMeter              Kind = 10
	KindMeterMissingAssetCode    Kind = 11
	KindMeterMissingDescription  Kind = 12
	KindNoData                   Kind = 20
	KindStaleReadings            Kind = 21
	KindNegativeReading          Kind = 22
	KindAnomalousMagnitude       Kind = 23
	KindIrregularInterval        Kind = 24
	KindUnparseableReading       Kind = 25
)

// descriptions seed the error-type lookup table and label log output.
var descriptions = map[Kind]string{
	KindOrphanLogger:             "logger has no meters associated with it",
	KindLoggerMissingBuilding:    "logger has no building code",
	KindLoggerMissingDescription: "logger has no description",
	KindOrphanMeter:              "meter has no logger associated with it",
	KindMeterMissingAssetCode:    "meter has no asset code",
	KindMeterMissingDescription:  "meter has no description",
	KindNoData:                   "no readings found for meter",
	KindStaleReadings:            "most recent reading is too old",
	KindNegativeReading:          "negative reading value",
	KindAnomalousMagnitude:       "reading outside expected bounds for utility type",
	KindIrregularInterval:        "reading interval differs from expected cadence",
	KindUnparseableReading:       "reading value is not parseable as a decimal",
}

// Description returns the human-readable lookup description for the kind.
func (k Kind) Description() string {
	if d, ok := descriptions[k]; ok {
		return d
	}
	return fmt.Sprintf("unknown defect kind %d", int(k))
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return fmt.Sprintf("%d (%s)", int(k), k.Description())
}

// Kinds returns all known defect kinds in lookup-table order.
func Kinds() []Kind {
	return []Kind{
		KindOrphanLogger,
		KindLoggerMissingBuilding,
		KindLoggerMissingDescription,
		KindOrphanMeter,
		KindMeterMissingAssetCode,
		KindMeterMissingDescription,
		KindNoData,
		KindStaleReadings,
		KindNegativeReading,
		KindAnomalousMagnitude,
		KindIrregularInterval,
		KindUnparseableReading,
	}
}

// Defect is one recorded data-quality finding. Append-only: defects are
// never mutated after creation and a device may accumulate many of them.
type Defect struct {
	Kind       Kind
	DeviceID   string
	Channel    string
	OccurredAt time.Time
	DetectedAt time.Time
}

// FlaggedAsset is the "currently erroneous" index entry for one asset,
// upserted on (Kind, IdentityCode, Channel) with last-write-wins on
// MostRecentErrorAt.
type FlaggedAsset struct {
	Kind              assets.Kind
	IdentityCode      string
	Channel           string
	UtilityType       string
	MostRecentErrorAt time.Time
}

// Flag builds the FlaggedAsset entry for an asset at the given time.
func Flag(a assets.Asset, at time.Time) FlaggedAsset {
	return FlaggedAsset{
		Kind:              a.Kind,
		IdentityCode:      a.IdentityCode,
		Channel:           a.Channel,
		UtilityType:       a.UtilityType,
		MostRecentErrorAt: at,
	}
}

// RunSummary is the per-run aggregate record, created once per run.
type RunSummary struct {
	RunID            uuid.UUID
	TotalAssets      int
	ErroneousAssets  int
	DefectCount      int
	Untestable       int
	PartitionsFailed int
	StartedAt        time.Time
	FinishedAt       time.Time
}
