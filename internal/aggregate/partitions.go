package aggregate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
	"github.com/meterwatch/meterwatch/pkg/logging"
)

// Partition is one month of telemetry for a classification family.
type Partition struct {
	ResourceID string
	Name       string
	Era        time.Time // first day of the partition's month, UTC
}

// Filter selects which partitions a run queries. Nil means all valid
// partitions.
type Filter func(Partition) bool

// CurrentMonth returns a filter keeping only the partition covering now.
// Incremental runs use it to avoid refetching history.
func CurrentMonth(now time.Time) Filter {
	era := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return func(p Partition) bool { return p.Era.Equal(era) }
}

// SinceEra returns a filter keeping partitions at or after the given era.
func SinceEra(era time.Time) Filter {
	return func(p Partition) bool { return !p.Era.Before(era) }
}

// ByName returns a filter keeping only the partition with the given
// resource name. Targeted runs use it to requery a single month.
func ByName(name string) Filter {
	return func(p Partition) bool { return strings.EqualFold(p.Name, name) }
}

// validFrom is the era of the oldest trusted partition. Earlier stores
// predate the device_id/module_key row layout and cannot be queried.
var validFrom = time.Date(2016, time.December, 1, 0, 0, 0, 0, time.UTC)

// packageFor maps a classification family to its telemetry package.
func packageFor(c assets.Classification) (string, bool) {
	switch c {
	case assets.ClassificationBMS:
		return constants.BMSPackage, true
	case assets.ClassificationEMS:
		return constants.EMSPackage, true
	default:
		return "", false
	}
}

// Partitions lists the queryable telemetry partitions for one
// classification family, oldest first. Resources whose names carry no
// month suffix (the embedded metadata tables) are skipped, as is anything
// older than the valid era.
func (a *Aggregator) Partitions(ctx context.Context, c assets.Classification) ([]Partition, error) {
	pkgID, ok := packageFor(c)
	if !ok {
		return nil, errors.NewValidationError("classification", string(c), "no telemetry package for classification")
	}

	pkg, err := a.catalog.Package(ctx, pkgID)
	if err != nil {
		return nil, errors.WrapCatalog(pkgID, err)
	}

	log := logging.FromContext(ctx)
	var partitions []Partition
	for _, res := range pkg.Resources {
		era, ok := parseEra(res.Name)
		if !ok {
			log.Debug().
				Str("resource", res.Name).
				Msg("Skipping non-partition resource")
			continue
		}
		if era.Before(validFrom) {
			continue
		}
		partitions = append(partitions, Partition{
			ResourceID: res.ID,
			Name:       res.Name,
			Era:        era,
		})
	}

	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].Era.Before(partitions[j].Era)
	})
	return partitions, nil
}

// parseEra extracts the month a partition covers from its resource name.
// Partition names end in "-<mon>-<year>", e.g. "bms-jan-2017".
func parseEra(name string) (time.Time, bool) {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	suffix := strings.Join(parts[len(parts)-2:], "-")
	era, err := time.Parse(constants.TimeFormatPartition, suffix)
	if err != nil {
		return time.Time{}, false
	}
	return era.UTC(), true
}
