package quality_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterwatch/meterwatch/internal/store"
	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/quality"
)

func completeLogger(code string) assets.Asset {
	return assets.Asset{
		Kind:         assets.KindLogger,
		IdentityCode: code,
		BuildingCode: "B01",
		BuildingName: "Library",
		Description:  "roof plant room logger",
	}
}

func completeMeter(code, channel string) assets.Asset {
	return assets.Asset{
		Kind:           assets.KindMeter,
		IdentityCode:   code,
		Channel:        channel,
		AssetCode:      "A-" + code,
		Description:    "main incomer",
		Classification: assets.ClassificationBMS,
		UtilityType:    "Electricity",
	}
}

func newTestReconciler(sink quality.Sink) *quality.Reconciler {
	return quality.NewReconciler(sink, quality.WithReconcilerClock(func() time.Time { return testNow }))
}

func TestReconcileMatchedCompleteAssetsAreClean(t *testing.T) {
	sink := store.NewMemory()
	r := newTestReconciler(sink)

	st := assets.NewStore(
		[]assets.Asset{completeLogger("D1")},
		[]assets.Asset{completeMeter("D1", "m1")},
	)
	found := r.Reconcile(context.Background(), st)

	assert.Empty(t, found)
	assert.Empty(t, sink.Flagged())
}

func TestReconcileOrphanLogger(t *testing.T) {
	sink := store.NewMemory()
	r := newTestReconciler(sink)

	st := assets.NewStore([]assets.Asset{completeLogger("L1")}, nil)
	found := r.Reconcile(context.Background(), st)

	require.Len(t, found, 1)
	assert.Equal(t, quality.KindOrphanLogger, found[0].Kind)
	assert.Equal(t, "L1", found[0].DeviceID)

	flagged := sink.Flagged()
	require.Len(t, flagged, 1)
	assert.Equal(t, assets.KindLogger, flagged[0].Kind)
}

func TestReconcileOrphanMeter(t *testing.T) {
	sink := store.NewMemory()
	r := newTestReconciler(sink)

	st := assets.NewStore(nil, []assets.Asset{completeMeter("M9", "m1")})
	found := r.Reconcile(context.Background(), st)

	require.Len(t, found, 1)
	assert.Equal(t, quality.KindOrphanMeter, found[0].Kind)
}

func TestReconcileIncompleteAssets(t *testing.T) {
	logger := completeLogger("D1")
	logger.BuildingCode = ""
	logger.Description = ""

	meter := completeMeter("D1", "m1")
	meter.AssetCode = ""

	sink := store.NewMemory()
	r := newTestReconciler(sink)

	st := assets.NewStore([]assets.Asset{logger}, []assets.Asset{meter})
	found := r.Reconcile(context.Background(), st)

	kinds := make(map[quality.Kind]int)
	for _, d := range found {
		kinds[d.Kind]++
	}
	assert.Equal(t, map[quality.Kind]int{
		quality.KindLoggerMissingBuilding:    1,
		quality.KindLoggerMissingDescription: 1,
		quality.KindMeterMissingAssetCode:    1,
	}, kinds)

	// Both sides of the same identity code are flagged independently.
	assert.Len(t, sink.Flagged(), 2)
}

func TestReconcileLoggerAndMeterKindsDisjoint(t *testing.T) {
	// An unmatched pair under different codes: logger findings use logger
	// kinds, meter findings meter kinds, with no overlap.
	sink := store.NewMemory()
	r := newTestReconciler(sink)

	st := assets.NewStore(
		[]assets.Asset{completeLogger("L1")},
		[]assets.Asset{completeMeter("M1", "m1")},
	)
	found := r.Reconcile(context.Background(), st)

	require.Len(t, found, 2)
	for _, d := range found {
		switch d.DeviceID {
		case "L1":
			assert.Equal(t, quality.KindOrphanLogger, d.Kind)
		case "M1":
			assert.Equal(t, quality.KindOrphanMeter, d.Kind)
		default:
			t.Fatalf("unexpected device %q", d.DeviceID)
		}
	}
}

func TestReconcileIsOrderIndependent(t *testing.T) {
	loggers := []assets.Asset{completeLogger("L2"), completeLogger("L1")}
	meters := []assets.Asset{completeMeter("L1", "m1"), completeMeter("M3", "m2")}

	first := quality.NewReconciler(store.NewMemory(),
		quality.WithReconcilerClock(func() time.Time { return testNow })).
		Reconcile(context.Background(), assets.NewStore(loggers, meters))

	reversedLoggers := []assets.Asset{loggers[1], loggers[0]}
	reversedMeters := []assets.Asset{meters[1], meters[0]}
	second := quality.NewReconciler(store.NewMemory(),
		quality.WithReconcilerClock(func() time.Time { return testNow })).
		Reconcile(context.Background(), assets.NewStore(reversedLoggers, reversedMeters))

	count := func(defects []quality.Defect) map[quality.Kind]int {
		out := make(map[quality.Kind]int)
		for _, d := range defects {
			out[d.Kind]++
		}
		return out
	}
	assert.Equal(t, count(first), count(second))
}
