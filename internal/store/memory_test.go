package store_test

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

func TestMemoryFlagAssetUpserts(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	base := quality.FlaggedAsset{
		Kind:              assets.KindMeter,
		IdentityCode:      "D1",
		Channel:           "m1",
		UtilityType:       "Electricity",
		MostRecentErrorAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.FlagAsset(ctx, base))

	newer := base
	newer.MostRecentErrorAt = base.MostRecentErrorAt.Add(24 * time.Hour)
	require.NoError(t, m.FlagAsset(ctx, newer))

	flagged := m.Flagged()
	require.Len(t, flagged, 1)
	assert.Equal(t, newer.MostRecentErrorAt, flagged[0].MostRecentErrorAt)
}

func TestMemoryFlagAssetKeepsNewerTimestamp(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	newer := quality.FlaggedAsset{
		Kind:              assets.KindMeter,
		IdentityCode:      "D1",
		Channel:           "m1",
		MostRecentErrorAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
	}
	older := newer
	older.MostRecentErrorAt = newer.MostRecentErrorAt.Add(-24 * time.Hour)

	require.NoError(t, m.FlagAsset(ctx, newer))
	require.NoError(t, m.FlagAsset(ctx, older))

	flagged := m.Flagged()
	require.Len(t, flagged, 1)
	assert.Equal(t, newer.MostRecentErrorAt, flagged[0].MostRecentErrorAt)
}

func TestMemoryFlagAssetDistinctChannels(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for _, ch := range []string{"m1", "m2"} {
		require.NoError(t, m.FlagAsset(ctx, quality.FlaggedAsset{
			Kind:              assets.KindMeter,
			IdentityCode:      "D1",
			Channel:           ch,
			MostRecentErrorAt: at,
		}))
	}

	assert.Len(t, m.Flagged(), 2)
}

func TestMemoryDefectsAppendOnly(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	d := quality.Defect{Kind: quality.KindNegativeReading, DeviceID: "D1", Channel: "m1"}
	require.NoError(t, m.RecordDefect(ctx, d))
	require.NoError(t, m.RecordDefect(ctx, d))

	assert.Len(t, m.Defects(), 2)
	assert.Len(t, m.DefectsOfKind(quality.KindNegativeReading), 2)
	assert.Empty(t, m.DefectsOfKind(quality.KindNoData))
}
