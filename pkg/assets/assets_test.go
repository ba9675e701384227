package assets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
)

func TestLoggerFromRow(t *testing.T) {
	a := LoggerFromRow(map[string]string{
		"Logger Serial Number": " L100 ",
		"Building Code":        "B1",
		"Building Name":        "Physics",
		"Description":          "roof plant room",
	})
	assert.Equal(t, KindLogger, a.Kind)
	assert.Equal(t, "L100", a.IdentityCode)
	assert.Equal(t, "B1", a.BuildingCode)
	assert.Equal(t, "L100", a.Identity())
	assert.False(t, a.Testable(), "loggers produce no readings")
}

func TestMeterFromRow(t *testing.T) {
	a := MeterFromRow(map[string]string{
		"Logger Asset Code":    "L100",
		"Logger Channel":       "m2",
		"Asset Code":           "A9",
		"Description":          "gas meter",
		"Classification Group": "Energy sensor",
		"Utility Type":         "GAS",
	})
	assert.Equal(t, KindMeter, a.Kind)
	assert.Equal(t, "L100/m2", a.Identity())
	assert.Equal(t, ClassificationBMS, a.Classification)
	assert.Equal(t, "Gas", a.UtilityType)
	assert.True(t, a.Testable())
}

func TestMeterTestability(t *testing.T) {
	tests := []struct {
		name     string
		asset    Asset
		testable bool
	}{
		{"complete", Asset{Kind: KindMeter, IdentityCode: "L1", Channel: "m1", Classification: ClassificationBMS}, true},
		{"ems family", Asset{Kind: KindMeter, IdentityCode: "L1", Channel: "m1", Classification: ClassificationEMS}, true},
		{"missing channel", Asset{Kind: KindMeter, IdentityCode: "L1", Classification: ClassificationBMS}, false},
		{"missing identity", Asset{Kind: KindMeter, Channel: "m1", Classification: ClassificationBMS}, false},
		{"unknown classification", Asset{Kind: KindMeter, IdentityCode: "L1", Channel: "m1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.testable, tt.asset.Testable())
		})
	}
}

func TestCheckTestableReason(t *testing.T) {
	meter := Asset{Kind: KindMeter, IdentityCode: "L1", Classification: ClassificationBMS}
	err := meter.CheckTestable()
	require.Error(t, err)
	assert.True(t, errors.IsUntestable(err))
	assert.Contains(t, err.Error(), "channel")

	complete := Asset{Kind: KindMeter, IdentityCode: "L1", Channel: "m1", Classification: ClassificationBMS}
	assert.NoError(t, complete.CheckTestable())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassificationBMS, MeterFromRow(map[string]string{"Classification Group": "Energy sensor"}).Classification)
	assert.Equal(t, ClassificationEMS, MeterFromRow(map[string]string{"Classification Group": "Energy meter"}).Classification)
	assert.Equal(t, ClassificationUnknown, MeterFromRow(map[string]string{"Classification Group": "Water pump"}).Classification)
}

// fakeSource serves canned metadata rows keyed by resource name.
type fakeSource struct {
	rows map[string][]map[string]string
	errs map[string]error
}

func (f *fakeSource) ResourceRows(_ context.Context, _, resourceName string) ([]map[string]string, error) {
	if err := f.errs[resourceName]; err != nil {
		return nil, err
	}
	return f.rows[resourceName], nil
}

func TestLoad(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]string{
		constants.LoggerMetadataName: {
			{"Logger Serial Number": "L1", "Building Name": "Library"},
			{"Logger Serial Number": "L2", "Building Name": "Library"},
		},
		constants.MeterMetadataName: {
			{"Logger Asset Code": "L1", "Logger Channel": "m1"},
		},
	}}

	store, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, store.Loggers(), 2)
	assert.Len(t, store.Meters(), 1)
	assert.Equal(t, 3, store.TotalAssets())
	assert.True(t, store.HasLogger("L1"))
	assert.True(t, store.HasMeterFor("L1"))
	assert.False(t, store.HasMeterFor("L2"))
	assert.Equal(t, []string{"Library"}, store.Buildings())
}

func TestLoadFailsWhenEitherDatasetFails(t *testing.T) {
	for _, failing := range []string{constants.LoggerMetadataName, constants.MeterMetadataName} {
		t.Run(failing, func(t *testing.T) {
			src := &fakeSource{
				rows: map[string][]map[string]string{
					constants.LoggerMetadataName: {{"Logger Serial Number": "L1"}},
					constants.MeterMetadataName:  {{"Logger Asset Code": "L1"}},
				},
				errs: map[string]error{failing: errors.New("boom")},
			}
			_, err := Load(context.Background(), src)
			require.Error(t, err)
			assert.True(t, errors.IsCatalogUnavailable(err))
		})
	}
}

func TestBuildingsDeduplicatesAndSorts(t *testing.T) {
	store := NewStore([]Asset{
		{Kind: KindLogger, IdentityCode: "L1", BuildingName: "Physics"},
		{Kind: KindLogger, IdentityCode: "L2", BuildingName: "Chemistry"},
		{Kind: KindLogger, IdentityCode: "L3", BuildingName: "Physics"},
		{Kind: KindLogger, IdentityCode: "L4"},
	}, nil)
	assert.Equal(t, []string{"Chemistry", "Physics"}, store.Buildings())
}
