package quality_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterwatch/meterwatch/pkg/quality"
)

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `magnitude:
  Electricity:
    min: 0
    max: 10000
  Gas:
    min: 0
    max: 500
cadence:
  Electricity: 30m
  Heat: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := quality.LoadProfiles(path)
	require.NoError(t, err)

	assert.Equal(t, quality.Bound{Min: 0, Max: 10000}, p.Magnitude["Electricity"])
	assert.Equal(t, quality.Bound{Min: 0, Max: 500}, p.Magnitude["Gas"])
	assert.Equal(t, 30*time.Minute, p.Cadence["Electricity"].Duration())
	assert.Equal(t, time.Hour, p.Cadence["Heat"].Duration())
}

func TestLoadProfilesMissingFile(t *testing.T) {
	p, err := quality.LoadProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, p.Magnitude)
	assert.Empty(t, p.Cadence)
}

func TestLoadProfilesEmptyPath(t *testing.T) {
	p, err := quality.LoadProfiles("")
	require.NoError(t, err)
	assert.Empty(t, p.Magnitude)
}

func TestLoadProfilesBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cadence:\n  Gas: sometimes\n"), 0o644))

	_, err := quality.LoadProfiles(path)
	assert.Error(t, err)
}
