package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/meterwatch/meterwatch/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "dataset",
			ID:       "planonmetadata",
		}
		assert.Equal(t, "dataset with ID planonmetadata not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("constructor", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("partition", "bms-jan-2017")
		assert.Equal(t, "partition with ID bms-jan-2017 not found", err.Error())
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestCatalogError(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := &pkgerrors.CatalogError{
			Dataset:    "bms",
			StatusCode: 503,
			Message:    "service unavailable",
		}
		assert.Contains(t, err.Error(), "bms")
		assert.Contains(t, err.Error(), "503")
		assert.True(t, errors.Is(err, pkgerrors.ErrCatalogUnavailable))
	})

	t.Run("wraps cause", func(t *testing.T) {
		base := errors.New("connection refused")
		err := pkgerrors.WrapCatalog("planonmetadata", base)
		assert.True(t, pkgerrors.IsCatalogUnavailable(err))
		assert.True(t, errors.Is(err, base))
	})

	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapCatalog("bms", nil))
	})
}

func TestPartitionError(t *testing.T) {
	base := errors.New("read timeout")

	t.Run("single attempt", func(t *testing.T) {
		err := pkgerrors.NewPartitionError("bms-jan-2017", "D100", "m1", 1, base)
		assert.Contains(t, err.Error(), "bms-jan-2017")
		assert.Contains(t, err.Error(), "D100/m1")
		assert.True(t, errors.Is(err, base))
	})

	t.Run("multiple attempts", func(t *testing.T) {
		err := pkgerrors.NewPartitionError("bms-feb-2017", "D100", "m1", 3, base)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("not a catalog error", func(t *testing.T) {
		// A failed partition must never read as an unreachable catalog:
		// the former is skippable, the latter aborts the run.
		err := pkgerrors.NewPartitionError("bms-jan-2017", "D100", "m1", 1, base)
		assert.False(t, pkgerrors.IsCatalogUnavailable(err))
	})
}

func TestParseError(t *testing.T) {
	err := pkgerrors.NewParseError("decimal", "12..5", "invalid syntax", nil)
	assert.Contains(t, err.Error(), "decimal")
	assert.Contains(t, err.Error(), "12..5")
}

func TestPersistenceError(t *testing.T) {
	base := errors.New("deadlock detected")
	err := pkgerrors.WrapPersistence("upsert", "erroneous_assets", base)
	assert.Contains(t, err.Error(), "upsert")
	assert.Contains(t, err.Error(), "erroneous_assets")
	assert.True(t, errors.Is(err, base))
}

func TestUntestableError(t *testing.T) {
	err := &pkgerrors.UntestableError{IdentityCode: "D42", Reason: "missing channel"}
	assert.Contains(t, err.Error(), "D42")
	assert.True(t, pkgerrors.IsUntestable(err))
}

func TestSentinelDistinctness(t *testing.T) {
	sentinels := []error{
		pkgerrors.ErrNotFound,
		pkgerrors.ErrCatalogUnavailable,
		pkgerrors.ErrUntestable,
		pkgerrors.ErrInvalidInput,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "sentinels %v and %v must be distinct", a, b)
			}
		}
	}
}
