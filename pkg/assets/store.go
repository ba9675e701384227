package assets

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
	"github.com/meterwatch/meterwatch/pkg/logging"
)

// Source reads the rows of one named metadata resource from the remote
// catalog. Implemented by the catalog client; faked in tests.
type Source interface {
	ResourceRows(ctx context.Context, packageID, resourceName string) ([]map[string]string, error)
}

// Store holds the two reference tables for one run. It is built once by
// Load and never mutated afterwards; orphan checks go through identity
// maps, never positional correlation between the two lists.
type Store struct {
	loggers []Asset
	meters  []Asset

	loggersByCode map[string][]Asset
	metersByCode  map[string][]Asset
}

// Load fetches the logger and meter metadata concurrently and blocks until
// both complete. Failure of either load is fatal: a run cannot reconcile
// against half the reference data.
func Load(ctx context.Context, src Source) (*Store, error) {
	var loggerRows, meterRows []map[string]string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := src.ResourceRows(gctx, constants.MetadataPackage, constants.LoggerMetadataName)
		if err != nil {
			return errors.WrapCatalog(constants.LoggerMetadataName, err)
		}
		loggerRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := src.ResourceRows(gctx, constants.MetadataPackage, constants.MeterMetadataName)
		if err != nil {
			return errors.WrapCatalog(constants.MeterMetadataName, err)
		}
		meterRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Store{
		loggersByCode: make(map[string][]Asset),
		metersByCode:  make(map[string][]Asset),
	}
	for _, row := range loggerRows {
		a := LoggerFromRow(row)
		s.loggers = append(s.loggers, a)
		if a.IdentityCode != "" {
			s.loggersByCode[a.IdentityCode] = append(s.loggersByCode[a.IdentityCode], a)
		}
	}
	for _, row := range meterRows {
		a := MeterFromRow(row)
		s.meters = append(s.meters, a)
		if a.IdentityCode != "" {
			s.metersByCode[a.IdentityCode] = append(s.metersByCode[a.IdentityCode], a)
		}
	}

	logging.FromContext(ctx).Info().
		Int("loggers", len(s.loggers)).
		Int("meters", len(s.meters)).
		Msg("Metadata loaded")

	return s, nil
}

// NewStore builds a store directly from asset lists. Used by tests and by
// callers that already hold parsed metadata.
func NewStore(loggers, meters []Asset) *Store {
	s := &Store{
		loggers:       loggers,
		meters:        meters,
		loggersByCode: make(map[string][]Asset),
		metersByCode:  make(map[string][]Asset),
	}
	for _, a := range loggers {
		if a.IdentityCode != "" {
			s.loggersByCode[a.IdentityCode] = append(s.loggersByCode[a.IdentityCode], a)
		}
	}
	for _, a := range meters {
		if a.IdentityCode != "" {
			s.metersByCode[a.IdentityCode] = append(s.metersByCode[a.IdentityCode], a)
		}
	}
	return s
}

// Loggers returns all logger/controller assets.
func (s *Store) Loggers() []Asset {
	return s.loggers
}

// Meters returns all meter/sensor assets.
func (s *Store) Meters() []Asset {
	return s.meters
}

// HasLogger reports whether any logger carries the given identity code.
func (s *Store) HasLogger(code string) bool {
	_, ok := s.loggersByCode[code]
	return ok
}

// HasMeterFor reports whether any meter references the given logger code.
func (s *Store) HasMeterFor(code string) bool {
	_, ok := s.metersByCode[code]
	return ok
}

// TotalAssets is the number of assets of both kinds.
func (s *Store) TotalAssets() int {
	return len(s.loggers) + len(s.meters)
}

// Buildings returns the distinct building names present in the logger
// metadata, sorted.
func (s *Store) Buildings() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, a := range s.loggers {
		if a.BuildingName == "" {
			continue
		}
		if _, ok := seen[a.BuildingName]; ok {
			continue
		}
		seen[a.BuildingName] = struct{}{}
		names = append(names, a.BuildingName)
	}
	sort.Strings(names)
	return names
}
