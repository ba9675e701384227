package quality

import (
	"context"
	"time"

	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/logging"
)

// Reconciler cross-references the logger and meter metadata to find
// orphaned and incomplete assets. Correlation is strictly by identity
// code lookup; the two metadata lists carry no positional relationship.
type Reconciler struct {
	sink Sink
	now  func() time.Time
}

// ReconcilerOption customizes a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock overrides the reconciler's clock. Used by tests.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler recording findings to the sink.
func NewReconciler(sink Sink, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile checks every asset in the store and records a defect for each
// orphaned or incomplete record, flagging assets with at least one
// finding. The defect set is order-independent.
func (r *Reconciler) Reconcile(ctx context.Context, store *assets.Store) []Defect {
	now := r.now()
	var found []Defect

	for _, logger := range store.Loggers() {
		var defects []Defect
		if !store.HasMeterFor(logger.IdentityCode) {
			defects = append(defects, r.defect(KindOrphanLogger, logger, now))
		}
		if logger.BuildingCode == "" {
			defects = append(defects, r.defect(KindLoggerMissingBuilding, logger, now))
		}
		if logger.Description == "" {
			defects = append(defects, r.defect(KindLoggerMissingDescription, logger, now))
		}
		found = append(found, r.report(ctx, logger, defects, now)...)
	}

	for _, meter := range store.Meters() {
		var defects []Defect
		if !store.HasLogger(meter.IdentityCode) {
			defects = append(defects, r.defect(KindOrphanMeter, meter, now))
		}
		if meter.AssetCode == "" {
			defects = append(defects, r.defect(KindMeterMissingAssetCode, meter, now))
		}
		if meter.Description == "" {
			defects = append(defects, r.defect(KindMeterMissingDescription, meter, now))
		}
		found = append(found, r.report(ctx, meter, defects, now)...)
	}

	logging.FromContext(ctx).Info().
		Int("defects", len(found)).
		Msg("Metadata reconciliation complete")

	return found
}

func (r *Reconciler) defect(kind Kind, a assets.Asset, now time.Time) Defect {
	return Defect{
		Kind:       kind,
		DeviceID:   a.IdentityCode,
		Channel:    a.Channel,
		OccurredAt: now,
		DetectedAt: now,
	}
}

// report records the asset's defects and flags it when any exist.
func (r *Reconciler) report(ctx context.Context, a assets.Asset, defects []Defect, now time.Time) []Defect {
	if len(defects) == 0 {
		return nil
	}
	log := logging.FromContext(ctx)
	for _, d := range defects {
		if err := r.sink.RecordDefect(ctx, d); err != nil {
			log.Warn().
				Err(err).
				Str("device_id", d.DeviceID).
				Stringer("kind", d.Kind).
				Msg("Failed to record defect")
		}
	}
	if err := r.sink.FlagAsset(ctx, Flag(a, now)); err != nil {
		log.Warn().
			Err(err).
			Str("identity_code", a.IdentityCode).
			Msg("Failed to flag asset")
	}
	return defects
}
