package quality

import (
	"context"
	"time"

	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/logging"
	"github.com/meterwatch/meterwatch/pkg/readings"
)

// Evaluator applies the rule battery to one device's merged reading
// series and records the findings. Safe for concurrent use across
// devices: evaluation holds no shared mutable state.
type Evaluator struct {
	registry *Registry
	sink     Sink
	now      func() time.Time
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the evaluator's clock. Used by tests.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an evaluator over the given rule registry and sink.
func NewEvaluator(registry *Registry, sink Sink, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		registry: registry,
		sink:     sink,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the rule battery over the series and records every
// finding. An untestable asset records nothing: it has no identity to
// query readings by, so silence means nothing. An empty series on a
// testable meter is a finding in itself: exactly one NoData defect, and
// no other rule applies because there is nothing to evaluate.
// Returns the defects found.
func (e *Evaluator) Evaluate(ctx context.Context, series readings.Series, asset assets.Asset) []Defect {
	if !asset.Testable() {
		return nil
	}

	now := e.now()
	log := logging.FromContext(ctx)

	if len(series) == 0 {
		d := Defect{
			Kind:       KindNoData,
			DeviceID:   asset.IdentityCode,
			Channel:    asset.Channel,
			OccurredAt: now,
			DetectedAt: now,
		}
		e.record(ctx, d)
		e.flag(ctx, asset, now)
		return []Defect{d}
	}

	series.SortDescending()

	var found []Defect
	for _, rule := range e.registry.Rules() {
		defects := rule.Evaluate(series, asset, now)
		if len(defects) > 0 {
			log.Debug().
				Str("rule", rule.Name()).
				Str("device_id", asset.IdentityCode).
				Str("channel", asset.Channel).
				Int("defects", len(defects)).
				Msg("Rule fired")
		}
		found = append(found, defects...)
	}

	for _, d := range found {
		e.record(ctx, d)
	}
	if len(found) > 0 {
		e.flag(ctx, asset, now)
	}
	return found
}

// record persists one defect. Persistence failures degrade the data, not
// the run: log and continue.
func (e *Evaluator) record(ctx context.Context, d Defect) {
	if err := e.sink.RecordDefect(ctx, d); err != nil {
		logging.FromContext(ctx).Warn().
			Err(err).
			Str("device_id", d.DeviceID).
			Stringer("kind", d.Kind).
			Msg("Failed to record defect")
	}
}

func (e *Evaluator) flag(ctx context.Context, asset assets.Asset, at time.Time) {
	if err := e.sink.FlagAsset(ctx, Flag(asset, at)); err != nil {
		logging.FromContext(ctx).Warn().
			Err(err).
			Str("identity_code", asset.IdentityCode).
			Msg("Failed to flag asset")
	}
}
