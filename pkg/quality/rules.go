package quality

import (
	"time"

	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/readings"
)

// Rule is one independent quality check over a merged reading series.
// The series arrives sorted newest first. Rules never short-circuit each
// other; each returns its own findings.
type Rule interface {
	// Name identifies the rule in logs.
	Name() string

	// Evaluate returns the defects this rule finds in the series.
	Evaluate(series readings.Series, asset assets.Asset, now time.Time) []Defect
}

// Registry is the ordered battery of rules an evaluator applies.
// Extension means appending a Rule; unconfigured extension rules are
// explicit no-ops rather than absent branches.
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry with the given rules, applied in order.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// DefaultRegistry returns the standard rule battery. Magnitude bounds and
// interval cadences come from the profiles; utilities without a profile
// entry are skipped by those rules.
func DefaultRegistry(staleWindow time.Duration, profiles *Profiles) *Registry {
	if profiles == nil {
		profiles = &Profiles{}
	}
	return NewRegistry(
		&StaleRule{Window: staleWindow},
		&NegativeRule{},
		&UnparseableRule{},
		&MagnitudeRule{Bounds: profiles.Magnitude},
		&IntervalRule{Cadence: profiles.Cadence},
	)
}

// Rules returns the registered rules in application order.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// Append adds a rule to the end of the battery.
func (r *Registry) Append(rule Rule) {
	r.rules = append(r.rules, rule)
}

// StaleRule flags a device whose newest reading is older than the window.
// The defect is dated at that newest reading, not at detection time.
type StaleRule struct {
	Window time.Duration
}

// Name implements Rule.
func (r *StaleRule) Name() string { return "stale" }

// Evaluate implements Rule.
func (r *StaleRule) Evaluate(series readings.Series, asset assets.Asset, now time.Time) []Defect {
	newest, ok := series.Newest()
	if !ok {
		return nil
	}
	if newest.Timestamp.Before(now.Add(-r.Window)) {
		return []Defect{{
			Kind:       KindStaleReadings,
			DeviceID:   asset.IdentityCode,
			Channel:    asset.Channel,
			OccurredAt: newest.Timestamp,
			DetectedAt: now,
		}}
	}
	return nil
}

// NegativeRule flags every reading with a value below zero, one defect per
// occurrence, dated at the reading.
type NegativeRule struct{}

// Name implements Rule.
func (r *NegativeRule) Name() string { return "negative" }

// Evaluate implements Rule.
func (r *NegativeRule) Evaluate(series readings.Series, asset assets.Asset, now time.Time) []Defect {
	var out []Defect
	for _, rec := range series {
		v, err := rec.Value()
		if err != nil {
			continue // unparseable values belong to UnparseableRule
		}
		if v < 0 {
			out = append(out, Defect{
				Kind:       KindNegativeReading,
				DeviceID:   asset.IdentityCode,
				Channel:    asset.Channel,
				OccurredAt: rec.Timestamp,
				DetectedAt: now,
			})
		}
	}
	return out
}

// UnparseableRule flags readings whose value text does not parse as a
// decimal. Evaluation of the remaining records continues regardless.
type UnparseableRule struct{}

// Name implements Rule.
func (r *UnparseableRule) Name() string { return "unparseable" }

// Evaluate implements Rule.
func (r *UnparseableRule) Evaluate(series readings.Series, asset assets.Asset, now time.Time) []Defect {
	var out []Defect
	for _, rec := range series {
		if _, err := rec.Value(); err != nil {
			out = append(out, Defect{
				Kind:       KindUnparseableReading,
				DeviceID:   asset.IdentityCode,
				Channel:    asset.Channel,
				OccurredAt: rec.Timestamp,
				DetectedAt: now,
			})
		}
	}
	return out
}

// MagnitudeRule flags readings outside the expected bounds for the
// asset's utility type. Utilities without configured bounds are not
// checked; the rule is then a no-op by design of the profile table.
type MagnitudeRule struct {
	Bounds map[string]Bound
}

// Name implements Rule.
func (r *MagnitudeRule) Name() string { return "magnitude" }

// Evaluate implements Rule.
func (r *MagnitudeRule) Evaluate(series readings.Series, asset assets.Asset, now time.Time) []Defect {
	bound, ok := r.Bounds[asset.UtilityType]
	if !ok {
		return nil
	}
	var out []Defect
	for _, rec := range series {
		v, err := rec.Value()
		if err != nil {
			continue
		}
		if v < bound.Min || v > bound.Max {
			out = append(out, Defect{
				Kind:       KindAnomalousMagnitude,
				DeviceID:   asset.IdentityCode,
				Channel:    asset.Channel,
				OccurredAt: rec.Timestamp,
				DetectedAt: now,
			})
		}
	}
	return out
}

// intervalSlack is how much wider than the expected cadence a gap may be
// before it counts as irregular.
const intervalSlack = 1.5

// IntervalRule flags gaps between successive readings that exceed the
// expected sampling cadence for the utility type. Utilities without a
// configured cadence are not checked.
type IntervalRule struct {
	Cadence map[string]Duration
}

// Name implements Rule.
func (r *IntervalRule) Name() string { return "interval" }

// Evaluate implements Rule.
func (r *IntervalRule) Evaluate(series readings.Series, asset assets.Asset, now time.Time) []Defect {
	cadence, ok := r.Cadence[asset.UtilityType]
	if !ok || cadence.Duration() <= 0 {
		return nil
	}
	limit := time.Duration(float64(cadence.Duration()) * intervalSlack)

	var out []Defect
	// Series is newest first; each gap is measured against the newer record.
	for i := 0; i+1 < len(series); i++ {
		gap := series[i].Timestamp.Sub(series[i+1].Timestamp)
		if gap > limit {
			out = append(out, Defect{
				Kind:       KindIrregularInterval,
				DeviceID:   asset.IdentityCode,
				Channel:    asset.Channel,
				OccurredAt: series[i].Timestamp,
				DetectedAt: now,
			})
		}
	}
	return out
}
