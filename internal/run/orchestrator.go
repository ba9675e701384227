// Package run drives complete quality runs: load metadata, reconcile it,
// fetch and evaluate readings for every testable meter, then write the
// run summary. The orchestrator owns phase sequencing and concurrency;
// the domain packages own the checks themselves.
package run

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meterwatch/meterwatch/internal/aggregate"
	"github.com/meterwatch/meterwatch/internal/metrics"
	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/logging"
	"github.com/meterwatch/meterwatch/pkg/quality"
	"github.com/meterwatch/meterwatch/pkg/readings"
)

// Mode selects how much history a run covers.
type Mode string

// Run modes.
const (
	// ModeFull queries every valid partition.
	ModeFull Mode = "full"

	// ModeIncremental queries only the partition covering the current
	// month. The scheduled daily run uses it.
	ModeIncremental Mode = "incremental"
)

// Phase is the orchestrator's current position in the run sequence.
type Phase string

// Run phases, in order.
const (
	PhaseIdle            Phase = "idle"
	PhaseMetadataLoading Phase = "metadata_loading"
	PhaseReconciling     Phase = "reconciling"
	PhaseEvaluating      Phase = "evaluating"
	PhaseSummarizing     Phase = "summarizing"
)

// Orchestrator executes quality runs. One run at a time; Phase reports
// progress to other goroutines.
type Orchestrator struct {
	source     assets.Source
	aggregator *aggregate.Aggregator
	evaluator  *quality.Evaluator
	reconciler *quality.Reconciler
	sink       quality.Sink
	metrics    *metrics.Metrics

	maxDevices    int
	partitionName string
	deviceID      string
	now           func() time.Time

	mu    sync.Mutex
	phase Phase
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxDevices bounds how many devices are evaluated concurrently.
func WithMaxDevices(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxDevices = n
		}
	}
}

// WithMetrics attaches run instrumentation.
func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPartition restricts the run to the single named partition,
// overriding the mode's partition window.
func WithPartition(name string) OrchestratorOption {
	return func(o *Orchestrator) { o.partitionName = name }
}

// WithDevice restricts the run to meters on the single named device.
// Meters on other devices are left out entirely, not counted untestable.
func WithDevice(deviceID string) OrchestratorOption {
	return func(o *Orchestrator) { o.deviceID = deviceID }
}

// WithRunClock overrides the orchestrator's clock. Used by tests.
func WithRunClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator wiring the metadata source, the partition
// aggregator, the quality components, and the sink together.
func New(source assets.Source, aggregator *aggregate.Aggregator, evaluator *quality.Evaluator,
	reconciler *quality.Reconciler, sink quality.Sink, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		aggregator: aggregator,
		evaluator:  evaluator,
		reconciler: reconciler,
		sink:       sink,
		maxDevices: constants.MaxConcurrentDevices,
		now:        time.Now,
		phase:      PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the orchestrator's current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(ctx context.Context, p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	logging.FromContext(ctx).Debug().Str("phase", string(p)).Msg("Phase change")
}

// deviceGroup is one device's meter channels within a classification
// family, fetched once and evaluated per channel.
type deviceGroup struct {
	classification assets.Classification
	deviceID       string
	meters         []assets.Asset
}

// Run executes one complete quality run. A run summary is written even
// when the run fails partway; the returned summary always reflects what
// actually happened.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (*quality.RunSummary, error) {
	runID := uuid.New()
	started := o.now()

	ctx = logging.WithRunID(ctx, runID.String())
	log := logging.FromContext(ctx)
	log.Info().Str("mode", string(mode)).Msg("Starting quality run")

	summary := &quality.RunSummary{RunID: runID, StartedAt: started}
	defer func() {
		o.setPhase(ctx, PhaseSummarizing)
		summary.FinishedAt = o.now()
		if err := o.sink.RecordSummary(ctx, *summary); err != nil {
			log.Error().Err(err).Msg("Failed to record run summary")
		}
		o.setPhase(ctx, PhaseIdle)
		log.Info().
			Int("defects", summary.DefectCount).
			Int("erroneous_assets", summary.ErroneousAssets).
			Int("untestable", summary.Untestable).
			Int("partitions_failed", summary.PartitionsFailed).
			Msg("Quality run finished")
	}()

	// 1. Load both metadata resources; nothing proceeds on half the
	// reference data.
	o.setPhase(ctx, PhaseMetadataLoading)
	mctx, cancel := context.WithTimeout(ctx, constants.MetadataLoadTimeout)
	store, err := assets.Load(mctx, o.source)
	cancel()
	if err != nil {
		o.observeRun(mode, err, started)
		return summary, err
	}
	summary.TotalAssets = store.TotalAssets()

	// 2. Cross-reference loggers and meters.
	o.setPhase(ctx, PhaseReconciling)
	flagged := newFlagCounter()
	reconcileDefects := o.reconciler.Reconcile(ctx, store)
	summary.DefectCount += len(reconcileDefects)
	o.countDefects(reconcileDefects)
	flagged.addDefects(reconcileDefects)

	// 3. Evaluate readings for every testable meter channel.
	o.setPhase(ctx, PhaseEvaluating)
	groups, untestable := o.groupMeters(ctx, store)
	summary.Untestable = untestable
	o.metrics.SetUntestable(untestable)

	partitions, err := o.discoverPartitions(ctx, mode, groups)
	if err != nil {
		o.observeRun(mode, err, started)
		return summary, err
	}

	var (
		tallyMu          sync.Mutex
		defectCount      int
		partitionsFailed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxDevices)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			result, err := o.aggregator.Fetch(gctx, group.deviceID, partitions[group.classification])
			if err != nil {
				return err // only context cancellation reaches here
			}

			byChannel := splitByChannel(result.Series)
			var defects []quality.Defect
			for _, meter := range group.meters {
				found := o.evaluator.Evaluate(gctx, byChannel[meter.Channel], meter)
				defects = append(defects, found...)
				if len(found) > 0 {
					flagged.add(meter)
				}
				o.metrics.AssetEvaluated()
			}
			o.countDefects(defects)
			for range result.Failed {
				o.metrics.PartitionFailed()
			}
			for i := 0; i < len(partitions[group.classification])-len(result.Failed); i++ {
				o.metrics.PartitionQueried()
			}

			tallyMu.Lock()
			defectCount += len(defects)
			partitionsFailed += len(result.Failed)
			tallyMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.observeRun(mode, err, started)
		summary.DefectCount += defectCount
		summary.PartitionsFailed += partitionsFailed
		summary.ErroneousAssets = flagged.count()
		return summary, err
	}

	summary.DefectCount += defectCount
	summary.PartitionsFailed = partitionsFailed
	summary.ErroneousAssets = flagged.count()
	o.metrics.SetFlagged(flagged.count())
	o.observeRun(mode, nil, started)
	return summary, nil
}

// discoverPartitions lists partitions once per classification family in
// use, applying the incremental filter when the mode asks for it. A
// targeted partition name beats the mode's window.
func (o *Orchestrator) discoverPartitions(ctx context.Context, mode Mode, groups []deviceGroup) (map[assets.Classification][]aggregate.Partition, error) {
	var filter aggregate.Filter
	switch {
	case o.partitionName != "":
		filter = aggregate.ByName(o.partitionName)
	case mode == ModeIncremental:
		filter = aggregate.CurrentMonth(o.now())
	}

	out := make(map[assets.Classification][]aggregate.Partition)
	for _, group := range groups {
		if _, done := out[group.classification]; done {
			continue
		}
		partitions, err := o.aggregator.Partitions(ctx, group.classification)
		if err != nil {
			return nil, err
		}
		out[group.classification] = aggregate.FilterPartitions(partitions, filter)
	}
	return out, nil
}

// groupMeters gathers the testable meters by device so each device's
// history is fetched once, and counts the meters that cannot be tested.
// A device restriction drops everything else before testability counts.
func (o *Orchestrator) groupMeters(ctx context.Context, store *assets.Store) ([]deviceGroup, int) {
	type key struct {
		classification assets.Classification
		deviceID       string
	}
	grouped := make(map[key]*deviceGroup)
	var order []key
	untestable := 0
	log := logging.FromContext(ctx)

	for _, meter := range store.Meters() {
		if o.deviceID != "" && meter.IdentityCode != o.deviceID {
			continue
		}
		if err := meter.CheckTestable(); err != nil {
			untestable++
			log.Debug().Err(err).Msg("Skipping untestable meter")
			continue
		}
		k := key{classification: meter.Classification, deviceID: meter.IdentityCode}
		g, ok := grouped[k]
		if !ok {
			g = &deviceGroup{classification: meter.Classification, deviceID: meter.IdentityCode}
			grouped[k] = g
			order = append(order, k)
		}
		g.meters = append(g.meters, meter)
	}

	out := make([]deviceGroup, 0, len(order))
	for _, k := range order {
		out = append(out, *grouped[k])
	}
	return out, untestable
}

func (o *Orchestrator) countDefects(defects []quality.Defect) {
	for _, d := range defects {
		o.metrics.DefectRecorded(d.Kind)
	}
}

func (o *Orchestrator) observeRun(mode Mode, err error, started time.Time) {
	o.metrics.RunCompleted(string(mode), err, o.now().Sub(started))
}

// splitByChannel partitions a device's merged series by channel, keeping
// each channel's newest-first order.
func splitByChannel(series readings.Series) map[string]readings.Series {
	out := make(map[string]readings.Series)
	for _, rec := range series {
		out[rec.Channel] = append(out[rec.Channel], rec)
	}
	return out
}

// flagCounter counts distinct flagged assets across the run's concurrent
// evaluators.
type flagCounter struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFlagCounter() *flagCounter {
	return &flagCounter{seen: make(map[string]struct{})}
}

func (f *flagCounter) add(a assets.Asset) {
	f.mu.Lock()
	f.seen[string(a.Kind)+"|"+a.IdentityCode+"|"+a.Channel] = struct{}{}
	f.mu.Unlock()
}

// addDefects counts the assets behind reconciliation findings. The kind
// range of the defect says which side of the metadata it names.
func (f *flagCounter) addDefects(defects []quality.Defect) {
	for _, d := range defects {
		kind := assets.KindLogger
		if d.Kind >= quality.KindOrphanMeter {
			kind = assets.KindMeter
		}
		f.mu.Lock()
		f.seen[string(kind)+"|"+d.DeviceID+"|"+d.Channel] = struct{}{}
		f.mu.Unlock()
	}
}

func (f *flagCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
