// Package aggregate discovers telemetry partitions and merges one
// device's readings across them. Partition queries fan out concurrently
// with a bounded worker pool; a failing partition is isolated and
// reported, never allowed to sink the whole fetch.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/meterwatch/meterwatch/internal/ckan"
	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/errors"
	"github.com/meterwatch/meterwatch/pkg/logging"
	"github.com/meterwatch/meterwatch/pkg/readings"
)

// Catalog is the slice of the catalog client the aggregator needs.
type Catalog interface {
	Package(ctx context.Context, id string) (*ckan.Package, error)
	DeviceRows(ctx context.Context, resourceID, deviceID string) ([]map[string]string, error)
}

// Aggregator fetches and merges per-device readings from the partitioned
// telemetry stores. Safe for concurrent use.
type Aggregator struct {
	catalog      Catalog
	maxQueries   int
	maxRetries   int
	backoff      time.Duration
	maxBackoff   time.Duration
	queryTimeout time.Duration
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithMaxQueries bounds how many partition queries run at once.
func WithMaxQueries(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxQueries = n
		}
	}
}

// WithRetry sets the retry count and initial backoff for failed
// partition queries.
func WithRetry(retries int, backoff time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.maxRetries = retries
		if backoff > 0 {
			a.backoff = backoff
		}
	}
}

// WithQueryTimeout bounds each individual partition query.
func WithQueryTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.queryTimeout = d
		}
	}
}

// New creates an aggregator over the given catalog.
func New(catalog Catalog, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		catalog:      catalog,
		maxQueries:   constants.MaxPartitionQueries,
		maxRetries:   constants.MaxRetries,
		backoff:      constants.RetryBackoff,
		maxBackoff:   constants.MaxRetryBackoff,
		queryTimeout: constants.PartitionQueryTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of fetching one device across its partitions.
type Result struct {
	Series readings.Series

	// Failed lists the partitions that could not be queried after
	// retries. The series is complete with respect to every other
	// partition.
	Failed []Partition
}

// partitionResult carries one worker's outcome back to the merger.
type partitionResult struct {
	partition Partition
	series    readings.Series
	err       error
}

// Fetch queries every given partition for the device's readings and
// merges them into one series, newest first. All partition queries
// complete (or exhaust retries) before Fetch returns; failures are
// collected per partition rather than propagated, so one bad month never
// hides the rest of the history. Only context cancellation returns an
// error.
func (a *Aggregator) Fetch(ctx context.Context, deviceID string, partitions []Partition) (*Result, error) {
	results := make(chan partitionResult, len(partitions))
	sem := make(chan struct{}, a.maxQueries)

	var wg sync.WaitGroup
	for _, p := range partitions {
		wg.Add(1)
		go func(p Partition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			series, err := a.fetchPartition(ctx, deviceID, p)
			results <- partitionResult{partition: p, series: series, err: err}
		}(p)
	}
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	out := &Result{}
	for r := range results {
		if r.err != nil {
			log.Warn().
				Err(r.err).
				Str("device_id", deviceID).
				Str("partition", r.partition.Name).
				Msg("Partition query failed")
			out.Failed = append(out.Failed, r.partition)
			continue
		}
		out.Series = append(out.Series, r.series...)
	}
	out.Series.SortDescending()
	return out, nil
}

// fetchPartition queries one partition with per-attempt timeout and
// exponential backoff between attempts.
func (a *Aggregator) fetchPartition(ctx context.Context, deviceID string, p Partition) (readings.Series, error) {
	var lastErr error
	backoff := a.backoff

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > a.maxBackoff {
				backoff = a.maxBackoff
			}
		}

		qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
		rows, err := a.catalog.DeviceRows(qctx, p.ResourceID, deviceID)
		cancel()
		if err == nil {
			return a.parseRows(ctx, rows, p), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.NewPartitionError(p.Name, deviceID, "", a.maxRetries+1, lastErr)
}

// parseRows converts raw partition rows into records. Rows without an
// orderable timestamp are dropped here; value text is kept verbatim so
// downstream checks see exactly what the store holds.
func (a *Aggregator) parseRows(ctx context.Context, rows []map[string]string, p Partition) readings.Series {
	log := logging.FromContext(ctx)
	series := make(readings.Series, 0, len(rows))
	for _, row := range rows {
		rec, err := readings.FromRow(row, p.Name)
		if err != nil {
			log.Debug().
				Err(err).
				Str("partition", p.Name).
				Msg("Dropping row with unusable timestamp")
			continue
		}
		series = append(series, rec)
	}
	return series
}

// FilterPartitions applies a filter, returning all partitions when the
// filter is nil.
func FilterPartitions(partitions []Partition, filter Filter) []Partition {
	if filter == nil {
		return partitions
	}
	var out []Partition
	for _, p := range partitions {
		if filter(p) {
			out = append(out, p)
		}
	}
	return out
}
