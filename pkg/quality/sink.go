package quality

import "context"

// Sink is the durable store for quality findings. Implementations must
// make FlagAsset safe under concurrent callers for the same key; the
// upsert is last-write-wins on MostRecentErrorAt.
//
// Writes are best-effort during a run: callers log failures and carry on
// rather than aborting, so a lost defect degrades the data, never the run.
type Sink interface {
	// RecordDefect appends one defect.
	RecordDefect(ctx context.Context, d Defect) error

	// FlagAsset inserts or refreshes the erroneous-asset index entry
	// keyed by (Kind, IdentityCode, Channel).
	FlagAsset(ctx context.Context, f FlaggedAsset) error

	// RecordSummary appends the per-run aggregate record.
	RecordSummary(ctx context.Context, s RunSummary) error
}
