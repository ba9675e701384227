package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/errors"
	"github.com/meterwatch/meterwatch/pkg/quality"
)

// Postgres is the durable quality.Sink backed by a pgx connection pool.
// All writes are single parameterized statements; the pool handles
// concurrent callers.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn and verifies the
// connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.WrapPersistence("connect", "", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapPersistence("ping", "", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates the schema and seeds the error-type lookup table.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return errors.WrapPersistence("migrate", "", err)
		}
	}
	for _, kind := range quality.Kinds() {
		_, err := p.pool.Exec(ctx,
			`INSERT INTO error_type_lookup (id, description) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description`,
			int(kind), kind.Description())
		if err != nil {
			return errors.WrapPersistence("seed", "error_type_lookup", err)
		}
	}
	return nil
}

// RecordDefect implements quality.Sink.
func (p *Postgres) RecordDefect(ctx context.Context, d quality.Defect) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO errors (error_type, device_id, module_key, occurred_at, detected_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		int(d.Kind), d.DeviceID, d.Channel, d.OccurredAt, d.DetectedAt)
	return errors.WrapPersistence("insert", "errors", err)
}

// FlagAsset implements quality.Sink. The upsert keeps the newest
// most_recent_error_at, so concurrent flaggers and reruns converge.
func (p *Postgres) FlagAsset(ctx context.Context, f quality.FlaggedAsset) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO erroneous_assets (asset_kind, identity_code, channel, utility_type, most_recent_error_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (asset_kind, identity_code, channel) DO UPDATE SET
		   utility_type = EXCLUDED.utility_type,
		   most_recent_error_at = GREATEST(erroneous_assets.most_recent_error_at, EXCLUDED.most_recent_error_at)`,
		string(f.Kind), f.IdentityCode, f.Channel, f.UtilityType, f.MostRecentErrorAt)
	return errors.WrapPersistence("upsert", "erroneous_assets", err)
}

// RecordSummary implements quality.Sink.
func (p *Postgres) RecordSummary(ctx context.Context, s quality.RunSummary) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO quality_log (run_id, total_assets, erroneous_assets, defect_count, untestable, partitions_failed, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.RunID, s.TotalAssets, s.ErroneousAssets, s.DefectCount, s.Untestable,
		s.PartitionsFailed, s.StartedAt, s.FinishedAt)
	return errors.WrapPersistence("insert", "quality_log", err)
}

// Flagged returns the erroneous-assets index ordered by recency.
func (p *Postgres) Flagged(ctx context.Context) ([]quality.FlaggedAsset, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT asset_kind, identity_code, channel, utility_type, most_recent_error_at
		 FROM erroneous_assets ORDER BY most_recent_error_at DESC, identity_code`)
	if err != nil {
		return nil, errors.WrapPersistence("select", "erroneous_assets", err)
	}
	defer rows.Close()

	var out []quality.FlaggedAsset
	for rows.Next() {
		var f quality.FlaggedAsset
		var kind string
		if err := rows.Scan(&kind, &f.IdentityCode, &f.Channel, &f.UtilityType, &f.MostRecentErrorAt); err != nil {
			return nil, errors.WrapPersistence("scan", "erroneous_assets", err)
		}
		f.Kind = assets.Kind(kind)
		out = append(out, f)
	}
	return out, errors.WrapPersistence("select", "erroneous_assets", rows.Err())
}

// RecentDefects returns the newest recorded defects, up to limit.
func (p *Postgres) RecentDefects(ctx context.Context, limit int) ([]quality.Defect, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT error_type, device_id, module_key, occurred_at, detected_at
		 FROM errors ORDER BY detected_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.WrapPersistence("select", "errors", err)
	}
	defer rows.Close()

	var out []quality.Defect
	for rows.Next() {
		var d quality.Defect
		var kind int
		if err := rows.Scan(&kind, &d.DeviceID, &d.Channel, &d.OccurredAt, &d.DetectedAt); err != nil {
			return nil, errors.WrapPersistence("scan", "errors", err)
		}
		d.Kind = quality.Kind(kind)
		out = append(out, d)
	}
	return out, errors.WrapPersistence("select", "errors", rows.Err())
}

// Summaries returns the newest run summaries, up to limit.
func (p *Postgres) Summaries(ctx context.Context, limit int) ([]quality.RunSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT run_id, total_assets, erroneous_assets, defect_count, untestable, partitions_failed, started_at, finished_at
		 FROM quality_log ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.WrapPersistence("select", "quality_log", err)
	}
	defer rows.Close()

	var out []quality.RunSummary
	for rows.Next() {
		var s quality.RunSummary
		if err := rows.Scan(&s.RunID, &s.TotalAssets, &s.ErroneousAssets, &s.DefectCount,
			&s.Untestable, &s.PartitionsFailed, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, errors.WrapPersistence("scan", "quality_log", err)
		}
		out = append(out, s)
	}
	return out, errors.WrapPersistence("select", "quality_log", rows.Err())
}
