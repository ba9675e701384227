// Package store provides the persistence implementations for quality
// findings: a Postgres-backed sink for real runs and an in-memory sink
// for tests and dry runs. Both satisfy quality.Sink.
package store

import (
	"context"
	"sync"

	"github.com/meterwatch/meterwatch/pkg/quality"
)

// flagKey is the uniqueness key of the erroneous-assets index.
type flagKey struct {
	kind         string
	identityCode string
	channel      string
}

// Memory is an in-memory Sink. Safe for concurrent use; FlagAsset is an
// idempotent last-write-wins upsert, matching the relational sink.
type Memory struct {
	mu        sync.Mutex
	defects   []quality.Defect
	flagged   map[flagKey]quality.FlaggedAsset
	summaries []quality.RunSummary
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{flagged: make(map[flagKey]quality.FlaggedAsset)}
}

// RecordDefect implements quality.Sink.
func (m *Memory) RecordDefect(_ context.Context, d quality.Defect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defects = append(m.defects, d)
	return nil
}

// FlagAsset implements quality.Sink.
func (m *Memory) FlagAsset(_ context.Context, f quality.FlaggedAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := flagKey{kind: string(f.Kind), identityCode: f.IdentityCode, channel: f.Channel}
	existing, ok := m.flagged[key]
	if ok && existing.MostRecentErrorAt.After(f.MostRecentErrorAt) {
		return nil
	}
	m.flagged[key] = f
	return nil
}

// RecordSummary implements quality.Sink.
func (m *Memory) RecordSummary(_ context.Context, s quality.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
	return nil
}

// Defects returns a copy of all recorded defects.
func (m *Memory) Defects() []quality.Defect {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quality.Defect, len(m.defects))
	copy(out, m.defects)
	return out
}

// DefectsOfKind returns the recorded defects of one kind.
func (m *Memory) DefectsOfKind(kind quality.Kind) []quality.Defect {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []quality.Defect
	for _, d := range m.defects {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Flagged returns a copy of the erroneous-assets index.
func (m *Memory) Flagged() []quality.FlaggedAsset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quality.FlaggedAsset, 0, len(m.flagged))
	for _, f := range m.flagged {
		out = append(out, f)
	}
	return out
}

// Summaries returns a copy of all recorded run summaries.
func (m *Memory) Summaries() []quality.RunSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quality.RunSummary, len(m.summaries))
	copy(out, m.summaries)
	return out
}
