package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithLoggerAndFromContext(t *testing.T) {
	tl := NewTestLogger(t)

	ctx := WithLogger(context.Background(), tl.Logger)
	got := FromContext(ctx)

	got.Info().Msg("through context")
	assert.True(t, tl.Contains("through context"))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, Default(), FromContext(context.Background()))
	assert.Equal(t, Default(), FromContext(nil)) //nolint:staticcheck // nil context fallback is the point
}

func TestWithRunID(t *testing.T) {
	tl := NewTestLogger(t)
	ctx := WithLogger(context.Background(), tl.Logger)

	ctx = WithRunID(ctx, "run-123")
	assert.Equal(t, "run-123", RunID(ctx))

	FromContext(ctx).Info().Msg("tagged")
	assert.True(t, tl.Contains("run-123"))
}

func TestWithDevice(t *testing.T) {
	tl := NewTestLogger(t)
	ctx := WithLogger(context.Background(), tl.Logger)

	ctx = WithDevice(ctx, "D100", "m1")
	FromContext(ctx).Info().Msg("device scoped")

	assert.True(t, tl.Contains("D100"))
	assert.True(t, tl.Contains("m1"))
}
