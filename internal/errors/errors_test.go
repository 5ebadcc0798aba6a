package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	err := New(KindNotFound, "project not found: demo")
	assert.Equal(t, "[NOT_FOUND] project not found: demo", err.Error())

	wrapped := Wrap(KindCorrupt, "state file", stderrors.New("bad header"))
	assert.Contains(t, wrapped.Error(), "CORRUPT")
	assert.Contains(t, wrapped.Error(), "bad header")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindTransient, "ignored", nil))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("io failure")
	err := Wrap(KindTransient, "embed call", cause)
	require.ErrorIs(t, err, cause)
}

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("project", "ghost")
	assert.True(t, stderrors.Is(err, New(KindNotFound, "")))
	assert.False(t, stderrors.Is(err, New(KindCorrupt, "")))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind("")},
		{"app error", DimensionMismatch(768, 256), KindDimensionMismatch},
		{"wrapped app error", fmt.Errorf("outer: %w", Transient("llm call", stderrors.New("eof"))), KindTransient},
		{"context cancelled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
		{"plain error", stderrors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transient("timeout", nil)))
	assert.False(t, IsRetryable(NotFound("chunk", "x")))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail(t *testing.T) {
	err := New(KindFatal, "chunk ordinals non-contiguous").
		WithDetail("path", "a.py").
		WithDetail("project", "ab12cd34")
	assert.Equal(t, "a.py", err.Details["path"])
	assert.Equal(t, "ab12cd34", err.Details["project"])
}
