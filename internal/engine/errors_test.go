package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	base := errors.New("socket reset")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", base, false},
		{"wrapped transient", Transient(base), true},
		{"transient inside fmt wrap", fmt.Errorf("attempt: %w", Transient(base)), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
		{"cancellation is not transient", context.Canceled, false},
		{"unavailable is not transient", ErrUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := Transient(base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "boom")
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "fast", ClassFast.String())
	assert.Equal(t, "balanced", ClassBalanced.String())
	assert.Equal(t, "accurate", ClassAccurate.String())
}
