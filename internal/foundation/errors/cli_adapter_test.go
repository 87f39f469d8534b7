package errors

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"validation", ValidationError("bad release path").Build(), 2},
		{"not found", NotFoundError("release not in history").Build(), 3},
		{"precondition", PreconditionError("missing manifests").Build(), 4},
		{"config", ConfigError("no applications").Build(), 7},
		{"artifact", ArtifactError("list failed").Build(), 8},
		{"store", StoreError("save failed").Build(), 9},
		{"wrapped store", fmt.Errorf("deploy: %w", StoreError("save failed").Build()), 9},
		{"unclassified", fmt.Errorf("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, slog.Default())
	verbose := NewCLIErrorAdapter(true, slog.Default())

	internal := InternalError("unexpected state").Build()
	assert.Equal(t, "Internal error occurred (use -v for details)", quiet.FormatError(internal))
	assert.Contains(t, verbose.FormatError(internal), "unexpected state")

	store := StoreError("failed to save release history").Build()
	assert.Equal(t, "Error: [store:fatal] failed to save release history", quiet.FormatError(store))
	assert.Equal(t, "Error: plain", quiet.FormatError(fmt.Errorf("plain")))
	assert.Empty(t, quiet.FormatError(nil))
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var logs, out bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&logs, nil)))
	adapter.out = &out
	code := -1
	adapter.exit = func(c int) { code = c }

	err := PreconditionError("missing manifests").WithContext("revision", "abc123").Build()
	adapter.HandleError(err)

	require.Equal(t, 4, code)
	assert.Contains(t, out.String(), "missing manifests")
	assert.Contains(t, logs.String(), "revision=abc123")
	assert.Contains(t, logs.String(), "category=precondition")
}
