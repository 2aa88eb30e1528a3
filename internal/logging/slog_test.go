package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "json", "info")
	require.NoError(t, err)

	l.With("component", "agreement").Warn(context.Background(), "cleanup failed", "working_copy", "Cash_Rent_L1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "cleanup failed", rec["msg"])
	assert.Equal(t, "agreement", rec["component"])
	assert.Equal(t, "Cash_Rent_L1", rec["working_copy"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "text", "info")
	require.NoError(t, err)
	l.Debug(context.Background(), "hidden")
	assert.Empty(t, buf.String())
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "xml", "info")
	require.Error(t, err)
	_, err = New(&bytes.Buffer{}, "text", "loud")
	require.Error(t, err)
}
