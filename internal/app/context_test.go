package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasekeeper/internal/config"
	"leasekeeper/internal/db"
	"leasekeeper/internal/templates"
)

func TestOpenFreshWorkspace(t *testing.T) {
	dir := t.TempDir()
	ws, err := Open(context.Background(), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	assert.FileExists(t, db.Path(dir))
	assert.Equal(t, filepath.Join(dir, "Leases"), ws.Templates.Root())
	names, err := ws.Templates.ListNames(templates.Templates)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cash_Rent", "Crop_Share", "Flex_Rent"}, names)
	assert.Equal(t, "Cash_Rent", ws.Engine.Config.Agreements.DefaultTemplate)
}

func TestOpenHonoursConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "agreements:\n  dir: docs\n  seed_templates: false\n"
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(yml), 0o644))

	ws, err := Open(context.Background(), dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	assert.Equal(t, filepath.Join(dir, "docs", "Leases"), ws.Templates.Root())
	names, err := ws.Templates.ListNames(templates.Templates)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("ledger:\n  revenue_account:\n    code: \"\"\n"), 0o644))
	_, err := Open(context.Background(), dir, nil)
	require.Error(t, err)
}
