package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListNamesCreatesTiers(t *testing.T) {
	r := New(t.TempDir())
	names, err := r.ListNames(WorkingCopies)
	require.NoError(t, err)
	assert.Empty(t, names)
	for _, tier := range tiers {
		info, err := os.Stat(filepath.Join(r.Root(), string(tier)))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	// idempotent
	require.NoError(t, r.EnsureTiers())
}

func TestListNamesSortedAndFiltered(t *testing.T) {
	r := New(t.TempDir())
	require.NoError(t, r.Write("Zeta", Templates, "# Z"))
	require.NoError(t, r.Write("Alpha", Templates, "# A"))
	require.NoError(t, os.WriteFile(filepath.Join(r.Root(), "Templates", "notes.txt"), []byte("x"), 0o644))

	names, err := r.ListNames(Templates)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Zeta"}, names)
}

func TestCopyMissingTemplate(t *testing.T) {
	r := New(t.TempDir())
	err := r.Copy("Cash_Rent", Templates, WorkingCopies, "Cash_Rent_work")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	name, ok := NameOf(err)
	require.True(t, ok)
	assert.Equal(t, "Cash_Rent", name)

	names, err := r.ListNames(WorkingCopies)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCopyFromWorkingTierReportsWorkingKind(t *testing.T) {
	r := New(t.TempDir())
	err := r.Copy("ghost", WorkingCopies, Templates, "ghost")
	assert.ErrorIs(t, err, ErrWorkingTemplateNotFound)
}

func TestCopyDuplicatesContent(t *testing.T) {
	r := New(t.TempDir())
	require.NoError(t, r.Write("Cash_Rent", Templates, "# Lease\n{{lease_id}}\n"))
	require.NoError(t, r.Copy("Cash_Rent", Templates, WorkingCopies, "Cash_Rent_L1"))

	got, err := r.Read("Cash_Rent_L1", WorkingCopies)
	require.NoError(t, err)
	assert.Equal(t, "# Lease\n{{lease_id}}\n", got)
	assert.True(t, r.Exists("Cash_Rent", Templates), "source must stay in place")
}

func TestCopyRefusesExistingDestination(t *testing.T) {
	r := New(t.TempDir())
	require.NoError(t, r.Write("Cash_Rent", Templates, "# new"))
	require.NoError(t, r.Write("busy", WorkingCopies, "# in flight"))

	err := r.Copy("Cash_Rent", Templates, WorkingCopies, "busy")
	assert.ErrorIs(t, err, ErrWorkingCopyExists)

	got, err := r.Read("busy", WorkingCopies)
	require.NoError(t, err)
	assert.Equal(t, "# in flight", got)
}

func TestReadMissing(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Read("nope", CompletedAgreements)
	assert.ErrorIs(t, err, ErrAgreementNotFound)
	_, err = r.Read("nope", Templates)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestWriteFailureIsFileCreationFailed(t *testing.T) {
	base := t.TempDir()
	r := New(base)
	require.NoError(t, r.EnsureTiers())
	// a directory in place of the file makes the write fail
	require.NoError(t, os.Mkdir(r.Path("blocked", WorkingCopies), 0o755))

	err := r.Write("blocked", WorkingCopies, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileCreationFailed)
	var tErr *Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "blocked", tErr.Name)
	assert.NotNil(t, tErr.Err)
}

func TestCreateIsExclusive(t *testing.T) {
	r := New(t.TempDir())
	path, err := r.Create("2024-01-01_x_abcd1234", CompletedAgreements, "body")
	require.NoError(t, err)
	assert.Equal(t, r.Path("2024-01-01_x_abcd1234", CompletedAgreements), path)

	_, err = r.Create("2024-01-01_x_abcd1234", CompletedAgreements, "other")
	assert.ErrorIs(t, err, ErrFileCreationFailed)

	got, err := r.Read("2024-01-01_x_abcd1234", CompletedAgreements)
	require.NoError(t, err)
	assert.Equal(t, "body", got)
}

func TestRemove(t *testing.T) {
	r := New(t.TempDir())
	require.NoError(t, r.Write("tmp", WorkingCopies, "x"))
	require.NoError(t, r.Remove("tmp", WorkingCopies))
	assert.False(t, r.Exists("tmp", WorkingCopies))
	require.NoError(t, r.Remove("tmp", WorkingCopies))
}

func TestSeedOnlyIntoEmptyTier(t *testing.T) {
	r := New(t.TempDir())
	fsys := fstest.MapFS{
		"A.md":       {Data: []byte("# A")},
		"B.md":       {Data: []byte("# B")},
		"README.txt": {Data: []byte("skip")},
	}
	n, err := r.Seed(fsys)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Seed(fstest.MapFS{"C.md": {Data: []byte("# C")}})
	require.NoError(t, err)
	assert.Zero(t, n)

	names, err := r.ListNames(Templates)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestDefaults(t *testing.T) {
	r := New(t.TempDir())
	n, err := r.Seed(Defaults())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	names, err := r.ListNames(Templates)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cash_Rent", "Crop_Share", "Flex_Rent"}, names)
}

func TestArtifactNamesStayInsideTiers(t *testing.T) {
	base := t.TempDir()
	r := New(base)
	require.NoError(t, r.Write("Cash_Rent", Templates, "# Cash Rent"))
	require.NoError(t, os.WriteFile(filepath.Join(base, "outside.md"), []byte("# secret"), 0o644))

	for _, name := range []string{"", "../../outside", "x/../../../escaped", "a/b", `a\b`, "..", "Cash..Rent"} {
		_, err := r.Read(name, Templates)
		assert.ErrorIs(t, err, ErrInvalidName, "read %q", name)
		assert.ErrorIs(t, r.Write(name, WorkingCopies, "x"), ErrInvalidName, "write %q", name)
		_, err = r.Create(name, CompletedAgreements, "x")
		assert.ErrorIs(t, err, ErrInvalidName, "create %q", name)
		assert.ErrorIs(t, r.Copy("Cash_Rent", Templates, WorkingCopies, name), ErrInvalidName, "copy as %q", name)
		assert.ErrorIs(t, r.Copy(name, Templates, WorkingCopies, "wc"), ErrInvalidName, "copy from %q", name)
		assert.ErrorIs(t, r.Remove(name, Templates), ErrInvalidName, "remove %q", name)
		assert.False(t, r.Exists(name, Templates))
	}

	_, err := os.Stat(filepath.Join(base, "escaped.md"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	working, err := r.ListNames(WorkingCopies)
	require.NoError(t, err)
	assert.Empty(t, working)

	name, ok := NameOf(ValidName("../x"))
	require.True(t, ok)
	assert.Equal(t, "../x", name)
	assert.NoError(t, ValidName("2024-03-15_Cash_Rent_L-1_ab12cd34.md"))
}
