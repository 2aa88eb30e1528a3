package templates

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Tier string

const (
	Templates           Tier = "Templates"
	WorkingCopies       Tier = "WorkingCopies"
	CompletedAgreements Tier = "CompletedAgreements"
)

const (
	rootDir = "Leases"
	ext     = ".md"
)

var tiers = []Tier{Templates, WorkingCopies, CompletedAgreements}

// Repository stores markdown artifacts in three tier directories under
// <baseDir>/Leases.
type Repository struct {
	root string
}

func New(baseDir string) *Repository {
	if baseDir == "" {
		baseDir = "."
	}
	return &Repository{root: filepath.Join(baseDir, rootDir)}
}

// Root returns the Leases directory.
func (r *Repository) Root() string {
	return r.root
}

// EnsureTiers creates any missing tier directory.
func (r *Repository) EnsureTiers() error {
	for _, t := range tiers {
		if err := os.MkdirAll(r.dir(t), 0o755); err != nil {
			return fmt.Errorf("ensure tier %s: %w", t, err)
		}
	}
	return nil
}

func (r *Repository) dir(t Tier) string {
	return filepath.Join(r.root, string(t))
}

// Path returns the file path of a named artifact. The name is the base name
// without the .md extension.
func (r *Repository) Path(name string, t Tier) string {
	return filepath.Join(r.dir(t), strings.TrimSuffix(name, ext)+ext)
}

// ValidName fails with ErrInvalidName unless name is a single path element.
func ValidName(name string) error {
	base := strings.TrimSuffix(name, ext)
	switch {
	case strings.TrimSpace(base) == "":
		return newError(ErrInvalidName, name, errors.New("empty name"))
	case strings.ContainsAny(base, `/\`+"\x00"), strings.Contains(base, ".."), filepath.Base(base) != base:
		return newError(ErrInvalidName, name, errors.New("name must be a single path element"))
	}
	return nil
}

// resolve validates name and returns its path in tier t.
func (r *Repository) resolve(name string, t Tier) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return r.Path(name, t), nil
}

func (r *Repository) Exists(name string, t Tier) bool {
	path, err := r.resolve(name, t)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ListNames returns the sorted base names of the artifacts in a tier.
func (r *Repository) ListNames(t Tier) ([]string, error) {
	if err := r.EnsureTiers(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir(t))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// Copy duplicates an artifact from one tier into another under a new name.
// An existing destination is never overwritten.
func (r *Repository) Copy(name string, from, to Tier, as string) error {
	srcPath, err := r.resolve(name, from)
	if err != nil {
		return err
	}
	dstPath, err := r.resolve(as, to)
	if err != nil {
		return err
	}
	if err := r.EnsureTiers(); err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newError(notFoundKind(from), name, nil)
		}
		return newError(ErrFileCreationFailed, name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return newError(ErrWorkingCopyExists, as, nil)
		}
		return newError(ErrFileCreationFailed, as, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return newError(ErrFileCreationFailed, as, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return newError(ErrFileCreationFailed, as, err)
	}
	return nil
}

func (r *Repository) Read(name string, t Tier) (string, error) {
	path, err := r.resolve(name, t)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", newError(notFoundKind(t), name, nil)
		}
		return "", fmt.Errorf("read %s/%s: %w", t, name, err)
	}
	return string(data), nil
}

// Write replaces the content of an artifact, creating it if needed.
func (r *Repository) Write(name string, t Tier, content string) error {
	path, err := r.resolve(name, t)
	if err != nil {
		return err
	}
	if err := r.EnsureTiers(); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return newError(ErrFileCreationFailed, name, err)
	}
	return nil
}

// Create writes a new artifact and fails if one with the same name exists.
func (r *Repository) Create(name string, t Tier, content string) (string, error) {
	path, err := r.resolve(name, t)
	if err != nil {
		return "", err
	}
	if err := r.EnsureTiers(); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", newError(ErrFileCreationFailed, name, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", newError(ErrFileCreationFailed, name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", newError(ErrFileCreationFailed, name, err)
	}
	return path, nil
}

// Remove deletes an artifact. A missing artifact is not an error.
func (r *Repository) Remove(name string, t Tier) error {
	path, err := r.resolve(name, t)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s/%s: %w", t, name, err)
	}
	return nil
}

// Seed copies every *.md file of fsys into the Templates tier when that tier
// is empty. It returns the number of templates written.
func (r *Repository) Seed(fsys fs.FS) (int, error) {
	existing, err := r.ListNames(Templates)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	matches, err := fs.Glob(fsys, "*"+ext)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range matches {
		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return n, fmt.Errorf("seed %s: %w", m, err)
		}
		if err := r.Write(strings.TrimSuffix(m, ext), Templates, string(data)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func notFoundKind(t Tier) error {
	switch t {
	case WorkingCopies:
		return ErrWorkingTemplateNotFound
	case CompletedAgreements:
		return ErrAgreementNotFound
	default:
		return ErrTemplateNotFound
	}
}
