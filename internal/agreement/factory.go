// Package agreement turns working copies of templates into hashed,
// immutable completed agreements.
package agreement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leasekeeper/internal/audit"
	"leasekeeper/internal/compose"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/logging"
	"leasekeeper/internal/metrics"
	"leasekeeper/internal/templates"
)

type Info struct {
	FileName  string                   `json:"file_name"`
	Path      string                   `json:"path"`
	Hash      string                   `json:"hash"`
	ShortHash string                   `json:"short_hash"`
	Data      domain.LeaseCreationData `json:"data"`
}

type Factory struct {
	Repo   *templates.Repository
	Logger logging.Logger
	Now    func() time.Time
	// Rand returns the 8 hex character discriminator of a file name.
	Rand func() string
}

func NewFactory(repo *templates.Repository, logger logging.Logger) *Factory {
	return &Factory{Repo: repo, Logger: logger}
}

func (f *Factory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *Factory) logger() logging.Logger {
	if f.Logger == nil {
		return logging.Discard()
	}
	return f.Logger
}

func (f *Factory) discriminator() string {
	if f.Rand != nil {
		return f.Rand()
	}
	return RandomDiscriminator()
}

// RandomDiscriminator returns 8 lowercase hex characters from a random UUID.
func RandomDiscriminator() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// FileName builds the completed agreement name for a working copy.
func FileName(created time.Time, workingName, discriminator string) string {
	return fmt.Sprintf("%s_%s_%s", created.Format(domain.DateLayout), workingName, discriminator)
}

// CreateCompletedAgreement composes the named working copy and writes the
// result into the completed tier. The working copy is left in place.
func (f *Factory) CreateCompletedAgreement(ctx context.Context, workingName string, data domain.LeaseCreationData) (Info, error) {
	info, err := f.create(ctx, workingName, data)
	if err != nil {
		metrics.ObserveAgreement("error")
		return Info{}, err
	}
	metrics.ObserveAgreement("ok")
	f.logger().Info(ctx, "agreement created", "file", info.FileName, "hash", info.ShortHash, "lease_id", data.LeaseID)
	return info, nil
}

func (f *Factory) create(ctx context.Context, workingName string, data domain.LeaseCreationData) (Info, error) {
	text, err := f.Repo.Read(workingName, templates.WorkingCopies)
	if err != nil {
		return Info{}, err
	}
	now := f.now()
	body, err := compose.Compose(text, data, now)
	if err != nil {
		return Info{}, err
	}
	name := FileName(now, workingName, f.discriminator())
	path, err := f.Repo.Create(name, templates.CompletedAgreements, body)
	if err != nil {
		return Info{}, err
	}
	// Hash what landed on disk, not the in-memory body.
	hash, err := audit.HashFile(path)
	if err != nil {
		return Info{}, err
	}
	return Info{
		FileName:  name + ".md",
		Path:      path,
		Hash:      hash,
		ShortHash: audit.Short(hash),
		Data:      data,
	}, nil
}

// Generate copies templateName into the working tier as workingName, creates
// the completed agreement and removes the working copy on every exit path.
func (f *Factory) Generate(ctx context.Context, templateName, workingName string, data domain.LeaseCreationData) (Info, error) {
	if err := f.Repo.Copy(templateName, templates.Templates, templates.WorkingCopies, workingName); err != nil {
		return Info{}, err
	}
	defer f.release(ctx, workingName)
	return f.CreateCompletedAgreement(ctx, workingName, data)
}

func (f *Factory) release(ctx context.Context, workingName string) {
	if err := f.Repo.Remove(workingName, templates.WorkingCopies); err != nil {
		metrics.ObserveCleanup("error")
		f.logger().Warn(ctx, "working copy cleanup failed", "working_copy", workingName, "error", err)
		return
	}
	metrics.ObserveCleanup("ok")
	f.logger().Debug(ctx, "working copy removed", "working_copy", workingName)
}

// Verify recomputes the hash of a completed agreement. A tampered file yields
// an *audit.MismatchError together with the recomputed Info.
func (f *Factory) Verify(ctx context.Context, fileName, expectedHash string) (Info, error) {
	name := strings.TrimSuffix(fileName, ".md")
	if !f.Repo.Exists(name, templates.CompletedAgreements) {
		return Info{}, &templates.Error{Kind: templates.ErrAgreementNotFound, Name: name}
	}
	path := f.Repo.Path(name, templates.CompletedAgreements)
	hash, err := audit.HashFile(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{FileName: name + ".md", Path: path, Hash: hash, ShortHash: audit.Short(hash)}
	if err := audit.Verify(path, expectedHash); err != nil {
		var mismatch *audit.MismatchError
		if errors.As(err, &mismatch) {
			f.logger().Warn(ctx, "agreement hash mismatch", "file", info.FileName, "expected", audit.Short(expectedHash), "actual", info.ShortHash)
		}
		return info, err
	}
	return info, nil
}

// Discard removes a completed agreement that was never recorded against a lease.
func (f *Factory) Discard(ctx context.Context, info Info) {
	name := strings.TrimSuffix(info.FileName, ".md")
	if err := f.Repo.Remove(name, templates.CompletedAgreements); err != nil {
		f.logger().Warn(ctx, "discard agreement failed", "file", info.FileName, "error", err)
	}
}

// List returns the completed agreement names.
func (f *Factory) List() ([]string, error) {
	return f.Repo.ListNames(templates.CompletedAgreements)
}

// Read returns the content of a completed agreement.
func (f *Factory) Read(fileName string) (string, error) {
	return f.Repo.Read(strings.TrimSuffix(fileName, ".md"), templates.CompletedAgreements)
}
