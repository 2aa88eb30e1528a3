package templates

import (
	"errors"
	"fmt"
)

var (
	ErrTemplateNotFound        = errors.New("template not found")
	ErrWorkingTemplateNotFound = errors.New("working template not found")
	ErrAgreementNotFound       = errors.New("agreement not found")
	ErrFileCreationFailed      = errors.New("file creation failed")
	ErrInvalidTemplate         = errors.New("invalid template")
	ErrWorkingCopyExists       = errors.New("working copy already exists")
	ErrInvalidName             = errors.New("invalid artifact name")
)

// Error carries the artifact name an operation failed on. errors.Is matches
// both the kind sentinel and the underlying cause.
type Error struct {
	Kind error
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, name string, err error) error {
	return &Error{Kind: kind, Name: name, Err: err}
}

// NameOf returns the artifact name carried by err, if any.
func NameOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Name, true
	}
	return "", false
}
