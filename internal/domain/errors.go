package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type ErrorKind string

const (
	KindConfiguration     ErrorKind = "configuration"
	KindProvider          ErrorKind = "provider"
	KindMalformedOutput   ErrorKind = "malformed_output"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindNotFound          ErrorKind = "not_found"
)

// Error carries a kind for branching and a message that is safe to show
// outside the pipeline. The wrapped cause stays internal.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func NewProviderError(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf(format, args...), Err: cause}
}

func NewMalformedOutputError(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedOutput, Message: fmt.Sprintf(format, args...), Err: cause}
}

func NewInvalidTransitionError(id uuid.UUID, from, to Status) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("job %s cannot move from %s to %s", id, from, to),
	}
}

func NewJobNotFoundError(id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("job %s not found", id)}
}

func NewSubjectNotFoundError(id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("subject %s not found", id)}
}

func NewRequirementNotFoundError(id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("requirement %s not found", id)}
}

func NewNoAnalysisError(subjectID uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("subject %s has no successful analysis", subjectID)}
}

func NewJobNotFinishedError(id uuid.UUID, status Status) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("job %s has no result yet (status %s)", id, status),
	}
}
