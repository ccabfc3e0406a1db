// Package domain provides the error kinds shared by every layer of CodeTutor.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for API clients and task status.
type Kind string

const (
	KindInvalidRepositoryURL    Kind = "InvalidRepositoryURL"
	KindRepositoryTooLarge      Kind = "RepositoryTooLarge"
	KindCloneFailed             Kind = "CloneFailed"
	KindRateLimitExceeded       Kind = "RateLimitExceeded"
	KindNoAPIKeyConfigured      Kind = "NoAPIKeyConfigured"
	KindLLMProviderError        Kind = "LLMProviderError"
	KindAnalysisTimeout         Kind = "AnalysisTimeout"
	KindExportFormatUnsupported Kind = "ExportFormatUnsupported"
	KindTaskNotFound            Kind = "TaskNotFound"
	KindTaskNotCompleted        Kind = "TaskNotCompleted"
	KindValidation              Kind = "Validation"
	KindInternal                Kind = "Internal"
)

// Error is a failure with a kind and a message fit to show to users.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, ErrTaskNotFound) works
// for any TaskNotFound error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == "" && t.Err == nil
	}
	return false
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrInvalidRepositoryURL    = &Error{Kind: KindInvalidRepositoryURL}
	ErrRepositoryTooLarge      = &Error{Kind: KindRepositoryTooLarge}
	ErrCloneFailed             = &Error{Kind: KindCloneFailed}
	ErrRateLimitExceeded       = &Error{Kind: KindRateLimitExceeded}
	ErrNoAPIKeyConfigured      = &Error{Kind: KindNoAPIKeyConfigured}
	ErrLLMProviderError        = &Error{Kind: KindLLMProviderError}
	ErrAnalysisTimeout         = &Error{Kind: KindAnalysisTimeout}
	ErrExportFormatUnsupported = &Error{Kind: KindExportFormatUnsupported}
	ErrTaskNotFound            = &Error{Kind: KindTaskNotFound}
	ErrTaskNotCompleted        = &Error{Kind: KindTaskNotCompleted}
	ErrValidation              = &Error{Kind: KindValidation}
)

// Errorf builds an *Error with a formatted user-facing message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for any other non-nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
