package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which failure class an error belongs to.
type Kind string

const (
	KindClassificationFailed Kind = "classification_failed"
	KindUnknownTool          Kind = "unknown_tool"
	KindCapability           Kind = "capability_error"
	KindPlanHalted           Kind = "plan_halted"
	// KindInternal covers failures outside the four request-level kinds.
	KindInternal Kind = "internal"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrClassificationFailed = &Error{Kind: KindClassificationFailed, StepIndex: -1}
	ErrUnknownTool          = &Error{Kind: KindUnknownTool, StepIndex: -1}
	ErrCapability           = &Error{Kind: KindCapability, StepIndex: -1}
	ErrPlanHalted           = &Error{Kind: KindPlanHalted, StepIndex: -1}
)

// Error is a kinded failure. StepIndex is -1 when no plan step is involved.
type Error struct {
	Kind      Kind
	Message   string
	StepIndex int
	Cause     error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Kind, e.Message))
	if e.StepIndex >= 0 {
		b.WriteString(fmt.Sprintf(" (step %d)", e.StepIndex))
	}
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error that is not tied to a plan step.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StepIndex: -1}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, StepIndex: -1, Cause: cause}
}

// AtStep returns a copy of e bound to a step index.
func (e *Error) AtStep(index int) *Error {
	c := *e
	c.StepIndex = index
	return &c
}

// KindOf extracts the Kind from err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StepIndexOf returns the failing step index carried by err, or -1.
func StepIndexOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StepIndex
	}
	return -1
}

func NewClassificationFailed(reason string, cause error) *Error {
	return Wrap(KindClassificationFailed, "command classification failed: "+reason, cause)
}

func NewUnknownTool(name string) *Error {
	return New(KindUnknownTool, fmt.Sprintf("unknown tool: %s", name))
}

func NewCapabilityError(tool string, cause error) *Error {
	return Wrap(KindCapability, fmt.Sprintf("capability %s failed", tool), cause)
}

func NewPlanHalted(index int, tool string, cause error) *Error {
	return &Error{
		Kind:      KindPlanHalted,
		Message:   fmt.Sprintf("sequential plan halted at %s", tool),
		StepIndex: index,
		Cause:     cause,
	}
}
