package domain

import (
	"errors"
	"fmt"
)

// FaultKind tags true faults so callers can branch on cause without string
// matching. Expected absence (no template, no element) is reported as an
// empty/ok result, not a Fault.
type FaultKind string

const (
	FaultUnauthenticated       FaultKind = "unauthenticated"
	FaultLocatorNotFound       FaultKind = "locator_not_found"
	FaultSubmissionRejected    FaultKind = "submission_rejected"
	FaultTransient             FaultKind = "transient"
	FaultGenerationUnavailable FaultKind = "generation_unavailable"
	FaultQueueFull             FaultKind = "queue_full"
	FaultSessionUnavailable    FaultKind = "session_unavailable"
)

type Fault struct {
	Kind FaultKind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

func NewFault(kind FaultKind, msg string) *Fault {
	return &Fault{Kind: kind, Msg: msg}
}

func WrapFault(kind FaultKind, msg string, err error) *Fault {
	return &Fault{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the fault kind carried by err, or "" for plain errors.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

func IsKind(err error, kind FaultKind) bool {
	return KindOf(err) == kind
}
