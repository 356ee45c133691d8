// Package id defines the TypeID-based identity type for forq workers.
// Worker IDs are K-sortable (UUIDv7-based), globally unique, and URL-safe
// in the format "wkr_suffix". Job IDs are caller-supplied strings;
// NewJobID generates one only when the caller left it empty.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// PrefixWorker is the TypeID prefix for worker identifiers.
const PrefixWorker = "wkr"

// PrefixJob is the TypeID prefix used for generated job identifiers.
const PrefixJob = "job"

// NewJobID generates a job identifier for callers that did not supply
// one. Job ids are otherwise arbitrary caller-chosen strings.
func NewJobID() string {
	tid, err := typeid.Generate(PrefixJob)
	if err != nil {
		panic(fmt.Sprintf("id: generate job id: %v", err))
	}
	return tid.String()
}

// WorkerID identifies one worker execution slot. It is recorded on a job
// while the worker holds the claim.
type WorkerID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value WorkerID.
var Nil WorkerID

// NewWorkerID generates a new globally unique worker ID.
func NewWorkerID() WorkerID {
	tid, err := typeid.Generate(PrefixWorker)
	if err != nil {
		// The prefix is a compile-time constant; failure is a programming error.
		panic(fmt.Sprintf("id: generate worker id: %v", err))
	}
	return WorkerID{inner: tid, valid: true}
}

// ParseWorkerID parses a worker ID string (e.g.
// "wkr_01h2xcejqtf2nbrexx3vqjhp41"). The empty string parses to Nil,
// matching an unclaimed job.
func ParseWorkerID(s string) (WorkerID, error) {
	if s == "" {
		return Nil, nil
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if tid.Prefix() != PrefixWorker {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", PrefixWorker, tid.Prefix())
	}

	return WorkerID{inner: tid, valid: true}, nil
}

// String returns the full TypeID string (prefix_suffix), or the empty
// string for Nil.
func (w WorkerID) String() string {
	if !w.valid {
		return ""
	}
	return w.inner.String()
}

// IsNil reports whether this ID is the zero value.
func (w WorkerID) IsNil() bool { return !w.valid }

// MarshalText implements encoding.TextMarshaler.
func (w WorkerID) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *WorkerID) UnmarshalText(b []byte) error {
	parsed, err := ParseWorkerID(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
