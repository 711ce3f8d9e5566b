package base

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when an update targets a missing item.
	ErrNotFound = errors.New("base: item not found")
	// ErrKeyExists is returned by Insert when the key is already taken.
	ErrKeyExists = errors.New("base: key already exists")
	// ErrFieldNotFound is returned by Path.Resolve for a missing field.
	ErrFieldNotFound = errors.New("base: field not found")
	// ErrNotAcknowledged marks batch items the service left out of its response.
	ErrNotAcknowledged = errors.New("base: item not acknowledged by the service")
	// ErrRejected marks batch items the service listed as failed.
	ErrRejected = errors.New("base: item rejected by the service")
	// ErrCursorLoop aborts pagination when the service repeats a cursor.
	ErrCursorLoop = errors.New("base: pagination cursor repeated")
)

// InvalidPathError reports a malformed field path.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("base: invalid path %q: %s", e.Path, e.Reason)
}

// InvalidOperatorValueError reports an operator/value mismatch, either in a
// query constraint or in an update operation.
type InvalidOperatorValueError struct {
	Path     string
	Operator string
	Reason   string
}

func (e *InvalidOperatorValueError) Error() string {
	return fmt.Sprintf("base: invalid value for %s on %q: %s", e.Operator, e.Path, e.Reason)
}

// DuplicateConstraintError reports a (path, operator) pair used twice in one expression.
type DuplicateConstraintError struct {
	Path     string
	Operator Operator
}

func (e *DuplicateConstraintError) Error() string {
	return fmt.Sprintf("base: duplicate constraint %q", constraintKey(e.Path, e.Operator))
}

// ConflictingOperationError reports a path that is both deleted and mutated
// within the same update.
type ConflictingOperationError struct {
	Path      string
	Operation string
}

func (e *ConflictingOperationError) Error() string {
	return fmt.Sprintf("base: cannot %s %q: path is marked for deletion", e.Operation, e.Path)
}

// InvalidKeyError reports a client-supplied key outside [A-Za-z0-9_-].
type InvalidKeyError struct {
	Key string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("base: invalid key %q", e.Key)
}

// Transport error kinds.
const (
	KindNetwork  = "network"
	KindStatus   = "status"
	KindDecode   = "decode"
	KindEncode   = "encode"
	KindCanceled = "canceled"
)

// TransportError is a network or HTTP level failure. The core does not
// interpret it beyond attaching it to the affected chunk or page.
type TransportError struct {
	Kind    string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("base: transport ")
	b.WriteString(e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteValidationError is a non-2xx response carrying the service's own
// error messages (malformed query, item too large, ...).
type RemoteValidationError struct {
	Status   int
	Messages []string
}

func (e *RemoteValidationError) Error() string {
	return fmt.Sprintf("base: rejected by service (status %d): %s", e.Status, strings.Join(e.Messages, "; "))
}
