package theatre

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied is returned when the viewer cannot read the workflow or
	// has no resolvable tenant scope.
	ErrAccessDenied = errors.New("theatre: access denied")
	// ErrUnknownCommand is returned by Dispatch for names outside the command table.
	ErrUnknownCommand = errors.New("theatre: unknown command")
)

// User-facing messages.
const (
	MsgOffline      = "You are offline. The theatre workflow is read-only until the connection is restored."
	MsgReadOnly     = "You have read-only access to the theatre workflow."
	MsgUnableToSave = "Unable to save changes. Please try again."
	MsgSelectCase   = "Select a theatre case first."
	MsgInvalidInput = "The request could not be understood."
	MsgLoadQueue    = "Unable to load the theatre queue."
	MsgLoadSnapshot = "Unable to load the theatre case."
)

// ErrorKind classifies a command failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindWrite      ErrorKind = "write"
	KindOffline    ErrorKind = "offline"
	KindReadOnly   ErrorKind = "read_only"
)

// CommandError is returned by Dispatch when a command was refused locally or
// the backend did not apply it. Message is what the viewer was shown.
type CommandError struct {
	Command CommandName
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("theatre: %s %s: %s: %v", e.Command, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("theatre: %s %s: %s", e.Command, e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *CommandError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// LoadTarget names what a failed load was fetching.
type LoadTarget string

const (
	LoadQueue    LoadTarget = "queue"
	LoadSnapshot LoadTarget = "snapshot"
)

// LoadError is the dismissible error shown when a read failed. Cached data
// stays in place.
type LoadError struct {
	Target  LoadTarget `json:"target"`
	Message string     `json:"message"`
	CaseID  string     `json:"case_id,omitempty"`
}
