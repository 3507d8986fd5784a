// Package fault defines the error taxonomy shared by the personalization
// pipeline. Every error carries a stable code plus the identifiers needed to
// trace it back to a user, session, or memory entry.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

type Code string

const (
	// NotFound marks a missing session or profile. Fatal to the call that
	// raised it; the caller is expected to create a fresh session.
	NotFound Code = "not_found"
	// DependencyFailure marks an unreachable embedding/analyzer/inference
	// backend or store. Callers degrade to a safe default instead of
	// aborting the user-visible turn.
	DependencyFailure Code = "dependency_failure"
	// GenerationFailure marks an unreachable generation backend. Fatal to
	// the turn only; the inbound message stays in working memory.
	GenerationFailure Code = "generation_failure"
	// AnalyticsFailure is swallowed unconditionally by the sink.
	AnalyticsFailure Code = "analytics_failure"
)

type Error struct {
	Code      Code
	Op        string
	UserID    string
	SessionID string
	MemoryID  string
	Err       error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.UserID != "" {
		fmt.Fprintf(&sb, " user=%s", e.UserID)
	}
	if e.SessionID != "" {
		fmt.Fprintf(&sb, " session=%s", e.SessionID)
	}
	if e.MemoryID != "" {
		fmt.Fprintf(&sb, " memory=%s", e.MemoryID)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, op string) *Error {
	return &Error{Code: code, Op: op}
}

func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) WithUser(userID string) *Error {
	e.UserID = userID
	return e
}

func (e *Error) WithSession(sessionID string) *Error {
	e.SessionID = sessionID
	return e
}

func (e *Error) WithMemory(memoryID string) *Error {
	e.MemoryID = memoryID
	return e
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

func IsNotFound(err error) bool {
	return Is(err, NotFound)
}
