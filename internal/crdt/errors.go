package crdt

import "fmt"

// ErrKind distinguishes the Replica-level failure classes so callers can
// branch on Kind via errors.As instead of matching strings.
type ErrKind int

const (
	// KindStateCorrupted is raised when a remote Operation references an
	// unknown GlobalID: a Delete whose target was never inserted, or an
	// Insert whose After entry does not exist.
	KindStateCorrupted ErrKind = iota
	// KindInvalidRange is raised when a local edit's bounds are
	// impossible (from > to, or the range exceeds the visible length).
	KindInvalidRange
	// KindLimitExceeded signals that an edit would push the document
	// past its configured character limit. Never raised by the Replica
	// itself — callers check CheckDocumentLimit before issuing the edit.
	KindLimitExceeded
)

func (k ErrKind) String() string {
	switch k {
	case KindStateCorrupted:
		return "state_corrupted"
	case KindInvalidRange:
		return "invalid_range"
	case KindLimitExceeded:
		return "limit_exceeded"
	default:
		return "unknown"
	}
}

// Error is the Replica's error type. Kind carries the failure class; Msg
// carries detail.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newStateCorrupted(format string, args ...any) *Error {
	return &Error{Kind: KindStateCorrupted, Msg: fmt.Sprintf(format, args...)}
}

func newInvalidRange(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRange, Msg: fmt.Sprintf(format, args...)}
}

// CheckDocumentLimit returns a KindLimitExceeded error if inserting
// insertLen runes into a document that currently has currentLen visible
// runes would exceed limit. A limit <= 0 means "no limit". This is a
// pure client-side guard: it never touches server state.
func CheckDocumentLimit(currentLen, insertLen, limit int) error {
	if limit <= 0 {
		return nil
	}
	if currentLen+insertLen > limit {
		return &Error{
			Kind: KindLimitExceeded,
			Msg:  fmt.Sprintf("document limit %d exceeded (have %d, inserting %d)", limit, currentLen, insertLen),
		}
	}
	return nil
}
