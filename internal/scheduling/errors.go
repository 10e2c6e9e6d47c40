package scheduling

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can choose between re-input and re-selection.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error is returned by every scheduling operation that fails.
type Error struct {
	Kind    Kind
	Message string
	// Reselect is set on slot conflicts: the caller should pick another slot.
	Reselect bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrPersistence = &Error{Kind: KindPersistence}
)

// Returned by collaborators.
var (
	// ErrSlotTaken is returned by an AppointmentStore when its uniqueness guard
	// rejects a second blocking appointment for the same doctor, date and time.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrSlotBusy is returned by a SlotLocker when another request holds the lock.
	ErrSlotBusy = errors.New("slot is being booked by another request")
)

// KindOf returns the kind of err, or 0 when err is not a scheduling error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func transitionError(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func slotConflictError(err error) error {
	return &Error{Kind: KindConflict, Message: "the selected slot is no longer available, please choose another one", Reselect: true, Err: err}
}

func persistenceError(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}
