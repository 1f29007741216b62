package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrIncompleteChecklist = errors.New("incomplete checklist")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyApplied      = errors.New("already applied")
	ErrValidation          = errors.New("validation error")
	ErrConcurrentUpdate    = errors.New("concurrent update")
)

// TransitionError reports a state machine guard violation together with the
// state the entity was in when the action was attempted.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: cannot %s from status %q", e.Entity, e.ID, e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IncompleteChecklistError is returned when completion is attempted while
// checklist items are still pending.
type IncompleteChecklistError struct {
	InspectionID string
	Pending      int
}

func (e *IncompleteChecklistError) Error() string {
	noun := "items"
	if e.Pending == 1 {
		noun = "item"
	}
	return fmt.Sprintf("inspection %s: cannot complete: %d %s still pending", e.InspectionID, e.Pending, noun)
}

func (e *IncompleteChecklistError) Is(target error) bool {
	return target == ErrIncompleteChecklist
}

// AlreadyAppliedError is returned when a work order tries to advance a
// schedule (or raise a corrective order) a second time.
type AlreadyAppliedError struct {
	WorkOrderID string
	ScheduleID  string
	Detail      string
}

func (e *AlreadyAppliedError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("work order %s already advanced schedule %s", e.WorkOrderID, e.ScheduleID)
}

func (e *AlreadyAppliedError) Is(target error) bool {
	return target == ErrAlreadyApplied
}

// NotFoundError builds a wrapped ErrNotFound for the given entity.
func NotFoundError(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}

// ValidationError builds a wrapped ErrValidation.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
