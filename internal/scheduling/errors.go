package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")

	ErrInvalidTransition        = errors.New("invalid transition")
	ErrInvalidDetailKey         = errors.New("invalid detail key")
	ErrConflictingSchedule      = errors.New("conflicting schedule")
	ErrIncompatiblePrescription = errors.New("incompatible prescription")
)

func invalidTransition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func invalidDetailKey(key string, t AppointmentType) error {
	return fmt.Errorf("%w: %q is not legal on a %s appointment", ErrInvalidDetailKey, key, t)
}

func incompatiblePrescription(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIncompatiblePrescription, fmt.Sprintf(format, args...))
}
