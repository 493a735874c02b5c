package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrForbidden               = errors.New("not allowed to act on this appointment")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrPractitionerNotVerified = errors.New("practitioner is not verified for new bookings")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
