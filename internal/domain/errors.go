package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrFollowUpNotFound  = errors.New("follow-up not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrNotPending        = errors.New("follow-up is not pending")
	ErrNotFailed         = errors.New("follow-up is not in failed state")
	ErrClaimLost         = errors.New("follow-up is being dispatched by another pass")
	ErrFollowUpCancelled = errors.New("follow-up is cancelled")
	ErrNothingToResend   = errors.New("follow-up was never sent")
	ErrInvalidCadence    = errors.New("invalid cadence")
	ErrInvalidPhone      = errors.New("invalid recipient phone")
	ErrSendFailed        = errors.New("message could not be sent")
)

// CooldownError is returned when a manual resend hits an active cool-down.
type CooldownError struct {
	Remaining        time.Duration
	RemainingSeconds int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("wait %d seconds before resending", e.RemainingSeconds)
}
