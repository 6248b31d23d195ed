package model

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every precondition failure raised by the
// reschedule workflow.
var ErrValidation = errors.New("validation error")

var (
	ErrIneligibleForReschedule = fmt.Errorf("%w: consultation is not eligible for reschedule", ErrValidation)
	ErrNoRescheduleRequested   = fmt.Errorf("%w: no reschedule request to approve", ErrValidation)
	ErrRescheduleNotApproved   = fmt.Errorf("%w: reschedule must be approved before applying", ErrValidation)
)
