package consultation

import (
	"errors"
	"fmt"

	"github.com/Alijeyrad/teleconsult/internal/model"
)

var (
	ErrNotFound = errors.New("consultation not found")
	// ErrInvalidTransition is returned when the current status does not allow
	// the requested lifecycle step.
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed from current status", model.ErrValidation)
	ErrPaymentRequired   = errors.New("consultation fee must be paid before the consultation starts")
	ErrParentNotFound    = fmt.Errorf("%w: parent consultation not found", model.ErrValidation)
	ErrBusy              = errors.New("consultation is being modified, retry shortly")
)
