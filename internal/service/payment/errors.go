package payment

import (
	"errors"
	"fmt"

	"github.com/Alijeyrad/teleconsult/internal/model"
)

var (
	ErrPaymentNotFound = errors.New("payment transaction not found")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrAlreadyPaid     = errors.New("consultation is already paid")
	ErrNotPaid         = errors.New("consultation has not been paid")
	ErrNotPayable      = fmt.Errorf("%w: consultation cannot be paid in its current status", model.ErrValidation)
	ErrNothingToPay    = fmt.Errorf("%w: consultation fee is zero", model.ErrValidation)
	ErrEmptyWebhook    = fmt.Errorf("%w: webhook body carries no response payload", model.ErrValidation)
)
