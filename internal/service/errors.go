package service

import "errors"

// Business outcomes callers branch on with errors.Is. Anything not listed
// here that comes out of a service method is an upstream or internal failure.
var (
	ErrCardNotFound        = errors.New("card not found")
	ErrCardPending         = errors.New("card is not yet activated")
	ErrCardSuspended       = errors.New("card is suspended")
	ErrCardDisabled        = errors.New("card is disabled")
	ErrCardWiped           = errors.New("card has been wiped")
	ErrTapVerification     = errors.New("card verification failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLimitExceeded       = errors.New("limit exceeded")
	ErrNoPendingTopUp      = errors.New("no pending top-up for payment hash")
	ErrAmountOutOfBounds   = errors.New("amount outside allowed bounds")
	ErrInvalidInvoice      = errors.New("invalid invoice")
	ErrPaymentFailed       = errors.New("payment failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)
