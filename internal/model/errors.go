package model

import "errors"

// Errors returned by the hold and payment lifecycle.  Handlers translate
// them into HTTP responses; callers compare with errors.Is.
var (
    ErrNotFound        = errors.New("not found")
    ErrSeatUnavailable = errors.New("seat unavailable")
    ErrHoldExpired     = errors.New("hold expired")
    ErrForbidden       = errors.New("forbidden")
    ErrConflict        = errors.New("conflict")
    ErrUnauthenticated = errors.New("unauthenticated")
)

var (
    ErrTicketClosed         = errors.New("ticket is not open for sale")
    ErrAlreadyPaid          = errors.New("hold already paid")
    ErrHoldLimitReached     = errors.New("hold limit reached")
    ErrInvalidPaymentMethod = errors.New("invalid payment method")
    ErrValidation           = errors.New("validation error")
)
