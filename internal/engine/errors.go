package engine

import "fmt"

// Reason identifies why an operation was denied. The set is fixed; HTTP
// and event layers map on it rather than on error strings.
type Reason string

const (
	// Validation: the caller referenced something that does not exist or
	// sent a wrong value.
	ReasonPropertyNotFound Reason = "PROPERTY_NOT_FOUND"
	ReasonBookingNotFound  Reason = "BOOKING_NOT_FOUND"
	ReasonPaymentNotFound  Reason = "PAYMENT_NOT_FOUND"
	ReasonAmountMismatch   Reason = "AMOUNT_MISMATCH"
	ReasonInvalidPhone     Reason = "INVALID_PHONE"

	// Invariant violations: legal request, illegal given the ledger state.
	ReasonPropertyUnavailable     Reason = "PROPERTY_UNAVAILABLE"
	ReasonDuplicateRequest        Reason = "DUPLICATE_REQUEST"
	ReasonPropertyAlreadyReserved Reason = "PROPERTY_ALREADY_RESERVED"
	ReasonBookingNotApproved      Reason = "BOOKING_NOT_APPROVED"
	ReasonAlreadyTerminal         Reason = "ALREADY_TERMINAL"
	ReasonInvalidTransition       Reason = "INVALID_TRANSITION"
	ReasonPropertyHasBookings     Reason = "PROPERTY_HAS_ACTIVE_BOOKINGS"
	ReasonPaymentPending          Reason = "PAYMENT_ALREADY_PENDING"

	// Concurrency: the retry budget ran out; safe to resubmit.
	ReasonConflictExhausted Reason = "CONFLICT_EXHAUSTED"
)

// Denial is a business-rule rejection. It travels as an ordinary error
// value; nothing in the engine panics for a rule violation.
type Denial struct {
	Reason Reason
	Detail string
}

func (d *Denial) Error() string {
	if d.Detail == "" {
		return string(d.Reason)
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Detail)
}

func deny(reason Reason, format string, args ...interface{}) *Denial {
	return &Denial{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// DenialReason extracts the Reason from an error, or "" if the error is
// not a Denial.
func DenialReason(err error) Reason {
	if d, ok := err.(*Denial); ok {
		return d.Reason
	}
	return ""
}
