package engine

import (
	"rental-service/internal/models"
)

// The enforcer is the single place legality is decided. Every function
// here is pure: it inspects a ledger snapshot and either returns nil
// (allow) or a *Denial with the first matching reason. No I/O, no
// mutation; the state machine only runs after the enforcer allows.

// winningBooking returns the booking holding the property, if any: at most
// one booking per property may be APPROVED or PAID.
func winningBooking(doc *models.Ledger, propertyID string) *models.BookingRequest {
	for _, b := range doc.Bookings {
		if b.PropertyID != propertyID {
			continue
		}
		if b.Status == models.BookingStatusApproved || b.Status == models.BookingStatusPaid {
			return b
		}
	}
	return nil
}

// CheckCreateBooking validates a new booking request for (property, customer).
func CheckCreateBooking(doc *models.Ledger, propertyID, customerID string) error {
	if _, ok := doc.Properties[propertyID]; !ok {
		return deny(ReasonPropertyNotFound, "property %s", propertyID)
	}
	if w := winningBooking(doc, propertyID); w != nil {
		return deny(ReasonPropertyUnavailable, "property %s is held by booking %s", propertyID, w.ID)
	}
	for _, b := range doc.Bookings {
		if b.PropertyID == propertyID && b.CustomerID == customerID && !models.BookingTerminal(b.Status) {
			return deny(ReasonDuplicateRequest, "customer %s already has booking %s", customerID, b.ID)
		}
	}
	return nil
}

// CheckApproveBooking validates an admin approval.
func CheckApproveBooking(doc *models.Ledger, bookingID string) error {
	b, ok := doc.Bookings[bookingID]
	if !ok {
		return deny(ReasonBookingNotFound, "booking %s", bookingID)
	}
	if models.BookingTerminal(b.Status) {
		return deny(ReasonAlreadyTerminal, "booking %s is %s", bookingID, b.Status)
	}
	if w := winningBooking(doc, b.PropertyID); w != nil && w.ID != bookingID {
		return deny(ReasonPropertyAlreadyReserved, "booking %s already holds property %s", w.ID, b.PropertyID)
	}
	return nil
}

// CheckInitiatePayment validates a payment initiation. amount must equal
// the property price plus the fixed service fee.
func CheckInitiatePayment(doc *models.Ledger, bookingID string, amount, serviceFee int64) error {
	b, ok := doc.Bookings[bookingID]
	if !ok {
		return deny(ReasonBookingNotFound, "booking %s", bookingID)
	}
	if b.Status != models.BookingStatusApproved {
		return deny(ReasonBookingNotApproved, "booking %s is %s", bookingID, b.Status)
	}
	p, ok := doc.Properties[b.PropertyID]
	if !ok {
		return deny(ReasonPropertyNotFound, "property %s", b.PropertyID)
	}
	if expected := p.Price + serviceFee; amount != expected {
		return deny(ReasonAmountMismatch, "expected %d, got %d", expected, amount)
	}
	if pending := doc.PaymentForBooking(bookingID); pending != nil {
		return deny(ReasonPaymentPending, "payment %s is %s", pending.ID, pending.Status)
	}
	return nil
}

// CheckConfirmPayment validates a provider confirmation. A second racing
// confirmation fails here: either the payment already left INITIATED or
// the booking already left APPROVED.
func CheckConfirmPayment(doc *models.Ledger, paymentID string) error {
	p, ok := doc.Payments[paymentID]
	if !ok {
		return deny(ReasonPaymentNotFound, "payment %s", paymentID)
	}
	if p.Status != models.PaymentStatusInitiated {
		return deny(ReasonInvalidTransition, "payment %s is %s", paymentID, p.Status)
	}
	b, ok := doc.Bookings[p.BookingID]
	if !ok {
		return deny(ReasonBookingNotFound, "booking %s", p.BookingID)
	}
	if b.Status != models.BookingStatusApproved {
		return deny(ReasonBookingNotApproved, "booking %s is %s", b.ID, b.Status)
	}
	return nil
}

// CheckFailPayment validates recording a provider decline.
func CheckFailPayment(doc *models.Ledger, paymentID string) error {
	p, ok := doc.Payments[paymentID]
	if !ok {
		return deny(ReasonPaymentNotFound, "payment %s", paymentID)
	}
	if p.Status != models.PaymentStatusInitiated {
		return deny(ReasonInvalidTransition, "payment %s is %s", paymentID, p.Status)
	}
	return nil
}

// CheckRejectBooking validates a direct admin rejection. Only a
// REQUESTED booking can be rejected outright; an approved one must be
// cancelled.
func CheckRejectBooking(doc *models.Ledger, bookingID string) error {
	b, ok := doc.Bookings[bookingID]
	if !ok {
		return deny(ReasonBookingNotFound, "booking %s", bookingID)
	}
	if models.BookingTerminal(b.Status) {
		return deny(ReasonAlreadyTerminal, "booking %s is %s", bookingID, b.Status)
	}
	if b.Status != models.BookingStatusRequested {
		return deny(ReasonInvalidTransition, "booking %s is %s, cancel it instead", bookingID, b.Status)
	}
	return nil
}

// CheckCancelBooking validates a cancellation by customer or admin.
func CheckCancelBooking(doc *models.Ledger, bookingID string) error {
	b, ok := doc.Bookings[bookingID]
	if !ok {
		return deny(ReasonBookingNotFound, "booking %s", bookingID)
	}
	if models.BookingTerminal(b.Status) {
		return deny(ReasonAlreadyTerminal, "booking %s is %s", bookingID, b.Status)
	}
	return nil
}

// CheckRemoveProperty validates property deletion: denied while any
// non-terminal booking references it.
func CheckRemoveProperty(doc *models.Ledger, propertyID string) error {
	if _, ok := doc.Properties[propertyID]; !ok {
		return deny(ReasonPropertyNotFound, "property %s", propertyID)
	}
	for _, b := range doc.Bookings {
		if b.PropertyID == propertyID && !models.BookingTerminal(b.Status) {
			return deny(ReasonPropertyHasBookings, "booking %s is %s", b.ID, b.Status)
		}
	}
	return nil
}
