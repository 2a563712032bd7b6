package engine

import (
	"time"

	"rental-service/internal/models"
)

// The state machine applies transitions to the in-transaction snapshot.
// It assumes the enforcer already allowed the operation; it still guards
// every edge so a miswired caller gets InvalidTransition instead of a
// corrupted ledger. All mutations are data-only — persistence and events
// belong to the façade.

// legal booking transitions
var bookingTransitions = map[string]map[string]bool{
	models.BookingStatusRequested: {
		models.BookingStatusApproved:  true,
		models.BookingStatusRejected:  true,
		models.BookingStatusCancelled: true,
	},
	// No Approved->Rejected edge: losing bidders are still REQUESTED when
	// the cascade rejects them, because at most one booking per property
	// is ever APPROVED or PAID.
	models.BookingStatusApproved: {
		models.BookingStatusPaid:      true,
		models.BookingStatusCancelled: true,
	},
}

func transitionBooking(b *models.BookingRequest, to string, now time.Time) error {
	if !bookingTransitions[b.Status][to] {
		return deny(ReasonInvalidTransition, "booking %s: %s -> %s", b.ID, b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

// recomputeAvailability derives property availability from the bookings
// referencing it. Availability is never set independently of that set.
func recomputeAvailability(doc *models.Ledger, propertyID string) {
	p, ok := doc.Properties[propertyID]
	if !ok {
		return
	}
	availability := models.AvailabilityAvailable
	for _, b := range doc.Bookings {
		if b.PropertyID != propertyID {
			continue
		}
		switch b.Status {
		case models.BookingStatusPaid:
			p.Availability = models.AvailabilityUnavailable
			return
		case models.BookingStatusApproved:
			availability = models.AvailabilityReserved
		}
	}
	p.Availability = availability
}

// applyCreateBooking adds a new REQUESTED booking to the snapshot.
func applyCreateBooking(doc *models.Ledger, booking *models.BookingRequest) {
	doc.Bookings[booking.ID] = booking
	recomputeAvailability(doc, booking.PropertyID)
}

// applyApprove moves a booking to APPROVED and reserves its property.
func applyApprove(doc *models.Ledger, bookingID string, now time.Time) (*models.BookingRequest, error) {
	b := doc.Bookings[bookingID]
	if err := transitionBooking(b, models.BookingStatusApproved, now); err != nil {
		return nil, err
	}
	recomputeAvailability(doc, b.PropertyID)
	return b, nil
}

// applyInitiatePayment records an INITIATED payment. The booking does not
// move; only a confirmed payment advances it.
func applyInitiatePayment(doc *models.Ledger, payment *models.Payment) {
	doc.Payments[payment.ID] = payment
}

// applyConfirmPayment confirms the payment, moves the booking to PAID,
// marks the property UNAVAILABLE and rejects every rival non-terminal
// booking. The rejected bookings are returned so the façade can publish
// notification events for the losing bidders.
func applyConfirmPayment(doc *models.Ledger, paymentID string, now time.Time) (*models.Payment, []*models.BookingRequest, error) {
	p := doc.Payments[paymentID]
	b := doc.Bookings[p.BookingID]

	if err := transitionBooking(b, models.BookingStatusPaid, now); err != nil {
		return nil, nil, err
	}
	p.Status = models.PaymentStatusConfirmed
	p.UpdatedAt = now

	var rejected []*models.BookingRequest
	for _, rival := range doc.Bookings {
		if rival.PropertyID != b.PropertyID || rival.ID == b.ID {
			continue
		}
		if models.BookingTerminal(rival.Status) {
			continue
		}
		if err := transitionBooking(rival, models.BookingStatusRejected, now); err != nil {
			return nil, nil, err
		}
		rejected = append(rejected, rival)
	}

	recomputeAvailability(doc, b.PropertyID)
	return p, rejected, nil
}

// applyFailPayment records a provider decline. The booking stays APPROVED
// so the customer can retry.
func applyFailPayment(doc *models.Ledger, paymentID string, now time.Time) *models.Payment {
	p := doc.Payments[paymentID]
	p.Status = models.PaymentStatusFailed
	p.UpdatedAt = now
	return p
}

// applyReject moves a booking to REJECTED and recomputes availability.
func applyReject(doc *models.Ledger, bookingID string, now time.Time) (*models.BookingRequest, error) {
	b := doc.Bookings[bookingID]
	if err := transitionBooking(b, models.BookingStatusRejected, now); err != nil {
		return nil, err
	}
	recomputeAvailability(doc, b.PropertyID)
	return b, nil
}

// applyCancel moves a booking to CANCELLED and recomputes availability:
// the property reverts to AVAILABLE only if no other APPROVED/PAID
// booking exists for it.
func applyCancel(doc *models.Ledger, bookingID string, now time.Time) (*models.BookingRequest, error) {
	b := doc.Bookings[bookingID]
	if err := transitionBooking(b, models.BookingStatusCancelled, now); err != nil {
		return nil, err
	}
	recomputeAvailability(doc, b.PropertyID)
	return b, nil
}
