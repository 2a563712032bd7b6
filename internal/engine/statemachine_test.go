package engine

import (
	"testing"
	"time"

	"rental-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveReservesProperty(t *testing.T) {
	doc := ledgerWith(t, []*models.Property{property("p1", 50000)}, []*models.BookingRequest{
		booking("b1", "p1", "254700000001", models.BookingStatusRequested),
	}, nil)

	b, err := applyApprove(doc, "b1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, b.Status)
	assert.Equal(t, models.AvailabilityReserved, doc.Properties["p1"].Availability)
}

func TestConfirmPaymentCascade(t *testing.T) {
	doc := ledgerWith(t,
		[]*models.Property{property("p1", 50000)},
		[]*models.BookingRequest{
			booking("b1", "p1", "254700000001", models.BookingStatusApproved),
			booking("b2", "p1", "254700000002", models.BookingStatusRequested),
			booking("b3", "p1", "254700000003", models.BookingStatusRequested),
			booking("b4", "p1", "254700000004", models.BookingStatusCancelled),
		},
		[]*models.Payment{{ID: "pay1", BookingID: "b1", Status: models.PaymentStatusInitiated}},
	)

	p, rejected, err := applyConfirmPayment(doc, "pay1", time.Now())
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusConfirmed, p.Status)
	assert.Equal(t, models.BookingStatusPaid, doc.Bookings["b1"].Status)
	assert.Equal(t, models.AvailabilityUnavailable, doc.Properties["p1"].Availability)

	// Every non-terminal rival is rejected; the already-cancelled one is untouched.
	assert.Len(t, rejected, 2)
	assert.Equal(t, models.BookingStatusRejected, doc.Bookings["b2"].Status)
	assert.Equal(t, models.BookingStatusRejected, doc.Bookings["b3"].Status)
	assert.Equal(t, models.BookingStatusCancelled, doc.Bookings["b4"].Status)
}

func TestCancelRevertsAvailability(t *testing.T) {
	doc := ledgerWith(t, []*models.Property{property("p1", 50000)}, []*models.BookingRequest{
		booking("b1", "p1", "254700000001", models.BookingStatusApproved),
	}, nil)
	recomputeAvailability(doc, "p1")
	require.Equal(t, models.AvailabilityReserved, doc.Properties["p1"].Availability)

	_, err := applyCancel(doc, "b1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityAvailable, doc.Properties["p1"].Availability)
}

func TestCancelKeepsReservedWhileAnotherHolds(t *testing.T) {
	doc := ledgerWith(t, []*models.Property{property("p1", 50000)}, []*models.BookingRequest{
		booking("b1", "p1", "254700000001", models.BookingStatusApproved),
		booking("b2", "p1", "254700000002", models.BookingStatusRequested),
	}, nil)

	_, err := applyCancel(doc, "b2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityReserved, doc.Properties["p1"].Availability)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	now := time.Now()
	for _, status := range []string{
		models.BookingStatusPaid,
		models.BookingStatusRejected,
		models.BookingStatusCancelled,
	} {
		doc := ledgerWith(t, []*models.Property{property("p1", 50000)}, []*models.BookingRequest{
			booking("b1", "p1", "254700000001", status),
		}, nil)

		_, err := applyApprove(doc, "b1", now)
		assert.Equal(t, ReasonInvalidTransition, DenialReason(err), "approve out of %s", status)

		_, err = applyCancel(doc, "b1", now)
		assert.Equal(t, ReasonInvalidTransition, DenialReason(err), "cancel out of %s", status)

		_, err = applyReject(doc, "b1", now)
		assert.Equal(t, ReasonInvalidTransition, DenialReason(err), "reject out of %s", status)
	}
}

func TestRejectOnlyOutOfRequested(t *testing.T) {
	doc := ledgerWith(t, []*models.Property{property("p1", 50000)}, []*models.BookingRequest{
		booking("b1", "p1", "254700000001", models.BookingStatusApproved),
	}, nil)

	_, err := applyReject(doc, "b1", time.Now())
	assert.Equal(t, ReasonInvalidTransition, DenialReason(err))
	assert.Equal(t, models.BookingStatusApproved, doc.Bookings["b1"].Status)
}

func TestFailedPaymentKeepsBookingApproved(t *testing.T) {
	doc := ledgerWith(t,
		[]*models.Property{property("p1", 50000)},
		[]*models.BookingRequest{booking("b1", "p1", "254700000001", models.BookingStatusApproved)},
		[]*models.Payment{{ID: "pay1", BookingID: "b1", Status: models.PaymentStatusInitiated}},
	)

	p := applyFailPayment(doc, "pay1", time.Now())
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, models.BookingStatusApproved, doc.Bookings["b1"].Status)
}
