package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/ledger"
	"rental-service/internal/models"
	"rental-service/internal/payments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFee = 234

type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (r *recordingPublisher) PublishEvent(ctx context.Context, key string, event interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) countType(match func(interface{}) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if match(e) {
			n++
		}
	}
	return n
}

type stubInitiator struct {
	mu     sync.Mutex
	pushes int
	status payments.Status
}

func (s *stubInitiator) STKPush(ctx context.Context, phone string, amount int64, accountRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	return fmt.Sprintf("REF-%d", s.pushes), nil
}

func (s *stubInitiator) QueryStatus(ctx context.Context, providerRef string) (payments.Status, error) {
	return s.status, nil
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Store, *recordingPublisher, *stubInitiator) {
	t.Helper()
	store := ledger.NewStore(ledger.NewMemoryDriver())
	pub := &recordingPublisher{}
	init := &stubInitiator{status: payments.StatusConfirmed}
	eng := NewEngine(store, broker.NewEventPublisher(pub), init, Options{
		ServiceFee:   testFee,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	})
	return eng, store, pub, init
}

func seedProperty(t *testing.T, store *ledger.Store, id string, price int64) {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	tx.Doc().Properties[id] = &models.Property{
		ID:           id,
		Title:        "Two bedroom " + id,
		Location:     "Nairobi",
		Price:        price,
		Availability: models.AvailabilityAvailable,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, tx.Commit(ctx))
}

func snapshot(t *testing.T, store *ledger.Store) *models.Ledger {
	t.Helper()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	doc := tx.Doc()
	tx.Abort()
	return doc
}

// The literal walk-through from the product brief: two customers compete
// for one property, the first approval wins, payment seals it and the
// rival is auto-rejected.
func TestFullReservationLifecycle(t *testing.T) {
	eng, store, pub, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	b1, err := eng.CreateBooking(ctx, &CreateBookingRequest{
		PropertyID: "P1", CustomerID: "254700000001", CustomerName: "C1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRequested, b1.Status)

	// Property still AVAILABLE, so a second customer may request too.
	b2, err := eng.CreateBooking(ctx, &CreateBookingRequest{
		PropertyID: "P1", CustomerID: "254700000002", CustomerName: "C2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRequested, b2.Status)

	approved, err := eng.ApproveBooking(ctx, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusApproved, approved.Status)
	assert.Equal(t, models.AvailabilityReserved, snapshot(t, store).Properties["P1"].Availability)

	// Approving the rival must now fail.
	_, err = eng.ApproveBooking(ctx, b2.ID)
	assert.Equal(t, ReasonPropertyAlreadyReserved, DenialReason(err))

	// Wrong amount is rejected before any money moves.
	_, err = eng.InitiatePayment(ctx, &InitiatePaymentRequest{
		BookingID: b1.ID, Amount: 50000, PayerPhone: "0700000001",
	})
	assert.Equal(t, ReasonAmountMismatch, DenialReason(err))

	payment, err := eng.InitiatePayment(ctx, &InitiatePaymentRequest{
		BookingID: b1.ID, Amount: 50234, PayerPhone: "0700000001",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusInitiated, payment.Status)
	assert.Equal(t, "254700000001", payment.PayerPhone)
	assert.Equal(t, int64(50000), payment.RentAmount)
	assert.NotEmpty(t, payment.ProviderRef)

	confirmed, err := eng.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusConfirmed, confirmed.Status)

	doc := snapshot(t, store)
	assert.Equal(t, models.BookingStatusPaid, doc.Bookings[b1.ID].Status)
	assert.Equal(t, models.AvailabilityUnavailable, doc.Properties["P1"].Availability)
	assert.Equal(t, models.BookingStatusRejected, doc.Bookings[b2.ID].Status)

	// One rejection event went out for the losing bidder.
	rejections := pub.countType(func(e interface{}) bool {
		_, ok := e.(*models.BookingRejectedEvent)
		return ok
	})
	assert.Equal(t, 1, rejections)
}

func TestDuplicateActiveRequestDenied(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	_, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.NoError(t, err)

	_, err = eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	assert.Equal(t, ReasonDuplicateRequest, DenialReason(err))
}

func TestConfirmPaymentIdempotence(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	b, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.NoError(t, err)
	_, err = eng.ApproveBooking(ctx, b.ID)
	require.NoError(t, err)
	payment, err := eng.InitiatePayment(ctx, &InitiatePaymentRequest{
		BookingID: b.ID, Amount: 50234, PayerPhone: "0700000001",
	})
	require.NoError(t, err)

	_, err = eng.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)

	// Second confirmation fails with InvalidTransition and changes nothing.
	before := snapshot(t, store)
	_, err = eng.ConfirmPayment(ctx, payment.ID)
	assert.Equal(t, ReasonInvalidTransition, DenialReason(err))
	after := snapshot(t, store)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, models.BookingStatusPaid, after.Bookings[b.ID].Status)
}

func TestConcurrentApprovalsExactlyOneWins(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	b1, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.NoError(t, err)
	b2, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000002"})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = eng.ApproveBooking(ctx, b1.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = eng.ApproveBooking(ctx, b2.ID)
	}()
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, ReasonPropertyAlreadyReserved, DenialReason(err))
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	// Never two bookings in {APPROVED, PAID} for one property.
	doc := snapshot(t, store)
	holders := 0
	for _, b := range doc.Bookings {
		if b.Status == models.BookingStatusApproved || b.Status == models.BookingStatusPaid {
			holders++
		}
	}
	assert.Equal(t, 1, holders)
}

func TestCancelRevertsAvailabilityThroughFacade(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	b, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.NoError(t, err)
	_, err = eng.ApproveBooking(ctx, b.ID)
	require.NoError(t, err)

	cancelled, err := eng.CancelBooking(ctx, b.ID, "254700000001")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	doc := snapshot(t, store)
	assert.Equal(t, models.AvailabilityAvailable, doc.Properties["P1"].Availability)

	// The slot is free again for someone else.
	_, err = eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000002"})
	assert.NoError(t, err)
}

func TestFailedPaymentAllowsRetry(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	b, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.NoError(t, err)
	_, err = eng.ApproveBooking(ctx, b.ID)
	require.NoError(t, err)

	payment, err := eng.InitiatePayment(ctx, &InitiatePaymentRequest{
		BookingID: b.ID, Amount: 50234, PayerPhone: "0700000001",
	})
	require.NoError(t, err)

	// A second initiation while one is pending is denied.
	_, err = eng.InitiatePayment(ctx, &InitiatePaymentRequest{
		BookingID: b.ID, Amount: 50234, PayerPhone: "0700000001",
	})
	assert.Equal(t, ReasonPaymentPending, DenialReason(err))

	failed, err := eng.FailPayment(ctx, payment.ID, "provider_declined")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)
	assert.Equal(t, models.BookingStatusApproved, snapshot(t, store).Bookings[b.ID].Status)

	// The customer can try again.
	retry, err := eng.InitiatePayment(ctx, &InitiatePaymentRequest{
		BookingID: b.ID, Amount: 50234, PayerPhone: "0700000001",
	})
	require.NoError(t, err)
	assert.NotEqual(t, payment.ID, retry.ID)
}

func TestRejectApprovedBookingDenied(t *testing.T) {
	eng, store, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	b, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.NoError(t, err)
	_, err = eng.ApproveBooking(ctx, b.ID)
	require.NoError(t, err)

	// Once approved, the booking can only be cancelled, not rejected.
	_, err = eng.RejectBooking(ctx, b.ID)
	assert.Equal(t, ReasonInvalidTransition, DenialReason(err))
	assert.Equal(t, models.BookingStatusApproved, snapshot(t, store).Bookings[b.ID].Status)

	_, err = eng.CancelBooking(ctx, b.ID, "admin")
	assert.NoError(t, err)
}

// conflictDriver always loses the CAS, simulating a hot ledger.
type conflictDriver struct{}

func (d *conflictDriver) Load(ctx context.Context) (*models.Ledger, error) {
	doc := models.NewLedger()
	doc.Properties["P1"] = &models.Property{ID: "P1", Price: 50000, Availability: models.AvailabilityAvailable}
	return doc, nil
}

func (d *conflictDriver) Save(ctx context.Context, expected int64, doc *models.Ledger) error {
	return ledger.ErrConflict
}

func TestConflictRetriesExhausted(t *testing.T) {
	store := ledger.NewStore(&conflictDriver{})
	eng := NewEngine(store, broker.NewEventPublisher(&recordingPublisher{}), &stubInitiator{}, Options{
		ServiceFee:   testFee,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})

	_, err := eng.CreateBooking(context.Background(), &CreateBookingRequest{
		PropertyID: "P1", CustomerID: "254700000001",
	})
	assert.Equal(t, ReasonConflictExhausted, DenialReason(err))
}

func TestConflictBackoffStopsAtBudget(t *testing.T) {
	store := ledger.NewStore(&conflictDriver{})
	eng := NewEngine(store, broker.NewEventPublisher(&recordingPublisher{}), &stubInitiator{}, Options{
		ServiceFee:   testFee,
		MaxRetries:   3,
		RetryBackoff: 75 * time.Millisecond,
	})

	start := time.Now()
	_, err := eng.CreateBooking(context.Background(), &CreateBookingRequest{
		PropertyID: "P1", CustomerID: "254700000001",
	})
	assert.Equal(t, ReasonConflictExhausted, DenialReason(err))

	// Sleeps happen only between attempts (75ms + 150ms); the final
	// failure returns without a third backoff.
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

// faultyDriver wraps a working driver and can be switched into a
// permanent Save failure, simulating a storage fault.
type faultyDriver struct {
	inner ledger.Driver
	fail  bool
	saves int
}

func (d *faultyDriver) Load(ctx context.Context) (*models.Ledger, error) {
	return d.inner.Load(ctx)
}

func (d *faultyDriver) Save(ctx context.Context, expected int64, doc *models.Ledger) error {
	d.saves++
	if d.fail {
		return fmt.Errorf("write ledger: disk full")
	}
	return d.inner.Save(ctx, expected, doc)
}

func TestStorageFaultNotRetriedAndStateIntact(t *testing.T) {
	driver := &faultyDriver{inner: ledger.NewMemoryDriver()}
	store := ledger.NewStore(driver)
	eng := NewEngine(store, broker.NewEventPublisher(&recordingPublisher{}), &stubInitiator{}, Options{
		ServiceFee:   testFee,
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	})
	ctx := context.Background()
	seedProperty(t, store, "P1", 50000)

	driver.fail = true
	savesBefore := driver.saves
	_, err := eng.CreateBooking(ctx, &CreateBookingRequest{PropertyID: "P1", CustomerID: "254700000001"})
	require.Error(t, err)
	assert.Equal(t, Reason(""), DenialReason(err), "a storage fault is not a business denial")
	assert.Equal(t, savesBefore+1, driver.saves, "storage faults are not retried")

	// The last committed document is untouched.
	driver.fail = false
	doc := snapshot(t, store)
	assert.Empty(t, doc.Bookings)
	assert.Equal(t, int64(1), doc.Version)
}
