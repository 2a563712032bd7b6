package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/ledger"
	"rental-service/internal/models"
	"rental-service/internal/payments"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the reservation façade. Every write operation runs one ledger
// transaction: begin, enforce, transition, commit — retried from scratch
// on version conflict. Events are published only after a successful
// commit, so consumers never observe an uncommitted transition.
type Engine struct {
	store        *ledger.Store
	events       *broker.EventPublisher
	initiator    payments.Initiator
	logger       *zap.Logger
	serviceFee   int64
	maxRetries   int
	retryBackoff time.Duration
}

// Options tunes the engine's business knobs.
type Options struct {
	ServiceFee   int64
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewEngine creates a reservation engine.
func NewEngine(store *ledger.Store, events *broker.EventPublisher, initiator payments.Initiator, opts Options) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	return &Engine{
		store:        store,
		events:       events,
		initiator:    initiator,
		logger:       util.GetLogger(),
		serviceFee:   opts.ServiceFee,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
	}
}

// ServiceFee returns the fixed fee added on top of the rent.
func (e *Engine) ServiceFee() int64 {
	return e.serviceFee
}

// withRetry runs fn inside a ledger transaction, retrying the whole
// read-validate-commit cycle on conflict with exponential backoff. fn must
// be safe to re-run against a fresh snapshot.
func (e *Engine) withRetry(ctx context.Context, op string, fn func(doc *models.Ledger) error) error {
	backoff := e.retryBackoff
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		tx, err := e.store.Begin(ctx)
		if err != nil {
			return err
		}

		if err := fn(tx.Doc()); err != nil {
			tx.Abort()
			if r := DenialReason(err); r != "" {
				util.BookingDenialsTotal.WithLabelValues(string(r)).Inc()
			}
			return err
		}

		err = tx.Commit(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return err
		}

		e.logger.Warn("Ledger commit conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt))

		// No sleep after the final failure.
		if attempt == e.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	util.ConflictRetriesExhausted.Inc()
	return deny(ReasonConflictExhausted, "%s: commit retry budget exhausted", op)
}

// CreateBookingRequest is a customer's booking submission.
type CreateBookingRequest struct {
	PropertyID   string `json:"property_id" binding:"required"`
	CustomerID   string `json:"customer_id" binding:"required"`
	CustomerName string `json:"customer_name"`
}

// CreateBooking records a new REQUESTED booking for (property, customer).
func (e *Engine) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*models.BookingRequest, error) {
	ctx, span := util.StartSpan(ctx, "Engine.CreateBooking")
	defer span.End()

	booking := &models.BookingRequest{
		ID:           uuid.New().String(),
		PropertyID:   req.PropertyID,
		CustomerID:   req.CustomerID,
		CustomerName: req.CustomerName,
		Status:       models.BookingStatusRequested,
	}

	err := e.withRetry(ctx, "create_booking", func(doc *models.Ledger) error {
		if err := CheckCreateBooking(doc, req.PropertyID, req.CustomerID); err != nil {
			return err
		}
		now := time.Now().UTC()
		booking.CreatedAt = now
		booking.UpdatedAt = now
		applyCreateBooking(doc, booking.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.BookingsCreatedTotal.Inc()
	e.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.String("property_id", booking.PropertyID))

	e.publishBookingEvent(ctx, models.EventTypeBookingCreated, booking, "")
	return booking, nil
}

// ApproveBooking moves a booking to APPROVED and reserves its property.
// Only the first approval for a property can win; a racing second approval
// is denied PropertyAlreadyReserved at commit-time validation.
func (e *Engine) ApproveBooking(ctx context.Context, bookingID string) (*models.BookingRequest, error) {
	ctx, span := util.StartSpan(ctx, "Engine.ApproveBooking")
	defer span.End()

	var booking *models.BookingRequest
	err := e.withRetry(ctx, "approve_booking", func(doc *models.Ledger) error {
		if err := CheckApproveBooking(doc, bookingID); err != nil {
			return err
		}
		b, err := applyApprove(doc, bookingID, time.Now().UTC())
		if err != nil {
			return err
		}
		booking = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.BookingsApprovedTotal.Inc()
	e.logger.Info("Booking approved",
		zap.String("booking_id", booking.ID),
		zap.String("property_id", booking.PropertyID))

	e.publishBookingEvent(ctx, models.EventTypeBookingApproved, booking, "")
	return booking, nil
}

// RejectBooking declines a REQUESTED booking (admin action). An approved
// booking is cancelled instead of rejected; losing bidders are rejected
// through the confirm-payment cascade while still REQUESTED.
func (e *Engine) RejectBooking(ctx context.Context, bookingID string) (*models.BookingRequest, error) {
	ctx, span := util.StartSpan(ctx, "Engine.RejectBooking")
	defer span.End()

	var booking *models.BookingRequest
	err := e.withRetry(ctx, "reject_booking", func(doc *models.Ledger) error {
		if err := CheckRejectBooking(doc, bookingID); err != nil {
			return err
		}
		b, err := applyReject(doc, bookingID, time.Now().UTC())
		if err != nil {
			return err
		}
		booking = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.BookingsRejectedTotal.Inc()
	e.logger.Info("Booking rejected", zap.String("booking_id", booking.ID))

	e.publishBookingEvent(ctx, models.EventTypeBookingRejected, booking, "declined")
	return booking, nil
}

// CancelBooking cancels a booking; the property reverts to AVAILABLE
// unless another APPROVED/PAID booking still holds it.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, actor string) (*models.BookingRequest, error) {
	ctx, span := util.StartSpan(ctx, "Engine.CancelBooking")
	defer span.End()

	var booking *models.BookingRequest
	err := e.withRetry(ctx, "cancel_booking", func(doc *models.Ledger) error {
		if err := CheckCancelBooking(doc, bookingID); err != nil {
			return err
		}
		b, err := applyCancel(doc, bookingID, time.Now().UTC())
		if err != nil {
			return err
		}
		booking = b.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.BookingsCancelledTotal.Inc()
	e.logger.Info("Booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("actor", actor))

	if e.events != nil {
		event := &models.BookingCancelledEvent{
			BaseEvent:  newBaseEvent(models.EventTypeBookingCancelled),
			BookingID:  booking.ID,
			PropertyID: booking.PropertyID,
			CustomerID: booking.CustomerID,
			Actor:      actor,
		}
		if err := e.events.PublishBookingCancelled(ctx, event); err != nil {
			e.logger.Error("Failed to publish BookingCancelled event", zap.Error(err))
		}
	}
	return booking, nil
}

// InitiatePaymentRequest starts a payment for an approved booking.
type InitiatePaymentRequest struct {
	BookingID  string `json:"booking_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required"`
	PayerPhone string `json:"payer_phone" binding:"required"`
}

// InitiatePayment validates the amount, sends the STK push through the
// external initiator and records an INITIATED payment carrying the
// provider's opaque reference. The booking moves to PAID only once the
// provider's asynchronous confirmation is mapped to ConfirmPayment.
func (e *Engine) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "Engine.InitiatePayment")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentInitiateLatency.Observe(time.Since(start).Seconds())
	}()

	phone, err := payments.NormalizePhone(req.PayerPhone)
	if err != nil {
		return nil, deny(ReasonInvalidPhone, "invalid payer phone: %v", err)
	}

	// Pre-validate on a read snapshot so an obviously illegal request
	// never reaches the money side.
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	checkErr := CheckInitiatePayment(tx.Doc(), req.BookingID, req.Amount, e.serviceFee)
	tx.Abort()
	if checkErr != nil {
		if r := DenialReason(checkErr); r != "" {
			util.BookingDenialsTotal.WithLabelValues(string(r)).Inc()
		}
		return nil, checkErr
	}

	// The push happens once, outside the retry loop; a conflict retry
	// must not charge the customer twice.
	providerRef, err := e.initiator.STKPush(ctx, phone, req.Amount, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	payment := &models.Payment{
		ID:          uuid.New().String(),
		BookingID:   req.BookingID,
		Amount:      req.Amount,
		RentAmount:  req.Amount - e.serviceFee,
		ServiceFee:  e.serviceFee,
		PayerPhone:  phone,
		ProviderRef: providerRef,
		Status:      models.PaymentStatusInitiated,
	}

	err = e.withRetry(ctx, "initiate_payment", func(doc *models.Ledger) error {
		if err := CheckInitiatePayment(doc, req.BookingID, req.Amount, e.serviceFee); err != nil {
			return err
		}
		now := time.Now().UTC()
		payment.CreatedAt = now
		payment.UpdatedAt = now
		applyInitiatePayment(doc, payment.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", payment.BookingID),
		zap.String("provider_ref", payment.ProviderRef))

	if e.events != nil {
		event := &models.PaymentInitiatedEvent{
			BaseEvent:   newBaseEvent(models.EventTypePaymentInitiated),
			PaymentID:   payment.ID,
			BookingID:   payment.BookingID,
			Amount:      payment.Amount,
			PayerPhone:  payment.PayerPhone,
			ProviderRef: payment.ProviderRef,
		}
		if err := e.events.PublishPaymentInitiated(ctx, event); err != nil {
			e.logger.Error("Failed to publish PaymentInitiated event", zap.Error(err))
		}
	}
	return payment, nil
}

// ConfirmPayment applies the provider's confirmation: payment CONFIRMED,
// booking PAID, property UNAVAILABLE and every rival non-terminal booking
// auto-rejected. Confirming twice fails with InvalidTransition.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "Engine.ConfirmPayment")
	defer span.End()

	var payment *models.Payment
	var booking *models.BookingRequest
	var rejected []*models.BookingRequest

	err := e.withRetry(ctx, "confirm_payment", func(doc *models.Ledger) error {
		if err := CheckConfirmPayment(doc, paymentID); err != nil {
			return err
		}
		p, rivals, err := applyConfirmPayment(doc, paymentID, time.Now().UTC())
		if err != nil {
			return err
		}
		payment = p.Clone()
		booking = doc.Bookings[p.BookingID].Clone()
		rejected = rejected[:0]
		for _, r := range rivals {
			rejected = append(rejected, r.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.BookingsPaidTotal.Inc()
	util.PaymentsConfirmedTotal.Inc()
	e.logger.Info("Payment confirmed",
		zap.String("payment_id", payment.ID),
		zap.String("booking_id", booking.ID),
		zap.Int("rivals_rejected", len(rejected)))

	if e.events != nil {
		event := &models.PaymentConfirmedEvent{
			BaseEvent:   newBaseEvent(models.EventTypePaymentConfirmed),
			PaymentID:   payment.ID,
			BookingID:   booking.ID,
			PropertyID:  booking.PropertyID,
			CustomerID:  booking.CustomerID,
			Amount:      payment.Amount,
			ProviderRef: payment.ProviderRef,
		}
		if err := e.events.PublishPaymentConfirmed(ctx, event); err != nil {
			e.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
		}
		for _, r := range rejected {
			e.publishBookingEvent(ctx, models.EventTypeBookingRejected, r, "property paid by another customer")
		}
	}
	return payment, nil
}

// FailPayment records a provider decline; the booking stays APPROVED so
// the customer can initiate a fresh payment.
func (e *Engine) FailPayment(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "Engine.FailPayment")
	defer span.End()

	var payment *models.Payment
	err := e.withRetry(ctx, "fail_payment", func(doc *models.Ledger) error {
		if err := CheckFailPayment(doc, paymentID); err != nil {
			return err
		}
		payment = applyFailPayment(doc, paymentID, time.Now().UTC()).Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PaymentsFailedTotal.Inc()
	e.logger.Warn("Payment failed",
		zap.String("payment_id", payment.ID),
		zap.String("reason", reason))

	if e.events != nil {
		event := &models.PaymentFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentFailed),
			PaymentID: payment.ID,
			BookingID: payment.BookingID,
			Reason:    reason,
		}
		if err := e.events.PublishPaymentFailed(ctx, event); err != nil {
			e.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}
	return payment, nil
}

// GetBooking retrieves a booking by ID.
func (e *Engine) GetBooking(ctx context.Context, bookingID string) (*models.BookingRequest, error) {
	doc, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	b, ok := doc.Bookings[bookingID]
	if !ok {
		return nil, deny(ReasonBookingNotFound, "booking %s", bookingID)
	}
	return b, nil
}

// ListBookings returns all bookings, newest first.
func (e *Engine) ListBookings(ctx context.Context) ([]*models.BookingRequest, error) {
	doc, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.BookingRequest, 0, len(doc.Bookings))
	for _, b := range doc.Bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetPayment retrieves a payment by ID.
func (e *Engine) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	doc, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := doc.Payments[paymentID]
	if !ok {
		return nil, deny(ReasonPaymentNotFound, "payment %s", paymentID)
	}
	return p, nil
}

// snapshot loads a read-only view; aborting a read transaction has no
// observable effect.
func (e *Engine) snapshot(ctx context.Context) (*models.Ledger, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	doc := tx.Doc()
	tx.Abort()
	return doc, nil
}

func (e *Engine) publishBookingEvent(ctx context.Context, eventType string, b *models.BookingRequest, reason string) {
	if e.events == nil {
		return
	}
	var err error
	switch eventType {
	case models.EventTypeBookingCreated:
		err = e.events.PublishBookingCreated(ctx, &models.BookingCreatedEvent{
			BaseEvent:  newBaseEvent(eventType),
			BookingID:  b.ID,
			PropertyID: b.PropertyID,
			CustomerID: b.CustomerID,
		})
	case models.EventTypeBookingApproved:
		err = e.events.PublishBookingApproved(ctx, &models.BookingApprovedEvent{
			BaseEvent:  newBaseEvent(eventType),
			BookingID:  b.ID,
			PropertyID: b.PropertyID,
			CustomerID: b.CustomerID,
		})
	case models.EventTypeBookingRejected:
		err = e.events.PublishBookingRejected(ctx, &models.BookingRejectedEvent{
			BaseEvent:  newBaseEvent(eventType),
			BookingID:  b.ID,
			PropertyID: b.PropertyID,
			CustomerID: b.CustomerID,
			Reason:     reason,
		})
	}
	if err != nil {
		e.logger.Error("Failed to publish booking event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
