package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/engine"
	"rental-service/internal/models"
	"rental-service/internal/payments"
)

// PaymentWorker maps the provider's asynchronous confirmation signal onto
// the engine: it consumes PaymentInitiated events, polls the initiator
// until the payment settles and then confirms or fails it.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	engine       *engine.Engine
	initiator    payments.Initiator
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, eng *engine.Engine, initiator payments.Initiator) *PaymentWorker {
	pw := &PaymentWorker{
		consumer:     consumer,
		engine:       eng,
		initiator:    initiator,
		pollInterval: 2 * time.Second,
		pollTimeout:  60 * time.Second,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentInitiated(pw.handlePaymentInitiated)
	pw.eventHandler = eventHandler
	return pw
}

func (pw *PaymentWorker) handlePaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error {
	log.Printf("Polling provider for payment: %s (ref=%s)", event.PaymentID, event.ProviderRef)

	deadline := time.Now().Add(pw.pollTimeout)
	for {
		status, err := pw.initiator.QueryStatus(ctx, event.ProviderRef)
		if err != nil {
			return fmt.Errorf("provider status query failed: %w", err)
		}

		switch status {
		case payments.StatusConfirmed:
			_, err := pw.engine.ConfirmPayment(ctx, event.PaymentID)
			return settleResult(event.PaymentID, err)

		case payments.StatusDeclined:
			_, err := pw.engine.FailPayment(ctx, event.PaymentID, "provider_declined")
			return settleResult(event.PaymentID, err)
		}

		if time.Now().After(deadline) {
			_, err := pw.engine.FailPayment(ctx, event.PaymentID, "confirmation_timeout")
			return settleResult(event.PaymentID, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pw.pollInterval):
		}
	}
}

// settleResult keeps a denial from looping the message: a denied
// settlement (already confirmed by a racing caller, booking gone
// terminal) is a final outcome, not a delivery failure.
func settleResult(paymentID string, err error) error {
	if err == nil {
		return nil
	}
	if reason := engine.DenialReason(err); reason != "" {
		log.Printf("Payment %s settlement denied: %s", paymentID, reason)
		return nil
	}
	return err
}

// Start starts the payment worker
func (pw *PaymentWorker) Start(ctx context.Context) error {
	log.Println("Starting payment worker...")
	return pw.consumer.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	log.Println("Stopping payment worker...")
	return pw.consumer.Close()
}

// NotificationWorker tells customers about lifecycle outcomes: approvals,
// rejections (including losing bidders after a rival pays) and confirmed
// payments.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     Notifier
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	nw := &NotificationWorker{
		consumer: consumer,
		notifier: notifier,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnBookingApproved(nw.handleApproved)
	eventHandler.OnBookingRejected(nw.handleRejected)
	eventHandler.OnPaymentConfirmed(nw.handlePaymentConfirmed)
	nw.eventHandler = eventHandler
	return nw
}

func (nw *NotificationWorker) handleApproved(ctx context.Context, event *models.BookingApprovedEvent) error {
	msg := fmt.Sprintf("Your booking %s has been approved. Please complete payment to secure the property.", event.BookingID)
	return nw.notifier.SendSMS(ctx, event.CustomerID, msg)
}

func (nw *NotificationWorker) handleRejected(ctx context.Context, event *models.BookingRejectedEvent) error {
	msg := fmt.Sprintf("Your booking %s was not successful.", event.BookingID)
	if event.Reason != "" {
		msg = fmt.Sprintf("Your booking %s was not successful: %s.", event.BookingID, event.Reason)
	}
	return nw.notifier.SendSMS(ctx, event.CustomerID, msg)
}

func (nw *NotificationWorker) handlePaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	msg := fmt.Sprintf("Payment of %d received. The property is now yours.", event.Amount)
	return nw.notifier.SendSMS(ctx, event.CustomerID, msg)
}

// Start starts the notification worker
func (nw *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return nw.consumer.StartConsuming(ctx, nw.eventHandler.HandleMessage)
}

// Stop stops the notification worker
func (nw *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return nw.consumer.Close()
}
