package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"rental-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	publisher Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(publisher Publisher) *EventPublisher {
	return &EventPublisher{publisher: publisher}
}

func bookingKey(bookingID string) string {
	return fmt.Sprintf("booking-%s", bookingID)
}

// PublishBookingCreated publishes a BookingCreated event
func (ep *EventPublisher) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingApproved publishes a BookingApproved event
func (ep *EventPublisher) PublishBookingApproved(ctx context.Context, event *models.BookingApprovedEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingRejected publishes a BookingRejected event
func (ep *EventPublisher) PublishBookingRejected(ctx context.Context, event *models.BookingRejectedEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingCancelled publishes a BookingCancelled event
func (ep *EventPublisher) PublishBookingCancelled(ctx context.Context, event *models.BookingCancelledEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishPaymentInitiated publishes a PaymentInitiated event
func (ep *EventPublisher) PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishPaymentConfirmed publishes a PaymentConfirmed event
func (ep *EventPublisher) PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishPaymentFailed publishes a PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return ep.publisher.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// EventHandler routes consumed messages to registered handlers.
type EventHandler struct {
	onBookingApproved  func(context.Context, *models.BookingApprovedEvent) error
	onBookingRejected  func(context.Context, *models.BookingRejectedEvent) error
	onBookingCancelled func(context.Context, *models.BookingCancelledEvent) error
	onPaymentInitiated func(context.Context, *models.PaymentInitiatedEvent) error
	onPaymentConfirmed func(context.Context, *models.PaymentConfirmedEvent) error
	onPaymentFailed    func(context.Context, *models.PaymentFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnBookingApproved registers a handler for BookingApproved events
func (eh *EventHandler) OnBookingApproved(handler func(context.Context, *models.BookingApprovedEvent) error) {
	eh.onBookingApproved = handler
}

// OnBookingRejected registers a handler for BookingRejected events
func (eh *EventHandler) OnBookingRejected(handler func(context.Context, *models.BookingRejectedEvent) error) {
	eh.onBookingRejected = handler
}

// OnBookingCancelled registers a handler for BookingCancelled events
func (eh *EventHandler) OnBookingCancelled(handler func(context.Context, *models.BookingCancelledEvent) error) {
	eh.onBookingCancelled = handler
}

// OnPaymentInitiated registers a handler for PaymentInitiated events
func (eh *EventHandler) OnPaymentInitiated(handler func(context.Context, *models.PaymentInitiatedEvent) error) {
	eh.onPaymentInitiated = handler
}

// OnPaymentConfirmed registers a handler for PaymentConfirmed events
func (eh *EventHandler) OnPaymentConfirmed(handler func(context.Context, *models.PaymentConfirmedEvent) error) {
	eh.onPaymentConfirmed = handler
}

// OnPaymentFailed registers a handler for PaymentFailed events
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeBookingApproved:
		if eh.onBookingApproved != nil {
			var event models.BookingApprovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingApproved event: %w", err)
			}
			return eh.onBookingApproved(ctx, &event)
		}

	case models.EventTypeBookingRejected:
		if eh.onBookingRejected != nil {
			var event models.BookingRejectedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingRejected event: %w", err)
			}
			return eh.onBookingRejected(ctx, &event)
		}

	case models.EventTypeBookingCancelled:
		if eh.onBookingCancelled != nil {
			var event models.BookingCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingCancelled event: %w", err)
			}
			return eh.onBookingCancelled(ctx, &event)
		}

	case models.EventTypePaymentInitiated:
		if eh.onPaymentInitiated != nil {
			var event models.PaymentInitiatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentInitiated event: %w", err)
			}
			return eh.onPaymentInitiated(ctx, &event)
		}

	case models.EventTypePaymentConfirmed:
		if eh.onPaymentConfirmed != nil {
			var event models.PaymentConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentConfirmed event: %w", err)
			}
			return eh.onPaymentConfirmed(ctx, &event)
		}

	case models.EventTypePaymentFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
			}
			return eh.onPaymentFailed(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
