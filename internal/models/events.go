package models

import "time"

// Event types
const (
	EventTypeBookingCreated   = "BOOKING_CREATED"
	EventTypeBookingApproved  = "BOOKING_APPROVED"
	EventTypeBookingRejected  = "BOOKING_REJECTED"
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
	EventTypePaymentInitiated = "PAYMENT_INITIATED"
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when a customer submits a booking request
type BookingCreatedEvent struct {
	BaseEvent
	BookingID  string `json:"booking_id"`
	PropertyID string `json:"property_id"`
	CustomerID string `json:"customer_id"`
}

// BookingApprovedEvent published when an admin approves a booking
type BookingApprovedEvent struct {
	BaseEvent
	BookingID  string `json:"booking_id"`
	PropertyID string `json:"property_id"`
	CustomerID string `json:"customer_id"`
}

// BookingRejectedEvent published for each booking rejected, including
// rivals auto-rejected when a payment is confirmed
type BookingRejectedEvent struct {
	BaseEvent
	BookingID  string `json:"booking_id"`
	PropertyID string `json:"property_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

// BookingCancelledEvent published when a booking is cancelled
type BookingCancelledEvent struct {
	BaseEvent
	BookingID  string `json:"booking_id"`
	PropertyID string `json:"property_id"`
	CustomerID string `json:"customer_id"`
	Actor      string `json:"actor,omitempty"`
}

// PaymentInitiatedEvent published when an STK push has been sent; the
// payment worker consumes it to poll for the asynchronous confirmation
type PaymentInitiatedEvent struct {
	BaseEvent
	PaymentID   string `json:"payment_id"`
	BookingID   string `json:"booking_id"`
	Amount      int64  `json:"amount"`
	PayerPhone  string `json:"payer_phone"`
	ProviderRef string `json:"provider_ref"`
}

// PaymentConfirmedEvent published when the provider confirms a payment
type PaymentConfirmedEvent struct {
	BaseEvent
	PaymentID   string `json:"payment_id"`
	BookingID   string `json:"booking_id"`
	PropertyID  string `json:"property_id"`
	CustomerID  string `json:"customer_id"`
	Amount      int64  `json:"amount"`
	ProviderRef string `json:"provider_ref"`
}

// PaymentFailedEvent published when the provider declines a payment
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID string `json:"payment_id"`
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason,omitempty"`
}
