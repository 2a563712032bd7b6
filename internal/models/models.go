package models

import "time"

// Property represents a rental listing
type Property struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Location     string    `json:"location"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Price        int64     `json:"price"`
	Availability string    `json:"availability"`
	CreatedAt    time.Time `json:"created_at"`
}

// BookingRequest represents a customer's request to rent a property
type BookingRequest struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"property_id"`
	CustomerID   string    `json:"customer_id"` // phone number
	CustomerName string    `json:"customer_name,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Payment represents a payment for an approved booking
type Payment struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	Amount      int64     `json:"amount"`
	RentAmount  int64     `json:"rent_amount"`
	ServiceFee  int64     `json:"service_fee"`
	PayerPhone  string    `json:"payer_phone"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ViewingRequest represents a request to view a property in person
type ViewingRequest struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"property_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	Date         string    `json:"date,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Property availability
const (
	AvailabilityAvailable   = "AVAILABLE"
	AvailabilityReserved    = "RESERVED"
	AvailabilityUnavailable = "UNAVAILABLE"
)

// Booking statuses
const (
	BookingStatusRequested = "REQUESTED"
	BookingStatusApproved  = "APPROVED"
	BookingStatusPaid      = "PAID"
	BookingStatusRejected  = "REJECTED"
	BookingStatusCancelled = "CANCELLED"
)

// Payment statuses
const (
	PaymentStatusInitiated = "INITIATED"
	PaymentStatusConfirmed = "CONFIRMED"
	PaymentStatusFailed    = "FAILED"
)

// Viewing request statuses
const (
	ViewingStatusPending  = "PENDING"
	ViewingStatusApproved = "APPROVED"
)

// Clone returns a copy detached from any ledger snapshot.
func (p *Property) Clone() *Property {
	c := *p
	return &c
}

// Clone returns a copy detached from any ledger snapshot.
func (b *BookingRequest) Clone() *BookingRequest {
	c := *b
	return &c
}

// Clone returns a copy detached from any ledger snapshot.
func (p *Payment) Clone() *Payment {
	c := *p
	return &c
}

// BookingTerminal reports whether a booking status admits no further transitions.
func BookingTerminal(status string) bool {
	switch status {
	case BookingStatusPaid, BookingStatusRejected, BookingStatusCancelled:
		return true
	}
	return false
}

// Ledger is the single versioned document holding every entity collection.
// Version is the optimistic-concurrency token: it increases by exactly one
// per committed transaction and is compared at commit time.
type Ledger struct {
	Version         int64                      `json:"version"`
	Properties      map[string]*Property       `json:"properties"`
	Bookings        map[string]*BookingRequest `json:"bookings"`
	Payments        map[string]*Payment        `json:"payments"`
	ViewingRequests map[string]*ViewingRequest `json:"viewing_requests"`
}

// NewLedger returns an empty ledger at version 0.
func NewLedger() *Ledger {
	return &Ledger{
		Properties:      make(map[string]*Property),
		Bookings:        make(map[string]*BookingRequest),
		Payments:        make(map[string]*Payment),
		ViewingRequests: make(map[string]*ViewingRequest),
	}
}

// Clone returns a deep copy so a transaction can mutate its snapshot
// without the committed document observing partial writes.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Version:         l.Version,
		Properties:      make(map[string]*Property, len(l.Properties)),
		Bookings:        make(map[string]*BookingRequest, len(l.Bookings)),
		Payments:        make(map[string]*Payment, len(l.Payments)),
		ViewingRequests: make(map[string]*ViewingRequest, len(l.ViewingRequests)),
	}
	for id, p := range l.Properties {
		cp := *p
		c.Properties[id] = &cp
	}
	for id, b := range l.Bookings {
		cb := *b
		c.Bookings[id] = &cb
	}
	for id, p := range l.Payments {
		cp := *p
		c.Payments[id] = &cp
	}
	for id, v := range l.ViewingRequests {
		cv := *v
		c.ViewingRequests[id] = &cv
	}
	return c
}

// BookingsForProperty returns all bookings referencing a property.
func (l *Ledger) BookingsForProperty(propertyID string) []*BookingRequest {
	var out []*BookingRequest
	for _, b := range l.Bookings {
		if b.PropertyID == propertyID {
			out = append(out, b)
		}
	}
	return out
}

// PaymentForBooking returns the payment blocking further initiation for a
// booking: the most recent one in INITIATED or CONFIRMED status, or nil.
// FAILED payments never block a retry.
func (l *Ledger) PaymentForBooking(bookingID string) *Payment {
	var found *Payment
	for _, p := range l.Payments {
		if p.BookingID != bookingID {
			continue
		}
		if p.Status == PaymentStatusFailed {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = p
		}
	}
	return found
}
