package entity

import "time"

type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Email     string            `json:"email,omitempty"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type BookingEventType string

const (
	EventBookingReserved  BookingEventType = "booking.reserved"
	EventBookingConfirmed BookingEventType = "booking.confirmed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingExpired   BookingEventType = "booking.expired"
	EventBookingCheckedIn BookingEventType = "booking.checked_in"
	EventBookingCompleted BookingEventType = "booking.completed"
	EventBookingNoShow    BookingEventType = "booking.no_show"
)

var statusEvents = map[BookingStatus]BookingEventType{
	BookingStatusReserved:  EventBookingReserved,
	BookingStatusConfirmed: EventBookingConfirmed,
	BookingStatusCancelled: EventBookingCancelled,
	BookingStatusExpired:   EventBookingExpired,
	BookingStatusCheckedIn: EventBookingCheckedIn,
	BookingStatusCompleted: EventBookingCompleted,
	BookingStatusNoShow:    EventBookingNoShow,
}

// BookingEvent is published on every lifecycle change.
type BookingEvent struct {
	Type          BookingEventType `json:"type"`
	BookingID     string           `json:"booking_id"`
	BookingNumber string           `json:"booking_number"`
	UnitID        string           `json:"unit_id"`
	UserID        string           `json:"user_id"`
	Status        BookingStatus    `json:"status"`
	PaymentStatus PaymentStatus    `json:"payment_status"`
	TotalAmount   int64            `json:"total_amount"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func NewBookingEvent(b *Booking, at time.Time) BookingEvent {
	return BookingEvent{
		Type:          statusEvents[b.Status],
		BookingID:     b.ID,
		BookingNumber: b.BookingNumber,
		UnitID:        b.UnitID,
		UserID:        b.UserID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TotalAmount:   b.TotalAmount,
		OccurredAt:    at,
	}
}
