package entity

import (
	"encoding/json"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "initiated"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

const PaymentMethodKhalti = "khalti"

// Payment is one attempt to collect money for a booking.
type Payment struct {
	ID              string            `json:"id" db:"id"`
	BookingID       string            `json:"booking_id" db:"booking_id"`
	UserID          string            `json:"user_id" db:"user_id"`
	Amount          int64             `json:"amount" db:"amount"`
	Currency        string            `json:"currency" db:"currency"`
	Method          string            `json:"method" db:"method"`
	GatewayTxnID    string            `json:"gateway_txn_id" db:"gateway_txn_id"`
	Status          TransactionStatus `json:"status" db:"status"`
	PaymentURL      string            `json:"payment_url,omitempty" db:"payment_url"`
	GatewayResponse json.RawMessage   `json:"gateway_response,omitempty" db:"gateway_response"`
	FailureReason   string            `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	FailedAt        *time.Time        `json:"failed_at,omitempty" db:"failed_at"`
	RefundedAt      *time.Time        `json:"refunded_at,omitempty" db:"refunded_at"`
}

// GatewayStatus is the normalized charge status reported by the gateway lookup.
type GatewayStatus string

const (
	GatewayStatusCompleted         GatewayStatus = "Completed"
	GatewayStatusPending           GatewayStatus = "Pending"
	GatewayStatusInitiated         GatewayStatus = "Initiated"
	GatewayStatusRefunded          GatewayStatus = "Refunded"
	GatewayStatusPartiallyRefunded GatewayStatus = "Partially Refunded"
	GatewayStatusExpired           GatewayStatus = "Expired"
	GatewayStatusCanceled          GatewayStatus = "User canceled"
)

type IntentRequest struct {
	Amount     int64
	ReturnURL  string
	WebsiteURL string
	OrderID    string
	OrderName  string
	Customer   GuestInfo
}

type GatewayIntent struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	BookingID  string    `json:"booking_id"`
	Amount     int64     `json:"amount"`
}

type GatewayLookup struct {
	Pidx          string          `json:"pidx"`
	Status        GatewayStatus   `json:"status"`
	TotalAmount   int64           `json:"total_amount"`
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

type OutcomeStatus string

const (
	OutcomeConfirmed        OutcomeStatus = "confirmed"
	OutcomeAlreadyConfirmed OutcomeStatus = "already_confirmed"
	OutcomePending          OutcomeStatus = "pending"
	OutcomeFailed           OutcomeStatus = "failed"
	OutcomeRejected         OutcomeStatus = "rejected"
)

// PaymentOutcome is the structured result of verify and webhook handling.
type PaymentOutcome struct {
	Status        OutcomeStatus `json:"status"`
	Pidx          string        `json:"pidx,omitempty"`
	BookingID     string        `json:"booking_id,omitempty"`
	GatewayStatus GatewayStatus `json:"gateway_status,omitempty"`
	Message       string        `json:"message,omitempty"`
}

func (o PaymentOutcome) Success() bool {
	return o.Status == OutcomeConfirmed || o.Status == OutcomeAlreadyConfirmed
}

// WebhookPayload mirrors the query/body fields the gateway sends back.
type WebhookPayload struct {
	Pidx              string `json:"pidx" form:"pidx"`
	Status            string `json:"status" form:"status"`
	TransactionID     string `json:"transaction_id" form:"transaction_id"`
	TotalAmount       int64  `json:"total_amount" form:"total_amount"`
	PurchaseOrderID   string `json:"purchase_order_id" form:"purchase_order_id"`
	PurchaseOrderName string `json:"purchase_order_name" form:"purchase_order_name"`
}
