package models

import "time"

type PaymentMethod string

const (
	MethodRazorpay   PaymentMethod = "razorpay"
	MethodStripe     PaymentMethod = "stripe"
	MethodUPI        PaymentMethod = "upi"
	MethodCard       PaymentMethod = "card"
	MethodNetBanking PaymentMethod = "netbanking"
	MethodCOD        PaymentMethod = "cod"
)

// Offline reports whether the method needs manual verification by an admin.
func (m PaymentMethod) Offline() bool { return m == MethodUPI || m == MethodCOD }

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Payment is one-to-one with its order. TransactionID is unique across payments.
type Payment struct {
	ID                int64         `json:"id"`
	OrderID           string        `json:"order_id"`
	Method            PaymentMethod `json:"payment_method"`
	Status            PaymentStatus `json:"payment_status"`
	TransactionID     string        `json:"transaction_id"`
	Amount            Money         `json:"amount"`
	Reference         string        `json:"reference,omitempty"`
	EvidenceURL       string        `json:"evidence_url,omitempty"`
	VerificationNotes string        `json:"verification_notes,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	c.PaidAt = cloneTime(p.PaidAt)
	return &c
}
