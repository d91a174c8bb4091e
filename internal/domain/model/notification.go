package model

import "time"

type NotificationKind string

const (
	NotificationPurchaseGranted NotificationKind = "purchase_granted"
	NotificationLetterFulfilled NotificationKind = "letter_fulfilled"
	NotificationPaymentSecurity NotificationKind = "payment_security" // product-mismatch etc.
)

// Notification is the durable record of a side effect handed to the dispatcher.
type Notification struct {
	ID          string // UUID
	RecipientID string
	Kind        NotificationKind
	Payload     map[string]interface{}
	CreatedAt   time.Time
}
