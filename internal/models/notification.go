package models

import "time"

// NotificationEvent names for transfer workflow fan-out.
const (
	NotificationTransferCreated   = "transfer_request.created"
	NotificationTransferResponded = "transfer_request.responded"
	NotificationTransferProcessed = "transfer_request.processed"
	NotificationTransferCancelled = "transfer_request.cancelled"
)

// Notification is an inbox row shown in the in-app notifications dropdown.
// Delivery channels (e-mail, push) are handled by a separate worker reading
// the published events.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Body      *string   `db:"body" json:"body,omitempty"`
	Link      *string   `db:"link" json:"link,omitempty"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
