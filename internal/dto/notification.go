package dto

// NotificationQuery filters the caller's inbox listing.
type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationEvent is the payload published on the notifications channel for
// downstream delivery workers.
type NotificationEvent struct {
	Event      string   `json:"event"`
	Recipients []string `json:"recipients"`
	RequestID  string   `json:"request_id"`
	Status     string   `json:"status"`
	Title      string   `json:"title"`
	Body       string   `json:"body,omitempty"`
	Link       string   `json:"link,omitempty"`
}
