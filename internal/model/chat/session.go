package chat

import "time"

// Session is the externally visible summary of a live conversation.
type Session struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	Turns        int       `json:"turns"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}
