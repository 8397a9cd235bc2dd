// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// TicketCreatedEvent is published after a support ticket is stored.
type TicketCreatedEvent struct {
	TicketID    string `json:"ticket_id"`
	UserID      string `json:"user_id"`
	Product     string `json:"product"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}
