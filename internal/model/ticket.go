package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// TicketStatus tracks a support ticket through its life.
type TicketStatus string

const (
	TicketNew    TicketStatus = "new"
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

// Ticket is a document in the `tickets` collection. UserID is the subject of
// the identity that opened it.
type Ticket struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      string        `bson:"user_id" json:"user_id"`
	Product     string        `bson:"product" json:"product"`
	Description string        `bson:"description" json:"description"`
	Status      TicketStatus  `bson:"status" json:"status"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at" json:"updated_at"`
}
