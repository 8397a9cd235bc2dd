package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/support-desk/internal/model"
)

const ticketsCollection = "tickets"

// TicketRepo stores support tickets as documents.
type TicketRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewTicketRepo uses the tickets collection of db.
func NewTicketRepo(db *mongo.Database) *TicketRepo {
	return &TicketRepo{coll: db.Collection(ticketsCollection), now: time.Now}
}

// TicketFilter narrows Find. An empty UserID lists every ticket.
type TicketFilter struct {
	UserID string
}

// TicketChanges holds optional updates; nil fields are left untouched.
type TicketChanges struct {
	Product     *string
	Description *string
	Status      *model.TicketStatus
}

// EnsureIndexes creates the owner index used when listing a user's tickets.
func (r *TicketRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Find lists tickets matching f, newest first.
func (r *TicketRepo) Find(ctx context.Context, f TicketFilter) ([]model.Ticket, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	items := []model.Ticket{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID loads one ticket.
func (r *TicketRepo) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var t model.Ticket
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&t); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Create inserts t with status new unless one is already set.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	now := r.now().UTC()
	t.ID = bson.NewObjectID()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = model.TicketNew
	}
	_, err := r.coll.InsertOne(ctx, t)
	return err
}

// UpdateByID applies c and returns the updated ticket.
func (r *TicketRepo) UpdateByID(ctx context.Context, id string, c TicketChanges) (*model.Ticket, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	set := bson.M{"updated_at": r.now().UTC()}
	if c.Product != nil {
		set["product"] = *c.Product
	}
	if c.Description != nil {
		set["description"] = *c.Description
	}
	if c.Status != nil {
		set["status"] = *c.Status
	}
	var t model.Ticket
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&t)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// DeleteByID removes a ticket and returns what was deleted.
func (r *TicketRepo) DeleteByID(ctx context.Context, id string) (*model.Ticket, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var t model.Ticket
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&t); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}
