package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/support-desk/internal/model"
)

const productsCollection = "products"

// ProductRepo stores products as documents.
type ProductRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewProductRepo uses the products collection of db.
func NewProductRepo(db *mongo.Database) *ProductRepo {
	return &ProductRepo{coll: db.Collection(productsCollection), now: time.Now}
}

// ProductChanges is the full set of mutable product fields.
type ProductChanges struct {
	Name        string
	Price       float64
	Description string
}

// EnsureIndexes creates the name index used by listing and lookups.
func (r *ProductRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}})
	return err
}

// Find returns all products, newest first.
func (r *ProductRepo) Find(ctx context.Context) ([]model.Product, error) {
	cur, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	items := []model.Product{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID loads one product.
func (r *ProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var p model.Product
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Create inserts p and fills in its ID and timestamps.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	now := r.now().UTC()
	p.ID = bson.NewObjectID()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, p)
	return err
}

// UpdateByID replaces the mutable fields and returns the updated document.
func (r *ProductRepo) UpdateByID(ctx context.Context, id string, c ProductChanges) (*model.Product, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	update := bson.M{"$set": bson.M{
		"name":        c.Name,
		"price":       c.Price,
		"description": c.Description,
		"updated_at":  r.now().UTC(),
	}}
	var p model.Product
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// DeleteByID removes a product and returns what was deleted.
func (r *ProductRepo) DeleteByID(ctx context.Context, id string) (*model.Product, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	var p model.Product
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func parseObjectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
