package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

type entityDocument struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Body      bson.Raw  `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per entity in a collection named after
// the entity kind. The document version is the compare-and-swap guard.
type MongoStore[T domain.Entity[T]] struct {
	Collection *mongo.Collection
	kind       string
}

var (
	_ port.InvariantStore[domain.Asset]      = (*MongoStore[domain.Asset])(nil)
	_ port.InvariantStore[domain.License]    = (*MongoStore[domain.License])(nil)
	_ port.InvariantStore[domain.AssetGroup] = (*MongoStore[domain.AssetGroup])(nil)
)

func NewMongoStore[T domain.Entity[T]](db *mongo.Database, collection, kind string) *MongoStore[T] {
	return &MongoStore[T]{
		Collection: db.Collection(collection),
		kind:       kind,
	}
}

func (r *MongoStore[T]) Read(ctx context.Context, id string) (T, error) {
	var (
		zero T
		doc  entityDocument
	)
	err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, domain.NewNotFoundError(r.kind, id)
	}
	if err != nil {
		return zero, fmt.Errorf("find %s %s: %w", r.kind, id, err)
	}
	return r.decodeDocument(doc)
}

func (r *MongoStore[T]) CompareAndSwap(ctx context.Context, expected, next T) (bool, error) {
	body, err := bson.Marshal(next.WithVersion(expected.EntityVersion() + 1))
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", r.kind, err)
	}

	filter := bson.M{"_id": expected.EntityID(), "version": expected.EntityVersion()}
	update := bson.M{
		"$set": bson.M{"body": bson.Raw(body), "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	}
	result, err := r.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("update %s %s: %w", r.kind, expected.EntityID(), err)
	}
	if result.MatchedCount == 1 {
		return true, nil
	}

	n, err := r.Collection.CountDocuments(ctx, bson.M{"_id": expected.EntityID()}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count %s %s: %w", r.kind, expected.EntityID(), err)
	}
	if n == 0 {
		return false, domain.NewNotFoundError(r.kind, expected.EntityID())
	}
	return false, nil
}

func (r *MongoStore[T]) Create(ctx context.Context, value T) error {
	body, err := bson.Marshal(value.WithVersion(0))
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.kind, err)
	}

	_, err = r.Collection.InsertOne(ctx, entityDocument{
		ID:        value.EntityID(),
		Version:   0,
		Body:      body,
		UpdatedAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s %s: %w", r.kind, value.EntityID(), domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.kind, err)
	}
	return nil
}

func (r *MongoStore[T]) List(ctx context.Context) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", r.kind, err)
	}

	var docs []entityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.kind, err)
	}

	result := make([]T, 0, len(docs))
	for _, doc := range docs {
		value, err := r.decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, nil
}

func (r *MongoStore[T]) decodeDocument(doc entityDocument) (T, error) {
	var value T
	if err := bson.Unmarshal(doc.Body, &value); err != nil {
		return value, fmt.Errorf("decode %s %s: %w", r.kind, doc.ID, err)
	}
	return value.WithVersion(doc.Version), nil
}
