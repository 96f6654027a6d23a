package sink

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

type auditDocument struct {
	ID        string    `bson:"_id"`
	Type      string    `bson:"type"`
	EntityID  string    `bson:"entity_id"`
	Actor     string    `bson:"actor"`
	From      string    `bson:"from,omitempty"`
	To        string    `bson:"to,omitempty"`
	MemberID  string    `bson:"member_id,omitempty"`
	MemberIDs []string  `bson:"member_ids,omitempty"`
	Reason    string    `bson:"reason,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

// MongoAuditLog appends events to a collection. Re-delivered events are
// ignored by _id.
type MongoAuditLog struct {
	Collection *mongo.Collection
}

func NewMongoAuditLog(db *mongo.Database) *MongoAuditLog {
	return &MongoAuditLog{
		Collection: db.Collection("audit_events"),
	}
}

func (r *MongoAuditLog) Record(ctx context.Context, e domain.Event) error {
	_, err := r.Collection.InsertOne(ctx, auditDocument{
		ID:        e.ID,
		Type:      string(e.Type),
		EntityID:  e.EntityID,
		Actor:     e.Actor,
		From:      e.From,
		To:        e.To,
		MemberID:  e.MemberID,
		MemberIDs: e.MemberIDs,
		Reason:    e.Reason,
		Timestamp: e.Timestamp,
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// History returns the events recorded for one entity, oldest first.
func (r *MongoAuditLog) History(ctx context.Context, entityID string) ([]domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.Collection.Find(ctx, bson.M{"entity_id": entityID}, opts)
	if err != nil {
		return nil, err
	}

	var docs []auditDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(docs))
	for _, doc := range docs {
		events = append(events, domain.Event{
			ID:        doc.ID,
			Type:      domain.EventType(doc.Type),
			EntityID:  doc.EntityID,
			Actor:     doc.Actor,
			From:      doc.From,
			To:        doc.To,
			MemberID:  doc.MemberID,
			MemberIDs: doc.MemberIDs,
			Reason:    doc.Reason,
			Timestamp: doc.Timestamp,
		})
	}
	return events, nil
}
