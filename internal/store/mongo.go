package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

// MongoStore keeps raw edge access events. Tracking endpoints append here;
// the hourly aggregator drains events into Postgres bandwidth rows.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("access_events")}
}

// InsertEvent appends one raw access event.
func (s *MongoStore) InsertEvent(ctx context.Context, ev *models.AccessEvent) error {
	if _, err := s.col.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("mongo insert event: %w", err)
	}
	return nil
}

// EventsBetween returns all events with from <= ts < to.
func (s *MongoStore) EventsBetween(ctx context.Context, from, to time.Time) ([]models.AccessEvent, error) {
	cur, err := s.col.Find(ctx, bson.M{
		"ts": bson.M{"$gte": from, "$lt": to},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []models.AccessEvent
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteEventsBefore drops events already rolled up.
func (s *MongoStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{"ts": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
