package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
)

type SessionLogRepository struct {
	collection *mongo.Collection
}

// NewSessionLogRepository creates a new MongoDB assistant session log
func NewSessionLogRepository(db *mongo.Database) repositories.SessionLogRepository {
	return &SessionLogRepository{
		collection: db.Collection(sessionsCollection),
	}
}

// Save implements repositories.SessionLogRepository. Saving the same session
// again replaces the earlier record.
func (r *SessionLogRepository) Save(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"_id": session.ID},
		session,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// ListRecent implements repositories.SessionLogRepository
func (r *SessionLogRepository) ListRecent(ctx context.Context, limit int) ([]*entities.Session, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	opts := options.Find().
		SetSort(bson.M{"started_at": -1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := []*entities.Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// DeleteEndedBefore implements repositories.SessionLogRepository
func (r *SessionLogRepository) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, endedBeforeFilter(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions ended before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return result.DeletedCount, nil
}

func endedBeforeFilter(cutoff time.Time) bson.M {
	return bson.M{"ended_at": bson.M{"$lt": cutoff}}
}
