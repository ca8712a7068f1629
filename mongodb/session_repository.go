package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepositoryMongo implements the domain.SessionStore interface using MongoDB.
type SessionRepositoryMongo struct {
	collection *mongo.Collection
}

// NewSessionRepositoryMongo creates a new SessionRepositoryMongo.
// It also ensures the TTL index that lets MongoDB drop abandoned sessions.
func NewSessionRepositoryMongo(ctx context.Context, db *mongo.Database) (*SessionRepositoryMongo, error) {
	repo := &SessionRepositoryMongo{
		collection: db.Collection(OAuthSessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index for automatic cleanup
		},
	}

	_, err := repo.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		// The TTL monitor is only housekeeping; GetSession checks expiry itself.
		log.Warn().Err(err).Msg("Issue creating indexes for oauth sessions collection (might already exist or other error)")
	} else {
		log.Debug().Msg("Indexes for oauth sessions collection ensured.")
	}

	return repo, nil
}

// SaveSession upserts the session under its key.
func (r *SessionRepositoryMongo) SaveSession(ctx context.Context, session *domain.OAuthSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.Key}, session, options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("key", session.Key).Msg("Error storing oauth session in MongoDB")
		return err
	}
	return nil
}

// GetSession retrieves a live session by key.
func (r *SessionRepositoryMongo) GetSession(ctx context.Context, key string) (*domain.OAuthSession, error) {
	var session domain.OAuthSession
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		log.Error().Err(err).Str("key", key).Msg("Error getting oauth session from MongoDB")
		return nil, err
	}

	// The TTL monitor runs about once a minute, so expired documents may linger.
	if session.IsExpired(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

// DeleteSession removes a session by key. Unknown keys are ignored.
func (r *SessionRepositoryMongo) DeleteSession(ctx context.Context, key string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Error deleting oauth session from MongoDB")
		return err
	}
	return nil
}

var _ domain.SessionStore = (*SessionRepositoryMongo)(nil)
