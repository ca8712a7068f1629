package mongodb

import (
	"context"
	"errors"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CredentialRepositoryMongo implements domain.CredentialStore using MongoDB.
type CredentialRepositoryMongo struct {
	collection *mongo.Collection
}

// NewCredentialRepositoryMongo creates a new CredentialRepositoryMongo.
func NewCredentialRepositoryMongo(ctx context.Context, db *mongo.Database) (*CredentialRepositoryMongo, error) {
	repo := &CredentialRepositoryMongo{
		collection: db.Collection(CredentialsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "username", Value: 1}},
			Options: options.Index(), // Not unique, one user may connect several times
		},
	}
	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for credentials collection (might already exist or other error)")
	}

	return repo, nil
}

// SaveCredential upserts the record under its key.
func (r *CredentialRepositoryMongo) SaveCredential(ctx context.Context, record *domain.CredentialRecord) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.Key}, record, options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("key", record.Key).Msg("Error storing credential in MongoDB")
		return err
	}
	return nil
}

// GetCredential retrieves a record by key.
func (r *CredentialRepositoryMongo) GetCredential(ctx context.Context, key string) (*domain.CredentialRecord, error) {
	var record domain.CredentialRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCredentialNotFound
		}
		log.Error().Err(err).Str("key", key).Msg("Error getting credential from MongoDB")
		return nil, err
	}
	return &record, nil
}

// DeleteCredential removes a record by key.
func (r *CredentialRepositoryMongo) DeleteCredential(ctx context.Context, key string) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Error deleting credential from MongoDB")
		return err
	}
	return nil
}

// ListCredentials returns all credential keys.
func (r *CredentialRepositoryMongo) ListCredentials(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Key string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.Key)
	}
	return keys, nil
}

var (
	_ domain.CredentialStore  = (*CredentialRepositoryMongo)(nil)
	_ domain.CredentialLister = (*CredentialRepositoryMongo)(nil)
)
