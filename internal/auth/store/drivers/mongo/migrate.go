package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const migrateTimeout = 30 * time.Second

// ApplyMigrations creates the indexes the store depends on. Index creation
// is idempotent so it runs on every start.
func (s *Store) ApplyMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	// 1. Usernames are the login key
	if _, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_username_unique"),
	}); err != nil {
		return fmt.Errorf("mongo: users index: %w", err)
	}

	// 2. The TTL index reaps sessions once expireAt passes, and the user
	// index keeps bulk invalidation cheap
	if _, err := s.db.Collection(sessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expireAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("sessions_expire_at_ttl"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("sessions_user_id"),
		},
	}); err != nil {
		return fmt.Errorf("mongo: sessions indexes: %w", err)
	}

	return nil
}
