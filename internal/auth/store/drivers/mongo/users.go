package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type userDoc struct {
	ID            string    `bson:"_id"`
	Username      string    `bson:"username"`
	PreferredName string    `bson:"preferredName"`
	PasswordHash  string    `bson:"passwordHash"`
	Roles         []string  `bson:"roles"`
	Active        bool      `bson:"active"`
	MFASecret     *string   `bson:"mfaSecret,omitempty"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func (d userDoc) domain() domain.User {
	return domain.User{
		ID:            d.ID,
		Username:      d.Username,
		PreferredName: d.PreferredName,
		PasswordHash:  d.PasswordHash,
		Roles:         d.Roles,
		Active:        d.Active,
		MFASecret:     d.MFASecret,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type usersRepo struct {
	coll *mongo.Collection
}

func (r *usersRepo) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return doc.domain(), nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	_, err := r.coll.InsertOne(ctx, userDoc{
		ID:            u.ID,
		Username:      u.Username,
		PreferredName: u.PreferredName,
		PasswordHash:  u.PasswordHash,
		Roles:         u.Roles,
		Active:        u.Active,
		MFASecret:     u.MFASecret,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	})
	return mapDuplicate(err)
}

func (r *usersRepo) SetUserActive(ctx context.Context, userID string, active bool) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"active": active, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	err := r.coll.FindOne(ctx, bson.M{}).Err()
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return true, nil
	case err != nil:
		return false, err
	default:
		return false, nil
	}
}
