package mongo

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type sessionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Username  string    `bson:"username"`
	ExpireAt  time.Time `bson:"expireAt"`
	DenyList  []string  `bson:"refreshTokenDenyList"`
	CreatedAt time.Time `bson:"createdAt"`
}

type sessionsRepo struct {
	coll *mongo.Collection
}

func live(id string, now time.Time) bson.M {
	return bson.M{"_id": id, "expireAt": bson.M{"$gt": now}}
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	// $push refuses to operate on a null field, so the list is always an
	// array from the start.
	denyList := s.DenyList
	if denyList == nil {
		denyList = []string{}
	}

	_, err := r.coll.InsertOne(ctx, sessionDoc{
		ID:        s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		ExpireAt:  s.ExpireAt.UTC(),
		DenyList:  denyList,
		CreatedAt: s.CreatedAt.UTC(),
	})
	return mapDuplicate(err)
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var doc sessionDoc
	if err := r.coll.FindOne(ctx, live(id, time.Now().UTC())).Decode(&doc); err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	denyList := doc.DenyList
	if denyList == nil {
		denyList = []string{}
	}

	return domain.Session{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Username:  doc.Username,
		ExpireAt:  doc.ExpireAt.UTC(),
		DenyList:  denyList,
		CreatedAt: doc.CreatedAt.UTC(),
	}, nil
}

// AppendDenyListEntryIfAbsent is a single-document update whose filter only
// matches while jti is absent. MongoDB applies single-document updates
// atomically, so of two concurrent calls only one can match.
func (r *sessionsRepo) AppendDenyListEntryIfAbsent(ctx context.Context, sessionID, jti string) (store.AppendResult, error) {
	now := time.Now().UTC()

	filter := live(sessionID, now)
	filter["refreshTokenDenyList"] = bson.M{"$ne": jti}

	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"refreshTokenDenyList": jti},
	})
	if err != nil {
		return 0, err
	}
	if res.MatchedCount == 1 {
		return store.Appended, nil
	}

	// Nothing matched, find out whether the session is still there.
	n, err := r.coll.CountDocuments(ctx, live(sessionID, now))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return store.SessionMissing, nil
	}
	return store.AlreadyPresent, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expireAt": bson.M{"$lte": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
