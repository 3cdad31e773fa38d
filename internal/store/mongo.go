package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"magabot/internal/crypto"
	"magabot/internal/database"
	"magabot/internal/models"
)

// MongoRepository stores sealed records with their query fields in clear
type MongoRepository struct {
	db       *database.MongoDB
	sessions *mongo.Collection
	cases    *mongo.Collection
	codec    codec
}

type sessionDoc struct {
	UserID    string    `bson:"_id"`
	ChatID    string    `bson:"chatId"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type caseDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Stage     string    `bson:"stage"`
	Active    bool      `bson:"active"`
	Payload   string    `bson:"payload"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongoRepository uses the sessions and cases collections of db
func NewMongoRepository(db *database.MongoDB, sealer crypto.Sealer) *MongoRepository {
	return &MongoRepository{
		db:       db,
		sessions: db.Collection(database.CollectionSessions),
		cases:    db.Collection(database.CollectionCases),
		codec:    newCodec(sealer),
	}
}

func (r *MongoRepository) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	var doc sessionDoc
	err := r.sessions.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", userID, err)
	}
	var s models.Session
	if err := r.codec.decode(userID, "session:"+userID, doc.Payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) SaveSession(ctx context.Context, s *models.Session) error {
	payload, err := r.codec.encode(s.UserID, "session:"+s.UserID, s)
	if err != nil {
		return err
	}
	doc := sessionDoc{UserID: s.UserID, ChatID: s.ChatID, Payload: payload, UpdatedAt: s.UpdatedAt}
	_, err = r.sessions.ReplaceOne(ctx, bson.M{"_id": s.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.UserID, err)
	}
	return nil
}

func (r *MongoRepository) GetCase(ctx context.Context, id string) (*models.Case, error) {
	var doc caseDoc
	err := r.cases.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", id, err)
	}
	return r.decodeCase(doc)
}

func (r *MongoRepository) SaveCase(ctx context.Context, c *models.Case) error {
	payload, err := r.codec.encode(c.UserID, c.ID, c)
	if err != nil {
		return err
	}
	doc := caseDoc{
		ID:        c.ID,
		UserID:    c.UserID,
		Stage:     string(c.Stage),
		Active:    c.Active(),
		Payload:   payload,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	_, err = r.cases.ReplaceOne(ctx, bson.M{"_id": c.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save case %s: %w", c.ID, err)
	}
	return nil
}

func (r *MongoRepository) ListActiveCases(ctx context.Context) ([]*models.Case, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	return r.findCases(ctx, bson.M{"active": true}, opts)
}

func (r *MongoRepository) ListUserCases(ctx context.Context, userID string, limit int) ([]*models.Case, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	return r.findCases(ctx, bson.M{"userId": userID}, opts)
}

func (r *MongoRepository) findCases(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Case, error) {
	cursor, err := r.cases.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Case
	for cursor.Next(ctx) {
		var doc caseDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode case: %w", err)
		}
		c, err := r.decodeCase(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cursor.Err()
}

func (r *MongoRepository) decodeCase(doc caseDoc) (*models.Case, error) {
	var c models.Case
	if err := r.codec.decode(doc.UserID, doc.ID, doc.Payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.db.Close(ctx)
}
