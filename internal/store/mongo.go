package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/scholargate/scholargate/internal/types"
)

// MongoStore writes records to a MongoDB collection, upserting on the
// normalized (title, provider) key.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStore creates a new MongoDB-backed Store.
func NewMongoStore(uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger.With("component", "mongo_store"),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) FindByKey(ctx context.Context, title, provider string) (*StoredRecord, error) {
	var doc StoredRecord
	err := s.collection.FindOne(ctx, bson.M{"title": title, "provider": provider}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StoreError{Op: "findByKey", Err: err}
	}
	return &doc, nil
}

func (s *MongoStore) FindByURL(ctx context.Context, applicationURL string) (*StoredRecord, error) {
	var doc StoredRecord
	err := s.collection.FindOne(ctx, bson.M{"applicationurl": applicationURL}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StoreError{Op: "findByURL", Err: err}
	}
	return &doc, nil
}

func (s *MongoStore) Upsert(ctx context.Context, record *StoredRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := bson.M{"title": record.Title, "provider": record.Provider}
	update := bson.M{"$set": record}
	opts := options.Update().SetUpsert(true)

	res, err := s.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, &types.StoreError{Op: "upsert", Err: err}
	}

	s.count++
	s.logger.Debug("record upserted", "title", record.Title, "provider", record.Provider, "total", s.count)
	return res.UpsertedCount > 0, nil
}

func (s *MongoStore) FindActive(ctx context.Context) ([]*StoredRecord, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"isactive": true})
	if err != nil {
		return nil, &types.StoreError{Op: "findActive", Err: err}
	}
	defer cursor.Close(ctx)

	var out []*StoredRecord
	for cursor.Next(ctx) {
		var doc StoredRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, &types.StoreError{Op: "findActive", Err: err}
		}
		out = append(out, &doc)
	}
	return out, cursor.Err()
}

func (s *MongoStore) Close(ctx context.Context) error {
	s.logger.Info("mongo store closing", "total_upserts", s.count)
	return s.client.Disconnect(ctx)
}
