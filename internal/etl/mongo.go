package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Defaults for MongoStore.
const (
	DefaultMongoDatabase   = "taprun"
	DefaultMongoCollection = "tap_state"
)

// MongoStore keeps one checkpoint document per tap. The value is stored as
// compact JSON text so it round-trips byte for byte.
type MongoStore struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Tap        string
}

type mongoCheckpoint struct {
	ID        string    `bson:"_id"`
	Value     string    `bson:"value"`
	RunID     string    `bson:"run_id,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func NewMongoStore(client *mongo.Client, database, collection, tap string) *MongoStore {
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return &MongoStore{Client: client, Database: database, Collection: collection, Tap: tap}
}

func (m *MongoStore) coll() *mongo.Collection {
	return m.Client.Database(m.Database).Collection(m.Collection)
}

func (m *MongoStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var doc mongoCheckpoint
	err := m.coll().FindOne(ctx, bson.M{"_id": m.Tap}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint for %s: %w", m.Tap, err)
	}
	return Checkpoint{Value: []byte(doc.Value), RunID: doc.RunID, UpdatedAt: doc.UpdatedAt}, true, nil
}

// Save replaces the tap's document in one upsert.
func (m *MongoStore) Save(ctx context.Context, cp Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	doc := mongoCheckpoint{
		ID:        m.Tap,
		Value:     string(cp.Value),
		RunID:     cp.RunID,
		UpdatedAt: cp.UpdatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.coll().ReplaceOne(ctx, bson.M{"_id": m.Tap}, doc, opts); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", m.Tap, err)
	}
	return nil
}

func (m *MongoStore) Describe() string {
	return fmt.Sprintf("mongo:%s.%s/%s", m.Database, m.Collection, m.Tap)
}
