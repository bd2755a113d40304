// Package mongodb implements db.Database as a single MongoDB collection. Keys
// are stored hex encoded as document ids so that prefix scans map to an
// anchored regular expression and the id order matches the byte order.
package mongodb

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/internal/overlay"
	"github.com/vocdoni/ticketvote/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "kv"
	opTimeout      = 10 * time.Second
)

// URLEnv is the environment variable holding the MongoDB connection string.
const URLEnv = "MONGODB_URL"

type document struct {
	ID    string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoDB is a db.Database backed by a MongoDB collection.
type MongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
	commitMu   sync.Mutex
}

var _ db.Database = (*MongoDB)(nil)

// New connects to the server at $MONGODB_URL and uses opts.Path as the
// database name.
func New(opts db.Options) (*MongoDB, error) {
	url := os.Getenv(URLEnv)
	if url == "" {
		return nil, fmt.Errorf("%s is not set", URLEnv)
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("mongodb database name is empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	log.Infow("connected to mongodb", "database", opts.Path)
	return &MongoDB{
		client:     client,
		collection: client.Database(opts.Path).Collection(collectionName),
	}, nil
}

func (d *MongoDB) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var doc document
	err := d.collection.FindOne(ctx, bson.M{"_id": hex.EncodeToString(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Value, nil
}

func (d *MongoDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	filter := bson.M{}
	if len(prefix) > 0 {
		filter = bson.M{"_id": bson.M{"$regex": "^" + hex.EncodeToString(prefix)}}
	}
	cur, err := d.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		key, err := hex.DecodeString(doc.ID)
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", doc.ID, err)
		}
		if !callback(key, doc.Value) {
			break
		}
	}
	return cur.Err()
}

func (d *MongoDB) WriteTx() db.WriteTx {
	return overlay.New(d, d.write)
}

// write flushes the writes with one unordered bulk operation.
func (d *MongoDB) write(writes map[string][]byte) error {
	if len(writes) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(writes))
	for k, v := range writes {
		id := hex.EncodeToString([]byte(k))
		if v == nil {
			models = append(models, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}))
			continue
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(document{ID: id, Value: v}).
			SetUpsert(true))
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	_, err := d.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Compact is a no-op, storage compaction is handled by the server.
func (*MongoDB) Compact() error {
	return nil
}
