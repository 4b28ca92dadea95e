package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stop-trivia/models"
)

// MongoStore keeps one document per session in a MongoDB collection.
// Subscribe relies on change streams and ReadModifyWrite on multi-document
// transactions, so the server must be a replica set member.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore uses the session collection of database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(models.SessionCollection),
	}
}

// EnsureIndexes creates the timestamp index the expiry sweep filters on.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: 1}},
	}
	if _, err := m.coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create timestamp index: %w", err)
	}
	return nil
}

func (m *MongoStore) Create(ctx context.Context, id string, session *models.Session) error {
	doc := session.Clone()
	doc.GameID = id
	doc.Version = 1
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (m *MongoStore) Read(ctx context.Context, id string) (*models.Session, error) {
	return m.read(ctx, id)
}

func (m *MongoStore) read(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &session, nil
}

func (m *MongoStore) Update(ctx context.Context, id string, fields Fields) error {
	return m.update(ctx, id, fields)
}

func (m *MongoStore) update(ctx context.Context, id string, fields Fields) error {
	if _, ok := fields["version"]; ok {
		return fmt.Errorf("field %q cannot be set", "version")
	}
	update := bson.M{"$inc": bson.M{"version": 1}}
	if len(fields) > 0 {
		update["$set"] = bson.M(fields)
	}
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (m *MongoStore) ReadModifyWrite(ctx context.Context, id string, fn func(*models.Session) (Change, error)) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	callback := func(sessCtx mongo.SessionContext) (interface{}, error) {
		current, err := m.read(sessCtx, id)
		if err != nil {
			return nil, err
		}
		change, err := fn(current)
		if err != nil {
			return nil, err
		}
		switch {
		case change.Empty():
			return nil, nil
		case change.Delete:
			_, err := m.coll.DeleteOne(sessCtx, bson.M{"_id": id})
			return nil, err
		case current == nil:
			return nil, ErrNotFound
		default:
			return nil, m.update(sessCtx, id, change.Set)
		}
	}
	_, err = session.WithTransaction(ctx, callback)
	return err
}

func (m *MongoStore) DeleteExpired(ctx context.Context, cutoffMs int64) (int64, error) {
	res, err := m.coll.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoffMs}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// ServerTime reads the server's clock from the hello command.
func (m *MongoStore) ServerTime(ctx context.Context) (time.Time, error) {
	var res bson.M
	cmd := bson.D{{Key: "hello", Value: 1}}
	if err := m.client.Database("admin").RunCommand(ctx, cmd).Decode(&res); err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	localTime, ok := res["localTime"].(primitive.DateTime)
	if !ok {
		return time.Time{}, fmt.Errorf("hello reply has no localTime")
	}
	return localTime.Time(), nil
}

// streamEndingOps are the change events after which a session stream
// delivers nothing more: the collection or database went away.
var streamEndingOps = bson.A{"invalidate", "drop", "rename", "dropDatabase"}

func streamEnds(op string) bool {
	for _, end := range streamEndingOps {
		if end == op {
			return true
		}
	}
	return false
}

type changeEvent struct {
	OperationType string          `bson:"operationType"`
	FullDocument  *models.Session `bson:"fullDocument"`
}

func (m *MongoStore) Subscribe(ctx context.Context, id string, fn Listener) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	// Open the stream before the first read so no change slips between them.
	// Collection-level events carry no document key and must be let through.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "documentKey._id", Value: id}},
			bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: streamEndingOps}}}},
		}}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := m.coll.Watch(subCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch session: %w", err)
	}

	current, err := m.read(subCtx, id)
	if err != nil {
		stream.Close(context.Background())
		cancel()
		return nil, err
	}

	go func() {
		defer stream.Close(context.Background())

		var lastVersion int64
		deliver := func(doc *models.Session) {
			if subCtx.Err() != nil {
				return
			}
			if doc != nil {
				// updateLookup may already have shown a later version.
				if doc.Version <= lastVersion {
					return
				}
				lastVersion = doc.Version
			} else {
				lastVersion = 0
			}
			fn(doc)
		}

		deliver(current)
		for stream.Next(subCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				log.Printf("session %s: failed to decode change: %v", id, err)
				continue
			}
			switch {
			case ev.OperationType == "delete":
				deliver(nil)
			case streamEnds(ev.OperationType):
				// The stream closes after these; nothing more will arrive.
				log.Printf("session %s: change stream ended by %s", id, ev.OperationType)
				deliver(nil)
				return
			case ev.FullDocument != nil:
				deliver(ev.FullDocument)
			}
		}
		if subCtx.Err() != nil {
			return
		}
		log.Printf("session %s: change stream lost: %v", id, stream.Err())
		deliver(nil)
	}()

	return cancel, nil
}
