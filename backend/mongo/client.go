package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	defaultRunsCollection = "pypads_runs"
	defaultOpTimeout      = 5 * time.Second
)

// client is the thin collection wrapper the Store drives, kept separate
// from Store itself, mirroring the teacher's clients/mongo split. Store
// holds a concrete *client; there is no interface a fake could be
// substituted through.
type client struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// ClientOptions configures the underlying Mongo collection.
type ClientOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

func newClient(opts ClientOptions) (*client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultRunsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	idx := mongodriver.IndexModel{Keys: bson.D{{Key: "run_id", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}

	return &client{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

func (c *client) ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *client) upsert(ctx context.Context, runID string, set bson.M, setOnInsert bson.M) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"run_id": runID}
	update := bson.M{"$set": set}
	if len(setOnInsert) > 0 {
		update["$setOnInsert"] = setOnInsert
	}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (c *client) push(ctx context.Context, runID, field string, value any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"run_id": runID}
	update := bson.M{"$push": bson.M{field: value}}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (c *client) load(ctx context.Context, runID string) (runDocument, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc runDocument
	err := c.coll.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return runDocument{}, errRunNotFound
	}
	return doc, err
}

var errRunNotFound = errors.New("run not found")

type metricPointDoc struct {
	Value float64   `bson:"value"`
	Step  int       `bson:"step"`
	At    time.Time `bson:"at"`
}

type artifactDoc struct {
	Data   []byte `bson:"data"`
	Format string `bson:"format,omitempty"`
}

type runDocument struct {
	RunID        string                      `bson:"run_id"`
	ExperimentID string                      `bson:"experiment_id"`
	ParentRunID  string                      `bson:"parent_run_id,omitempty"`
	Status       string                      `bson:"status"`
	StartedAt    time.Time                   `bson:"started_at"`
	EndedAt      time.Time                   `bson:"ended_at,omitempty"`
	Tags         map[string]string           `bson:"tags,omitempty"`
	Params       map[string]any              `bson:"params,omitempty"`
	Metrics      map[string][]metricPointDoc `bson:"metrics,omitempty"`
	Artifacts    map[string]artifactDoc      `bson:"artifacts,omitempty"`
}
