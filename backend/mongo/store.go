package mongo

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pypads-go/pypads/backend"
	"github.com/pypads-go/pypads/pyerrors"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements backend.Facade by delegating persistence to a Mongo
// collection while keeping the process-wide "single active run" stack
// in memory, the same split the teacher's Store/clients-mongo layering
// uses for session records.
type Store struct {
	mu     sync.Mutex
	client *client
	active []string
}

// NewStore builds a Store using opts.
func NewStore(opts Options) (*Store, error) {
	c, err := newClient(ClientOptions{Client: opts.Client, Database: opts.Database, Collection: opts.Collection, Timeout: opts.Timeout})
	if err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "connect mongo backend")
	}
	return &Store{client: c}, nil
}

// NewStoreFromURI connects a new *mongodriver.Client to uri and builds a
// Store against database/collection (spec §6 PYPADS_MONGO_URI).
func NewStoreFromURI(ctx context.Context, uri, database, collection string) (*Store, error) {
	mc, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "dial mongo")
	}
	if err := mc.Ping(ctx, nil); err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "ping mongo")
	}
	return NewStore(Options{Client: mc, Database: database, Collection: collection})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.ping(ctx)
}

func (s *Store) StartRun(ctx context.Context, experimentID string, tags map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	var parent string
	if len(s.active) > 0 {
		parent = s.active[len(s.active)-1]
	}
	now := time.Now().UTC()
	set := bson.M{
		"run_id":        id,
		"experiment_id": experimentID,
		"parent_run_id": parent,
		"status":        string(backend.StatusRunning),
		"tags":          tags,
	}
	if err := s.client.upsert(ctx, id, set, bson.M{"started_at": now}); err != nil {
		return "", err
	}
	s.active = append(s.active, id)
	return id, nil
}

func (s *Store) EndRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.popActive(runID)
	set := bson.M{"status": string(backend.StatusFinished), "ended_at": time.Now().UTC()}
	if err := s.client.upsert(ctx, runID, set, nil); err != nil {
		return err
	}
	return nil
}

func (s *Store) popActive(runID string) {
	for i := len(s.active) - 1; i >= 0; i-- {
		if s.active[i] == runID {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

func (s *Store) ActiveRunID(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.active) == 0 {
		return "", false
	}
	return s.active[len(s.active)-1], true
}

func (s *Store) ActiveRun(ctx context.Context) (backend.Run, bool) {
	id, ok := s.ActiveRunID(ctx)
	if !ok {
		return backend.Run{}, false
	}
	doc, err := s.client.load(ctx, id)
	if err != nil {
		return backend.Run{}, false
	}
	return toRun(doc), true
}

func (s *Store) LogParam(ctx context.Context, runID, key string, value any) error {
	return s.client.upsert(ctx, runID, bson.M{"params." + key: value}, nil)
}

func (s *Store) LogMetric(ctx context.Context, runID, key string, value float64, step int) error {
	return s.client.push(ctx, runID, "metrics."+key, metricPointDoc{Value: value, Step: step, At: time.Now().UTC()})
}

func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	return s.client.upsert(ctx, runID, bson.M{"tags." + key: value}, nil)
}

func (s *Store) LogArtifact(ctx context.Context, runID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "read artifact")
	}
	name := path
	if idx := lastSlash(path); idx >= 0 {
		name = path[idx+1:]
	}
	return s.LogInMemoryArtifact(ctx, runID, name, data, "")
}

func (s *Store) LogInMemoryArtifact(ctx context.Context, runID, name string, data []byte, format string) error {
	return s.client.upsert(ctx, runID, bson.M{"artifacts." + name: artifactDoc{Data: data, Format: format}}, nil)
}

// IntermediateRun mirrors FileBackend's scoped acquisition: start a nested
// run, return a once-guarded release that ends it and restores the
// enclosing run as active (spec §4.8, scenario S4).
func (s *Store) IntermediateRun(ctx context.Context, experimentID string, tags map[string]string) (string, func(ctx context.Context) error, error) {
	id, err := s.StartRun(ctx, experimentID, tags)
	if err != nil {
		return "", nil, err
	}
	var once sync.Once
	release := func(ctx context.Context) error {
		var releaseErr error
		once.Do(func() { releaseErr = s.EndRun(ctx, id) })
		return releaseErr
	}
	return id, release, nil
}

func toRun(doc runDocument) backend.Run {
	run := backend.Run{
		ID:           doc.RunID,
		ExperimentID: doc.ExperimentID,
		ParentRunID:  doc.ParentRunID,
		Status:       backend.Status(doc.Status),
		StartedAt:    doc.StartedAt,
		EndedAt:      doc.EndedAt,
		Tags:         doc.Tags,
		Params:       doc.Params,
		Metrics:      map[string][]backend.MetricPoint{},
		Artifacts:    map[string]backend.Artifact{},
	}
	for k, pts := range doc.Metrics {
		converted := make([]backend.MetricPoint, len(pts))
		for i, p := range pts {
			converted[i] = backend.MetricPoint{Value: p.Value, Step: p.Step, At: p.At}
		}
		run.Metrics[k] = converted
	}
	for name, a := range doc.Artifacts {
		run.Artifacts[name] = backend.Artifact{Name: name, Data: a.Data, Format: a.Format}
	}
	return run
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' || s[i] == '\\' {
			return i
		}
	}
	return -1
}

var _ backend.Facade = (*Store)(nil)
