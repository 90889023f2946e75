package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Readings live under flats/{flatID}/meters/{meterID}/readings keyed by their
// RFC3339 timestamp.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// NewFirestore returns a provider for the given project and database. Init
// must be called before use.
func NewFirestore(projectID, database string) *FirestoreProvider {
	return &FirestoreProvider{projectID: projectID, database: database}
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// empty project id is allowed, it's detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) readingsCollection(flatID, meterID string) (*firestore.CollectionRef, error) {
	if flatID == "" {
		return nil, fmt.Errorf("flatID cannot be empty")
	}
	if meterID == "" {
		return nil, fmt.Errorf("meterID cannot be empty")
	}
	return f.client.Collection("flats").Doc(flatID).Collection("meters").Doc(meterID).Collection("readings"), nil
}

// InsertReadings writes each reading as a JSON blob with a BulkWriter.
func (f *FirestoreProvider) InsertReadings(ctx context.Context, flatID string, readings []types.Reading) error {
	if flatID == "" {
		return fmt.Errorf("flatID cannot be empty")
	}
	readings = keyedReadings(ctx, flatID, readings)
	if len(readings) == 0 {
		return nil
	}

	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(readings))
	for _, r := range readings {
		coll, err := f.readingsCollection(flatID, r.MeterID)
		if err != nil {
			bw.End()
			return err
		}
		jsonBytes, err := json.Marshal(r)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to marshal reading: %w", err)
		}
		docID := r.Timestamp.UTC().Format(time.RFC3339)
		job, err := bw.Set(coll.Doc(docID), map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": r.Timestamp,
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue reading %s: %w", r.MeterID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to insert reading %s: %w", readings[i].MeterID, err)
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "inserted readings", slog.String("flatID", flatID), slog.Int("count", len(readings)))
	return nil
}

// GetReadingHistory retrieves readings within the specified time range.
// Uses document ID range queries for efficient filtering without reading all documents.
func (f *FirestoreProvider) GetReadingHistory(ctx context.Context, flatID, meterID string, start, end time.Time) ([]types.Reading, error) {
	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	coll, err := f.readingsCollection(flatID, meterID)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	readings := []types.Reading{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.NotFound {
				break
			}
			return nil, fmt.Errorf("error iterating readings: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "reading doc missing json", slog.String("docID", doc.Ref.ID), slog.String("flatID", flatID), slog.Any("err", err))
			return nil, fmt.Errorf("reading doc %s missing 'json' field: %w", doc.Ref.ID, err)
		}

		jsonStr, ok := val.(string)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "reading doc json not string", slog.String("docID", doc.Ref.ID), slog.String("flatID", flatID))
			return nil, fmt.Errorf("reading doc %s 'json' field is not string", doc.Ref.ID)
		}

		var r types.Reading
		if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal reading", slog.String("docID", doc.Ref.ID), slog.String("flatID", flatID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal reading (id=%s): %w", doc.Ref.ID, err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// GetLatestReadingTime retrieves the timestamp of the last stored reading.
func (f *FirestoreProvider) GetLatestReadingTime(ctx context.Context, flatID, meterID string) (time.Time, error) {
	coll, err := f.readingsCollection(flatID, meterID)
	if err != nil {
		return time.Time{}, err
	}
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest reading doc: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, doc.Ref.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reading doc id %s: %w", doc.Ref.ID, err)
	}
	return ts, nil
}
