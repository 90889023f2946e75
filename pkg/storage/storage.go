package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/types"
)

// Database persists meter readings taken after each refresh.
type Database interface {
	// InsertReadings stores the readings of one flat. Readings of the same
	// meter at the same timestamp overwrite each other.
	InsertReadings(ctx context.Context, flatID string, readings []types.Reading) error

	// GetReadingHistory returns the readings of a meter within [start, end)
	// ordered by time.
	GetReadingHistory(ctx context.Context, flatID, meterID string, start, end time.Time) ([]types.Reading, error)

	// GetLatestReadingTime returns the time of the newest reading of a meter,
	// or the zero time when there is none.
	GetLatestReadingTime(ctx context.Context, flatID, meterID string) (time.Time, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, none)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "none":
			p.Database = Discard{}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// keyedReadings drops readings without a meter id; they have no document to
// live under.
func keyedReadings(ctx context.Context, flatID string, readings []types.Reading) []types.Reading {
	keyed := make([]types.Reading, 0, len(readings))
	for _, r := range readings {
		if r.MeterID == "" {
			log.Ctx(ctx).WarnContext(ctx, "skipping reading without meter id",
				slog.String("flatID", flatID),
				slog.String("sn", r.SerialNumber),
			)
			continue
		}
		keyed = append(keyed, r)
	}
	return keyed
}

// Discard drops every reading. It backs the "none" provider.
type Discard struct{}

var _ Database = Discard{}

func (Discard) InsertReadings(context.Context, string, []types.Reading) error {
	return nil
}

func (Discard) GetReadingHistory(context.Context, string, string, time.Time, time.Time) ([]types.Reading, error) {
	return []types.Reading{}, nil
}

func (Discard) GetLatestReadingTime(context.Context, string, string) (time.Time, error) {
	return time.Time{}, nil
}

func (Discard) Close() error {
	return nil
}
