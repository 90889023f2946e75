package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/storage"
	"github.com/sauresha/sauresha/pkg/types"
)

// seedMeter is a synthetic meter of the seeded flat.
type seedMeter struct {
	id         string
	sn         string
	name       string
	bucket     types.Bucket
	typeNumber int
	// litres per hour for counters
	perHour float64
}

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	flatID := lflag.String("seed-flat", "1000", "flat id to seed readings for")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock readings", "flatID", *flatID)

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	meters := []seedMeter{
		{id: "101", sn: "A1", name: "Кухня ХВС", bucket: types.BucketSensor, typeNumber: 1, perHour: 0.012},
		{id: "102", sn: "A2", name: "Кухня ГВС", bucket: types.BucketSensor, typeNumber: 2, perHour: 0.008},
		{id: "103", sn: "A3", name: "Протечка", bucket: types.BucketBinarySensor, typeNumber: 4},
		{id: "104", sn: "A4", name: "Кран", bucket: types.BucketSwitch, typeNumber: 6},
	}

	now := time.Now().UTC()
	// Midnight to now
	start := now.Truncate(24 * time.Hour)

	for _, m := range meters {
		// continue after whatever a previous run stored
		from := start
		latest, err := s.GetLatestReadingTime(ctx, *flatID, m.id)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to get latest reading", "meterID", m.id, "error", err)
			os.Exit(1)
		}
		if !latest.IsZero() && latest.After(from) {
			from = latest.Add(time.Hour)
		}

		value := 100 + rng.Float64()*50
		var readings []types.Reading
		for t := from; t.Before(now); t = t.Add(time.Hour) {
			r := types.Reading{
				FlatID:       *flatID,
				MeterID:      m.id,
				SerialNumber: m.sn,
				Name:         m.name,
				Bucket:       m.bucket,
				TypeNumber:   m.typeNumber,
				Timestamp:    t,
			}
			switch m.bucket {
			case types.BucketSensor:
				hour := t.Hour()
				usage := m.perHour * rng.Float64()
				if (hour >= 7 && hour < 9) || (hour >= 19 && hour < 23) {
					usage *= 4
				}
				value += usage
				r.Value = value
				r.HasValue = true
			case types.BucketBinarySensor:
				// the odd leak alarm
				if rng.Float64() < 0.05 {
					r.State = "1"
				} else {
					r.State = "0"
				}
			case types.BucketSwitch:
				r.State = "1"
			}
			readings = append(readings, r)
		}

		if err := s.InsertReadings(ctx, *flatID, readings); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed readings", "meterID", m.id, "error", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d readings for meter %s (%s)\n", len(readings), m.id, m.name)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock readings successfully")
}
