package types

import "time"

// FlatSnapshot is everything cached for one flat.
type FlatSnapshot struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Controllers []Controller `json:"controllers"`
	Buckets     Buckets      `json:"buckets"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	// SyncedAt is when the cached controllers were last fetched successfully.
	SyncedAt    time.Time    `json:"syncedAt,omitzero"`
}

// Snapshot is a point in time copy of the client caches.
type Snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Flats     []FlatSnapshot `json:"flats"`
}

// Reading is a single persisted observation of a meter.
type Reading struct {
	FlatID       string    `json:"flatID"`
	MeterID      string    `json:"meterID"`
	SerialNumber string    `json:"sn,omitempty"`
	Name         string    `json:"name,omitempty"`
	Bucket       Bucket    `json:"bucket"`
	TypeNumber   int       `json:"type"`
	Value        float64   `json:"value"`
	HasValue     bool      `json:"hasValue"`
	State        string    `json:"state,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Readings flattens a snapshot into one reading per classified meter, stamped
// with the time its flat was last fetched successfully. Flats that never
// synced have no readings.
func (s Snapshot) Readings() []Reading {
	var readings []Reading
	for _, flat := range s.Flats {
		if flat.SyncedAt.IsZero() {
			continue
		}
		for _, bucket := range []Bucket{BucketSensor, BucketBinarySensor, BucketSwitch} {
			for _, m := range flat.Buckets.Get(bucket) {
				readings = append(readings, NewReading(flat.ID, bucket, m, flat.SyncedAt))
			}
		}
	}
	return readings
}

// NewReading builds a Reading from a classified meter.
func NewReading(flatID string, bucket Bucket, m Meter, ts time.Time) Reading {
	typeNumber, _ := m.TypeNumber()
	value, hasValue := m.Value()
	return Reading{
		FlatID:       flatID,
		MeterID:      m.ID(),
		SerialNumber: m.SerialNumber(),
		Name:         m.Name(),
		Bucket:       bucket,
		TypeNumber:   typeNumber,
		Value:        value,
		HasValue:     hasValue,
		State:        m.State(),
		Timestamp:    ts,
	}
}
