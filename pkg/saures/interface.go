package saures

import (
	"context"

	"github.com/sauresha/sauresha/pkg/types"
)

// System is the surface of the Saures client used by the HTTP server and the
// MQTT bridge.
type System interface {
	// Authenticate makes sure a valid session is held.
	Authenticate(ctx context.Context) bool

	// ListFlats returns flat id to label.
	ListFlats(ctx context.Context) map[string]string

	// FetchFlatData returns the controllers of a flat, from cache when fresh.
	FetchFlatData(ctx context.Context, flatID string, reload bool) []types.Controller

	// Controllers fetches and caches the controllers of a flat.
	Controllers(ctx context.Context, flatID string) []types.Controller

	// Controller looks up a cached controller by serial number.
	Controller(flatID, sn string) types.ControllerInfo

	// Classify sorts the meters of a flat into buckets.
	Classify(ctx context.Context, flatID string) (types.Buckets, error)

	// Lookup finds a classified meter.
	Lookup(flatID, meterID string, bucket types.Bucket) types.Sensor

	// SendCommand sends a command to a controllable meter.
	SendCommand(ctx context.Context, meterID, command string) bool

	// RefreshAll refreshes every flat.
	RefreshAll(ctx context.Context) error

	// Snapshot copies the cached state.
	Snapshot() types.Snapshot
}

var _ System = (*Client)(nil)
