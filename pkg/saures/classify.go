package saures

import (
	"context"
	"fmt"

	"github.com/sauresha/sauresha/pkg/types"
)

// Classify flattens the meters of every controller in the flat and sorts
// each one into exactly one bucket. A controller without a meters list
// returns ErrMalformedResponse and the previous buckets are kept. When the
// flat has no data at all the previous buckets are kept as well.
func (c *Client) Classify(ctx context.Context, flatID string) (types.Buckets, error) {
	controllers := c.FetchFlatData(ctx, flatID, false)

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if len(controllers) == 0 {
		if prev, ok := c.buckets[flatID]; ok {
			return prev, nil
		}
	}

	buckets, err := c.classify(controllers)
	if err != nil {
		return types.Buckets{}, fmt.Errorf("classify flat %s: %w", flatID, err)
	}
	c.buckets[flatID] = buckets
	return buckets, nil
}

func (c *Client) classify(controllers []types.Controller) (types.Buckets, error) {
	buckets := types.Buckets{
		Sensors:       []types.Meter{},
		BinarySensors: []types.Meter{},
		Switches:      []types.Meter{},
	}
	for _, ctrl := range controllers {
		meters, ok := ctrl.Meters()
		if !ok {
			return types.Buckets{}, fmt.Errorf("%w: controller %q has no meters", ErrMalformedResponse, ctrl.SerialNumber())
		}
		for _, m := range meters {
			switch c.bucketOf(m) {
			case types.BucketBinarySensor:
				buckets.BinarySensors = append(buckets.BinarySensors, m)
			case types.BucketSwitch:
				buckets.Switches = append(buckets.Switches, m)
			default:
				buckets.Sensors = append(buckets.Sensors, m)
			}
		}
	}
	return buckets, nil
}

func (c *Client) bucketOf(m types.Meter) types.Bucket {
	n, ok := m.TypeNumber()
	if !ok {
		return types.BucketSensor
	}
	if _, ok := c.binaryTypes[n]; ok {
		return types.BucketBinarySensor
	}
	if _, ok := c.switchTypes[n]; ok {
		return types.BucketSwitch
	}
	return types.BucketSensor
}

// Buckets returns the last classification of a flat.
func (c *Client) Buckets(flatID string) (types.Buckets, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	b, ok := c.buckets[flatID]
	return b, ok
}

// Lookup finds a meter by id inside one bucket of a flat. It returns the zero
// Sensor when the flat, bucket or meter is unknown.
func (c *Client) Lookup(flatID, meterID string, bucket types.Bucket) types.Sensor {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	b, ok := c.buckets[flatID]
	if !ok {
		return types.Sensor{}
	}
	for _, m := range b.Get(bucket) {
		if m.ID() == meterID {
			return types.Sensor{Meter: m, Bucket: bucket}
		}
	}
	return types.Sensor{}
}

// Sensor looks up a regular sensor.
func (c *Client) Sensor(flatID, meterID string) types.Sensor {
	return c.Lookup(flatID, meterID, types.BucketSensor)
}

// BinarySensor looks up a binary sensor.
func (c *Client) BinarySensor(flatID, meterID string) types.Sensor {
	return c.Lookup(flatID, meterID, types.BucketBinarySensor)
}

// Switch looks up a switch.
func (c *Client) Switch(flatID, meterID string) types.Sensor {
	return c.Lookup(flatID, meterID, types.BucketSwitch)
}
