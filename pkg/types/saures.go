package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Bucket is the classification a meter lands in after a flat is fetched.
type Bucket string

const (
	BucketSensor       Bucket = "sensor"
	BucketBinarySensor Bucket = "binary_sensor"
	BucketSwitch       Bucket = "switch"
)

// ParseBucket converts a bucket name into a Bucket. An empty name means
// BucketSensor.
func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(strings.TrimSpace(s)) {
	case "", BucketSensor:
		return BucketSensor, true
	case BucketBinarySensor:
		return BucketBinarySensor, true
	case BucketSwitch:
		return BucketSwitch, true
	}
	return "", false
}

// Controller is one vendor device record returned under data.sensors. The
// vendor shape is kept as-is, accessors pull out the fields we care about.
type Controller map[string]any

// SerialNumber returns the sn field.
func (c Controller) SerialNumber() string {
	return Stringify(c["sn"])
}

// HardwareID returns the hardware version id used to look up the model name.
func (c Controller) HardwareID() string {
	return Stringify(c["hardware"])
}

// Firmware returns the firmware version.
func (c Controller) Firmware() string {
	return Stringify(c["vers"])
}

// Meters returns the nested meter list. ok is false when the field is
// missing or isn't a list.
func (c Controller) Meters() ([]Meter, bool) {
	raw, ok := c["meters"]
	if !ok || raw == nil {
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	meters := make([]Meter, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		meters = append(meters, Meter(obj))
	}
	return meters, true
}

// Meter is one raw vendor meter object.
type Meter map[string]any

// ID returns meter_id normalized to a string.
func (m Meter) ID() string {
	return Stringify(m["meter_id"])
}

// SerialNumber returns the meter's serial.
func (m Meter) SerialNumber() string {
	return Stringify(m["sn"])
}

// Name returns the user supplied meter name.
func (m Meter) Name() string {
	return Stringify(m["meter_name"])
}

// TypeNumber returns type.number. Older payloads send the number directly
// under type.
func (m Meter) TypeNumber() (int, bool) {
	switch typed := m["type"].(type) {
	case map[string]any:
		return typeCode(typed["number"])
	case nil:
		return 0, false
	default:
		return typeCode(typed)
	}
}

// TypeName returns type.name.
func (m Meter) TypeName() string {
	if typed, ok := m["type"].(map[string]any); ok {
		return Stringify(typed["name"])
	}
	return ""
}

// Value returns the numeric reading.
func (m Meter) Value() (float64, bool) {
	return ParseFloat(m["value"])
}

// State returns the state name, falling back to the state number.
func (m Meter) State() string {
	switch typed := m["state"].(type) {
	case map[string]any:
		if name := Stringify(typed["name"]); name != "" {
			return name
		}
		return Stringify(typed["number"])
	default:
		return Stringify(typed)
	}
}

// StateNumber returns the numeric state, e.g. 1 for an open valve.
func (m Meter) StateNumber() (int, bool) {
	switch typed := m["state"].(type) {
	case map[string]any:
		return toInt(typed["number"])
	case nil:
		return 0, false
	default:
		return toInt(typed)
	}
}

// Buckets holds the classified meters of a single flat.
type Buckets struct {
	Sensors       []Meter `json:"sensors"`
	BinarySensors []Meter `json:"binarySensors"`
	Switches      []Meter `json:"switches"`
}

// Get returns the meters of a single bucket.
func (b Buckets) Get(bucket Bucket) []Meter {
	switch bucket {
	case BucketBinarySensor:
		return b.BinarySensors
	case BucketSwitch:
		return b.Switches
	default:
		return b.Sensors
	}
}

// Len returns the number of meters across all buckets.
func (b Buckets) Len() int {
	return len(b.Sensors) + len(b.BinarySensors) + len(b.Switches)
}

// Sensor wraps a classified meter. The zero value means the meter was not
// found.
type Sensor struct {
	Meter  Meter  `json:"meter,omitempty"`
	Bucket Bucket `json:"bucket,omitempty"`
}

// Found reports whether the lookup matched a meter.
func (s Sensor) Found() bool {
	return s.Meter != nil
}

// ControllerInfo wraps a controller with its model name. The zero value means
// the controller was not found.
type ControllerInfo struct {
	Controller Controller `json:"controller,omitempty"`
	Model      string     `json:"model,omitempty"`
}

// Found reports whether the lookup matched a controller.
func (c ControllerInfo) Found() bool {
	return c.Controller != nil
}

// Stringify renders a scalar vendor value as a string. The vendor is loose
// about sending ids as numbers or strings.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	}
	return ""
}

// ParseFloat converts a vendor value into a float.
func ParseFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	case string:
		typed = strings.TrimSpace(strings.ReplaceAll(typed, ",", "."))
		if typed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(typed, 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(value any) (int, bool) {
	f, ok := ParseFloat(value)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// typeCode only accepts whole JSON numbers; "4" or 4.9 is not type 4.
func typeCode(value any) (int, bool) {
	switch value.(type) {
	case float64, int, int64, json.Number:
		return toInt(value)
	}
	return 0, false
}
