package saures

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sauresha/sauresha/pkg/types"
)

// MetricsCollector exports the cached Saures state. Collect never talks to
// the API, it only reads what the last refresh left behind.
type MetricsCollector struct {
	client *Client

	sessionValid *prometheus.Desc
	lastRefresh  *prometheus.Desc
	flatInfo     *prometheus.Desc
	flatUpdated  *prometheus.Desc
	controller   *prometheus.Desc
	meterValue   *prometheus.Desc
	meterState   *prometheus.Desc
	bucketMeters *prometheus.Desc
}

// NewMetricsCollector returns a collector for client.
func NewMetricsCollector(client *Client) *MetricsCollector {
	return &MetricsCollector{
		client: client,
		sessionValid: prometheus.NewDesc(
			"sauresha_session_valid",
			"1 if a session id is currently held",
			nil, nil,
		),
		lastRefresh: prometheus.NewDesc(
			"sauresha_last_refresh_timestamp_seconds",
			"Time the last refresh cycle finished (epoch seconds)",
			nil, nil,
		),
		flatInfo: prometheus.NewDesc(
			"sauresha_flat_info",
			"Known flats",
			[]string{"flat", "label"}, nil,
		),
		flatUpdated: prometheus.NewDesc(
			"sauresha_flat_fetch_timestamp_seconds",
			"Time the flat data was last requested (epoch seconds)",
			[]string{"flat"}, nil,
		),
		controller: prometheus.NewDesc(
			"sauresha_controller_info",
			"Controllers per flat",
			[]string{"flat", "sn", "model", "firmware"}, nil,
		),
		meterValue: prometheus.NewDesc(
			"sauresha_meter_value",
			"Last reported meter value",
			[]string{"flat", "meter_id", "sn", "type", "bucket"}, nil,
		),
		meterState: prometheus.NewDesc(
			"sauresha_meter_state",
			"Last reported numeric state of binary sensors and switches",
			[]string{"flat", "meter_id", "sn", "type", "bucket"}, nil,
		),
		bucketMeters: prometheus.NewDesc(
			"sauresha_bucket_meters",
			"Number of classified meters per bucket",
			[]string{"flat", "bucket"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionValid
	ch <- c.lastRefresh
	ch <- c.flatInfo
	ch <- c.flatUpdated
	ch <- c.controller
	ch <- c.meterValue
	ch <- c.meterState
	ch <- c.bucketMeters
	c.client.requests.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.client.requests.Collect(ch)

	ch <- prometheus.MustNewConstMetric(c.sessionValid, prometheus.GaugeValue, boolToFloat(c.client.sessionID() != ""))

	snap := c.client.Snapshot()
	if !snap.Timestamp.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastRefresh, prometheus.GaugeValue, float64(snap.Timestamp.Unix()))
	}

	for _, flat := range snap.Flats {
		ch <- prometheus.MustNewConstMetric(c.flatInfo, prometheus.GaugeValue, 1, flat.ID, flat.Label)
		if !flat.UpdatedAt.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.flatUpdated, prometheus.GaugeValue, float64(flat.UpdatedAt.Unix()), flat.ID)
		}

		seen := make(map[string]bool, len(flat.Controllers))
		for _, ctrl := range flat.Controllers {
			sn := ctrl.SerialNumber()
			if seen[sn] {
				continue
			}
			seen[sn] = true
			ch <- prometheus.MustNewConstMetric(c.controller, prometheus.GaugeValue, 1, flat.ID, sn, ControllerName(ctrl.HardwareID()), ctrl.Firmware())
		}

		for _, bucket := range []types.Bucket{types.BucketSensor, types.BucketBinarySensor, types.BucketSwitch} {
			meters := flat.Buckets.Get(bucket)
			ch <- prometheus.MustNewConstMetric(c.bucketMeters, prometheus.GaugeValue, float64(len(meters)), flat.ID, string(bucket))

			ids := make(map[string]bool, len(meters))
			for _, m := range meters {
				id := m.ID()
				if ids[id] {
					continue
				}
				ids[id] = true

				typeNumber, _ := m.TypeNumber()
				labels := []string{flat.ID, id, m.SerialNumber(), strconv.Itoa(typeNumber), string(bucket)}
				if v, ok := m.Value(); ok {
					ch <- prometheus.MustNewConstMetric(c.meterValue, prometheus.GaugeValue, v, labels...)
				}
				if bucket == types.BucketSensor {
					continue
				}
				if state, ok := m.StateNumber(); ok {
					ch <- prometheus.MustNewConstMetric(c.meterState, prometheus.GaugeValue, float64(state), labels...)
				}
			}
		}
	}
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
