package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sauresha/sauresha/pkg/saures/sauresmock"
	"github.com/sauresha/sauresha/pkg/types"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu          sync.Mutex
	published   []published
	subscribed  map[string]mqtt.MessageHandler
	disconnects int
	publishErr  error
	connectSlow bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{subscribed: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) IsConnected() bool { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token { return &fakeToken{timeout: c.connectSlow} }
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case string:
		b = []byte(p)
	case []byte:
		b = p
	}
	c.published = append(c.published, published{topic: topic, retained: retained, payload: b})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range topics {
		delete(c.subscribed, topic)
	}
	return &fakeToken{}
}

func (c *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool { return false }
func (m *fakeMessage) Qos() byte { return 1 }
func (m *fakeMessage) Retained() bool { return false }
func (m *fakeMessage) Topic() string { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack() {}

func TestTopics(t *testing.T) {
	b := New(newFakeClient(), nil, "home/saures/")
	assert.Equal(t, "home/saures/bridge/state", b.BridgeStateTopic())
	assert.Equal(t, "home/saures/7/binary_sensor/102/state", b.StateTopic("7", types.BucketBinarySensor, "102"))
	assert.Equal(t, "home/saures/7/switch/103/command", b.SwitchCommandTopic("7", "103"))
	assert.Equal(t, "home/saures/+/switch/+/command", b.commandFilter())
}

func TestParseCommand(t *testing.T) {
	b := New(newFakeClient(), nil, "sauresha")

	cmd, err := b.ParseCommand(&fakeMessage{topic: "sauresha/7/switch/103/command", payload: []byte(" activate\n")})
	require.NoError(t, err)
	assert.Equal(t, ParsedCommand{FlatID: "7", MeterID: "103", Command: "activate"}, cmd)

	_, err = b.ParseCommand(&fakeMessage{topic: "sauresha/7/switch/103/state", payload: []byte("x")})
	assert.Error(t, err)
	_, err = b.ParseCommand(&fakeMessage{topic: "other/7/switch/103/command", payload: []byte("x")})
	assert.Error(t, err)
	_, err = b.ParseCommand(&fakeMessage{topic: "sauresha/7/sensor/101/command", payload: []byte("x")})
	assert.Error(t, err)
	_, err = b.ParseCommand(&fakeMessage{topic: "sauresha/7/switch/103/command", payload: []byte("  ")})
	assert.ErrorContains(t, err, "empty command")
}

func TestOnConnect(t *testing.T) {
	client := newFakeClient()
	b := New(client, nil, "sauresha")
	b.onConnect(client)

	require.Len(t, client.published, 1)
	assert.Equal(t, published{topic: "sauresha/bridge/state", retained: true, payload: []byte(PayloadOnline)}, client.published[0])
	assert.Contains(t, client.subscribed, "sauresha/+/switch/+/command")
}

func TestPublishSnapshot(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := types.Snapshot{
		Timestamp: ts,
		Flats: []types.FlatSnapshot{{
			ID: "7",
			Buckets: types.Buckets{
				Sensors:  []types.Meter{{"meter_id": "101", "type": map[string]any{"number": float64(1)}, "value": "12.5"}},
				Switches: []types.Meter{{"meter_id": "103", "type": map[string]any{"number": float64(6)}, "state": map[string]any{"number": float64(1), "name": "open"}}},
			},
		}},
	}

	t.Run("Publishes Every Meter", func(t *testing.T) {
		client := newFakeClient()
		b := New(client, nil, "sauresha")
		require.NoError(t, b.PublishSnapshot(context.Background(), snap))

		require.Len(t, client.published, 2)
		assert.Equal(t, "sauresha/7/sensor/101/state", client.published[0].topic)
		assert.True(t, client.published[0].retained)

		var r types.Reading
		require.NoError(t, json.Unmarshal(client.published[0].payload, &r))
		assert.Equal(t, 12.5, r.Value)
		assert.True(t, r.HasValue)
		assert.True(t, ts.Equal(r.Timestamp))

		assert.Equal(t, "sauresha/7/switch/103/state", client.published[1].topic)
		require.NoError(t, json.Unmarshal(client.published[1].payload, &r))
		assert.Equal(t, "open", r.State)
		assert.Equal(t, types.BucketSwitch, r.Bucket)
	})

	t.Run("Publish Errors", func(t *testing.T) {
		client := newFakeClient()
		client.publishErr = errors.New("broker gone")
		b := New(client, nil, "sauresha")
		err := b.PublishSnapshot(context.Background(), snap)
		assert.ErrorContains(t, err, "broker gone")
		assert.ErrorContains(t, err, "sauresha/7/switch/103/state")
	})

	t.Run("Disabled", func(t *testing.T) {
		b := &Bridge{}
		assert.False(t, b.Enabled())
		assert.NoError(t, b.PublishSnapshot(context.Background(), snap))
		assert.NoError(t, b.Connect(context.Background()))
		assert.NoError(t, b.Close())

		var nilBridge *Bridge
		assert.False(t, nilBridge.Enabled())
	})
}

func TestHandleCommand(t *testing.T) {
	msg := &fakeMessage{topic: "sauresha/7/switch/103/command", payload: []byte("activate")}

	t.Run("Known Switch", func(t *testing.T) {
		system := new(sauresmock.MockSystem)
		system.On("Lookup", "7", "103", types.BucketSwitch).Return(types.Sensor{Meter: types.Meter{"meter_id": "103"}, Bucket: types.BucketSwitch})
		system.On("SendCommand", mock.Anything, "103", "activate").Return(true)

		b := New(newFakeClient(), system, "sauresha")
		b.handleCommand(nil, msg)
		system.AssertExpectations(t)
	})

	t.Run("Unknown Switch", func(t *testing.T) {
		system := new(sauresmock.MockSystem)
		system.On("Lookup", "7", "103", types.BucketSwitch).Return(types.Sensor{})

		b := New(newFakeClient(), system, "sauresha")
		b.handleCommand(nil, msg)
		system.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Rejected", func(t *testing.T) {
		system := new(sauresmock.MockSystem)
		system.On("Lookup", "7", "103", types.BucketSwitch).Return(types.Sensor{Meter: types.Meter{"meter_id": "103"}, Bucket: types.BucketSwitch})
		system.On("SendCommand", mock.Anything, "103", "activate").Return(false)

		b := New(newFakeClient(), system, "sauresha")
		b.handleCommand(nil, msg)
		system.AssertExpectations(t)
	})

	t.Run("Bad Topic", func(t *testing.T) {
		system := new(sauresmock.MockSystem)
		b := New(newFakeClient(), system, "sauresha")
		b.handleCommand(nil, &fakeMessage{topic: "sauresha/7/switch/103/state", payload: []byte("x")})
		system.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestConnectAndClose(t *testing.T) {
	t.Run("Timeout", func(t *testing.T) {
		client := newFakeClient()
		client.connectSlow = true
		b := New(client, nil, "sauresha")
		assert.ErrorContains(t, b.Connect(context.Background()), "timed out")
	})

	t.Run("Close Publishes Offline", func(t *testing.T) {
		client := newFakeClient()
		b := New(client, nil, "sauresha")
		require.NoError(t, b.Connect(context.Background()))
		require.NoError(t, b.Close())
		require.Len(t, client.published, 1)
		assert.Equal(t, []byte(PayloadOffline), client.published[0].payload)
		assert.Equal(t, 1, client.disconnects)
	})
}
