package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/saures"
	"github.com/sauresha/sauresha/pkg/types"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	defaultTimeout = 10 * time.Second
)

// Bridge publishes meter readings to MQTT and forwards commands received on
// switch command topics to the Saures API. A Bridge without a client is
// disabled and every method is a no-op.
//
// Topics:
//
//	{base}/bridge/state                          online / offline (retained)
//	{base}/{flatID}/{bucket}/{meterID}/state     reading JSON (retained)
//	{base}/{flatID}/switch/{meterID}/command     command text sent to the meter
type Bridge struct {
	client    mqtt.Client
	system    saures.System
	baseTopic string
	timeout   time.Duration
	logger    *slog.Logger

	switchCommandRegexp *regexp.Regexp
}

// Configured registers the mqtt flags and returns a Bridge that is ready
// once lflag.Configure has run. An empty broker leaves the bridge disabled.
func Configured(system saures.System) *Bridge {
	broker := lflag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables the bridge)")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	baseTopic := lflag.String("mqtt-base-topic", "sauresha", "MQTT base topic")
	clientID := lflag.String("mqtt-client-id", "sauresha", "MQTT client id")

	b := &Bridge{}
	lflag.Do(func() {
		if *broker == "" {
			return
		}
		*b = *newBridge(nil, system, *baseTopic)

		opts := mqtt.NewClientOptions()
		opts.AddBroker(*broker)
		opts.SetClientID(*clientID)
		if *username != "" && *password != "" {
			opts.SetUsername(*username)
			opts.SetPassword(*password)
		}
		opts.WillEnabled = true
		opts.WillPayload = []byte(PayloadOffline)
		opts.WillRetained = true
		opts.WillTopic = b.BridgeStateTopic()
		opts.WillQos = 0
		opts.SetAutoReconnect(true)
		opts.OnConnect = b.onConnect
		opts.OnConnectionLost = func(_ mqtt.Client, err error) {
			b.logger.Warn("mqtt connection lost", slog.Any("error", err))
		}
		b.client = mqtt.NewClient(opts)
	})
	return b
}

// New returns a Bridge on top of an existing client.
func New(client mqtt.Client, system saures.System, baseTopic string) *Bridge {
	return newBridge(client, system, baseTopic)
}

func newBridge(client mqtt.Client, system saures.System, baseTopic string) *Bridge {
	baseTopic = strings.TrimSuffix(baseTopic, "/")
	return &Bridge{
		client:              client,
		system:              system,
		baseTopic:           baseTopic,
		timeout:             defaultTimeout,
		logger:              log.Default(),
		switchCommandRegexp: switchCommandExtractor(baseTopic),
	}
}

// Enabled reports whether a broker is configured.
func (b *Bridge) Enabled() bool {
	return b != nil && b.client != nil
}

func (b *Bridge) BridgeStateTopic() string {
	return fmt.Sprintf("%s/bridge/state", b.baseTopic)
}

func (b *Bridge) StateTopic(flatID string, bucket types.Bucket, meterID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/state", b.baseTopic, flatID, bucket, meterID)
}

func (b *Bridge) SwitchCommandTopic(flatID, meterID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/command", b.baseTopic, flatID, types.BucketSwitch, meterID)
}

func (b *Bridge) commandFilter() string {
	return fmt.Sprintf("%s/+/%s/+/command", b.baseTopic, types.BucketSwitch)
}

// Connect connects to the broker. The online state and the command
// subscription are set up from the connect handler, so they are restored
// after every reconnect.
func (b *Bridge) Connect(ctx context.Context) error {
	if !b.Enabled() {
		return nil
	}
	if err := b.wait(b.client.Connect(), "connect"); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "connected to mqtt broker")
	return nil
}

func (b *Bridge) onConnect(client mqtt.Client) {
	if err := b.wait(client.Publish(b.BridgeStateTopic(), 0, true, PayloadOnline), "publish bridge state"); err != nil {
		b.logger.Error("failed to publish bridge state", slog.Any("error", err))
	}
	if err := b.wait(client.Subscribe(b.commandFilter(), 1, b.handleCommand), "subscribe"); err != nil {
		b.logger.Error("failed to subscribe to command topics", slog.Any("error", err))
	}
}

// PublishSnapshot publishes one retained state message per classified meter.
func (b *Bridge) PublishSnapshot(ctx context.Context, snap types.Snapshot) error {
	if !b.Enabled() {
		return nil
	}
	var errs []error
	for _, flat := range snap.Flats {
		for _, bucket := range []types.Bucket{types.BucketSensor, types.BucketBinarySensor, types.BucketSwitch} {
			for _, m := range flat.Buckets.Get(bucket) {
				reading := types.NewReading(flat.ID, bucket, m, snap.Timestamp)
				payload, err := json.Marshal(reading)
				if err != nil {
					errs = append(errs, fmt.Errorf("marshal reading %s: %w", reading.MeterID, err))
					continue
				}
				topic := b.StateTopic(flat.ID, bucket, reading.MeterID)
				if err := b.wait(b.client.Publish(topic, 0, true, payload), "publish"); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", topic, err))
				}
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to publish some readings", slog.Int("failed", len(errs)), slog.Any("error", err))
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "published readings to mqtt", slog.Int("flats", len(snap.Flats)))
	return nil
}

// ParsedCommand is a command received on a switch command topic.
type ParsedCommand struct {
	FlatID  string
	MeterID string
	Command string
}

// ParseCommand extracts the flat and meter from a switch command topic.
func (b *Bridge) ParseCommand(msg mqtt.Message) (ParsedCommand, error) {
	matches := b.switchCommandRegexp.FindStringSubmatch(msg.Topic())
	if len(matches) != 3 {
		return ParsedCommand{}, errors.New("invalid switch command topic")
	}
	command := strings.TrimSpace(string(msg.Payload()))
	if command == "" {
		return ParsedCommand{}, errors.New("empty command")
	}
	return ParsedCommand{
		FlatID:  matches[1],
		MeterID: matches[2],
		Command: command,
	}, nil
}

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(log.With(context.Background(), b.logger), 2*b.timeout)
	defer cancel()

	cmd, err := b.ParseCommand(msg)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "ignoring mqtt message", slog.String("topic", msg.Topic()), slog.Any("error", err))
		return
	}
	ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("flatID", cmd.FlatID), slog.String("meterID", cmd.MeterID)))

	if !b.system.Lookup(cmd.FlatID, cmd.MeterID, types.BucketSwitch).Found() {
		log.Ctx(ctx).WarnContext(ctx, "command for unknown switch")
		return
	}
	if !b.system.SendCommand(ctx, cmd.MeterID, cmd.Command) {
		log.Ctx(ctx).ErrorContext(ctx, "mqtt command rejected", slog.String("command", cmd.Command))
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "mqtt command sent", slog.String("command", cmd.Command))
}

// Close publishes the offline state and disconnects.
func (b *Bridge) Close() error {
	if !b.Enabled() {
		return nil
	}
	err := b.wait(b.client.Publish(b.BridgeStateTopic(), 0, true, PayloadOffline), "publish bridge state")
	b.client.Disconnect(uint(b.timeout.Milliseconds()))
	return err
}

func (b *Bridge) wait(token mqtt.Token, what string) error {
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt %s timed out", what)
	}
	return token.Error()
}

func switchCommandExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/([a-zA-Z0-9_-]+)/%s/([a-zA-Z0-9_-]+)/command$", regexp.QuoteMeta(baseTopic), types.BucketSwitch))
}
