package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/saures"
	"github.com/sauresha/sauresha/pkg/types"
)

func main() {
	client := saures.Configured()
	action := lflag.String("action", "flats", "what to do (available: flats, controllers, meters, command)")
	flatID := lflag.String("flat", "", "flat id for controllers and meters")
	bucket := lflag.String("bucket", "", "bucket for meters (sensor, binary_sensor, switch; default all)")
	meterID := lflag.String("meter", "", "meter id for command")
	command := lflag.String("command", "", "command text for command")
	lflag.Configure()

	level, err := log.LevelFromLLog()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var out any
	switch *action {
	case "flats":
		out = client.ListFlats(ctx)
	case "controllers":
		requireFlag("flat", *flatID)
		var resp []map[string]string
		for _, ctrl := range client.Controllers(ctx, *flatID) {
			info := client.Controller(*flatID, ctrl.SerialNumber())
			resp = append(resp, map[string]string{
				"sn":       ctrl.SerialNumber(),
				"model":    info.Model,
				"firmware": ctrl.Firmware(),
			})
		}
		out = resp
	case "meters":
		requireFlag("flat", *flatID)
		buckets, err := client.Classify(ctx, *flatID)
		if err != nil {
			fail(ctx, "failed to classify flat", err)
		}
		if *bucket == "" {
			out = buckets
			break
		}
		b, ok := types.ParseBucket(*bucket)
		if !ok {
			fail(ctx, "invalid bucket", fmt.Errorf("unknown bucket %q", *bucket))
		}
		out = buckets.Get(b)
	case "command":
		requireFlag("meter", *meterID)
		requireFlag("command", *command)
		if !client.SendCommand(ctx, *meterID, *command) {
			fail(ctx, "command rejected", fmt.Errorf("meter %s did not accept %q", *meterID, *command))
		}
		out = map[string]bool{"ok": true}
	default:
		fail(ctx, "unknown action", fmt.Errorf("%q", *action))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fail(ctx, "failed to write output", err)
	}
}

func requireFlag(name, value string) {
	if value == "" {
		fmt.Fprintf(os.Stderr, "--%s is required\n", name)
		os.Exit(2)
	}
}

func fail(ctx context.Context, msg string, err error) {
	log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
	os.Exit(1)
}
