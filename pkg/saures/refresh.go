package saures

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// RefreshAll runs a full cycle: authenticate, list flats, then fetch and
// classify each flat in turn. Flats are paced by the flat delay. A failure to
// authenticate or to list flats aborts the cycle; per-flat failures are logged
// and the remaining flats still refresh.
func (c *Client) RefreshAll(ctx context.Context) error {
	if !c.Authenticate(ctx) {
		c.log(ctx).ErrorContext(ctx, "initial saures authentication failed")
		return ErrAuthentication
	}

	flats, err := c.listFlats(ctx)
	if err != nil {
		c.log(ctx).ErrorContext(ctx, "saures refresh aborted", slog.Any("error", err))
		return fmt.Errorf("list flats: %w", err)
	}

	ids := make([]string, 0, len(flats))
	for id := range flats {
		if FlatAllowed(c.flatsFilter, id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var failed int
	for _, id := range ids {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for flat %s: %w", id, err)
		}

		l := c.log(ctx).With(slog.String("flatID", id))
		c.Controllers(ctx, id)
		buckets, err := c.Classify(ctx, id)
		if err != nil {
			failed++
			l.ErrorContext(ctx, "error loading saures flat", slog.Any("error", err))
			continue
		}
		l.DebugContext(
			ctx,
			"saures flat refreshed",
			slog.Int("sensors", len(buckets.Sensors)),
			slog.Int("binarySensors", len(buckets.BinarySensors)),
			slog.Int("switches", len(buckets.Switches)),
		)
	}

	c.cacheMu.Lock()
	c.lastRefresh = c.now()
	c.cacheMu.Unlock()

	c.log(ctx).InfoContext(ctx, "saures refresh complete", slog.Int("flats", len(ids)), slog.Int("failed", failed))
	return nil
}
