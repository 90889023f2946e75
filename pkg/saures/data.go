package saures

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sauresha/sauresha/pkg/types"
)

type metersData struct {
	Sensors *[]types.Controller `json:"sensors"`
}

// FetchFlatData returns the controllers of a flat, each with its meters.
// Within the cache window the previous result is returned unchanged unless
// reload is set. The window restarts before the request is sent, so a failed
// fetch still holds off the next attempt; on failure the previous result is
// kept. Cancelling ctx leaves the cache exactly as it was.
//
// The returned slice is shared with the cache and must not be modified.
func (c *Client) FetchFlatData(ctx context.Context, flatID string, reload bool) []types.Controller {
	st := c.flatState(flatID)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	if !reload && !st.updated.IsZero() && now.Sub(st.updated) < dataTTL {
		return st.data
	}

	previous := st.updated
	st.updated = now
	c.setFetchedAt(flatID, now)

	restore := func() {
		st.updated = previous
		c.setFetchedAt(flatID, previous)
	}

	if !c.Authenticate(ctx) {
		if ctx.Err() != nil {
			restore()
			return st.data
		}
		c.log(ctx).ErrorContext(ctx, "saures authentication failed for flat data request", slog.String("flatID", flatID))
		return st.data
	}

	controllers, err := c.fetchMeters(ctx, flatID)
	if err != nil {
		if ctx.Err() != nil {
			c.log(ctx).DebugContext(ctx, "saures flat data request cancelled", slog.String("flatID", flatID))
			restore()
			return st.data
		}
		c.log(ctx).WarnContext(ctx, "error fetching saures flat data", slog.String("flatID", flatID), slog.Any("error", err))
		return st.data
	}

	st.data = controllers
	c.cacheMu.Lock()
	c.syncedAt[flatID] = now
	c.cacheMu.Unlock()
	c.log(ctx).DebugContext(ctx, "loaded saures controllers", slog.String("flatID", flatID), slog.Int("count", len(controllers)))
	return st.data
}

func (c *Client) setFetchedAt(flatID string, t time.Time) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if t.IsZero() {
		delete(c.fetchedAt, flatID)
		return
	}
	c.fetchedAt[flatID] = t
}

func (c *Client) fetchMeters(ctx context.Context, flatID string) ([]types.Controller, error) {
	params := url.Values{}
	params.Set("id", flatID)
	params.Set("sid", c.sessionID())
	req, err := c.newGetRequest(ctx, metersPath, params)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(req, "meters")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Code: status, Body: truncateBody(body)}
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}

	var data metersData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, err
	}
	if data.Sensors == nil {
		return nil, fmt.Errorf("%w: missing data.sensors", ErrMalformedResponse)
	}
	controllers := *data.Sensors
	if controllers == nil {
		controllers = []types.Controller{}
	}
	return controllers, nil
}

// Controllers fetches the flat data and keeps it as the flat's controller
// list for Controller lookups.
func (c *Client) Controllers(ctx context.Context, flatID string) []types.Controller {
	controllers := c.FetchFlatData(ctx, flatID, false)

	c.cacheMu.Lock()
	c.controllers[flatID] = controllers
	c.cacheMu.Unlock()
	return controllers
}

// Controller returns the controller with serial number sn, or the zero value
// when the flat or controller is unknown.
func (c *Client) Controller(flatID, sn string) types.ControllerInfo {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	for _, ctrl := range c.controllers[flatID] {
		if ctrl.SerialNumber() == sn {
			return types.ControllerInfo{
				Controller: ctrl,
				Model:      ControllerName(ctrl.HardwareID()),
			}
		}
	}
	return types.ControllerInfo{}
}
