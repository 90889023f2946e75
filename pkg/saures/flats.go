package saures

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sauresha/sauresha/pkg/types"
)

type objectsData struct {
	Objects []map[string]any `json:"objects"`
	List    []map[string]any `json:"list"`
}

// ListFlats returns flat id to "label:house:number". A configured static map
// is returned as-is without touching the network. Failures are logged and
// whatever was collected so far is returned.
func (c *Client) ListFlats(ctx context.Context) map[string]string {
	flats, err := c.listFlats(ctx)
	if err != nil {
		c.log(ctx).ErrorContext(ctx, "error fetching saures flats", slog.Any("error", err))
	}
	return flats
}

func (c *Client) listFlats(ctx context.Context) (map[string]string, error) {
	flats := make(map[string]string)
	defer func() {
		c.cacheMu.Lock()
		c.flats = flats
		c.cacheMu.Unlock()
	}()

	if c.staticFlats != nil {
		for id, label := range c.staticFlats {
			flats[id] = label
		}
		return flats, nil
	}

	if !c.Authenticate(ctx) {
		return flats, ErrAuthentication
	}

	params := url.Values{}
	params.Set("sid", c.sessionID())
	req, err := c.newGetRequest(ctx, objectsPath, params)
	if err != nil {
		return flats, err
	}

	status, body, err := c.do(req, "objects")
	if err != nil {
		return flats, err
	}
	if status != http.StatusOK {
		return flats, &StatusError{Code: status, Body: truncateBody(body)}
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return flats, err
	}

	var data objectsData
	if err := decodeData(env.Data, &data); err != nil {
		// a data member that isn't an object just means no flats
		c.log(ctx).WarnContext(ctx, "unexpected saures objects payload", slog.Any("error", err), c.debugBody(body))
		return flats, nil
	}
	list := data.Objects
	if len(list) == 0 {
		list = data.List
	}

	for _, obj := range list {
		id, ok := objectID(obj["id"])
		if !ok {
			continue
		}
		flats[id] = fmt.Sprintf("%s:%s:%s",
			types.Stringify(obj["label"]),
			types.Stringify(obj["house"]),
			types.Stringify(obj["number"]),
		)
	}
	c.log(ctx).DebugContext(ctx, "loaded saures flats", slog.Int("count", len(flats)))
	return flats, nil
}

// objectID skips empty strings and numeric zero ids. A string "0" is a real
// id.
func objectID(raw any) (string, bool) {
	if _, ok := raw.(string); !ok {
		if f, ok := types.ParseFloat(raw); ok && f == 0 {
			return "", false
		}
	}
	id := types.Stringify(raw)
	return id, id != ""
}
