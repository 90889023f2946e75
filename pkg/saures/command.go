package saures

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
)

// SendCommand sends command to a controllable meter. It reports true only
// when the API accepted the command; every failure is logged and reported as
// false.
func (c *Client) SendCommand(ctx context.Context, meterID, command string) bool {
	if !c.Authenticate(ctx) {
		c.log(ctx).ErrorContext(ctx, "saures authentication failed before sending command", slog.String("meterID", meterID))
		return false
	}

	data := url.Values{}
	data.Set("sid", c.sessionID())
	data.Set("id", meterID)
	data.Set("command", command)

	req, err := c.newPostFormRequest(ctx, controlPath, data)
	if err != nil {
		c.log(ctx).ErrorContext(ctx, "failed to build saures command request", slog.Any("error", err))
		return false
	}

	_, body, err := c.do(req, "control")
	if err != nil {
		c.log(ctx).ErrorContext(ctx, "connection error sending saures command", slog.String("meterID", meterID), slog.Any("error", err))
		return false
	}

	if _, err := decodeEnvelope(body); err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) {
			c.log(ctx).WarnContext(ctx, "saures command failed", slog.String("meterID", meterID), slog.String("msg", apiErr.Msg))
		} else {
			c.log(ctx).ErrorContext(ctx, "saures command error", slog.String("meterID", meterID), slog.Any("error", err), c.debugBody(body))
		}
		return false
	}

	c.log(ctx).DebugContext(ctx, "saures command successful", slog.String("meterID", meterID), slog.String("command", command))
	return true
}
