package saures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

type loginData struct {
	SID string `json:"sid"`
}

// Authenticate makes sure a session id is held. Inside the session window it
// answers from the cached state; a window that holds no session id is expired
// once and a fresh login is attempted. Callers must not make authenticated
// requests when it returns false.
func (c *Client) Authenticate(ctx context.Context) bool {
	for attempt := 0; attempt < 2; attempt++ {
		c.mu.Lock()
		fresh := c.now().Sub(c.lastLogin) < sessionTTL
		hasSID := c.sid != ""
		if fresh && !hasSID && attempt == 0 {
			c.lastLogin = time.Time{}
		}
		c.mu.Unlock()

		if !fresh {
			return c.login(ctx) == nil
		}
		if hasSID {
			return true
		}
		if attempt == 0 {
			c.log(ctx).WarnContext(ctx, "no valid saures session available, forcing re-auth")
		}
	}
	return false
}

// sessionID returns the current sid.
func (c *Client) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// login collapses concurrent logins into a single request and shares the
// outcome with every waiter. The shared request outlives the caller that
// started it so a cancelled caller can't fail the others.
func (c *Client) login(ctx context.Context) error {
	ch := c.logins.DoChan("login", func() (any, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
		defer cancel()
		return nil, c.doLogin(loginCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.log(ctx).DebugContext(ctx, "joined in-flight saures login")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) doLogin(ctx context.Context) error {
	c.mu.Lock()
	// a login that finished while we were queued already did the work
	if c.sid != "" && c.now().Sub(c.lastLogin) < sessionTTL {
		c.mu.Unlock()
		return nil
	}
	c.lastLogin = c.now()
	c.mu.Unlock()

	sid, err := c.requestSession(ctx)
	c.mu.Lock()
	c.sid = sid
	if err == nil {
		c.lastLogin = c.now()
	}
	c.mu.Unlock()

	if err != nil {
		var apiErr APIError
		if errors.As(err, &apiErr) {
			c.log(ctx).ErrorContext(ctx, "saures authentication failed", slog.String("msg", apiErr.Msg))
			return fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		c.log(ctx).ErrorContext(ctx, "saures auth error", slog.Any("error", err))
		return err
	}
	c.log(ctx).DebugContext(ctx, "saures authentication successful", slog.String("sid", redact(sid)))
	return nil
}

func (c *Client) requestSession(ctx context.Context) (string, error) {
	data := url.Values{}
	data.Set("email", c.email)
	data.Set("password", c.password)

	req, err := c.newPostFormRequest(ctx, loginPath, data)
	if err != nil {
		return "", err
	}

	_, body, err := c.do(req, "login")
	if err != nil {
		return "", err
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return "", err
	}

	var res loginData
	if err := decodeData(env.Data, &res); err != nil {
		return "", err
	}
	if res.SID == "" {
		return "", fmt.Errorf("%w: empty sid", ErrMalformedResponse)
	}
	return res.SID, nil
}

func redact(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8] + "..."
}
