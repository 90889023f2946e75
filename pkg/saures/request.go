package saures

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	loginPath   = "1.0/login"
	objectsPath = "1.0/user/objects"
	metersPath  = "1.0/object/meters"
	controlPath = "1.0/meter/control"

	statusBad = "bad"
)

func (c *Client) endpoint(path string) (*url.URL, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (c *Client) newGetRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}
	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

func (c *Client) newPostFormRequest(ctx context.Context, path string, data url.Values) (*http.Request, error) {
	u, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	return req, nil
}

// do sends the request and returns the status code and the full body.
// Transport failures are wrapped in ErrTransport.
func (c *Client) do(req *http.Request, endpoint string) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		c.observe(endpoint, "transport_error")
		return 0, nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "transport_error")
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if resp.StatusCode == http.StatusOK {
		c.observe(endpoint, "ok")
	} else {
		c.observe(endpoint, "http_error")
	}
	return resp.StatusCode, body, nil
}

type apiMessage struct {
	Msg string `json:"msg"`
}

type envelope struct {
	Status string          `json:"status"`
	Errors []apiMessage    `json:"errors"`
	Data   json.RawMessage `json:"data"`
}

// decodeEnvelope parses the common {status, errors, data} wrapper. An empty
// or null body is malformed and a "bad" status is an APIError.
func decodeEnvelope(body []byte) (envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &fields); err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(fields) == 0 {
		return envelope{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if env.Status == statusBad {
		var msg string
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Msg
		}
		return env, APIError{Msg: msg}
	}
	return env, nil
}

// decodeData unmarshals the data member preserving numbers as json.Number so
// ids survive untouched.
func decodeData(raw json.RawMessage, dest any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func truncateBody(body []byte) string {
	const maxBody = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxBody {
		return s[:maxBody] + "..."
	}
	return s
}
