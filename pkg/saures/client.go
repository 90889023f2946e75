package saures

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sauresha/sauresha/pkg/common"
	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/types"
)

const (
	DefaultBaseURL   = "https://api.saures.ru"
	DefaultUserAgent = "HTTPie/0.9.8"
	DefaultFlatDelay = 5 * time.Second

	requestTimeout = 30 * time.Second
	sessionTTL     = 300 * time.Second
	dataTTL        = 300 * time.Second
)

var (
	// DefaultBinarySensorTypes are the meter type numbers reported as binary
	// sensors: leak sensor and dry contact.
	DefaultBinarySensorTypes = []int{4, 11}
	// DefaultSwitchTypes are the meter type numbers that accept commands:
	// motorised valve and controllable contact.
	DefaultSwitchTypes = []int{6, 12}
)

// Options configures a Client.
type Options struct {
	Email    string
	Password string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// HTTPClient defaults to a 30s client sending DefaultUserAgent.
	HTTPClient *http.Client
	// Logger is used when the request context carries no logger.
	Logger *slog.Logger

	// StaticFlats, when set, is returned by ListFlats instead of asking the
	// API.
	StaticFlats map[string]string
	// FlatsFilter limits RefreshAll to the listed flat ids.
	FlatsFilter []string

	BinarySensorTypes []int
	SwitchTypes       []int

	// FlatDelay is the minimum spacing between flats in RefreshAll. Zero
	// disables pacing.
	FlatDelay time.Duration

	// Debug adds response bodies to error logs.
	Debug bool
}

// Client talks to the Saures API and owns the session and every per-flat
// cache. A Client is safe for concurrent use.
type Client struct {
	client   *http.Client
	baseURL  string
	email    string
	password string
	debug    bool
	logger   *slog.Logger
	now      func() time.Time

	staticFlats map[string]string
	flatsFilter []string
	binaryTypes map[int]struct{}
	switchTypes map[int]struct{}
	limiter     *rate.Limiter
	requests    *prometheus.CounterVec

	// mu guards the session
	mu        sync.Mutex
	sid       string
	lastLogin time.Time
	logins    singleflight.Group

	statesMu sync.Mutex
	states   map[string]*flatState

	cacheMu     sync.RWMutex
	flats       map[string]string
	controllers map[string][]types.Controller
	buckets     map[string]types.Buckets
	fetchedAt   map[string]time.Time
	syncedAt    map[string]time.Time
	lastRefresh time.Time
}

// flatState is the fetch cache of a single flat. mu is held for the whole
// read-modify-write so only one fetch per flat runs at a time.
type flatState struct {
	mu      sync.Mutex
	updated time.Time
	data    []types.Controller
}

// New returns a Client for the given options.
func New(opts Options) (*Client, error) {
	c := &Client{}
	if err := c.init(opts); err != nil {
		return nil, err
	}
	return c, nil
}

// Configured registers the saures flags and returns a Client that is ready
// once lflag.Configure has run.
func Configured() *Client {
	email := lflag.RequiredString("saures-email", "Saures account email")
	password := lflag.RequiredString("saures-password", "Saures account password")
	baseURL := lflag.String("saures-base-url", DefaultBaseURL, "Saures API base URL")
	staticFlats := map[string]string{}
	lflag.JSON(&staticFlats, "saures-flats", staticFlats, "JSON map of flat id to label. When set the flat list is not fetched from the API")
	flatsFilter := lflag.String("saures-flats-filter", "", "comma-delimited list of flat ids to refresh (default all)")
	binaryTypes := append([]int(nil), DefaultBinarySensorTypes...)
	lflag.JSON(&binaryTypes, "saures-binary-sensor-types", binaryTypes, "JSON list of meter type numbers classified as binary sensors")
	switchTypes := append([]int(nil), DefaultSwitchTypes...)
	lflag.JSON(&switchTypes, "saures-switch-types", switchTypes, "JSON list of meter type numbers classified as switches")
	flatDelay := lflag.Duration("saures-flat-delay", DefaultFlatDelay, "Delay between flats during a refresh")
	debug := lflag.Bool("saures-debug", false, "Log response bodies on errors")

	c := &Client{}
	lflag.Do(func() {
		opts := Options{
			Email:             *email,
			Password:          *password,
			BaseURL:           *baseURL,
			BinarySensorTypes: binaryTypes,
			SwitchTypes:       switchTypes,
			FlatDelay:         *flatDelay,
			Debug:             *debug,
		}
		if len(staticFlats) > 0 {
			opts.StaticFlats = staticFlats
		}
		if *flatsFilter != "" {
			for _, id := range strings.Split(*flatsFilter, ",") {
				if id = strings.TrimSpace(id); id != "" {
					opts.FlatsFilter = append(opts.FlatsFilter, id)
				}
			}
		}
		if err := c.init(opts); err != nil {
			panic(fmt.Sprintf("saures config invalid: %v", err))
		}
	})
	return c
}

func (c *Client) init(opts Options) error {
	if opts.Email == "" {
		return fmt.Errorf("missing email")
	}
	if opts.Password == "" {
		return fmt.Errorf("missing password")
	}

	binaryTypes := opts.BinarySensorTypes
	if binaryTypes == nil {
		binaryTypes = DefaultBinarySensorTypes
	}
	switchTypes := opts.SwitchTypes
	if switchTypes == nil {
		switchTypes = DefaultSwitchTypes
	}
	c.binaryTypes = make(map[int]struct{}, len(binaryTypes))
	for _, n := range binaryTypes {
		c.binaryTypes[n] = struct{}{}
	}
	c.switchTypes = make(map[int]struct{}, len(switchTypes))
	for _, n := range switchTypes {
		if _, ok := c.binaryTypes[n]; ok {
			return fmt.Errorf("meter type %d is both a binary sensor and a switch", n)
		}
		c.switchTypes[n] = struct{}{}
	}

	c.email = opts.Email
	c.password = opts.Password
	c.baseURL = opts.BaseURL
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	c.client = opts.HTTPClient
	if c.client == nil {
		c.client = common.HTTPClient(requestTimeout, DefaultUserAgent)
	}
	c.logger = opts.Logger
	if c.logger == nil {
		c.logger = log.Default()
	}
	c.debug = opts.Debug
	c.now = time.Now

	if opts.StaticFlats != nil {
		c.staticFlats = make(map[string]string, len(opts.StaticFlats))
		for id, label := range opts.StaticFlats {
			c.staticFlats[id] = label
		}
	}
	c.flatsFilter = append([]string(nil), opts.FlatsFilter...)

	if opts.FlatDelay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.FlatDelay), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	c.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saures_api_requests_total",
		Help: "Requests sent to the Saures API by endpoint and result",
	}, []string{"endpoint", "result"})

	c.states = make(map[string]*flatState)
	c.flats = make(map[string]string)
	c.controllers = make(map[string][]types.Controller)
	c.buckets = make(map[string]types.Buckets)
	c.fetchedAt = make(map[string]time.Time)
	c.syncedAt = make(map[string]time.Time)
	return nil
}

// log prefers the logger carried by the context over the injected one.
func (c *Client) log(ctx context.Context) *slog.Logger {
	if l, ok := log.FromContext(ctx); ok {
		return l
	}
	return c.logger
}

func (c *Client) observe(endpoint, result string) {
	c.requests.WithLabelValues(endpoint, result).Inc()
}

func (c *Client) debugBody(body []byte) slog.Attr {
	if !c.debug {
		return slog.Attr{}
	}
	return slog.String("body", truncateBody(body))
}

func (c *Client) flatState(flatID string) *flatState {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()
	st, ok := c.states[flatID]
	if !ok {
		st = &flatState{}
		c.states[flatID] = st
	}
	return st
}

// Flats returns the flats found by the last ListFlats.
func (c *Client) Flats() map[string]string {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	flats := make(map[string]string, len(c.flats))
	for id, label := range c.flats {
		flats[id] = label
	}
	return flats
}

// FlatAllowed reports whether flatID passes filter. An empty filter allows
// every flat.
func FlatAllowed(filter []string, flatID string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, id := range filter {
		if id == flatID {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of everything cached, ordered by flat id.
func (c *Client) Snapshot() types.Snapshot {
	c.cacheMu.RLock()
	snap := types.Snapshot{Timestamp: c.lastRefresh}
	ids := make([]string, 0, len(c.flats))
	for id := range c.flats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap.Flats = append(snap.Flats, types.FlatSnapshot{
			ID:          id,
			Label:       c.flats[id],
			Controllers: append([]types.Controller(nil), c.controllers[id]...),
			Buckets:     c.buckets[id],
			UpdatedAt:   c.fetchedAt[id],
			SyncedAt:    c.syncedAt[id],
		})
	}
	c.cacheMu.RUnlock()
	return snap
}
