// Package stateclient is the consumer side of the state API: it keeps a local
// copy of the project state, refreshes it on a timer or on demand, and
// notifies subscribers whenever a new copy arrives.
package stateclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/famousjsons/projectstate"
)

// APIError is a non-2xx answer from the state API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stateclient: HTTP %d: %s", e.Status, e.Message)
}

// ErrNotFetched is returned by Wait when ctx ends before the first fetch.
var ErrNotFetched = errors.New("stateclient: state not fetched yet")

// Client holds the last state received. Observers run synchronously in the
// goroutine that received the state, in subscription order.
type Client struct {
	baseURL      string
	http         *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
	settleDelay  time.Duration

	mu        sync.RWMutex
	state     projectstate.State
	fetched   bool
	ready     chan struct{}
	observers []observer
	nextID    int
}

type observer struct {
	id int
	fn func(projectstate.State)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithPollInterval sets the Run period. Default: 5 minutes.
func WithPollInterval(d time.Duration) Option { return func(c *Client) { c.pollInterval = d } }

// WithSettleDelay sets the pause between POST /updateState and the re-fetch.
// Default: 3 seconds.
func WithSettleDelay(d time.Duration) Option { return func(c *Client) { c.settleDelay = d } }

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         http.DefaultClient,
		logger:       slog.Default(),
		pollInterval: 5 * time.Minute,
		settleDelay:  3 * time.Second,
		ready:        make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the local copy and whether anything was fetched yet. Before
// the first fetch the minted set is empty.
func (c *Client) State() (projectstate.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.state
	if st.TokenIDsMinted == nil {
		st.TokenIDsMinted = []string{}
	}
	return st, c.fetched
}

// Wait blocks until the first state has been fetched or ctx ends.
func (c *Client) Wait(ctx context.Context) (projectstate.State, error) {
	select {
	case <-c.ready:
		st, _ := c.State()
		return st, nil
	case <-ctx.Done():
		return projectstate.State{}, fmt.Errorf("%w: %w", ErrNotFetched, ctx.Err())
	}
}

// Subscribe registers fn for every state received. The returned function
// removes it.
func (c *Client) Subscribe(fn func(projectstate.State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, observer{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// Fetch GETs /getState and replaces the local copy.
func (c *Client) Fetch(ctx context.Context) (projectstate.State, error) {
	var st projectstate.State
	if err := c.do(ctx, http.MethodGet, "/getState", &st); err != nil {
		return projectstate.State{}, err
	}
	c.set(st)
	return st, nil
}

// Update asks the server for a refresh, waits for it to settle and re-fetches.
func (c *Client) Update(ctx context.Context) (projectstate.State, error) {
	if err := c.do(ctx, http.MethodPost, "/updateState", nil); err != nil {
		return projectstate.State{}, err
	}
	t := time.NewTimer(c.settleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return projectstate.State{}, ctx.Err()
	case <-t.C:
	}
	return c.Fetch(ctx)
}

// Run fetches now and then every poll interval until ctx ends. Fetch errors
// are logged and the previous copy is kept.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Client) poll(ctx context.Context) {
	if _, err := c.Fetch(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("stateclient: fetch failed", "url", c.baseURL, "error", err)
	}
}

func (c *Client) set(st projectstate.State) {
	c.mu.Lock()
	c.state = st
	first := !c.fetched
	c.fetched = true
	obs := make([]observer, len(c.observers))
	copy(obs, c.observers)
	c.mu.Unlock()

	if first {
		close(c.ready)
	}
	for _, o := range obs {
		o.fn(st)
	}
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("stateclient: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stateclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("stateclient: read %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("stateclient: decode %s: %w", path, err)
	}
	return nil
}
