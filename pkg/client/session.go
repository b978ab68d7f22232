package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// EventConnected is delivered locally after every (re)connect. Pushes may
// have been missed while disconnected, so consumers should refetch.
const EventConnected = "session-connected"

// Event is a push frame from the ward room. Treat it as a hint to refetch.
type Event struct {
	Event     string    `json:"event"`
	Ward      string    `json:"ward,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	IssueID   string    `json:"issueId,omitempty"`
	Category  string    `json:"category,omitempty"`
	Title     string    `json:"title,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type frame struct {
	Event string `json:"event"`
	Ward  string `json:"ward,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// ErrUnauthorized means the server refused the token; reconnecting will not help.
var ErrUnauthorized = errors.New("websocket handshake unauthorized")

// SessionOptions tunes reconnect behaviour.
type SessionOptions struct {
	Dialer      *websocket.Dialer
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// StableAfter is how long a connection must stay up before the
	// reconnect backoff starts over from BaseBackoff.
	StableAfter time.Duration
	EventBuffer int
	Logger      *zap.Logger
}

// Session keeps one websocket subscribed to the active ward across reconnects.
type Session struct {
	client *Client
	opts   SessionOptions
	events chan Event

	mu   sync.Mutex
	ward string
	conn *websocket.Conn
}

// NewSession subscribes to ward once Run connects. ward may be empty.
func NewSession(c *Client, ward string, opts SessionOptions) *Session {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = 10 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		client: c,
		opts:   opts,
		events: make(chan Event, opts.EventBuffer),
		ward:   strings.TrimSpace(ward),
	}
}

// Events delivers push frames. It is closed when Run returns.
func (s *Session) Events() <-chan Event { return s.events }

// Ward is the active ward.
func (s *Session) Ward() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ward
}

// Connected reports whether a websocket is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SetWard switches the active ward. While connected the server is told
// immediately; otherwise the next connect joins the new ward.
func (s *Session) SetWard(ward string) error {
	ward = strings.TrimSpace(ward)
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.ward
	s.ward = ward
	if s.conn == nil || old == ward {
		return nil
	}
	if ward == "" {
		return s.conn.WriteJSON(frame{Event: "leave-ward", Ward: old})
	}
	return s.conn.WriteJSON(frame{Event: "change-ward", From: old, To: ward})
}

// Run connects and stays connected until ctx is cancelled, reconnecting with
// exponential backoff. It returns ctx.Err() or ErrUnauthorized.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)
	backoff := s.newBackoff()
	for {
		conn, err := s.dial(ctx, backoff)
		if err != nil {
			return err
		}
		started := time.Now()
		if err := s.serve(ctx, conn); err != nil {
			s.opts.Logger.Debug("ward session dropped", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) >= s.opts.StableAfter {
			backoff = s.newBackoff()
		}
		if err := s.wait(ctx, backoff); err != nil {
			return err
		}
	}
}

func (s *Session) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(s.opts.MaxBackoff, retry.WithJitterPercent(10, retry.NewExponential(s.opts.BaseBackoff)))
}

// wait sleeps for the next backoff step after a dropped connection.
func (s *Session) wait(ctx context.Context, backoff retry.Backoff) error {
	d, stop := backoff.Next()
	if stop {
		d = s.opts.MaxBackoff
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) dial(ctx context.Context, backoff retry.Backoff) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		target, err := s.client.WebsocketURL()
		if err != nil {
			return err
		}
		c, resp, err := s.opts.Dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return ErrUnauthorized
			}
			s.opts.Logger.Debug("ward session dial failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

// serve owns conn until it breaks or ctx ends.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	s.conn = conn
	ward := s.ward
	var err error
	if ward != "" {
		err = conn.WriteJSON(frame{Event: "join-ward", Ward: ward})
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if !s.emit(ctx, Event{Event: EventConnected, Ward: ward, Timestamp: time.Now().UTC()}) {
		return ctx.Err()
	}
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if !s.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (s *Session) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
