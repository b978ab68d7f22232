package wardroom

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Transport is the websocket surface a Client drives. Both the fiber and
// gorilla connection types satisfy it.
type Transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ClientOptions tunes one connection.
type ClientOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
	InboundRate     float64
	InboundBurst    int
}

// InboundFrame is a control message sent by a client.
type InboundFrame struct {
	Event string `json:"event"`
	Ward  string `json:"ward,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// Client is one authenticated websocket connection attached to a Hub.
type Client struct {
	id     string
	userID string
	conn   Transport
	hub    *Hub
	opts   ClientOptions

	send    chan OutboundEvent
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient wraps conn for userID. The client joins no ward until asked to.
func NewClient(conn Transport, hub *Hub, userID string, opts ClientOptions, logger *zap.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 4096
	}
	if opts.InboundRate <= 0 {
		opts.InboundRate = 5
	}
	if opts.InboundBurst <= 0 {
		opts.InboundBurst = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Client{
		id:      id,
		userID:  userID,
		conn:    conn,
		hub:     hub,
		opts:    opts,
		send:    make(chan OutboundEvent, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(opts.InboundRate), opts.InboundBurst),
		logger:  logger.With(zap.String("conn_id", id), zap.String("user_id", userID)),
	}
}

// ID identifies the connection inside the hub.
func (c *Client) ID() string { return c.id }

// Enqueue buffers ev for the write pump without blocking.
func (c *Client) Enqueue(ev OutboundEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Run pumps frames until the peer goes away, then detaches from the hub.
// It blocks for the lifetime of the connection.
func (c *Client) Run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()

	c.hub.Disconnect(c)
	c.close()
	<-writerDone
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.Enqueue(errorFrame("rate limit exceeded"))
			continue
		}

		var frame InboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.Enqueue(errorFrame("malformed frame"))
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame InboundFrame) {
	switch frame.Event {
	case FrameJoinWard:
		ward := normalizeWard(frame.Ward)
		if ward == "" {
			c.Enqueue(errorFrame(errMissingWard.Error()))
			return
		}
		c.hub.join(c, ward, true)
	case FrameLeaveWard:
		ward := normalizeWard(frame.Ward)
		if ward == "" {
			c.Enqueue(errorFrame(errMissingWard.Error()))
			return
		}
		c.hub.leave(c, ward, true)
	case FrameChangeWard:
		to := normalizeWard(frame.To)
		if to == "" {
			c.Enqueue(errorFrame("target ward is required"))
			return
		}
		c.hub.changeWard(c, frame.From, to, true)
	case FramePing:
		c.Enqueue(OutboundEvent{Event: FramePong, Timestamp: time.Now().UTC()})
	case FrameIssueCreated, FrameIssueStatusUpdate:
		c.logger.Info("ignoring client-supplied broadcast", zap.String("event", frame.Event))
		c.Enqueue(errorFrame("issue events are published by the server"))
	default:
		c.Enqueue(errorFrame("unknown event " + frame.Event))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) write(ev OutboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func errorFrame(message string) OutboundEvent {
	return OutboundEvent{Event: FrameError, Message: message, Timestamp: time.Now().UTC()}
}
