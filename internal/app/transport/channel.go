// Package transport provides the persistent push channel shared by the
// networked backend adapters. One physical websocket connection serves
// any number of per-message-type subscribers; the channel reconnects on
// failure and re-attaches all listeners transparently.
package transport

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

// DefaultReconnectDelay is the fixed backoff between reconnect
// attempts.
const DefaultReconnectDelay = time.Second

// Message is a decoded push envelope. Type routes the message;
// adapters pull their backend-specific delta out of Body.
type Message struct {
	Type string
	Body map[string]any
}

// Channel is the process-wide push connection. Construct one and pass
// it to each adapter; do not share a connection across processes.
type Channel struct {
	url            string
	reconnectDelay time.Duration

	mu        sync.RWMutex
	subs      map[string]map[string]func(Message) // message type -> sub id -> handler
	reconnect map[string]func()                    // sub id -> reconnect hook
	connected bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithReconnectDelay overrides the fixed reconnect backoff.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// New creates a channel for the given websocket URL. Call Run to start
// it.
func New(url string, opts ...Option) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		url:            url,
		reconnectDelay: DefaultReconnectDelay,
		subs:           make(map[string]map[string]func(Message)),
		reconnect:      make(map[string]func()),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a handler for one message type and returns its
// unsubscribe function. Delivery is FIFO within a type; no ordering is
// guaranteed across types.
func (c *Channel) Subscribe(msgType string, fn func(Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[msgType] == nil {
		c.subs[msgType] = make(map[string]func(Message))
	}
	id := uuid.New().String()
	c.subs[msgType][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[msgType], id)
	}
}

// SubscribeReconnect registers a hook invoked after the connection is
// re-established following an outage. Adapters use it to re-fetch full
// authoritative state; pushes missed during the gap are not redelivered.
func (c *Channel) SubscribeReconnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New().String()
	c.reconnect[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.reconnect, id)
	}
}

// Connected reports whether the channel currently has a live
// connection.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Run starts the connect/read/reconnect loop. It returns immediately;
// Close stops the loop.
func (c *Channel) Run() {
	go c.loop()
}

// Close tears the channel down. Subscribers are not notified; the
// channel is expected to live as long as the engine.
func (c *Channel) Close() {
	c.cancel()
	<-c.done
}

func (c *Channel) loop() {
	defer close(c.done)
	everConnected := false
	for {
		if c.ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			zlog.Debug().Err(err).Str("url", c.url).Msg("transport: dial failed")
			if !c.sleep() {
				return
			}
			continue
		}
		c.setConnected(true)
		if everConnected {
			// Reconnect after a gap: listeners must resynchronize.
			c.fireReconnect()
		}
		everConnected = true
		c.readAll(conn)
		c.setConnected(false)
		_ = conn.Close()
		if !c.sleep() {
			return
		}
	}
}

func (c *Channel) sleep() bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(c.reconnectDelay):
		return true
	}
}

func (c *Channel) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Channel) fireReconnect() {
	c.mu.RLock()
	hooks := make([]func(), 0, len(c.reconnect))
	for _, fn := range c.reconnect {
		hooks = append(hooks, fn)
	}
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Channel) readAll(conn *websocket.Conn) {
	// The watcher unblocks the read on shutdown and must not outlive
	// this connection, or every reconnect cycle would leak one.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-c.ctx.Done():
			_ = conn.Close()
		case <-readDone:
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				zlog.Debug().Err(err).Msg("transport: connection lost")
			}
			return
		}
		// The server may batch several envelopes into one frame,
		// newline-delimited.
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			c.Dispatch([]byte(line))
		}
	}
}

// Dispatch decodes one envelope and routes it to the subscribers of its
// type. Unrecognized types and undecodable payloads are dropped, not
// errors.
func (c *Channel) Dispatch(raw []byte) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		zlog.Debug().Err(err).Msg("transport: dropping undecodable message")
		return
	}
	msgType, _ := body["type"].(string)
	if msgType == "" {
		return
	}
	c.mu.RLock()
	handlers := make([]func(Message), 0, len(c.subs[msgType]))
	for _, fn := range c.subs[msgType] {
		handlers = append(handlers, fn)
	}
	c.mu.RUnlock()
	msg := Message{Type: msgType, Body: body}
	for _, fn := range handlers {
		fn(msg)
	}
}
