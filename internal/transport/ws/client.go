package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/auth"
	"github.com/vedran77/pulse-relay/internal/domain"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// ClientState is where a connection is in its lifecycle.
type ClientState int32

const (
	StateConnecting ClientState = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client represents a single WebSocket connection.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	userID   uuid.UUID
	username string

	state    atomic.Int32
	lastSeen atomic.Int64

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(registry *Registry, conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	c := &Client{
		registry: registry,
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Authenticate binds the connection to a verified identity.
func (c *Client) Authenticate(id *auth.Identity) {
	c.userID = id.UserID
	c.username = id.Username
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated))
}

func (c *Client) UserID() uuid.UUID { return c.userID }

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(s ClientState) {
	for {
		cur := c.state.Load()
		if ClientState(cur) == StateDisconnected {
			return
		}
		if c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch(at time.Time) {
	c.lastSeen.Store(at.UnixNano())
}

// disconnect is terminal and stops the write pump.
func (c *Client) disconnect() {
	c.state.Store(int32(StateDisconnected))
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closeConn(reason string) {
	if c.conn != nil {
		c.conn.Close(websocket.StatusPolicyViolation, reason)
	}
}

// enqueue never blocks; false means the buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	if c.State() == StateDisconnected {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// ReadPump reads client events until the connection fails or ctx ends, then
// detaches the client.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.registry.Detach(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				log.Debug().Str("user_id", c.userID.String()).Msg("ws: client disconnected")
			} else {
				log.Warn().Err(err).Str("user_id", c.userID.String()).Msg("ws: read error")
			}
			return
		}

		c.touch(c.registry.now())
		c.handleEvent(ctx, &event)
	}
}

// WritePump writes queued frames and pings every interval.
func (c *Client) WritePump(ctx context.Context, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("user_id", c.userID.String()).Msg("ws: write error")
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("user_id", c.userID.String()).Msg("ws: ping failed")
				return
			}
			c.touch(c.registry.now())

		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeChannelJoin, EventTypeChannelLeave:
		var p RoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.Room == "" {
			c.sendError("INVALID_PAYLOAD", "room required for "+event.Type)
			return
		}
		var err error
		if event.Type == EventTypeChannelJoin {
			err = c.registry.Join(ctx, c, p.Room)
		} else {
			err = c.registry.Leave(c, p.Room)
		}
		if err != nil {
			c.sendFailure(err)
			return
		}
		log.Debug().Str("user_id", c.userID.String()).Str("room", p.Room).Msg("ws: " + event.Type)

	case EventTypeTypingStart:
		if event.Room == "" {
			c.sendError("INVALID_PAYLOAD", "room required for typing events")
			return
		}
		if err := c.registry.Typing(c, event.Room); err != nil {
			c.sendFailure(err)
		}

	case EventTypeTypingStop:
		// frontend uses a timeout

	case EventTypePing:
		c.sendEvent(EventTypePong, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendEvent(eventType string, payload any) {
	frame, err := encodeEvent(eventType, "", payload)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventTypeError, ErrorPayload{Code: code, Message: message})
}

// errorReply maps err to the code and message sent to the client. Forbidden
// and internal failures keep their detail in the log.
func (c *Client) errorReply(err error) (code, message string) {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		log.Debug().Err(err).Str("user_id", c.userID.String()).Msg("ws: forbidden")
		return "FORBIDDEN", "Forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, ErrUserRoom):
		return "INVALID_STATE", err.Error()
	default:
		log.Error().Err(err).Str("user_id", c.userID.String()).Msg("ws: event failed")
		return "INTERNAL", "Something went wrong"
	}
}

func (c *Client) sendFailure(err error) {
	c.sendError(c.errorReply(err))
}
