package lunalove

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Push Event Payload Types
// ============================================================================

// TypingEvent is pushed when a peer starts or stops typing in a
// conversation.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Typing         bool   `json:"is_typing"`
}

// PresenceEvent is pushed when a peer goes online or offline.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// pushEnvelope is the wire frame for all push events. The payload fields
// sit flat next to the type tag, so decoding is a two-pass unmarshal.
type pushEnvelope struct {
	Type string `json:"type"`
}

// typingSignal is the client-to-server typing command.
type typingSignal struct {
	Type     string `json:"type"`
	TargetID string `json:"target_id"`
	IsTyping bool   `json:"is_typing"`
}

// ============================================================================
// Channel State
// ============================================================================

// ChannelState represents the push channel connection state.
type ChannelState string

const (
	ChannelIdle       ChannelState = "idle"
	ChannelConnecting ChannelState = "connecting"
	ChannelOpen       ChannelState = "open"
	ChannelFallback   ChannelState = "fallback"
)

// channelHandlers receives decoded push events. Calls are made from the
// read loop, one at a time, in arrival order.
type channelHandlers struct {
	onMessage      func(WireMessage)
	onTyping       func(TypingEvent)
	onPresence     func(PresenceEvent)
	onNotification func(WireNotification)
	onUp           func()
	onDown         func(err error)
}

// ============================================================================
// Push Channel
// ============================================================================

// wsConn is the slice of a websocket connection the channel uses.
// *websocket.Conn satisfies it through nhooyrConn; tests swap in a fake.
type wsConn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

type nhooyrConn struct {
	conn *websocket.Conn
}

func (c *nhooyrConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *nhooyrConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *nhooyrConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client close")
}

func defaultDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &nhooyrConn{conn: conn}, nil
}

// channelConn is the session-wide push channel. One instance serves every
// open conversation plus the notification feed.
type channelConn struct {
	url      string
	dial     dialFunc
	log      Logger
	handlers channelHandlers

	mu          sync.Mutex
	state       ChannelState
	conn        wsConn
	cancelFn    context.CancelFunc
	intentional bool
}

func newChannelConn(baseURL, token string, dial dialFunc, log Logger, handlers channelHandlers) *channelConn {
	url := strings.Replace(baseURL, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	url += "/push?token=" + token
	if dial == nil {
		dial = defaultDial
	}
	return &channelConn{
		url:      url,
		dial:     dial,
		log:      log,
		handlers: handlers,
		state:    ChannelIdle,
	}
}

// State returns the current channel state.
func (ch *channelConn) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// connect dials the push endpoint and starts the read loop. A failed dial
// leaves the channel down; the caller decides whether to fall back.
func (ch *channelConn) connect(ctx context.Context) error {
	ch.mu.Lock()
	if ch.state == ChannelOpen || ch.state == ChannelConnecting {
		ch.mu.Unlock()
		return nil
	}
	ch.state = ChannelConnecting
	ch.intentional = false
	ch.mu.Unlock()

	conn, err := ch.dial(ctx, ch.url)
	if err != nil {
		ch.mu.Lock()
		ch.state = ChannelFallback
		ch.mu.Unlock()
		return err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	ch.mu.Lock()
	ch.conn = conn
	ch.cancelFn = cancel
	ch.state = ChannelOpen
	ch.mu.Unlock()

	if ch.handlers.onUp != nil {
		ch.handlers.onUp()
	}

	go ch.readLoop(connCtx, conn)
	return nil
}

// close tears the channel down intentionally. No onDown callback fires.
func (ch *channelConn) close() {
	ch.mu.Lock()
	ch.intentional = true
	if ch.cancelFn != nil {
		ch.cancelFn()
		ch.cancelFn = nil
	}
	conn := ch.conn
	ch.conn = nil
	ch.state = ChannelIdle
	ch.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// sendTyping writes a typing signal. Callers only invoke it while the
// channel is open; losing the race with a disconnect is harmless because
// the peer's decay timer clears the stale state.
func (ch *channelConn) sendTyping(ctx context.Context, conversationID string, typing bool) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return nil
	}
	data, err := json.Marshal(typingSignal{
		Type:     "typing_indicator",
		TargetID: conversationID,
		IsTyping: typing,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}

func (ch *channelConn) readLoop(ctx context.Context, conn wsConn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			ch.mu.Lock()
			intentional := ch.intentional
			if !intentional {
				ch.state = ChannelFallback
				ch.conn = nil
			}
			ch.mu.Unlock()
			if !intentional && ch.handlers.onDown != nil {
				ch.handlers.onDown(err)
			}
			return
		}
		ch.dispatch(data)
	}
}

func (ch *channelConn) dispatch(data []byte) {
	var env pushEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		ch.log.Printf("push: malformed frame dropped: %v", err)
		return
	}

	switch env.Type {
	case "chat_message":
		var m WireMessage
		if err := json.Unmarshal(data, &m); err != nil {
			ch.log.Printf("push: bad chat_message dropped: %v", err)
			return
		}
		if ch.handlers.onMessage != nil {
			ch.handlers.onMessage(m)
		}
	case "typing_indicator":
		var t TypingEvent
		if err := json.Unmarshal(data, &t); err != nil {
			ch.log.Printf("push: bad typing_indicator dropped: %v", err)
			return
		}
		if ch.handlers.onTyping != nil {
			ch.handlers.onTyping(t)
		}
	case "user_status":
		var p PresenceEvent
		if err := json.Unmarshal(data, &p); err != nil {
			ch.log.Printf("push: bad user_status dropped: %v", err)
			return
		}
		if ch.handlers.onPresence != nil {
			ch.handlers.onPresence(p)
		}
	case "match", "message", "like":
		var n WireNotification
		if err := json.Unmarshal(data, &n); err != nil {
			ch.log.Printf("push: bad %s notification dropped: %v", env.Type, err)
			return
		}
		n.Type = env.Type
		if ch.handlers.onNotification != nil {
			ch.handlers.onNotification(n)
		}
	default:
		ch.log.Printf("push: unknown event type %q dropped", env.Type)
	}
}

// retryLoop periodically redials while the channel is down. It runs only
// when the session opts in with a nonzero interval.
func (ch *channelConn) retryLoop(ctx context.Context, clock Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ch.State() != ChannelFallback {
				continue
			}
			if err := ch.connect(ctx); err != nil {
				ch.log.Printf("push: redial failed: %v", err)
			}
		}
	}
}
