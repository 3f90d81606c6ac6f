package lunalove

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultHistoryLimit bounds how many messages a single history fetch
// asks for.
const DefaultHistoryLimit = 50

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// ConversationHandlers receives conversation events. All fields are
// optional; nil handlers are skipped.
type ConversationHandlers struct {
	OnMessage        func(Message)
	OnTypingChange   func(userID string, typing bool)
	OnPresenceChange func(userID string, online bool)
}

// SessionConfig tunes a Session. The zero value gives production
// defaults.
type SessionConfig struct {
	// SelfID is the authenticated user's id, stamped onto optimistic
	// entries so the server echo reconciles against them.
	SelfID string

	// HistoryLimit bounds history fetches. Zero means
	// DefaultHistoryLimit.
	HistoryLimit int

	// RetryPushInterval re-dials the push channel on this cadence while
	// it is down. Zero disables redialing; the session then stays on the
	// polling fallback for its remaining lifetime.
	RetryPushInterval time.Duration

	Clock  Clock
	Logger Logger

	// dial overrides the websocket dialer in tests.
	dial dialFunc
}

// ============================================================================
// Session
// ============================================================================

// Session owns the shared delivery machinery of one logged-in user: the
// push channel, the wallet, the gift effect feed, the notification feed
// and the registry of open conversations.
type Session struct {
	client       *Client
	selfID       string
	historyLimit int
	retryPush    time.Duration
	clock        Clock
	log          Logger

	channel       *channelConn
	wallet        *Wallet
	effects       *effectFeed
	notifications *NotificationFeed

	mu            sync.Mutex
	conversations map[string]*Conversation
	dialed        bool
	closed        bool
	cancel        context.CancelFunc
	ctx           context.Context
}

// NewSession creates a session on top of an API client. The push channel
// is dialed lazily on the first OpenConversation or OpenNotifications.
func NewSession(client *Client, config *SessionConfig) *Session {
	cfg := SessionConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		client:        client,
		selfID:        cfg.SelfID,
		historyLimit:  cfg.HistoryLimit,
		retryPush:     cfg.RetryPushInterval,
		clock:         cfg.Clock,
		log:           cfg.Logger,
		wallet:        newWallet(),
		conversations: make(map[string]*Conversation),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.effects = newEffectFeed(cfg.Clock)
	s.notifications = newNotificationFeed(cfg.Clock, nil)
	s.channel = newChannelConn(client.BaseURL(), client.token, cfg.dial, cfg.Logger, channelHandlers{
		onMessage:      s.routeMessage,
		onTyping:       s.routeTyping,
		onPresence:     s.routePresence,
		onNotification: s.routeNotification,
		onUp:           s.channelUp,
		onDown:         s.channelDown,
	})
	return s
}

// OpenConversation returns the live handle for a conversation, creating
// it on first open. Opening the same id again returns the same handle
// with the extra handlers attached; each open needs a matching Close.
func (s *Session) OpenConversation(ctx context.Context, conversationID string, handlers ConversationHandlers) (*Conversation, error) {
	if conversationID == "" {
		return nil, errors.New("empty conversation id")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if conv, ok := s.conversations[conversationID]; ok {
		conv.mu.Lock()
		conv.refs++
		conv.handlers = append(conv.handlers, handlers)
		conv.mu.Unlock()
		s.mu.Unlock()
		return conv, nil
	}

	conv := &Conversation{
		id:       conversationID,
		session:  s,
		timeline: NewTimeline(),
		refs:     1,
		handlers: []ConversationHandlers{handlers},
	}
	conv.typing = newTypingDebouncer(s.clock, conv.sendTypingSignal, conv.emitTypingChange)
	conv.poller = newFallbackPoller(s.clock, s.log, conv.fetchHistory)
	s.conversations[conversationID] = conv
	s.mu.Unlock()

	s.ensureChannel(ctx)
	if s.channel.State() == ChannelOpen {
		conv.poller.suspend()
	}
	conv.poller.fetchNow(ctx)
	conv.poller.start()
	return conv, nil
}

// OpenNotifications attaches a handler to the session's notification
// feed and returns it. The feed exists either way; this just wires the
// callback and makes sure the push channel is up.
func (s *Session) OpenNotifications(ctx context.Context, onNotify func(Notification)) *NotificationFeed {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.notifications
	}
	s.mu.Unlock()
	s.notifications.setHandler(onNotify)

	s.ensureChannel(ctx)
	return s.notifications
}

// Wallet returns the session wallet.
func (s *Session) Wallet() *Wallet { return s.wallet }

// RefreshWallet fetches the authoritative balance from the API.
func (s *Session) RefreshWallet(ctx context.Context) error {
	info, err := s.client.Wallet(ctx)
	if err != nil {
		return err
	}
	s.wallet.setAuthoritative(info.Balance)
	return nil
}

// ActiveEffects returns the gift effects currently playing.
func (s *Session) ActiveEffects() []GiftEffect {
	return s.effects.Active()
}

// ChannelState reports the push channel state.
func (s *Session) ChannelState() ChannelState {
	return s.channel.State()
}

// Close tears the session down: every conversation, the push channel,
// the notification feed and the effect feed. All timers are cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	convs := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	s.conversations = make(map[string]*Conversation)
	s.mu.Unlock()

	for _, conv := range convs {
		conv.teardown()
	}
	s.cancel()
	s.channel.close()
	s.notifications.close()
	s.effects.close()
}

// ensureChannel dials the push channel once per session. A failed dial
// leaves every conversation on the polling fallback.
func (s *Session) ensureChannel(ctx context.Context) {
	s.mu.Lock()
	if s.dialed || s.closed {
		s.mu.Unlock()
		return
	}
	s.dialed = true
	s.mu.Unlock()

	if err := s.channel.connect(ctx); err != nil {
		s.log.Printf("push channel dial failed, staying on fallback: %v", err)
	}
	if s.retryPush > 0 {
		go s.channel.retryLoop(s.ctx, s.clock, s.retryPush)
	}
}

func (s *Session) lookupConversation(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id]
}

func (s *Session) routeMessage(w WireMessage) {
	conv := s.lookupConversation(w.ConversationID)
	if conv == nil {
		return
	}
	conv.ingestWire(w, OriginPush)
}

func (s *Session) routeTyping(e TypingEvent) {
	conv := s.lookupConversation(e.ConversationID)
	if conv == nil {
		return
	}
	conv.typing.RemoteSignal(e.UserID, e.Typing)
}

// routePresence fans a status change out to every open conversation; the
// wire event carries no conversation scope.
func (s *Session) routePresence(e PresenceEvent) {
	s.mu.Lock()
	convs := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	s.mu.Unlock()
	for _, conv := range convs {
		conv.emitPresenceChange(e.UserID, e.Online)
	}
}

func (s *Session) routeNotification(w WireNotification) {
	s.notifications.ingest(w)
}

func (s *Session) channelUp() {
	s.mu.Lock()
	convs := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	s.mu.Unlock()
	for _, conv := range convs {
		conv.poller.suspend()
	}
}

func (s *Session) channelDown(err error) {
	s.log.Printf("push channel down, entering fallback: %v", err)
	s.mu.Lock()
	convs := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, conv)
	}
	s.mu.Unlock()
	for _, conv := range convs {
		conv.poller.resume()
	}
}

// ============================================================================
// Conversation
// ============================================================================

// Conversation is the live handle to one chat's message timeline plus its
// typing state. It stays consistent across push delivery, polling
// fallback and the user's own optimistic sends.
type Conversation struct {
	id      string
	session *Session

	timeline *Timeline
	poller   *fallbackPoller
	typing   *typingDebouncer

	mu       sync.Mutex
	refs     int
	closed   bool
	handlers []ConversationHandlers
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// Messages returns the reconciled timeline, oldest first.
func (c *Conversation) Messages() []Message {
	return c.timeline.Messages()
}

// IsLiveConnected reports whether events arrive over the push channel
// rather than the polling fallback.
func (c *Conversation) IsLiveConnected() bool {
	return c.session.channel.State() == ChannelOpen
}

// TypingPeers returns the peers currently typing in this conversation.
func (c *Conversation) TypingPeers() []string {
	return c.typing.TypingPeers()
}

// Keystroke records local typing activity for the debouncer.
func (c *Conversation) Keystroke() {
	c.typing.Keystroke()
}

// SendMessage sends a text message optimistically. The entry appears in
// Messages before the server confirms; a failed send removes it again.
func (c *Conversation) SendMessage(ctx context.Context, body string) (*Message, error) {
	if body == "" {
		return nil, errors.New("empty message body")
	}
	optimistic := Message{
		ConversationID: c.id,
		SenderID:       c.session.selfID,
		Body:           body,
		SentAt:         c.session.clock.Now(),
		Origin:         OriginOptimistic,
	}
	c.ingestLocal(&optimistic)

	wire, err := c.session.client.SendChatMessage(ctx, c.id, body)
	if err != nil {
		c.removeLocal(optimistic.ID)
		return nil, err
	}

	// The confirmation came back over the request/response API, the
	// same path the poller reads, so it carries the poll origin.
	confirmed := wire.toMessage(OriginPoll)
	if confirmed.ConversationID == "" {
		confirmed.ConversationID = c.id
	}
	c.removeLocal(optimistic.ID)
	c.ingest(confirmed)
	return &confirmed, nil
}

// Close releases one open reference. The last Close tears the
// conversation down and cancels its poller and typing timers; the shared
// push channel belongs to the session and stays up.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	s := c.session
	s.mu.Lock()
	if s.conversations[c.id] == c {
		delete(s.conversations, c.id)
	}
	s.mu.Unlock()

	c.teardown()
}

func (c *Conversation) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.handlers = nil
	c.mu.Unlock()

	c.poller.stop()
	c.typing.close()
}

func (c *Conversation) fetchHistory(ctx context.Context) error {
	wires, err := c.session.client.History(ctx, c.id, c.session.historyLimit)
	if err != nil {
		return err
	}
	for _, w := range wires {
		c.ingestWire(w, OriginPoll)
	}
	return nil
}

func (c *Conversation) ingestWire(w WireMessage, origin Origin) {
	m := w.toMessage(origin)
	if m.ConversationID == "" {
		m.ConversationID = c.id
	}
	c.ingest(m)
}

// ingestLocal inserts an optimistic entry and fills in its fingerprint
// identity so the caller can remove it on failure.
func (c *Conversation) ingestLocal(m *Message) {
	if m.ID == "" {
		m.ID = Fingerprint(m.SenderID, m.Body, m.SentAt)
	}
	c.ingest(*m)
}

func (c *Conversation) ingest(m Message) {
	if c.timeline.Ingest(m) {
		c.emitMessage(m)
	}
}

func (c *Conversation) removeLocal(id string) {
	c.timeline.Remove(id)
}

func (c *Conversation) sendTypingSignal(typing bool) {
	if c.session.channel.State() != ChannelOpen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.session.channel.sendTyping(ctx, c.id, typing); err != nil {
		c.session.log.Printf("typing signal failed: %v", err)
	}
}

func (c *Conversation) snapshotHandlers() []ConversationHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConversationHandlers(nil), c.handlers...)
}

func (c *Conversation) emitMessage(m Message) {
	for _, h := range c.snapshotHandlers() {
		if h.OnMessage != nil {
			h.OnMessage(m)
		}
	}
}

func (c *Conversation) emitTypingChange(userID string, typing bool) {
	for _, h := range c.snapshotHandlers() {
		if h.OnTypingChange != nil {
			h.OnTypingChange(userID, typing)
		}
	}
}

func (c *Conversation) emitPresenceChange(userID string, online bool) {
	for _, h := range c.snapshotHandlers() {
		if h.OnPresenceChange != nil {
			h.OnPresenceChange(userID, online)
		}
	}
}
