package campuschat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Render surface
// ============================================================================

// Renderer is the presentation layer a Coordinator reports to. Callbacks run
// on coordinator or socket goroutines, never while coordinator locks are
// held. A panicking callback is recovered and logged.
type Renderer interface {
	OnConversationsUpdated(conversations []Conversation)
	OnMessagesUpdated(conversationID string, messages []Message)
	OnConnectionStateChanged(conversationID string, state TransportState)
}

// ErrorRenderer is implemented by renderers that want server error frames.
type ErrorRenderer interface {
	OnTransportError(conversationID string, err error)
}

type nopRenderer struct{}

func (nopRenderer) OnConversationsUpdated([]Conversation)           {}
func (nopRenderer) OnMessagesUpdated(string, []Message)             {}
func (nopRenderer) OnConnectionStateChanged(string, TransportState) {}

// ============================================================================
// Coordinator
// ============================================================================

// Coordinator is the single authority for the active conversation. It owns
// the message store, the page cursors, the conversation directory and at most
// one chat socket.
//
// Every selection gets a new generation. History fetches and socket events
// carry the generation they were issued for and are ignored once it is stale.
type Coordinator struct {
	client    *Client
	renderer  Renderer
	config    RealtimeConfig
	logger    *slog.Logger
	store     *MessageStore
	pages     *Pages
	directory *Directory
	dial      dialFunc

	mu           sync.Mutex
	current      *Conversation
	generation   uint64
	transport    *TransportSession
	reconnect    *reconnector
	retryTimer   *time.Timer
	loadingOlder bool
	closed       bool
}

// NewCoordinator creates a coordinator for client's actor. A nil renderer
// discards updates; a nil config uses defaults.
func NewCoordinator(client *Client, renderer Renderer, config *RealtimeConfig) *Coordinator {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()
	if renderer == nil {
		renderer = nopRenderer{}
	}

	return &Coordinator{
		client:    client,
		renderer:  renderer,
		config:    cfg,
		logger:    client.logger,
		store:     NewMessageStore(),
		pages:     NewPages(),
		directory: NewDirectory(client),
		reconnect: newReconnector(&cfg),
	}
}

// Store returns the message cache.
func (c *Coordinator) Store() *MessageStore { return c.store }

// Pages returns the page cursors.
func (c *Coordinator) Pages() *Pages { return c.pages }

// Directory returns the conversation directory.
func (c *Coordinator) Directory() *Directory { return c.directory }

// Current returns the active conversation, if any.
func (c *Coordinator) Current() (Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Conversation{}, false
	}
	return *c.current, true
}

// Messages returns the cached messages of the active conversation.
func (c *Coordinator) Messages() []Message {
	conv, ok := c.Current()
	if !ok {
		return []Message{}
	}
	return c.store.List(string(conv.ID))
}

// State returns the state of the active chat socket, idle if there is none.
func (c *Coordinator) State() TransportState {
	c.mu.Lock()
	s := c.transport
	c.mu.Unlock()
	if s == nil {
		return StateIdle
	}
	return s.State()
}

// UnreadTotal sums unread counts over the last fetched conversation list.
func (c *Coordinator) UnreadTotal() int {
	return UnreadTotal(c.directory.Conversations())
}

// Select makes conv the active conversation: it closes the previous chat
// socket, drops conv's cached messages, resets the page cursor, opens a socket
// for conv and loads the first history page. The socket stays up even when the history fetch fails, in
// which case a *HistoryError is returned.
func (c *Coordinator) Select(ctx context.Context, conv Conversation) error {
	convID := string(conv.ID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.transport
	c.transport = nil
	c.generation++
	gen := c.generation
	c.current = &conv
	c.loadingOlder = false
	c.stopRetryLocked()
	c.reconnect.reset()
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	// The cached log may predate messages posted while the conversation was
	// not shown; it is rebuilt from page 1 and the new socket.
	c.store.Clear(convID)
	c.pages.Reset(convID)
	c.logger.Debug("conversation selected", "conversation", convID, "name", conv.Name)

	c.openTransport(ctx, convID, gen)
	c.renderMessages(gen, convID)

	msgs, err := c.client.Messages.History(ctx, convID, 1)
	if !c.isCurrent(gen) {
		c.logger.Debug("discarding stale history page", "conversation", convID, "page", 1)
		return nil
	}
	if err != nil {
		c.logger.Warn("history fetch failed", "conversation", convID, "page", 1, "error", err)
		return &HistoryError{ConversationID: convID, Page: 1, Err: err}
	}
	// Frames may have landed before the first page; the page goes in front.
	c.store.Prepend(convID, msgs)
	c.renderMessages(gen, convID)
	return nil
}

// maxSkippedPages bounds how many pages of already known messages one
// LoadOlder call walks past.
const maxSkippedPages = 5

// LoadOlder fetches the page before the oldest loaded one and prepends it.
// It does nothing when no conversation is active, when the start of history
// has been reached, or while another LoadOlder is in flight. An empty page, or
// a missing page past the first, marks the start of history. A page holding
// only known messages advances the cursor and the next page is tried. On
// failure the cursor is left alone so a retry asks for the same page.
func (c *Coordinator) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	if c.current == nil || c.loadingOlder {
		c.mu.Unlock()
		return nil
	}
	convID := string(c.current.ID)
	gen := c.generation
	if c.pages.Exhausted(convID) {
		c.mu.Unlock()
		return nil
	}
	c.loadingOlder = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.generation == gen {
			c.loadingOlder = false
		}
		c.mu.Unlock()
	}()

	for skipped := 0; ; skipped++ {
		page := c.pages.Current(convID) + 1
		msgs, err := c.client.Messages.History(ctx, convID, page)
		if !c.isCurrent(gen) {
			c.logger.Debug("discarding stale history page", "conversation", convID, "page", page)
			return nil
		}
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				c.pages.MarkExhausted(convID)
				c.logger.Debug("reached start of history", "conversation", convID, "page", page)
				return nil
			}
			c.logger.Warn("history fetch failed", "conversation", convID, "page", page, "error", err)
			return &HistoryError{ConversationID: convID, Page: page, Err: err}
		}
		if len(msgs) == 0 {
			c.pages.MarkExhausted(convID)
			c.logger.Debug("reached start of history", "conversation", convID, "page", page)
			return nil
		}

		c.pages.Next(convID)
		if added := c.store.Prepend(convID, msgs); added > 0 {
			c.renderMessages(gen, convID)
			return nil
		}
		// Live messages shifted the server's pages.
		if skipped+1 >= maxSkippedPages {
			c.logger.Debug("history pages hold only known messages", "conversation", convID, "page", page)
			return nil
		}
	}
}

// SendCurrent appends body to the active conversation as an own message with
// status sent, then writes it to the chat socket. If the socket is not open
// the optimistic message stays in the store and ErrNotOpen is returned.
func (c *Coordinator) SendCurrent(ctx context.Context, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	actor := c.client.actor
	if actor.ID == "" {
		c.logger.Warn("send skipped: no local user")
		return Message{}, ErrNoLocalUser
	}

	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return Message{}, ErrNoActiveConversation
	}
	convID := string(c.current.ID)
	gen := c.generation
	s := c.transport
	c.mu.Unlock()

	msg := Message{
		ConversationID: convID,
		SenderName:     actor.Name,
		Body:           body,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		IsOwn:          true,
		Status:         StatusSent,
		ClientID:       uuid.NewString(),
	}
	c.store.InsertOrUpdate(convID, msg, PlaceAppend)
	c.renderMessages(gen, convID)

	if s == nil {
		return msg, ErrNotOpen
	}
	if err := s.Send(ctx, body, msg.ClientID); err != nil {
		c.logger.Warn("send rejected", "conversation", convID, "error", err)
		return msg, err
	}
	return msg, nil
}

// RefreshConversations reloads the directory and renders the list. A failure
// is returned as *DirectoryError; the open chat socket is unaffected.
func (c *Coordinator) RefreshConversations(ctx context.Context) ([]Conversation, error) {
	list, err := c.directory.Refresh(ctx)
	if err != nil {
		c.logger.Warn("conversation refresh failed", "error", err)
		return nil, err
	}
	c.safeRender(func() { c.renderer.OnConversationsUpdated(list) })
	return list, nil
}

// StartDirect opens the direct conversation with peerID, refreshes the
// directory and selects it.
func (c *Coordinator) StartDirect(ctx context.Context, peerID string) (Conversation, error) {
	id, err := c.client.Conversations.StartDirect(ctx, peerID)
	if err != nil {
		return Conversation{}, err
	}
	if _, err := c.RefreshConversations(ctx); err != nil {
		c.logger.Warn("selecting new conversation without directory entry", "conversation", id)
	}
	conv, ok := c.directory.Lookup(string(id))
	if !ok {
		conv = Conversation{ID: id, Kind: KindDirect}
	}
	return conv, c.Select(ctx, conv)
}

// ClearConversation drops the cached messages and page cursor of a
// conversation. The active selection and its socket are kept.
func (c *Coordinator) ClearConversation(conversationID string) {
	c.store.Clear(conversationID)
	c.pages.Forget(conversationID)

	c.mu.Lock()
	gen := c.generation
	active := c.current != nil && string(c.current.ID) == conversationID
	c.mu.Unlock()
	if active {
		c.renderMessages(gen, conversationID)
	}
}

// Close tears down the chat socket and any pending reconnect. The coordinator
// cannot be reused.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	s := c.transport
	c.transport = nil
	c.stopRetryLocked()
	c.mu.Unlock()

	if s != nil {
		return s.Close()
	}
	return nil
}

// ============================================================================
// Transport wiring
// ============================================================================

func (c *Coordinator) openTransport(ctx context.Context, convID string, gen uint64) {
	s := NewTransportSession(c.client, &c.config, TransportHandlers{
		OnState: func(s *TransportSession, state TransportState, err error) {
			c.handleState(gen, s, state, err)
		},
		OnMessage: func(s *TransportSession, msg Message) {
			c.handleMessage(gen, s, msg)
		},
		OnError: func(s *TransportSession, fe *FrameError) {
			c.handleFrameError(gen, s, fe)
		},
	})
	if c.dial != nil {
		s.dial = c.dial
	}

	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.transport = s
	c.mu.Unlock()

	if err := s.Open(ctx, convID, c.client.actor); err != nil {
		c.logger.Warn("chat socket not opened", "conversation", convID, "error", err)
	}
}

// activeLocked reports whether s is the socket of selection gen.
func (c *Coordinator) activeLocked(gen uint64, s *TransportSession) bool {
	return !c.closed && c.generation == gen && c.transport == s
}

func (c *Coordinator) handleState(gen uint64, s *TransportSession, state TransportState, err error) {
	convID := s.ConversationID()

	c.mu.Lock()
	if !c.activeLocked(gen, s) {
		c.mu.Unlock()
		return
	}
	switch state {
	case StateOpen:
		c.reconnect.markConnected()
	case StateClosed:
		if err != nil && c.config.AutoReconnect {
			c.scheduleRetryLocked(gen, convID)
		}
	}
	c.mu.Unlock()

	c.safeRender(func() { c.renderer.OnConnectionStateChanged(convID, state) })
}

func (c *Coordinator) handleMessage(gen uint64, s *TransportSession, msg Message) {
	convID := s.ConversationID()

	c.mu.Lock()
	if !c.activeLocked(gen, s) {
		c.mu.Unlock()
		c.logger.Debug("dropping frame from inactive chat socket", "conversation", convID)
		return
	}
	c.store.InsertOrUpdate(convID, msg, PlaceAppend)
	c.mu.Unlock()

	c.renderMessages(gen, convID)
}

func (c *Coordinator) handleFrameError(gen uint64, s *TransportSession, fe *FrameError) {
	convID := s.ConversationID()

	c.mu.Lock()
	active := c.activeLocked(gen, s)
	c.mu.Unlock()
	if !active {
		return
	}
	if er, ok := c.renderer.(ErrorRenderer); ok {
		c.safeRender(func() { er.OnTransportError(convID, fe) })
	}
}

func (c *Coordinator) scheduleRetryLocked(gen uint64, convID string) {
	if !c.reconnect.shouldReconnect() {
		c.logger.Error("giving up on chat socket", "conversation", convID, "attempts", c.reconnect.attempt)
		return
	}
	delay := c.reconnect.nextDelay()
	c.logger.Info("reconnecting chat socket", "conversation", convID, "attempt", c.reconnect.attempt, "delay", delay)
	c.stopRetryLocked()
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(gen, convID) })
}

func (c *Coordinator) retry(gen uint64, convID string) {
	c.mu.Lock()
	if c.closed || c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	c.openTransport(context.Background(), convID, gen)
}

func (c *Coordinator) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// ============================================================================
// Rendering
// ============================================================================

func (c *Coordinator) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.generation == gen
}

func (c *Coordinator) renderMessages(gen uint64, convID string) {
	if !c.isCurrent(gen) {
		return
	}
	msgs := c.store.List(convID)
	c.safeRender(func() { c.renderer.OnMessagesUpdated(convID, msgs) })
}

func (c *Coordinator) safeRender(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("renderer panicked", "panic", r)
		}
	}()
	fn()
}
