package campuschat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures chat sockets and the coordinator's reconnect timer.
type RealtimeConfig struct {
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReadLimit         int64
	HTTPClient        *http.Client

	// A session never reconnects itself. When AutoReconnect is set, the
	// coordinator replaces a remotely closed session after a backoff delay.
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

// TransportState is the lifecycle state of a chat socket.
type TransportState string

const (
	StateIdle       TransportState = "idle"
	StateConnecting TransportState = "connecting"
	StateOpen       TransportState = "open"
	StateClosed     TransportState = "closed"
)

// TransportHandlers receive session events. They run on the session's read
// goroutine, in frame order, and must not block for long.
type TransportHandlers struct {
	OnState   func(s *TransportSession, state TransportState, err error)
	OnMessage func(s *TransportSession, msg Message)
	OnError   func(s *TransportSession, err *FrameError)
}

// wsConn is the subset of *websocket.Conn a session uses.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Ping(ctx context.Context) error
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, url string) (wsConn, error)

// ============================================================================
// TransportSession
// ============================================================================

// TransportSession owns the chat socket of one conversation.
//
// States move idle → connecting → open → closed. Closed is terminal: a new
// session must be constructed to connect again.
type TransportSession struct {
	client   *Client
	config   *RealtimeConfig
	handlers TransportHandlers
	logger   *slog.Logger
	dial     dialFunc

	mu             sync.Mutex
	state          TransportState
	conversationID string
	actor          Actor
	conn           wsConn
	cancelFn       context.CancelFunc
	closeErr       error
	done           chan struct{}
}

// NewTransportSession creates an idle session. Call Open to connect.
func NewTransportSession(client *Client, config *RealtimeConfig, handlers TransportHandlers) *TransportSession {
	cfg := RealtimeConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.defaults()

	s := &TransportSession{
		client:   client,
		config:   &cfg,
		handlers: handlers,
		logger:   client.logger,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	s.dial = s.dialWebsocket
	return s
}

func (s *TransportSession) dialWebsocket(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: s.config.HTTPClient})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(s.config.ReadLimit)
	return conn, nil
}

// State returns the current state.
func (s *TransportSession) State() TransportState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the conversation the session is bound to.
func (s *TransportSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Err returns why the session closed, nil for a local Close.
func (s *TransportSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Done is closed once the session reaches StateClosed.
func (s *TransportSession) Done() <-chan struct{} {
	return s.done
}

// Open starts connecting the session to the conversation's chat socket and
// returns without waiting for the handshake. Without a local user id it does
// nothing and returns ErrNoLocalUser. Opening a session that is not idle is
// a no-op.
func (s *TransportSession) Open(ctx context.Context, conversationID string, actor Actor) error {
	if actor.ID == "" {
		s.logger.Warn("chat socket not opened: no local user", "conversation", conversationID)
		return ErrNoLocalUser
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.conversationID = conversationID
	s.actor = actor
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelFn = cancel
	s.mu.Unlock()

	s.emitState(StateConnecting, nil)

	url := realtimeURL(s.client.baseURL, conversationID, actor)
	s.logger.Debug("connecting chat socket", "conversation", conversationID, "url", url)
	go s.run(connCtx, url)
	return nil
}

func (s *TransportSession) run(ctx context.Context, url string) {
	dialCtx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	conn, err := s.dial(dialCtx, url)
	cancel()
	if err != nil {
		s.finish(fmt.Errorf("websocket dial: %w", err))
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while dialing.
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client closed")
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()

	s.logger.Info("chat socket open", "conversation", s.conversationID)
	s.emitState(StateOpen, nil)

	go s.heartbeatLoop(ctx, conn)
	s.readLoop(ctx, conn)
}

// Send writes a message to the socket. It is accepted only while the session
// is open; otherwise ErrNotOpen is returned and nothing is written. The
// caller owns the optimistic store insert.
func (s *TransportSession) Send(ctx context.Context, body, clientID string) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	actor := s.actor
	s.mu.Unlock()

	if state != StateOpen || conn == nil {
		return ErrNotOpen
	}

	data, err := json.Marshal(&OutboundFrame{
		Message:    body,
		SenderType: actor.Role,
		SenderID:   actor.ID,
		Status:     StatusSent,
		ClientID:   clientID,
	})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		s.finish(fmt.Errorf("websocket write: %w", err))
		return fmt.Errorf("%w: %w", ErrNotOpen, err)
	}
	return nil
}

// Close shuts the session down. Safe to call more than once.
func (s *TransportSession) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	close(s.done)
	s.mu.Unlock()

	s.emitState(StateClosed, nil)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	return nil
}

// finish moves the session to closed after a remote close or fatal error.
func (s *TransportSession) finish(cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.closeErr = cause
	conn := s.conn
	s.conn = nil
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	close(s.done)
	s.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "closing")
	}
	s.logger.Warn("chat socket closed", "conversation", s.conversationID, "error", cause)
	s.emitState(StateClosed, cause)
}

func (s *TransportSession) readLoop(ctx context.Context, conn wsConn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.finish(err)
			return
		}
		s.handleFrame(data)
	}
}

func (s *TransportSession) handleFrame(data []byte) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("dropping malformed chat frame", "conversation", s.conversationID, "error", err)
		return
	}
	if f.Error != "" {
		fe := &FrameError{Code: f.Error, Detail: f.Detail}
		s.logger.Warn("chat socket error frame", "conversation", s.conversationID, "error", fe)
		if s.handlers.OnError != nil {
			s.handlers.OnError(s, fe)
		}
		return
	}
	if f.Message == nil {
		s.logger.Warn("dropping chat frame without message", "conversation", s.conversationID)
		return
	}

	status := f.Status
	if status == "" {
		status = StatusSent
	}
	if s.handlers.OnMessage != nil {
		s.handlers.OnMessage(s, Message{
			ConversationID: s.conversationID,
			SenderName:     f.SenderName,
			Body:           *f.Message,
			Timestamp:      f.Timestamp,
			IsOwn:          f.IsOwn,
			Status:         status,
			ClientID:       f.ClientID,
		})
	}
}

func (s *TransportSession) heartbeatLoop(ctx context.Context, conn wsConn) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != StateOpen {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, s.config.HeartbeatTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					s.finish(fmt.Errorf("heartbeat: %w", err))
				}
				return
			}
		}
	}
}

func (s *TransportSession) emitState(state TransportState, err error) {
	if s.handlers.OnState != nil {
		s.handlers.OnState(s, state, err)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	// A connection that stayed up for a minute earns a fresh backoff.
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
	r.connectedAt = time.Time{}
}
