package campuschat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testStudent = Actor{ID: "7", Name: "Ada", Role: RoleStudent}

// sessionRecorder collects handler callbacks.
type sessionRecorder struct {
	mu       sync.Mutex
	states   []TransportState
	messages []Message
	errs     []*FrameError
}

func (r *sessionRecorder) handlers() TransportHandlers {
	return TransportHandlers{
		OnState: func(_ *TransportSession, state TransportState, _ error) {
			r.mu.Lock()
			r.states = append(r.states, state)
			r.mu.Unlock()
		},
		OnMessage: func(_ *TransportSession, msg Message) {
			r.mu.Lock()
			r.messages = append(r.messages, msg)
			r.mu.Unlock()
		},
		OnError: func(_ *TransportSession, fe *FrameError) {
			r.mu.Lock()
			r.errs = append(r.errs, fe)
			r.mu.Unlock()
		},
	}
}

func (r *sessionRecorder) snapshot() ([]TransportState, []Message, []*FrameError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TransportState{}, r.states...), append([]Message{}, r.messages...), append([]*FrameError{}, r.errs...)
}

func (r *sessionRecorder) count(state TransportState) int {
	states, _, _ := r.snapshot()
	n := 0
	for _, s := range states {
		if s == state {
			n++
		}
	}
	return n
}

func openSession(t *testing.T, f *fakeCampus, rec *sessionRecorder) *TransportSession {
	t.Helper()
	s := NewTransportSession(f.client(testStudent), nil, rec.handlers())
	t.Cleanup(func() { s.Close() })
	if err := s.Open(context.Background(), "12", testStudent); err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, "session open", func() bool { return s.State() == StateOpen })
	waitFor(t, "server socket", func() bool { return f.dialCount("12") == 1 })
	return s
}

func TestTransportOpenSendReceive(t *testing.T) {
	f := newFakeCampus(t)
	rec := &sessionRecorder{}
	s := openSession(t, f, rec)

	if s.ConversationID() != "12" {
		t.Errorf("expected conversation 12, got %q", s.ConversationID())
	}
	if err := s.Send(context.Background(), "hello", "cid-1"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "outbound frame", func() bool { return len(f.frames()) == 1 })
	got := f.frames()[0]
	want := OutboundFrame{Message: "hello", SenderType: RoleStudent, SenderID: "7", Status: StatusSent, ClientID: "cid-1"}
	if got != want {
		t.Errorf("outbound frame = %+v, want %+v", got, want)
	}

	f.push("12", `{"message":"hi Ada","sender_name":"Grace","timestamp":"T1","is_own":false}`)
	waitFor(t, "inbound message", func() bool { _, msgs, _ := rec.snapshot(); return len(msgs) == 1 })
	_, msgs, _ := rec.snapshot()
	m := msgs[0]
	if m.Body != "hi Ada" || m.SenderName != "Grace" || m.Timestamp != "T1" || m.ConversationID != "12" {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Status != StatusSent {
		t.Errorf("missing status should default to sent, got %q", m.Status)
	}

	states, _, _ := rec.snapshot()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateOpen {
		t.Errorf("expected connecting then open, got %v", states)
	}
}

func TestTransportMalformedFrameKeepsOpen(t *testing.T) {
	f := newFakeCampus(t)
	rec := &sessionRecorder{}
	s := openSession(t, f, rec)

	f.push("12", `not json at all`)
	f.push("12", `{"sender_name":"Grace","timestamp":"T0"}`)
	f.push("12", `{"message":"still here","sender_name":"Grace","timestamp":"T1"}`)

	waitFor(t, "valid message", func() bool { _, msgs, _ := rec.snapshot(); return len(msgs) == 1 })
	_, msgs, _ := rec.snapshot()
	if msgs[0].Body != "still here" {
		t.Errorf("unexpected message %+v", msgs[0])
	}
	if s.State() != StateOpen {
		t.Errorf("malformed frames must not close the session, state %s", s.State())
	}
}

func TestTransportErrorFrame(t *testing.T) {
	f := newFakeCampus(t)
	rec := &sessionRecorder{}
	openSession(t, f, rec)

	f.push("12", `{"error":"Failed to send message","detail":"db locked","timestamp":"T1"}`)
	waitFor(t, "error frame", func() bool { _, _, errs := rec.snapshot(); return len(errs) == 1 })
	_, msgs, errs := rec.snapshot()
	if errs[0].Code != "Failed to send message" || errs[0].Detail != "db locked" {
		t.Errorf("unexpected frame error %+v", errs[0])
	}
	if len(msgs) != 0 {
		t.Errorf("error frames are not messages, got %v", msgs)
	}
}

func TestTransportSendWhenNotOpen(t *testing.T) {
	f := newFakeCampus(t)
	s := NewTransportSession(f.client(testStudent), nil, TransportHandlers{})

	if err := s.Send(context.Background(), "hi", ""); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("idle session: expected ErrNotOpen, got %v", err)
	}
	s.Close()
	if err := s.Send(context.Background(), "hi", ""); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("closed session: expected ErrNotOpen, got %v", err)
	}
	if len(f.frames()) != 0 {
		t.Error("nothing should reach the server")
	}
}

func TestTransportCloseIdempotent(t *testing.T) {
	f := newFakeCampus(t)
	rec := &sessionRecorder{}
	s := openSession(t, f, rec)

	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if s.Err() != nil {
		t.Errorf("local close should leave Err nil, got %v", s.Err())
	}
	if n := rec.count(StateClosed); n != 1 {
		t.Errorf("expected one closed event, got %d", n)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}

	// Closed is terminal.
	if err := s.Open(context.Background(), "12", testStudent); err != nil {
		t.Fatalf("Open on closed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("closed session must not reopen, got %s", s.State())
	}
}

func TestTransportOpenWithoutUser(t *testing.T) {
	f := newFakeCampus(t)
	s := NewTransportSession(f.client(Actor{Role: RoleStudent}), nil, TransportHandlers{})

	if err := s.Open(context.Background(), "12", Actor{Role: RoleStudent}); !errors.Is(err, ErrNoLocalUser) {
		t.Fatalf("expected ErrNoLocalUser, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
	time.Sleep(20 * time.Millisecond)
	if f.dialCount("12") != 0 {
		t.Error("no socket should be dialed")
	}
}

func TestTransportRemoteClose(t *testing.T) {
	f := newFakeCampus(t)
	rec := &sessionRecorder{}
	s := openSession(t, f, rec)

	f.drop("12")
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not close after remote close")
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if s.Err() == nil {
		t.Error("remote close should record a cause")
	}
}

func TestTransportDialFailure(t *testing.T) {
	f := newFakeCampus(t)
	rec := &sessionRecorder{}
	s := NewTransportSession(f.client(testStudent), nil, rec.handlers())
	s.dial = func(ctx context.Context, url string) (wsConn, error) {
		return nil, errors.New("connection refused")
	}

	if err := s.Open(context.Background(), "12", testStudent); err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-s.Done()
	if s.Err() == nil {
		t.Error("expected dial error")
	}
	if n := rec.count(StateOpen); n != 0 {
		t.Errorf("session must never report open, got %d", n)
	}
}

func TestReconnectorBackoff(t *testing.T) {
	r := newReconnector(&RealtimeConfig{
		ReconnectBaseDelay:   100 * time.Millisecond,
		ReconnectMaxDelay:    time.Second,
		MaxReconnectAttempts: 3,
	})

	prevMin := time.Duration(0)
	for i := 0; i < 3; i++ {
		if !r.shouldReconnect() {
			t.Fatalf("attempt %d should be allowed", i)
		}
		d := r.nextDelay()
		if d < prevMin || d > time.Second {
			t.Errorf("attempt %d: delay %s out of range", i, d)
		}
		prevMin = 100 * time.Millisecond << i
	}
	if r.shouldReconnect() {
		t.Error("attempts should be exhausted")
	}
	r.reset()
	if !r.shouldReconnect() {
		t.Error("reset should allow reconnecting again")
	}

	unlimited := newReconnector(&RealtimeConfig{MaxReconnectAttempts: -1, ReconnectBaseDelay: time.Millisecond, ReconnectMaxDelay: time.Millisecond})
	for i := 0; i < 50; i++ {
		unlimited.nextDelay()
	}
	if !unlimited.shouldReconnect() {
		t.Error("negative max means unlimited")
	}
}
