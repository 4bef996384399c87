package campuschat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// fakeCampus serves the REST endpoints and chat sockets the client uses.
type fakeCampus struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	conversations []Conversation
	convStatus    int
	pages         map[string][][]historyMessage
	pageStatus    map[string]int // "conv/page" -> forced status
	gates         map[string]chan struct{}
	inflight      map[string]chan struct{}
	historyCalls  map[string]int
	sockets       map[string][]*websocket.Conn
	dials         map[string]int
	received      []OutboundFrame
	startDirectID string
}

func newFakeCampus(t *testing.T) *fakeCampus {
	t.Helper()
	f := &fakeCampus{
		t:            t,
		pages:        make(map[string][][]historyMessage),
		pageStatus:   make(map[string]int),
		gates:        make(map[string]chan struct{}),
		inflight:     make(map[string]chan struct{}),
		historyCalls: make(map[string]int),
		sockets:      make(map[string][]*websocket.Conn),
		dials:        make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations/", f.handleConversations)
	mux.HandleFunc("/api/messages/", f.handleMessages)
	mux.HandleFunc("/api/start_dm/", f.handleStartDM)
	mux.HandleFunc("/ws/chat/", f.handleSocket)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.close)
	return f
}

func (f *fakeCampus) client(actor Actor) *Client {
	return NewClient(actor, WithBaseURL(f.srv.URL), WithTimeout(5*time.Second))
}

func (f *fakeCampus) close() {
	f.mu.Lock()
	for _, conns := range f.sockets {
		for _, c := range conns {
			c.Close(websocket.StatusGoingAway, "test done")
		}
	}
	f.mu.Unlock()
	f.srv.Close()
}

func (f *fakeCampus) setPages(convID string, pages ...[]historyMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[convID] = pages
}

func (f *fakeCampus) setPageStatus(convID string, page, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageStatus[convID+"/"+strconv.Itoa(page)] = status
}

// gate blocks history requests for convID until the returned func is called.
// The second return is closed once a request is waiting.
func (f *fakeCampus) gate(convID string) (release func(), waiting <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	w := make(chan struct{})
	f.gates[convID] = g
	f.inflight[convID] = w
	return func() { close(g) }, w
}

func (f *fakeCampus) calls(convID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls[convID]
}

func (f *fakeCampus) dialCount(convID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials[convID]
}

func (f *fakeCampus) frames() []OutboundFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OutboundFrame{}, f.received...)
}

func (f *fakeCampus) handleConversations(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status, convs := f.convStatus, f.conversations
	f.mu.Unlock()
	if status != 0 {
		writeTestJSON(w, status, map[string]string{"error": "directory unavailable"})
		return
	}
	if convs == nil {
		convs = []Conversation{}
	}
	writeTestJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

func (f *fakeCampus) handleMessages(w http.ResponseWriter, r *http.Request) {
	convID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/messages/"), "/")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	f.mu.Lock()
	f.historyCalls[convID]++
	gate, waiting := f.gates[convID], f.inflight[convID]
	delete(f.gates, convID)
	delete(f.inflight, convID)
	status := f.pageStatus[convID+"/"+strconv.Itoa(page)]
	delete(f.pageStatus, convID+"/"+strconv.Itoa(page))
	var msgs []historyMessage
	if pages := f.pages[convID]; page >= 1 && page <= len(pages) {
		msgs = pages[page-1]
	}
	f.mu.Unlock()

	if gate != nil {
		close(waiting)
		<-gate
	}
	if status != 0 {
		writeTestJSON(w, status, map[string]string{"error": "history unavailable"})
		return
	}
	if msgs == nil {
		msgs = []historyMessage{}
	}
	writeTestJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (f *fakeCampus) handleStartDM(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	id := f.startDirectID
	f.mu.Unlock()
	writeTestJSON(w, http.StatusOK, map[string]string{"conversation_id": id})
}

func (f *fakeCampus) handleSocket(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/chat/"), "/"), "/")
	if len(parts) != 3 {
		http.NotFound(w, r)
		return
	}
	convID := parts[0]

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.sockets[convID] = append(f.sockets[convID], conn)
	f.dials[convID]++
	f.mu.Unlock()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		var frame OutboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			f.t.Errorf("client sent malformed frame %q", data)
			continue
		}
		f.mu.Lock()
		f.received = append(f.received, frame)
		f.mu.Unlock()
	}
}

// push writes raw to the latest socket of convID.
func (f *fakeCampus) push(convID, raw string) {
	f.t.Helper()
	f.mu.Lock()
	conns := f.sockets[convID]
	f.mu.Unlock()
	if len(conns) == 0 {
		f.t.Fatalf("no socket for conversation %s", convID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conns[len(conns)-1].Write(ctx, websocket.MessageText, []byte(raw)); err != nil {
		f.t.Fatalf("push to %s: %v", convID, err)
	}
}

// drop closes the latest socket of convID from the server side.
func (f *fakeCampus) drop(convID string) {
	f.mu.Lock()
	conns := f.sockets[convID]
	f.mu.Unlock()
	if len(conns) > 0 {
		conns[len(conns)-1].Close(websocket.StatusInternalError, "server restart")
	}
}

func writeTestJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func hist(sender, ts, body string) historyMessage {
	return historyMessage{Content: body, SenderName: sender, Timestamp: ts}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
