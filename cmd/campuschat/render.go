package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/sirbrams/campuschat"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	ownNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	peerNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	unreadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("203"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func statusTicks(s campuschat.DeliveryStatus) string {
	switch s {
	case campuschat.StatusRead:
		return "✓✓ read"
	case campuschat.StatusDelivered:
		return "✓✓"
	case campuschat.StatusSent:
		return "✓"
	}
	return ""
}

func formatMessage(m campuschat.Message) string {
	ts := "--:--"
	if t := m.Time(); !t.IsZero() {
		ts = t.Local().Format("15:04")
	}
	name := peerNameStyle.Render(valueOrDefault(m.SenderName, "?"))
	line := fmt.Sprintf("%s %s: %s", timeStyle.Render("["+ts+"]"), name, m.Body)
	if m.IsOwn {
		name = ownNameStyle.Render(valueOrDefault(m.SenderName, "you"))
		line = fmt.Sprintf("%s %s: %s %s", timeStyle.Render("["+ts+"]"), name, m.Body, statusStyle.Render(statusTicks(m.Status)))
	}
	return line
}

func formatConversation(c campuschat.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", dimStyle.Render(fmt.Sprintf("#%-5s", c.ID)), headerStyle.Render(c.Name))
	if c.Kind == campuschat.KindForum {
		b.WriteString(dimStyle.Render(" (forum)"))
	}
	if c.UnreadCount > 0 {
		b.WriteString(" " + unreadStyle.Render(fmt.Sprintf("[%d]", c.UnreadCount)))
	}
	if c.LastMessage != "" {
		b.WriteString("\n       " + dimStyle.Render(truncate(c.LastMessage, 60)))
	}
	return b.String()
}

// ============================================================================
// Terminal renderer
// ============================================================================

// termRenderer prints coordinator updates incrementally. Each message is
// printed once; own messages get a follow-up line when their status moves.
type termRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[string]campuschat.DeliveryStatus
}

func newTermRenderer(out io.Writer) *termRenderer {
	return &termRenderer{out: out, seen: make(map[string]campuschat.DeliveryStatus)}
}

func renderID(m campuschat.Message) string {
	if m.ClientID != "" {
		return "c:" + m.ClientID
	}
	if k, ok := m.Key(); ok {
		return "k:" + k.Timestamp + "|" + k.Sender
	}
	return "b:" + m.Timestamp + "|" + m.SenderName + "|" + m.Body
}

func (r *termRenderer) OnConversationsUpdated(list []campuschat.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(list) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("No conversations yet."))
		return
	}
	fmt.Fprintf(r.out, "%s %d conversations, %d unread\n",
		headerStyle.Render("Directory:"), len(list), campuschat.UnreadTotal(list))
}

func (r *termRenderer) OnMessagesUpdated(conversationID string, msgs []campuschat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	olderHeader := false
	sawKnown := false
	for i, m := range msgs {
		id := renderID(m)
		prev, known := r.seen[id]
		if known {
			sawKnown = true
			if m.IsOwn && prev != m.Status {
				r.seen[id] = m.Status
				fmt.Fprintf(r.out, "  %s %s\n", dimStyle.Render(truncate(m.Body, 30)), statusStyle.Render(statusTicks(m.Status)))
			}
			continue
		}
		r.seen[id] = m.Status
		// Unseen entries ahead of known ones are an older page.
		if !sawKnown && !olderHeader && i+1 < len(msgs) && r.anySeen(msgs[i+1:]) {
			fmt.Fprintln(r.out, dimStyle.Render("── older messages ──"))
			olderHeader = true
		}
		fmt.Fprintln(r.out, formatMessage(m))
	}
}

func (r *termRenderer) anySeen(msgs []campuschat.Message) bool {
	for _, m := range msgs {
		if _, ok := r.seen[renderID(m)]; ok {
			return true
		}
	}
	return false
}

func (r *termRenderer) OnConnectionStateChanged(conversationID string, state campuschat.TransportState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("── #%s %s ──", conversationID, state)))
}

func (r *termRenderer) OnTransportError(conversationID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
}
