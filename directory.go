package campuschat

import (
	"context"
	"strings"
	"sync"
)

// Directory holds the actor's conversation list. Each Refresh replaces the
// list wholesale; there is no incremental sync.
type Directory struct {
	client *Client

	mu            sync.RWMutex
	conversations []Conversation
}

// NewDirectory creates a directory backed by client.
func NewDirectory(client *Client) *Directory {
	return &Directory{client: client}
}

// Refresh fetches the full conversation list. An empty list is a valid
// result; transport and service failures come back as *DirectoryError and
// leave the previous list in place.
func (d *Directory) Refresh(ctx context.Context) ([]Conversation, error) {
	convs, err := d.client.Conversations.List(ctx)
	if err != nil {
		return nil, &DirectoryError{UserID: d.client.actor.ID, Err: err}
	}

	d.mu.Lock()
	d.conversations = append([]Conversation{}, convs...)
	d.mu.Unlock()
	return convs, nil
}

// Conversations returns the list from the last successful Refresh.
func (d *Directory) Conversations() []Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Conversation{}, d.conversations...)
}

// Lookup finds a conversation by id in the last fetched list.
func (d *Directory) Lookup(id string) (Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.conversations {
		if string(c.ID) == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// Mentors lists the mentors a student can message.
func (d *Directory) Mentors(ctx context.Context) ([]Mentor, error) {
	return d.client.Mentors.List(ctx)
}

// UnreadTotal sums unread counts, ignoring negative values.
func UnreadTotal(conversations []Conversation) int {
	total := 0
	for _, c := range conversations {
		if c.UnreadCount > 0 {
			total += c.UnreadCount
		}
	}
	return total
}

// Filter keeps conversations whose name or last message contains query,
// case-insensitive. An empty query keeps everything.
func Filter(conversations []Conversation, query string) []Conversation {
	q := foldString(query)
	if q == "" {
		return append([]Conversation{}, conversations...)
	}
	var out []Conversation
	for _, c := range conversations {
		if containsFold(c.Name, q) || containsFold(c.LastMessage, q) {
			out = append(out, c)
		}
	}
	return out
}

func foldString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsFold(s, folded string) bool {
	return strings.Contains(strings.ToLower(s), folded)
}
