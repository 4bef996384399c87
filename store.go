package campuschat

import "sync"

// Placement says where a newly inserted message goes in a conversation.
type Placement int

const (
	PlaceAppend Placement = iota
	PlacePrepend
)

// InsertResult reports what InsertOrUpdate did.
type InsertResult int

const (
	Inserted InsertResult = iota + 1
	UpdatedStatus
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case UpdatedStatus:
		return "updated_status"
	}
	return "unknown"
}

// ============================================================================
// MessageStore
// ============================================================================

// MessageStore is a goroutine-safe, in-memory, per-conversation message cache.
//
// Messages are kept in chronological order and deduplicated on their
// (timestamp, sender) key. A later arrival with a known key only updates the
// delivery status of the stored message. Messages without a key are stored
// unconditionally.
type MessageStore struct {
	mu    sync.RWMutex
	convs map[string]*conversationLog
}

type conversationLog struct {
	messages []*Message
	byKey    map[MessageKey]*Message
	byClient map[string]*Message
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{convs: make(map[string]*conversationLog)}
}

func (s *MessageStore) log(conversationID string) *conversationLog {
	l := s.convs[conversationID]
	if l == nil {
		l = &conversationLog{
			byKey:    make(map[MessageKey]*Message),
			byClient: make(map[string]*Message),
		}
		s.convs[conversationID] = l
	}
	return l
}

// InsertOrUpdate stores msg in the conversation, or updates the status of the
// message that already holds its identity key.
func (s *MessageStore) InsertOrUpdate(conversationID string, msg Message, placement Placement) InsertResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.log(conversationID)
	stored, inserted := l.upsert(conversationID, msg)
	if !inserted {
		return UpdatedStatus
	}
	if placement == PlacePrepend {
		l.messages = append([]*Message{stored}, l.messages...)
	} else {
		l.messages = append(l.messages, stored)
	}
	return Inserted
}

// Prepend merges a history page, oldest first, into the conversation. New
// entries that precede every already stored entry of the page go to the front
// in page order. A new entry that follows a stored one in the page is placed
// right after that stored message, so a page overlapping live frames keeps
// chronological order. Entries already stored only get their status
// refreshed. It returns how many messages were new.
func (s *MessageStore) Prepend(conversationID string, msgs []Message) int {
	if len(msgs) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.log(conversationID)
	var (
		front  []*Message
		after  = make(map[*Message][]*Message)
		batch  = make(map[*Message]bool)
		anchor *Message
		added  int
	)
	for _, m := range msgs {
		stored, inserted := l.upsert(conversationID, m)
		if !inserted {
			// A repeat within the page keeps the current anchor.
			if !batch[stored] {
				anchor = stored
			}
			continue
		}
		batch[stored] = true
		added++
		if anchor == nil {
			front = append(front, stored)
		} else {
			after[anchor] = append(after[anchor], stored)
		}
	}
	if added == 0 {
		return 0
	}

	merged := make([]*Message, 0, len(l.messages)+added)
	merged = append(merged, front...)
	for _, m := range l.messages {
		merged = append(merged, m)
		merged = append(merged, after[m]...)
	}
	l.messages = merged
	return added
}

// upsert indexes msg, or folds it into the message it duplicates.
// The returned message is not yet placed when inserted is true.
func (l *conversationLog) upsert(conversationID string, msg Message) (*Message, bool) {
	key, keyed := msg.Key()

	// An echo of an optimistic send: same client id, server-assigned key.
	if msg.ClientID != "" {
		if existing := l.byClient[msg.ClientID]; existing != nil {
			existing.updateStatus(msg.Status)
			if keyed {
				if _, taken := l.byKey[key]; !taken {
					l.byKey[key] = existing
				}
			}
			return existing, false
		}
	}

	if keyed {
		if existing := l.byKey[key]; existing != nil {
			existing.updateStatus(msg.Status)
			if msg.ClientID != "" && existing.ClientID == "" {
				l.byClient[msg.ClientID] = existing
			}
			return existing, false
		}
	}

	stored := msg
	stored.ConversationID = conversationID
	if keyed {
		l.byKey[key] = &stored
	}
	if stored.ClientID != "" {
		l.byClient[stored.ClientID] = &stored
	}
	return &stored, true
}

func (m *Message) updateStatus(status DeliveryStatus) {
	if status != "" {
		m.Status = status
	}
}

// Clear drops every cached message of the conversation.
func (s *MessageStore) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, conversationID)
}

// List returns a chronological copy of the conversation's messages.
func (s *MessageStore) List(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := s.convs[conversationID]
	if l == nil {
		return []Message{}
	}
	out := make([]Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = *m
	}
	return out
}

// Len returns the number of cached messages for the conversation.
func (s *MessageStore) Len(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l := s.convs[conversationID]; l != nil {
		return len(l.messages)
	}
	return 0
}

// SearchMessages returns messages whose body contains query, case-insensitive.
// An empty conversationID searches all conversations.
func (s *MessageStore) SearchMessages(query, conversationID string, limit int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := foldString(query)
	var results []Message
	for id, l := range s.convs {
		if conversationID != "" && id != conversationID {
			continue
		}
		for _, m := range l.messages {
			if containsFold(m.Body, q) {
				results = append(results, *m)
				if limit > 0 && len(results) >= limit {
					return results
				}
			}
		}
	}
	return results
}
