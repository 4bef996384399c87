package campuschat

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLocalUser means the actor has no user id; the operation was skipped.
	ErrNoLocalUser = errors.New("campuschat: local user id is required")
	// ErrNotOpen means the chat socket is not open, so nothing was sent.
	ErrNotOpen = errors.New("campuschat: connection is not open")
	// ErrNoActiveConversation means no conversation is selected.
	ErrNoActiveConversation = errors.New("campuschat: no active conversation")
	// ErrEmptyMessage means the message body was blank after trimming.
	ErrEmptyMessage = errors.New("campuschat: empty message")
	// ErrForumRequiresMentor means only mentors may create forums.
	ErrForumRequiresMentor = errors.New("campuschat: only mentors can create forums")
	// ErrClosed means the coordinator has been closed.
	ErrClosed = errors.New("campuschat: coordinator closed")
)

// DirectoryError is a failed conversation-list fetch. Callers usually offer
// a retry; an open chat socket is unaffected.
type DirectoryError struct {
	UserID string
	Err    error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("conversation directory for user %s: %v", e.UserID, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// HistoryError is a failed history-page fetch. The store and page cursor are
// left as they were, so retrying repeats the same page.
type HistoryError struct {
	ConversationID string
	Page           int
	Err            error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("history page %d of conversation %s: %v", e.Page, e.ConversationID, e.Err)
}

func (e *HistoryError) Unwrap() error {
	return e.Err
}
