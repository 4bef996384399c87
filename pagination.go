package campuschat

import "sync"

// Pages tracks the backward-history page cursor of each conversation.
//
// Page 1 is loaded when a conversation is opened, so the first Next after
// Reset returns 2. Cursors are never persisted across a reselect.
type Pages struct {
	mu        sync.Mutex
	cursors   map[string]int
	exhausted map[string]bool
}

// NewPages creates an empty cursor table.
func NewPages() *Pages {
	return &Pages{
		cursors:   make(map[string]int),
		exhausted: make(map[string]bool),
	}
}

// Reset puts the conversation back on page 1 and forgets end-of-history.
func (p *Pages) Reset(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cursors[conversationID] = 1
	delete(p.exhausted, conversationID)
}

// Next advances the cursor and returns the new page number.
func (p *Pages) Next(conversationID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.cursors[conversationID]
	if n < 1 {
		n = 1
	}
	n++
	p.cursors[conversationID] = n
	return n
}

// Current returns the last loaded page, 1 if the conversation is unknown.
func (p *Pages) Current(conversationID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.cursors[conversationID]; n > 0 {
		return n
	}
	return 1
}

// MarkExhausted records that no older history exists.
func (p *Pages) MarkExhausted(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhausted[conversationID] = true
}

// Exhausted reports whether the start of history has been reached.
func (p *Pages) Exhausted(conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exhausted[conversationID]
}

// Forget drops all state for the conversation.
func (p *Pages) Forget(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cursors, conversationID)
	delete(p.exhausted, conversationID)
}
