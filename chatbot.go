package campuschat

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// ChatbotReply is the campus assistant's answer to one question.
type ChatbotReply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// ChatbotExchange is one question/answer pair kept in the local transcript.
type ChatbotExchange struct {
	Question string    `json:"question" yaml:"question"`
	Answer   string    `json:"answer" yaml:"answer"`
	At       time.Time `json:"at" yaml:"at"`
}

// maxChatbotTranscript bounds the local transcript.
const maxChatbotTranscript = 50

// ChatbotClient talks to the campus assistant widget backend. The service
// keys the assistant conversation on its session cookie, so the client keeps
// its own cookie jar.
type ChatbotClient struct {
	c *Client

	mu         sync.Mutex
	sessionID  string
	transcript []ChatbotExchange
}

func newChatbotClient(c *Client) *ChatbotClient {
	hc := &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   c.httpClient.Timeout,
		Jar:       c.httpClient.Jar,
	}
	if hc.Jar == nil {
		if jar, err := cookiejar.New(nil); err == nil {
			hc.Jar = jar
		} else {
			c.logger.Warn("chatbot cookie jar unavailable", "error", err)
		}
	}
	bot := *c
	bot.httpClient = hc
	return &ChatbotClient{c: &bot}
}

// Ask sends a question to the assistant and records the exchange.
func (b *ChatbotClient) Ask(ctx context.Context, question string) (*ChatbotReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyMessage
	}
	reply, err := call[ChatbotReply](ctx, b.c, "POST", "/chatbot/chat/", map[string]string{"message": question}, nil)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if reply.SessionID != "" {
		b.sessionID = reply.SessionID
	}
	b.transcript = append(b.transcript, ChatbotExchange{Question: question, Answer: reply.Response, At: time.Now()})
	if len(b.transcript) > maxChatbotTranscript {
		b.transcript = b.transcript[len(b.transcript)-maxChatbotTranscript:]
	}
	b.mu.Unlock()
	return reply, nil
}

// SessionID returns the assistant session the service assigned, if any.
func (b *ChatbotClient) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// Transcript returns a copy of the recent exchanges, oldest first.
func (b *ChatbotClient) Transcript() []ChatbotExchange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ChatbotExchange{}, b.transcript...)
}
