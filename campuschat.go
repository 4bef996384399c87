// Package campuschat is a Go client for the TechCampus mentor/student chat.
//
// It covers the REST endpoints of the campus web service (conversations,
// history pages, direct messages, forums, mentors, the campus assistant) and
// a real-time conversation-sync core: a message store, page cursors, a chat
// socket and a coordinator that a UI drives through a Renderer.
//
// Example:
//
//	actor := campuschat.Actor{ID: "42", Name: "Ada", Role: campuschat.RoleStudent}
//	client := campuschat.NewClient(actor, campuschat.WithBaseURL("https://campus.example"))
//
//	coord := campuschat.NewCoordinator(client, renderer, nil)
//	defer coord.Close()
//
//	coord.RefreshConversations(ctx)
//	coord.Select(ctx, conv)
//	coord.SendCurrent(ctx, "Hello!")
package campuschat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the campus web service on behalf of one actor.
type Client struct {
	baseURL    string
	actor      Actor
	httpClient *http.Client
	logger     *slog.Logger

	Conversations *ConversationsClient
	Messages      *MessagesClient
	Mentors       *MentorsClient
	Chatbot       *ChatbotClient
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client acting as actor.
func NewClient(actor Actor, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		actor:   actor,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Conversations = &ConversationsClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Mentors = &MentorsClient{c: c}
	c.Chatbot = newChatbotClient(c)
	return c
}

// Actor returns the local user this client acts for.
func (c *Client) Actor() Actor {
	return c.actor
}

// BaseURL returns the campus service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// RealtimeURL returns the chat socket URL of a conversation for the actor.
func (c *Client) RealtimeURL(conversationID string) string {
	return realtimeURL(c.baseURL, conversationID, c.actor)
}

func realtimeURL(baseURL, conversationID string, actor Actor) string {
	base := strings.Replace(baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return fmt.Sprintf("%s/ws/chat/%s/%s/%s/",
		base, url.PathEscape(conversationID), url.PathEscape(string(actor.Role)), url.PathEscape(actor.ID))
}

func (c *Client) identityQuery() map[string]string {
	return map[string]string{
		"user_type": string(c.actor.Role),
		"user_id":   c.actor.ID,
	}
}

// ============================================================================
// Internal request helpers
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// call performs a request and decodes the body into T, turning the service's
// {"error": ...} payloads and non-2xx statuses into *APIError.
func call[T any](ctx context.Context, c *Client, method, path string, body interface{}, query map[string]string) (*T, error) {
	data, status, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}

	var apiErr APIError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		apiErr.Status = status
		return nil, &apiErr
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{Status: status, Message: http.StatusText(status)}
	}
	return decodeJSON[T](data)
}

// ============================================================================
// Conversations
// ============================================================================

// ConversationsClient lists and creates conversations.
type ConversationsClient struct{ c *Client }

type conversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// List returns every conversation of the actor, most recently active first.
func (cv *ConversationsClient) List(ctx context.Context) ([]Conversation, error) {
	if cv.c.actor.ID == "" {
		return nil, ErrNoLocalUser
	}
	res, err := call[conversationsResponse](ctx, cv.c, "GET", "/api/conversations/", nil, cv.c.identityQuery())
	if err != nil {
		return nil, err
	}
	if res.Conversations == nil {
		return []Conversation{}, nil
	}
	return res.Conversations, nil
}

type startDirectResponse struct {
	ConversationID ID `json:"conversation_id"`
}

// StartDirect opens (or finds) the direct conversation between the actor and
// peerID. The peer is a mentor when the actor is a student and vice versa.
func (cv *ConversationsClient) StartDirect(ctx context.Context, peerID string) (ID, error) {
	a := cv.c.actor
	if a.ID == "" {
		return "", ErrNoLocalUser
	}
	payload := map[string]string{"student_id": a.ID, "mentor_id": peerID}
	if a.Role == RoleMentor {
		payload = map[string]string{"student_id": peerID, "mentor_id": a.ID}
	}
	res, err := call[startDirectResponse](ctx, cv.c, "POST", "/api/start_dm/", payload, nil)
	if err != nil {
		return "", err
	}
	if res.ConversationID == "" {
		return "", fmt.Errorf("start direct conversation: no conversation id returned")
	}
	return res.ConversationID, nil
}

type createForumResponse struct {
	ForumID ID `json:"forum_id"`
}

// CreateForum creates a forum owned by the actor, who must be a mentor.
func (cv *ConversationsClient) CreateForum(ctx context.Context, name string) (ID, error) {
	a := cv.c.actor
	if a.ID == "" {
		return "", ErrNoLocalUser
	}
	if a.Role != RoleMentor {
		return "", ErrForumRequiresMentor
	}
	res, err := call[createForumResponse](ctx, cv.c, "POST", "/api/create_forum/",
		map[string]string{"name": name, "mentor_id": a.ID}, nil)
	if err != nil {
		return "", err
	}
	return res.ForumID, nil
}

// ============================================================================
// Messages
// ============================================================================

// MessagesClient reads history pages and posts messages over REST.
type MessagesClient struct{ c *Client }

type historyResponse struct {
	Messages []historyMessage `json:"messages"`
}

// History fetches one page of a conversation's history, oldest first.
func (m *MessagesClient) History(ctx context.Context, conversationID string, page int) ([]Message, error) {
	if m.c.actor.ID == "" {
		return nil, ErrNoLocalUser
	}
	if page < 1 {
		page = 1
	}
	q := m.c.identityQuery()
	q["page"] = strconv.Itoa(page)
	res, err := call[historyResponse](ctx, m.c, "GET", "/api/messages/"+url.PathEscape(conversationID)+"/", nil, q)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(res.Messages))
	for _, h := range res.Messages {
		out = append(out, h.toMessage(conversationID))
	}
	return out, nil
}

// SentMessage is the service's acknowledgement of a REST send.
type SentMessage struct {
	Success   bool   `json:"success"`
	MessageID ID     `json:"message_id"`
	Timestamp string `json:"timestamp"`
}

// Send posts a message without the chat socket. Useful from scripts and as a
// fallback when the socket is down.
func (m *MessagesClient) Send(ctx context.Context, conversationID, content string) (*SentMessage, error) {
	a := m.c.actor
	if a.ID == "" {
		return nil, ErrNoLocalUser
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return call[SentMessage](ctx, m.c, "POST", "/api/send_message/"+url.PathEscape(conversationID)+"/",
		map[string]string{"content": content, "sender_type": string(a.Role), "sender_id": a.ID}, nil)
}

// ============================================================================
// Mentors
// ============================================================================

// MentorsClient lists mentors available for direct messages.
type MentorsClient struct{ c *Client }

type mentorsResponse struct {
	Mentors []Mentor `json:"mentors"`
}

func (mc *MentorsClient) List(ctx context.Context) ([]Mentor, error) {
	res, err := call[mentorsResponse](ctx, mc.c, "GET", "/api/mentors/", nil, nil)
	if err != nil {
		return nil, err
	}
	if res.Mentors == nil {
		return []Mentor{}, nil
	}
	return res.Mentors, nil
}
