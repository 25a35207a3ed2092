// Package apiclient calls the Groovie API over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"groovie/pkg/domain"
)

const defaultTimeout = 30 * time.Second

// Client calls the API service. It is safe for concurrent use.
type Client struct {
	baseURL     string
	token       string
	userID      string
	accessLevel string
	httpClient  *http.Client
}

// APIError is a non-2xx API response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

type Options struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// UserID and AccessLevel are sent as X-User-Id / X-Access-Level for
	// servers running with header auth.
	UserID      string
	AccessLevel string
	HTTPClient  *http.Client
}

// NewClient constructs an API client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		token:       strings.TrimSpace(opts.Token),
		userID:      strings.TrimSpace(opts.UserID),
		accessLevel: strings.TrimSpace(opts.AccessLevel),
		httpClient:  httpClient,
	}
}

// UserID is the id the client identifies as, if configured.
func (c *Client) UserID() string {
	return c.userID
}

type ChatRequest struct {
	Message        string          `json:"message"`
	Mode           domain.ChatMode `json:"mode"`
	ConversationID string          `json:"conversationId"`
}

type ChatResponse struct {
	Content        string            `json:"content"`
	Message        string            `json:"message,omitempty"`
	ConversationID string            `json:"conversationId"`
	MessageID      string            `json:"messageId"`
	Mode           domain.ChatMode   `json:"mode"`
	Artifacts      []domain.Artifact `json:"artifacts"`
}

// SendChat posts one message to the mode's chat endpoint.
func (c *Client) SendChat(ctx context.Context, mode domain.ChatMode, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	path := "/api/modes/" + url.PathEscape(string(mode)) + "/chat"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

func (c *Client) AccessLevel(ctx context.Context) (domain.AccessLevel, error) {
	var resp struct {
		AccessLevel domain.AccessLevel `json:"accessLevel"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/access-level", nil, &resp); err != nil {
		return domain.AccessFree, err
	}
	if !resp.AccessLevel.Valid() {
		return domain.AccessFree, nil
	}
	return resp.AccessLevel, nil
}

// ListConversations fetches conversations for mode and userID. Empty values
// are omitted from the query.
func (c *Client) ListConversations(ctx context.Context, mode domain.ChatMode, userID string) ([]domain.Conversation, error) {
	q := url.Values{}
	if mode != "" {
		q.Set("mode", string(mode))
	}
	if userID != "" {
		q.Set("userId", userID)
	}
	path := "/api/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

type CreateConversationRequest struct {
	Title  string          `json:"title"`
	Mode   domain.ChatMode `json:"mode"`
	UserID string          `json:"userId,omitempty"`
}

func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (domain.Conversation, error) {
	var resp conversationResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", req, &resp); err != nil {
		return domain.Conversation{}, err
	}
	return resp.Conversation, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var resp conversationResponse
	if err := c.doJSON(ctx, http.MethodGet, conversationPath(id), nil, &resp); err != nil {
		return domain.Conversation{}, err
	}
	return resp.Conversation, nil
}

// UpdateConversation renames a conversation and returns the stored result.
func (c *Client) UpdateConversation(ctx context.Context, id, title string) (domain.Conversation, error) {
	var resp conversationResponse
	body := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPatch, conversationPath(id), body, &resp); err != nil {
		return domain.Conversation{}, err
	}
	return resp.Conversation, nil
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, conversationPath(id), nil, nil)
}

type conversationResponse struct {
	Conversation domain.Conversation `json:"conversation"`
}

func conversationPath(id string) string {
	return "/api/conversations/" + url.PathEscape(id)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuthHeaders(req)
	return c.do(req, out)
}

func (c *Client) addAuthHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}
	if c.accessLevel != "" {
		req.Header.Set("X-Access-Level", c.accessLevel)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = fmt.Sprintf("API error: %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
