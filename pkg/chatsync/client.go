package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client implements Remote against the clinic backend's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) listConversations(ctx context.Context, path string) ([]Conversation, error) {
	var envelope struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Conversations, nil
}

func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	return c.listConversations(ctx, "/api/v1/chat/conversations")
}

func (c *Client) UnassignedConversations(ctx context.Context) ([]Conversation, error) {
	return c.listConversations(ctx, "/api/v1/chat/conversations/unassigned")
}

func (c *Client) MyChats(ctx context.Context) ([]Conversation, error) {
	return c.listConversations(ctx, "/api/v1/chat/conversations/my-chats")
}

func (c *Client) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var envelope struct {
		Conversation *Conversation `json:"conversation"`
	}
	path := "/api/v1/chat/conversations/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Conversation, nil
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	var envelope struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Messages, nil
}

func (c *Client) CreateConversation(ctx context.Context, initialMessage string) (*Conversation, error) {
	var envelope struct {
		Conversation *Conversation `json:"conversation"`
	}
	payload := map[string]string{"initial_message": initialMessage}
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/conversations", payload, &envelope); err != nil {
		return nil, err
	}
	return envelope.Conversation, nil
}

func (c *Client) SendMessage(
	ctx context.Context,
	conversationID, content, messageType string,
	fileURL, fileName *string,
) (*Message, error) {
	var envelope struct {
		Message *Message `json:"message"`
	}
	payload := map[string]any{
		"content":      content,
		"message_type": messageType,
	}
	if fileURL != nil {
		payload["file_url"] = *fileURL
	}
	if fileName != nil {
		payload["file_name"] = *fileName
	}
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, payload, &envelope); err != nil {
		return nil, err
	}
	return envelope.Message, nil
}

func (c *Client) ClaimConversation(ctx context.Context, id string) error {
	path := "/api/v1/chat/conversations/" + url.PathEscape(id) + "/claim"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) UpdateConversationStatus(ctx context.Context, id, status string) error {
	path := "/api/v1/chat/conversations/" + url.PathEscape(id) + "/status"
	return c.do(ctx, http.MethodPatch, path, map[string]string{"status": status}, nil)
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	path := "/api/v1/chat/conversations/" + url.PathEscape(id) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}
