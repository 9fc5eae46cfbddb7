package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError is a non-2xx response from the conversation API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatclient: api status %d: %s", e.StatusCode, e.Message)
}

// User is a directory entry returned by the people search.
type User struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// restClient talks to the conversation REST API with bearer auth. The
// websocket carries live events; everything durable goes through here.
type restClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newRESTClient(opts Options) *restClient {
	return &restClient{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		http:    opts.HTTPClient,
	}
}

// conversationView mirrors the server's conversation summary shape.
type conversationView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	DisplayID   string `json:"displayId"`
	LastMessage *struct {
		Body       string    `json:"body"`
		SenderName string    `json:"senderName"`
		SentAt     time.Time `json:"sentAt"`
	} `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int64     `json:"unreadCount"`
}

func (v conversationView) toConversation() Conversation {
	conv := Conversation{
		ID:            v.ID,
		Type:          v.Type,
		DisplayName:   v.DisplayName,
		DisplayID:     v.DisplayID,
		LastMessageAt: v.LastMessageAt,
		UnreadCount:   int(v.UnreadCount),
	}
	if v.LastMessage != nil {
		conv.LastMessage = v.LastMessage.Body
	}
	return conv
}

func (r *restClient) ListConversations(ctx context.Context) ([]Conversation, error) {
	var resp struct {
		Conversations []conversationView `json:"conversations"`
	}
	if err := r.do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return nil, err
	}
	convs := make([]Conversation, 0, len(resp.Conversations))
	for _, v := range resp.Conversations {
		convs = append(convs, v.toConversation())
	}
	return convs, nil
}

func (r *restClient) GetHistory(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := r.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (r *restClient) SendMessage(ctx context.Context, conversationID, text string) (Message, error) {
	var resp struct {
		Message Message `json:"message"`
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	body := map[string]string{"text": text}
	if err := r.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return Message{}, err
	}
	return resp.Message, nil
}

func (r *restClient) MarkRead(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/read"
	return r.do(ctx, http.MethodPost, path, nil, nil)
}

func (r *restClient) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages/" + url.PathEscape(messageID)
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

func (r *restClient) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	path := "/api/users/search?q=" + url.QueryEscape(query)
	if err := r.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

type createConversationRequest struct {
	Type           string   `json:"type"`
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
}

func (r *restClient) CreateConversation(ctx context.Context, convType, name string, participantIDs []string) (Conversation, error) {
	var resp struct {
		Conversation conversationView `json:"conversation"`
	}
	req := createConversationRequest{Type: convType, Name: name, ParticipantIDs: participantIDs}
	if err := r.do(ctx, http.MethodPost, "/api/conversations", req, &resp); err != nil {
		return Conversation{}, err
	}
	return resp.Conversation.toConversation(), nil
}

func (r *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chatclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &errBody) != nil || errBody.Error == "" {
			errBody.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
