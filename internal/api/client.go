// Package api is the client for the backend REST endpoints the realtime
// engine depends on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sisi-realtime/internal/model"
)

const defaultTimeout = 10 * time.Second

// Error is a non-2xx response. Detail is the server-provided message, if any.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Detail)
}

// Detail returns the server message carried by err, or fallback.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type AuthResult struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	User        model.User `json:"user"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Login authenticates and remembers the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return AuthResult{}, err
	}
	c.SetToken(out.AccessToken)
	return out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return AuthResult{}, err
	}
	c.SetToken(out.AccessToken)
	return out, nil
}

func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	var out []model.ChatSummary
	err := c.do(ctx, http.MethodGet, "/api/chats", nil, &out)
	return out, err
}

func (c *Client) CreateChat(ctx context.Context, name string, participants []string) (model.ChatSummary, error) {
	var out model.ChatSummary
	body := map[string]any{"name": name, "chat_type": "private", "participants": participants}
	err := c.do(ctx, http.MethodPost, "/api/chats", body, &out)
	return out, err
}

func (c *Client) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var out []model.Message
	err := c.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(chatID)+"/messages", nil, &out)
	return out, err
}

func (c *Client) ListFriends(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := c.do(ctx, http.MethodGet, "/api/friends", nil, &out)
	return out, err
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	var out []model.User
	err := c.do(ctx, http.MethodGet, "/api/users/search?q="+url.QueryEscape(query), nil, &out)
	return out, err
}

func (c *Client) AddFriend(ctx context.Context, username string) error {
	return c.do(ctx, http.MethodPost, "/api/friends/add", map[string]string{"username": username}, nil)
}

// AcceptFriend sends both field names; older backends only read userId.
func (c *Client) AcceptFriend(ctx context.Context, fromUserID string) error {
	body := map[string]string{"userId": fromUserID, "from_user_id": fromUserID}
	return c.do(ctx, http.MethodPost, "/api/friends/accept", body, nil)
}

func (c *Client) DeclineFriend(ctx context.Context, fromUserID string) error {
	body := map[string]string{"userId": fromUserID, "from_user_id": fromUserID}
	return c.do(ctx, http.MethodPost, "/api/friends/decline", body, nil)
}

func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out)
	return out, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) Suggestions(ctx context.Context, message, chatContext string) ([]string, error) {
	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	body := map[string]string{"message": message, "context": chatContext}
	if err := c.do(ctx, http.MethodPost, "/api/ai/suggestions", body, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

func (c *Client) Translate(ctx context.Context, message, targetLanguage string) (string, error) {
	var out struct {
		Translation string `json:"translation"`
	}
	body := map[string]string{"message": message, "target_language": targetLanguage}
	if err := c.do(ctx, http.MethodPost, "/api/ai/translate", body, &out); err != nil {
		return "", err
	}
	return out.Translation, nil
}

func (c *Client) RequestPayment(ctx context.Context, toUser string, amount float64, description string) error {
	body := map[string]any{"to_user": toUser, "amount": amount, "description": description}
	return c.do(ctx, http.MethodPost, "/api/payments/request", body, nil)
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Detail: errorDetail(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorDetail(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		return ""
	}
	if len(eb.Detail) > 0 {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			return s
		}
	}
	return eb.Error
}
