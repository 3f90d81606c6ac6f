// Package lunalove provides the client-side conversation delivery SDK for
// the LunaLove app.
//
// It keeps a chat conversation's message timeline consistent while events
// arrive over two independent, unreliable channels (a persistent push
// channel and a periodic polling fallback) and carries the notification
// fan-out and optimistic gift-send reconciliation that ride on the same
// delivery guarantees.
//
// Example:
//
//	client := lunalove.NewClient("token-...")
//	session := lunalove.NewSession(client, nil)
//	defer session.Close()
//
//	conv, _ := session.OpenConversation(ctx, "conv-123", lunalove.ConversationHandlers{})
//	conv.SendMessage(ctx, "hello")
//	for _, m := range conv.Messages() {
//		fmt.Println(m.SenderID, m.Body)
//	}
package lunalove

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.lunalove.app"
	DefaultTimeout = 30 * time.Second
)

// ErrRateLimited is returned when the API answers with a "too many
// requests" condition. The poller translates it into a cooldown penalty;
// it is never surfaced to the user.
var ErrRateLimited = errors.New("rate limited")

// ============================================================================
// Client
// ============================================================================

// Client is the request/response API client. It carries no conversation
// state; Session composes it with the realtime layer.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
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

// NewClient creates a new API client authenticated with the session token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken sets or updates the auth token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
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
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrRateLimited
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Error != nil && result.Error.Code == "RATE_LIMITED" {
		return nil, ErrRateLimited
	}
	return &result, nil
}

// ============================================================================
// API Methods
// ============================================================================

// History fetches the recent message set of a conversation. The returned
// order is whatever the server chose; the timeline re-derives ordering.
func (c *Client) History(ctx context.Context, conversationID string, limit int) ([]WireMessage, error) {
	var query map[string]string
	if limit > 0 {
		query = map[string]string{"limit": strconv.Itoa(limit)}
	}
	result, err := c.doRequest(ctx, "GET", "/api/conversations/"+conversationID+"/messages", nil, query)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, apiErr(result, "history fetch failed")
	}
	var messages []WireMessage
	if err := result.Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return messages, nil
}

// SendChatMessage sends a text message and returns the authoritative
// created record.
func (c *Client) SendChatMessage(ctx context.Context, conversationID, body string) (*WireMessage, error) {
	payload := map[string]string{"body": body}
	result, err := c.doRequest(ctx, "POST", "/api/conversations/"+conversationID+"/messages", payload, nil)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, apiErr(result, "message send failed")
	}
	var msg WireMessage
	if err := result.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode sent message: %w", err)
	}
	return &msg, nil
}

// SendGift sends a gift and returns the created chat message together with
// the authoritative wallet balance.
func (c *Client) SendGift(ctx context.Context, conversationID string, sel GiftSelection) (*GiftReceipt, error) {
	payload := map[string]interface{}{
		"gift_id":  sel.GiftID,
		"quantity": sel.Quantity,
	}
	result, err := c.doRequest(ctx, "POST", "/api/conversations/"+conversationID+"/gifts", payload, nil)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, apiErr(result, "gift send failed")
	}
	var receipt GiftReceipt
	if err := result.Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode gift receipt: %w", err)
	}
	return &receipt, nil
}

// Wallet fetches the authoritative wallet state.
func (c *Client) Wallet(ctx context.Context) (*WalletInfo, error) {
	result, err := c.doRequest(ctx, "GET", "/api/wallet", nil, nil)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, apiErr(result, "wallet fetch failed")
	}
	var info WalletInfo
	if err := result.Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode wallet: %w", err)
	}
	return &info, nil
}

func apiErr(result *Result, fallback string) error {
	if result.Error != nil {
		return result.Error
	}
	return errors.New(fallback)
}
