// Package telegram implements the operator notifier on the Telegram Bot
// API. Alerts go to a dedicated administrative chat, separate from any
// user-facing traffic.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Notifier implements ports.Notifier via the sendMessage method.
type Notifier struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithBaseURL overrides the Bot API endpoint (used in tests).
func WithBaseURL(url string) Option {
	return func(n *Notifier) {
		n.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.client = client
	}
}

// NewNotifier creates a notifier for the given bot token and admin chat.
func NewNotifier(token, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: DefaultBaseURL,
		token:   token,
		chatID:  chatID,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Notify posts the alert text to the admin chat.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    n.chatID,
		Text:      message,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sendMessage request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, payload)
	}
	return nil
}
