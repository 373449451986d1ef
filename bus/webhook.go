package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookBus implements Bus over a JSON webhook: each outbound action is
// POSTed to a gateway which owns the actual platform credentials and client.
// This keeps the engine free of any platform SDK.
type WebhookBus struct {
	Host   string
	Client *http.Client
}

var _ Bus = (*WebhookBus)(nil)

func NewWebhookBus(host string) *WebhookBus {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return &WebhookBus{
		Host:   host,
		Client: client,
	}
}

type webhookCommand struct {
	Action    string     `json:"action"`
	ChatID    string     `json:"chat_id"`
	UserID    string     `json:"user_id,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
	Text      string     `json:"text,omitempty"`
	ReplyTo   string     `json:"reply_to,omitempty"`
	Buttons   [][]Button `json:"buttons,omitempty"`
	Cap       string     `json:"capability,omitempty"`
	Allowed   bool       `json:"allowed,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (b *WebhookBus) post(ctx context.Context, cmd webhookCommand) (*webhookResponse, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Host+"/commands", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport webhook: unexpected status %d for %s", resp.StatusCode, cmd.Action)
	}
	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("transport webhook: decoding response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("transport webhook: %s: %s", cmd.Action, out.Error)
	}
	return &out, nil
}

func (b *WebhookBus) SendMessage(ctx context.Context, chatID, text string, opts *SendOpts) (string, error) {
	cmd := webhookCommand{Action: "send_message", ChatID: chatID, Text: text}
	if opts != nil {
		cmd.ReplyTo = opts.ReplyTo
		cmd.Buttons = opts.Buttons
	}
	resp, err := b.post(ctx, cmd)
	if err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

func (b *WebhookBus) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	_, err := b.post(ctx, webhookCommand{Action: "delete_message", ChatID: chatID, MessageID: messageID})
	return err
}

func (b *WebhookBus) RestrictUser(ctx context.Context, chatID, userID string, cap Capability, allowed bool) error {
	_, err := b.post(ctx, webhookCommand{Action: "restrict_user", ChatID: chatID, UserID: userID, Cap: string(cap), Allowed: allowed})
	return err
}

func (b *WebhookBus) BanUser(ctx context.Context, chatID, userID string) error {
	_, err := b.post(ctx, webhookCommand{Action: "ban_user", ChatID: chatID, UserID: userID})
	return err
}

func (b *WebhookBus) KickUser(ctx context.Context, chatID, userID string) error {
	_, err := b.post(ctx, webhookCommand{Action: "kick_user", ChatID: chatID, UserID: userID})
	return err
}

func (b *WebhookBus) GetMemberRole(ctx context.Context, chatID, userID string) (Role, error) {
	resp, err := b.post(ctx, webhookCommand{Action: "get_member_role", ChatID: chatID, UserID: userID})
	if err != nil {
		return RoleNone, err
	}
	return Role(resp.Role), nil
}
