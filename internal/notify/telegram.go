package notify

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers alerts to a chat via the Telegram Bot API,
// rendered as HTML with one line per detail field.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramSender) Send(ctx context.Context, alert Alert) error {
	var text strings.Builder
	fmt.Fprintf(&text, "<b>[%s] %s</b>", alert.Severity, html.EscapeString(alert.Title))
	if alert.Body != "" {
		text.WriteString("\n" + html.EscapeString(alert.Body))
	}
	for _, f := range alert.Fields {
		fmt.Fprintf(&text, "\n<code>%s</code>: %s",
			html.EscapeString(f.Key), html.EscapeString(f.Value))
	}

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text.String())
	form.Set("parse_mode", "HTML")

	endpoint := t.apiBase + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
