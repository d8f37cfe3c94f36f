package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Severity to embed accent colors.
const (
	discordColorInfo     = 0x2ecc71
	discordColorWarning  = 0xe67e22
	discordColorCritical = 0xe74c3c
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

// DiscordSender delivers alerts to a Discord webhook as a single embed, with
// the accent color set by severity.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordSender) Send(ctx context.Context, alert Alert) error {
	embed := discordEmbed{
		Title:       alert.Title,
		Description: alert.Body,
		Color:       discordColorInfo,
	}
	switch alert.Severity {
	case SeverityWarning:
		embed.Color = discordColorWarning
	case SeverityCritical:
		embed.Color = discordColorCritical
	}
	for _, f := range alert.Fields {
		embed.Fields = append(embed.Fields, discordField{
			Name:   f.Key,
			Value:  f.Value,
			Inline: true,
		})
	}

	payload := struct {
		Embeds []discordEmbed `json:"embeds"`
	}{Embeds: []discordEmbed{embed}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (d *DiscordSender) Name() string {
	return "discord"
}
