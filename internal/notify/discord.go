package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Embed colours.
const (
	discordColorRisk   = 0xE74C3C
	discordColorReport = 0x3498DB
)

// discordMaxDescription is Discord's limit on an embed description.
const discordMaxDescription = 4096

// DiscordSender posts notifications to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender with a 10-second HTTP timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

// Send posts one embed. Risk titles are drawn red, everything else blue.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	color := discordColorReport
	if strings.HasPrefix(title, "Risk ") {
		color = discordColorRisk
	}
	if len(message) > discordMaxDescription {
		message = message[:discordMaxDescription-3] + "..."
	}
	err := postJSON(ctx, d.client, d.webhookURL, map[string]any{
		"username": "execsim",
		"embeds": []discordEmbed{{
			Title:       title,
			Description: "```\n" + message + "\n```",
			Color:       color,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }
