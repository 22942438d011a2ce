// Package notify posts season announcements to a chat incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aimd54/shelf-progression/internal/config"
	"github.com/aimd54/shelf-progression/internal/service/season"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

const (
	defaultTimeout = 10 * time.Second
	botUsername    = "Shelf Seasons"
)

// Client sends messages to an incoming webhook.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	http       *http.Client
	log        *logger.Logger
}

// NewClient creates a webhook client. A nil httpClient uses a client with a
// ten second timeout.
func NewClient(cfg *config.NotificationsConfig, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		http:       httpClient,
		log:        log,
	}
}

// Message is the webhook payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field is a short key/value pair inside an attachment.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// Enabled reports whether messages are actually sent.
func (c *Client) Enabled() bool {
	return c.enabled
}

// SendMessage posts msg to the webhook.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Notifications are disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent webhook message")

	return nil
}

// AnnounceSeason posts the final standings of a settled season.
func (c *Client) AnnounceSeason(ctx context.Context, result *season.RotationResult) error {
	if result == nil || result.Season == nil || result.AlreadyIssued {
		return nil
	}
	return c.SendMessage(ctx, SeasonMessage(result))
}

// SeasonMessage renders a settlement as a webhook message.
func SeasonMessage(result *season.RotationResult) *Message {
	name := result.Season.DisplayName
	if name == "" {
		name = result.Season.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### 🏆 Season %s has ended\n\n", name)
	if len(result.Rewards) == 0 {
		b.WriteString("Nobody earned XP this season, so no rewards were paid.\n")
	} else {
		for _, p := range result.Rewards {
			fmt.Fprintf(&b, "%s **%s** with %d XP: %d coins\n", medal(p.Position), displayName(p), p.SeasonXP, p.Coins)
		}
	}
	if result.NextSeason != nil {
		fmt.Fprintf(&b, "\n_Season %s starts now. Good luck!_\n", result.NextSeason.Name)
	}

	return &Message{
		Username: botUsername,
		Text:     b.String(),
	}
}

func medal(position int) string {
	switch position {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return fmt.Sprintf("%d.", position)
}

func displayName(p season.Payout) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return fmt.Sprintf("user #%d", p.UserID)
}
