package notify

import "context"

// Embed colours.
const (
	discordGreen = 0x2ecc71
	discordRed   = 0xe74c3c
)

// DiscordSender posts alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	httpSender
}

func NewDiscordSender(webhookURL string, opts ...Option) *DiscordSender {
	return &DiscordSender{httpSender: newHTTPSender("discord", webhookURL, opts)}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	e := discordEmbed{Title: msg.Title, Description: msg.Body, Color: discordGreen}
	if msg.Failure() {
		e.Color = discordRed
	}
	e.Footer.Text = msg.Event
	// Discord answers 204 No Content.
	return d.postJSON(ctx, d.baseURL, map[string]any{"embeds": []discordEmbed{e}})
}

func (d *DiscordSender) Name() string { return "discord" }
