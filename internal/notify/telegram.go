package notify

import (
	"context"
	"fmt"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts alerts through a Telegram bot.
type TelegramSender struct {
	httpSender
	token  string
	chatID string
}

func NewTelegramSender(token, chatID string, opts ...Option) *TelegramSender {
	return &TelegramSender{
		httpSender: newHTTPSender("telegram", telegramAPI, opts),
		token:      token,
		chatID:     chatID,
	}
}

// Send uses sendMessage with legacy Markdown; failures get a warning marker.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	title := msg.Title
	if msg.Failure() {
		title = "⚠️ " + title
	}
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     fmt.Sprintf("*%s*\n%s", escapeMarkdown(title), escapeMarkdown(msg.Body)),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	return t.postJSON(ctx, fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token), payload)
}

func (t *TelegramSender) Name() string { return "telegram" }

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
