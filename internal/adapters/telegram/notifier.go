package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"automag/internal/domain"
	"automag/internal/infra/metrics"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier анонсирует новые материалы в Telegram-канале.
type Notifier struct {
	bot       sender
	channelID int64
}

var _ domain.EventPublisher = (*Notifier)(nil)

// NewNotifier создаёт публикатор поверх tgbotapi.BotAPI.
func NewNotifier(bot sender, channelID int64) *Notifier {
	return &Notifier{bot: bot, channelID: channelID}
}

// Publish отправляет анонс, разбивая длинный текст на несколько сообщений.
func (n *Notifier) Publish(ctx context.Context, event domain.MaterialEvent) error {
	for _, part := range SplitMessage(FormatEvent(event)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.channelID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "channel", start, err)
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// FormatEvent собирает текст анонса.
func FormatEvent(event domain.MaterialEvent) string {
	var b strings.Builder
	if event.Featured {
		b.WriteString("⭐ ")
	}
	b.WriteString(event.Title)
	b.WriteString("\n\n")
	if desc := strings.TrimSpace(event.Description); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	if event.Price > 0 {
		fmt.Fprintf(&b, "价格: ¥%.2f\n", event.Price)
	} else {
		b.WriteString("价格: 免费\n")
	}
	if len(event.Tags) > 0 {
		tags := make([]string, 0, len(event.Tags))
		for _, tag := range event.Tags {
			tags = append(tags, "#"+strings.ReplaceAll(tag, " ", "_"))
		}
		b.WriteString(strings.Join(tags, " "))
		b.WriteString("\n")
	}
	if event.Link != "" {
		fmt.Fprintf(&b, "原文: %s\n", event.Link)
	}
	return b.String()
}
