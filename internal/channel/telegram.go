package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"

	"github.com/orion-companion/orion/internal/config"
)

// Telegram sends messages via the Bot API and polls getUpdates for
// confirmation replies. This is the primary proactive channel.
type Telegram struct {
	bot     *telego.Bot
	cfg     config.TelegramConfig
	limiter *rate.Limiter
}

// NewTelegram creates the Telegram channel from config.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{
		bot:     bot,
		cfg:     cfg,
		limiter: sendLimiter(),
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// DefaultRecipient returns the configured proactive chat id.
func (t *Telegram) DefaultRecipient() string { return t.cfg.ChatID }

// Send posts a Markdown message to the chat. Returns transport success.
func (t *Telegram) Send(ctx context.Context, recipient, text string) bool {
	chatID, err := parseChatID(recipient)
	if err != nil {
		slog.Warn("telegram send: bad recipient", "recipient", recipient, "error", err)
		return false
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return false
	}

	_, err = t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		// Markdown parse failures are common with user-provided content;
		// retry once as plain text before giving up.
		_, err = t.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID: telego.ChatID{ID: chatID},
			Text:   text,
		})
	}
	if err != nil {
		slog.Warn("telegram send failed", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

// SendAndAwaitReply sends the prompt, then polls getUpdates at most once per
// second until the recipient answers yes/no or the timeout elapses. The
// terminating reply is acknowledged so it is not re-observed.
func (t *Telegram) SendAndAwaitReply(ctx context.Context, recipient, text string, timeout time.Duration) (string, bool) {
	chatID, err := parseChatID(recipient)
	if err != nil {
		slog.Warn("telegram await: bad recipient", "recipient", recipient, "error", err)
		return "", false
	}

	// Snapshot the current highest update id before sending, so only
	// replies posted after the prompt are considered.
	lastID, err := t.lastUpdateID(ctx)
	if err != nil {
		slog.Warn("telegram await: cannot read update offset", "error", err)
		return "", false
	}

	if !t.Send(ctx, recipient, text) {
		return "", false
	}

	deadline := time.Now().Add(timeout)
	offset := lastID + 1

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(replyPollInterval):
		}

		updates, err := t.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
			Offset:  offset,
			Timeout: 1,
		})
		if err != nil {
			slog.Debug("telegram await: poll failed", "error", err)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			msg := u.Message
			if msg == nil || msg.Chat.ID != chatID {
				continue
			}
			if reply := normalizeReply(msg.Text); reply != "" {
				t.acknowledge(ctx, u.UpdateID)
				return reply, true
			}
		}
	}

	return "", false
}

// lastUpdateID fetches the newest pending update id, or 0 when the queue is
// empty.
func (t *Telegram) lastUpdateID(ctx context.Context) (int, error) {
	updates, err := t.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset: -1,
		Limit:  1,
	})
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}
	return updates[len(updates)-1].UpdateID, nil
}

// acknowledge advances the getUpdates offset past the consumed update.
func (t *Telegram) acknowledge(ctx context.Context, updateID int) {
	_, err := t.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset: updateID + 1,
		Limit:  1,
	})
	if err != nil {
		slog.Debug("telegram await: acknowledge failed", "update_id", updateID, "error", err)
	}
}

func parseChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
