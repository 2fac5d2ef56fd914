package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/orion-companion/orion/internal/config"
)

// Discord is the secondary messaging channel. Sends go over REST; awaiting a
// reply requires the gateway connection, opened lazily on first use.
type Discord struct {
	session *discordgo.Session
	cfg     config.DiscordConfig
	limiter *rate.Limiter

	openOnce sync.Once
	openErr  error
}

// NewDiscord creates the Discord channel from config.
func NewDiscord(cfg config.DiscordConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return &Discord{
		session: session,
		cfg:     cfg,
		limiter: sendLimiter(),
	}, nil
}

func (d *Discord) Name() string { return "discord" }

// DefaultRecipient returns the configured proactive channel id.
func (d *Discord) DefaultRecipient() string { return d.cfg.ChannelID }

// Send posts a message to the channel. Returns transport success.
func (d *Discord) Send(ctx context.Context, recipient, text string) bool {
	if err := d.limiter.Wait(ctx); err != nil {
		return false
	}
	_, err := d.session.ChannelMessageSend(recipient, text, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("discord send failed", "channel_id", recipient, "error", err)
		return false
	}
	return true
}

// SendAndAwaitReply sends the prompt and waits for a yes/no message in the
// same channel via the gateway. Timeout or transport failure yields ok=false.
func (d *Discord) SendAndAwaitReply(ctx context.Context, recipient, text string, timeout time.Duration) (string, bool) {
	d.openOnce.Do(func() {
		d.openErr = d.session.Open()
	})
	if d.openErr != nil {
		slog.Warn("discord gateway unavailable", "error", d.openErr)
		return "", false
	}

	replies := make(chan string, 1)
	remove := d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.ChannelID != recipient || m.Author == nil || m.Author.Bot {
			return
		}
		if reply := normalizeReply(m.Content); reply != "" {
			select {
			case replies <- reply:
			default:
			}
		}
	})
	defer remove()

	if !d.Send(ctx, recipient, text) {
		return "", false
	}

	select {
	case reply := <-replies:
		return reply, true
	case <-time.After(timeout):
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Close shuts down the gateway connection if it was opened.
func (d *Discord) Close() error {
	return d.session.Close()
}
