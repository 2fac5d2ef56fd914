// Package channel provides the outbound messaging transports used for
// proactive outreach and permission confirmation round-trips.
package channel

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Channel is a bot-style messaging transport.
type Channel interface {
	// Name returns the channel identifier ("telegram", "discord").
	Name() string

	// DefaultRecipient returns the configured proactive chat id.
	DefaultRecipient() string

	// Send delivers text to the recipient and reports transport success.
	Send(ctx context.Context, recipient, text string) bool

	// SendAndAwaitReply sends text and polls for a yes/no reply from the
	// recipient. Returns "yes" or "no" with ok=true, or ok=false on
	// timeout or transport failure.
	SendAndAwaitReply(ctx context.Context, recipient, text string, timeout time.Duration) (string, bool)
}

// replyPollInterval bounds reply polling to at most 1 Hz.
const replyPollInterval = time.Second

// sendLimiter paces outbound sends. Bot APIs throttle around 1 msg/s per
// chat; a small burst keeps confirmation prompts snappy.
func sendLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 3)
}

// normalizeReply maps free-form reply text onto the confirmation vocabulary.
// Returns "yes", "no", or "" for anything else.
func normalizeReply(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		return "yes"
	case "no":
		return "no"
	}
	return ""
}
