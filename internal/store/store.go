// Package store defines the relational persistence layer: users, sessions,
// messages, proactive threads, compressed memories, and the trigger log.
package store

import (
	"context"
	"time"
)

// Thread states. Transitions: open → {waiting, resolved},
// waiting → {open, resolved}, resolved is terminal.
const (
	ThreadOpen     = "open"
	ThreadWaiting  = "waiting"
	ThreadResolved = "resolved"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User is the root entity; everything else hangs off it.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Settings  map[string]any
}

// Session is a contiguous conversation window. At most one session per user
// has EndedAt unset.
type Session struct {
	ID           string
	UserID       string
	StartedAt    time.Time
	EndedAt      *time.Time
	MessageCount int
	Summary      *string
}

// Message is one turn of conversation.
type Message struct {
	ID        string
	UserID    string
	SessionID *string
	Role      string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

// Thread tracks one unit of proactive outreach.
type Thread struct {
	ID        string
	UserID    string
	Trigger   string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Context   map[string]any
}

// CompressedMemory replaces the raw messages of a compressed session.
type CompressedMemory struct {
	ID                   string
	UserID               string
	SessionID            string
	Summary              string
	OriginalMessageCount int
	DateRangeStart       time.Time
	DateRangeEnd         time.Time
	CreatedAt            time.Time
}

// TriggerLog is an append-only record of trigger firings.
type TriggerLog struct {
	ID          string
	UserID      string
	TriggerType string
	Reason      string
	Urgency     string
	ActedOn     bool
	CreatedAt   time.Time
}

// Store is the relational persistence interface. Each call is its own
// transaction; no cross-call transactions are held open.
type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByName(ctx context.Context, name string) (*User, error)
	CreateUser(ctx context.Context, name string) (*User, error)

	// Sessions
	ActiveSession(ctx context.Context, userID string) (*Session, error)
	CreateSession(ctx context.Context, userID string) (*Session, error)
	EndSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// Messages
	InsertMessage(ctx context.Context, msg *Message) error
	RecentMessages(ctx context.Context, userID string, limit int) ([]Message, error)
	SessionMessages(ctx context.Context, sessionID string) ([]Message, error)

	// Threads
	CreateThread(ctx context.Context, userID, trigger string, threadCtx map[string]any) (*Thread, error)
	GetThread(ctx context.Context, id string) (*Thread, error)
	UpdateThreadState(ctx context.Context, id, state string) error
	UpdateThreadContext(ctx context.Context, id string, threadCtx map[string]any) error
	PendingThreads(ctx context.Context, userID string) ([]Thread, error)

	// Compression
	SessionsEndedBefore(ctx context.Context, userID string, cutoff time.Time) ([]Session, error)
	CompressSession(ctx context.Context, cm *CompressedMemory) ([]string, error)

	// Trigger log
	AppendTriggerLog(ctx context.Context, entry *TriggerLog) error

	Close() error
}
