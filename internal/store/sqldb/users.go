package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orion-companion/orion/internal/store"
)

func marshalJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func unmarshalJSON(s string) map[string]any {
	m := map[string]any{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

// GetUser fetches a user by id. Returns (nil, nil) when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		s.q(`SELECT id, name, created_at, settings FROM users WHERE id = $1`), id))
}

// GetUserByName fetches a user by unique name. Returns (nil, nil) when absent.
func (s *Store) GetUserByName(ctx context.Context, name string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		s.q(`SELECT id, name, created_at, settings FROM users WHERE name = $1`), name))
}

// CreateUser inserts a new user with a fresh UUID.
func (s *Store) CreateUser(ctx context.Context, name string) (*store.User, error) {
	u := &store.User{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Settings:  map[string]any{},
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO users (id, name, created_at, settings) VALUES ($1, $2, $3, $4)`),
		u.ID, u.Name, u.CreatedAt, marshalJSON(u.Settings))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	var settings string
	err := row.Scan(&u.ID, &u.Name, &u.CreatedAt, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Settings = unmarshalJSON(settings)
	return &u, nil
}
