package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Token is the persisted OAuth record for one provider, stored as
// .orion/auth/<provider>.json under the project directory.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Provider     string    `json:"provider"`
}

// refreshBuffer is how long before expiry a token is treated as stale.
const refreshBuffer = time.Hour

// Fresh reports whether the access token is still usable without a refresh.
func (t *Token) Fresh(now time.Time) bool {
	return t.AccessToken != "" && t.ExpiresAt.After(now.Add(refreshBuffer))
}

func (b *Broker) tokenPath(provider string) string {
	return filepath.Join(b.dir, provider+".json")
}

// loadToken reads the stored record, returning (nil, nil) when absent.
func (b *Broker) loadToken(provider string) (*Token, error) {
	data, err := os.ReadFile(b.tokenPath(provider))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file for %s: %w", provider, err)
	}
	return &tok, nil
}

// saveToken persists the record with owner-only permissions.
func (b *Broker) saveToken(tok *Token) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return fmt.Errorf("create auth dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(b.tokenPath(tok.Provider), data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}
