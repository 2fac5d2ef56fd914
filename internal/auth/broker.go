// Package auth brokers provider credentials: OAuth device-code logins
// persisted on disk, API keys from the environment, and the local backend
// which needs neither.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Providers that support the OAuth device-code flow.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderLocal  = "local"
)

// envKeys maps provider name to its API-key environment variable.
var envKeys = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"groq":       "GROQ_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
}

// Broker resolves per-provider credentials. OAuth records live under
// <project>/.orion/auth/; API keys come from the environment.
type Broker struct {
	dir          string
	localBaseURL string
	client       *http.Client
}

// New creates a broker rooted at the project directory.
func New(projectDir, localBaseURL string) *Broker {
	if localBaseURL == "" {
		localBaseURL = "http://localhost:11434"
	}
	return &Broker{
		dir:          filepath.Join(projectDir, ".orion", "auth"),
		localBaseURL: localBaseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// GetToken returns a ready-to-use credential for the provider, or "" when
// none is available. OAuth providers yield "Bearer <access>"; API-key
// providers yield the key itself; the local provider yields "local".
func (b *Broker) GetToken(ctx context.Context, provider string) string {
	if provider == ProviderLocal {
		return "local"
	}

	if provider == ProviderOpenAI || provider == ProviderGemini {
		if cred := b.oauthToken(ctx, provider); cred != "" {
			return cred
		}
	}

	if key, ok := envKeys[provider]; ok {
		return strings.TrimSpace(os.Getenv(key))
	}
	return ""
}

// oauthToken returns "Bearer <access>" from the stored record, refreshing
// it first when stale. Returns "" when no usable record exists.
func (b *Broker) oauthToken(ctx context.Context, provider string) string {
	tok, err := b.loadToken(provider)
	if err != nil {
		slog.Warn("unreadable token record", "provider", provider, "error", err)
		return ""
	}
	if tok == nil {
		return ""
	}

	if tok.Fresh(time.Now()) {
		return "Bearer " + tok.AccessToken
	}
	if tok.RefreshToken == "" {
		return ""
	}

	refreshed, err := b.refresh(ctx, provider, tok.RefreshToken)
	if err != nil {
		slog.Warn("token refresh failed", "provider", provider, "error", err)
		return ""
	}
	if err := b.saveToken(refreshed); err != nil {
		slog.Warn("token persist failed", "provider", provider, "error", err)
	}
	return "Bearer " + refreshed.AccessToken
}

// refresh exchanges a refresh token at the provider's token endpoint.
func (b *Broker) refresh(ctx context.Context, provider, refreshToken string) (*Token, error) {
	var endpoint, clientID string
	switch provider {
	case ProviderOpenAI:
		endpoint, clientID = openaiTokenURL, openaiClientID
	case ProviderGemini:
		endpoint, clientID = googleTokenURL, googleClientID
	default:
		return nil, fmt.Errorf("provider %s does not support refresh", provider)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}
	resp, err := b.postForm(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}

	tok := &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Provider:     provider,
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access_token")
	}
	return tok, nil
}

// Login runs the device-code flow for the provider and persists the token.
func (b *Broker) Login(ctx context.Context, provider string) error {
	switch provider {
	case ProviderOpenAI:
		return b.loginOpenAI(ctx)
	case ProviderGemini:
		return b.loginGemini(ctx)
	default:
		return fmt.Errorf("provider %s uses API keys; set %s instead", provider, envKeys[provider])
	}
}

// Logout deletes the stored OAuth record.
func (b *Broker) Logout(provider string) error {
	err := os.Remove(b.tokenPath(provider))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// AvailableProviders returns every provider with a usable credential. The
// local provider counts as available when its HTTP endpoint answers with
// any status below 500 within 2 seconds.
func (b *Broker) AvailableProviders(ctx context.Context) []string {
	var available []string

	for _, provider := range []string{"anthropic", "openai", "gemini", "openrouter", "groq", "mistral"} {
		if provider == ProviderOpenAI || provider == ProviderGemini {
			if tok, err := b.loadToken(provider); err == nil && tok != nil && tok.Fresh(time.Now()) {
				available = append(available, provider)
				continue
			}
		}
		if key := envKeys[provider]; strings.TrimSpace(os.Getenv(key)) != "" {
			available = append(available, provider)
		}
	}

	if b.localReachable(ctx) {
		available = append(available, ProviderLocal)
	}
	return available
}

func (b *Broker) localReachable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", b.localBaseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
