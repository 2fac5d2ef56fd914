package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const (
	openaiClientID      = "app_EMoamEEZ73f0CkXaXp7hrann"
	openaiUserCodeURL   = "https://auth.openai.com/api/accounts/deviceauth/usercode"
	openaiDevicePollURL = "https://auth.openai.com/api/accounts/deviceauth/token"
	openaiTokenURL      = "https://auth.openai.com/oauth/token"
	openaiRedirectURI   = "https://auth.openai.com/deviceauth/callback"
	openaiVerifyURL     = "https://auth.openai.com/codex/device"
	openaiFlowTimeout   = 15 * time.Minute

	googleClientID    = "681255809395-oe1ai0bih85l6aq4sksepfq7s4bpfkvq.apps.googleusercontent.com"
	googleDeviceURL   = "https://oauth2.googleapis.com/device/code"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleScope       = "https://www.googleapis.com/auth/generative-language"
	googleFlowTimeout = 5 * time.Minute

	maxPollInterval = 30 * time.Second
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

// loginOpenAI runs the OpenAI device-code flow: request a user code, have
// the user approve it in a browser, poll for the authorization code, then
// exchange it with the PKCE verifier.
func (b *Broker) loginOpenAI(ctx context.Context) error {
	verifier, challenge, err := pkcePair()
	if err != nil {
		return fmt.Errorf("generate pkce pair: %w", err)
	}

	var start struct {
		DeviceAuthID string `json:"device_auth_id"`
		UserCode     string `json:"user_code"`
		Interval     int    `json:"interval"`
	}
	err = b.postJSON(ctx, openaiUserCodeURL, map[string]string{
		"client_id":      openaiClientID,
		"code_challenge": challenge,
	}, &start)
	if err != nil {
		return fmt.Errorf("request device code: %w", err)
	}

	fmt.Printf("Open %s and enter code: %s\n", openaiVerifyURL, start.UserCode)
	openBrowser(openaiVerifyURL)

	interval := time.Duration(start.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	deadline := time.Now().Add(openaiFlowTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		var poll struct {
			AuthorizationCode string `json:"authorization_code"`
			Error             string `json:"error"`
		}
		status, err := b.postJSONStatus(ctx, openaiDevicePollURL, map[string]string{
			"device_auth_id": start.DeviceAuthID,
			"user_code":      start.UserCode,
		}, &poll)
		if err != nil {
			return fmt.Errorf("poll device token: %w", err)
		}

		switch {
		case status == http.StatusForbidden, status == http.StatusNotFound:
			// Not approved yet.
			continue
		case status == http.StatusTooManyRequests:
			interval = capInterval(interval + 2*time.Second)
			continue
		case poll.Error == "access_denied":
			return fmt.Errorf("login denied by user")
		case poll.AuthorizationCode != "":
			return b.exchangeOpenAI(ctx, poll.AuthorizationCode, verifier)
		case status >= 400:
			return fmt.Errorf("device poll failed with status %d", status)
		}
	}
	return fmt.Errorf("login timed out after %s", openaiFlowTimeout)
}

// exchangeOpenAI trades the authorization code for tokens and persists them.
func (b *Broker) exchangeOpenAI(ctx context.Context, code, verifier string) error {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"client_id":     {openaiClientID},
		"redirect_uri":  {openaiRedirectURI},
	}
	resp, err := b.postForm(ctx, openaiTokenURL, form)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	expiresAt := time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.ExpiresIn == 0 {
		if exp, ok := jwtExpiry(resp.AccessToken); ok {
			expiresAt = exp
		}
	}

	return b.saveToken(&Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		Provider:     ProviderOpenAI,
	})
}

// loginGemini runs the standard Google device-code flow.
func (b *Broker) loginGemini(ctx context.Context) error {
	var start struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURL string `json:"verification_url"`
		Interval        int    `json:"interval"`
	}
	form := url.Values{
		"client_id": {googleClientID},
		"scope":     {googleScope},
	}
	if err := b.postFormInto(ctx, googleDeviceURL, form, &start); err != nil {
		return fmt.Errorf("request device code: %w", err)
	}

	fmt.Printf("Open %s and enter code: %s\n", start.VerificationURL, start.UserCode)
	openBrowser(start.VerificationURL)

	interval := time.Duration(start.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	deadline := time.Now().Add(googleFlowTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		pollForm := url.Values{
			"client_id":   {googleClientID},
			"device_code": {start.DeviceCode},
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		}
		var resp tokenResponse
		if err := b.postFormInto(ctx, googleTokenURL, pollForm, &resp); err != nil {
			return fmt.Errorf("poll token: %w", err)
		}

		switch resp.Error {
		case "authorization_pending":
			continue
		case "slow_down":
			interval = capInterval(interval + 2*time.Second)
			continue
		case "access_denied":
			return fmt.Errorf("login denied by user")
		case "":
			if resp.AccessToken == "" {
				return fmt.Errorf("token response missing access_token")
			}
			return b.saveToken(&Token{
				AccessToken:  resp.AccessToken,
				RefreshToken: resp.RefreshToken,
				ExpiresAt:    time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second),
				Provider:     ProviderGemini,
			})
		default:
			return fmt.Errorf("device flow error: %s", resp.Error)
		}
	}
	return fmt.Errorf("login timed out after %s", googleFlowTimeout)
}

func capInterval(d time.Duration) time.Duration {
	if d > maxPollInterval {
		return maxPollInterval
	}
	return d
}

// pkcePair generates a code verifier and its S256 challenge.
func pkcePair() (verifier, challenge string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// jwtExpiry extracts the exp claim from an unverified JWT. Used only as a
// fallback when the token response omits expires_in.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if json.Unmarshal(payload, &claims) != nil || claims.Exp == 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.Exp, 0).UTC(), true
}

func openBrowser(target string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	_ = cmd.Start()
}

// postJSON posts a JSON body and decodes the response, failing on non-2xx.
func (b *Broker) postJSON(ctx context.Context, endpoint string, body, out any) error {
	status, err := b.postJSONStatus(ctx, endpoint, body, out)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("%s returned %d", endpoint, status)
	}
	return nil
}

// postJSONStatus posts JSON and returns the HTTP status; the body is
// decoded into out when present, even on error statuses.
func (b *Broker) postJSONStatus(ctx context.Context, endpoint string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(string(data)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, out)
	}
	return resp.StatusCode, nil
}

// postForm posts form-encoded values expecting a token response.
func (b *Broker) postForm(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	var resp tokenResponse
	if err := b.postFormInto(ctx, endpoint, form, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s: %s", endpoint, resp.Error)
	}
	return &resp, nil
}

func (b *Broker) postFormInto(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}
