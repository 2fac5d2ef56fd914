package engines

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CredentialFunc resolves the credential for a request. Returning "" means
// no credential is currently available. The value may already carry a
// "Bearer " prefix (OAuth mode) or be a bare API key.
type CredentialFunc func(ctx context.Context) string

// openAICompat serves every provider speaking the OpenAI chat-completions
// dialect: OpenAI itself, OpenRouter, Groq, and Mistral.
type openAICompat struct {
	name         string
	baseURL      string
	model        string
	credential   CredentialFunc
	extraHeaders map[string]string
	client       *http.Client
	retryConfig  RetryConfig
}

// NewOpenAI creates the OpenAI engine. The credential function may return
// either an OAuth bearer token or an API key.
func NewOpenAI(credential CredentialFunc, model, baseURL string) Engine {
	if model == "" {
		model = "gpt-4o"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return newOpenAICompat("openai", baseURL, model, credential, nil)
}

// NewOpenRouter creates the OpenRouter engine. OpenRouter requires an
// HTTP-Referer header identifying the calling application.
func NewOpenRouter(credential CredentialFunc, model string) Engine {
	if model == "" {
		model = "anthropic/claude-sonnet-4.5"
	}
	return newOpenAICompat("openrouter", "https://openrouter.ai/api/v1", model, credential, map[string]string{
		"HTTP-Referer": "https://github.com/orion-companion/orion",
		"X-Title":      "Orion",
	})
}

// NewGroq creates the Groq engine.
func NewGroq(credential CredentialFunc, model string) Engine {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return newOpenAICompat("groq", "https://api.groq.com/openai/v1", model, credential, nil)
}

// NewMistral creates the Mistral engine.
func NewMistral(credential CredentialFunc, model string) Engine {
	if model == "" {
		model = "mistral-large-latest"
	}
	return newOpenAICompat("mistral", "https://api.mistral.ai/v1", model, credential, nil)
}

func newOpenAICompat(name, baseURL, model string, credential CredentialFunc, headers map[string]string) *openAICompat {
	return &openAICompat{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		credential:   credential,
		extraHeaders: headers,
		client:       &http.Client{Timeout: 120 * time.Second},
		retryConfig:  DefaultRetryConfig(),
	}
}

func (e *openAICompat) Name() string { return e.name }

func (e *openAICompat) FormatMessages(prompt string, history []Message) []Message {
	return formatMessages(prompt, history)
}

func (e *openAICompat) Generate(ctx context.Context, prompt string, history []Message) string {
	body := map[string]any{
		"model":    e.model,
		"messages": e.FormatMessages(prompt, history),
	}

	reply, err := RetryDo(ctx, e.retryConfig, func() (string, error) {
		respBody, err := e.doRequest(ctx, "/chat/completions", body)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var resp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return "", fmt.Errorf("%s: decode response: %w", e.name, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s: empty choices", e.name)
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return errString(err)
	}
	return reply
}

func (e *openAICompat) Stream(ctx context.Context, prompt string, history []Message, onChunk func(string)) {
	body := map[string]any{
		"model":    e.model,
		"messages": e.FormatMessages(prompt, history),
		"stream":   true,
	}

	// Retry covers only the connection phase; once streaming starts, no retry.
	respBody, err := RetryDo(ctx, e.retryConfig, func() (io.ReadCloser, error) {
		return e.doRequest(ctx, "/chat/completions", body)
	})
	if err != nil {
		onChunk(errString(err))
		return
	}
	defer respBody.Close()

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		onChunk(errString(err))
	}
}

func (e *openAICompat) IsAvailable(ctx context.Context) bool {
	cred := e.credential(ctx)
	if cred == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", e.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	e.setHeaders(req, cred)

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *openAICompat) doRequest(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	cred := e.credential(ctx)
	if cred == "" {
		return nil, fmt.Errorf("%s: no credential available", e.name)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", e.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, cred)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, httpError(resp.StatusCode, string(respBody), resp.Header)
	}
	return resp.Body, nil
}

func (e *openAICompat) setHeaders(req *http.Request, cred string) {
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(cred, "Bearer ") {
		req.Header.Set("Authorization", cred)
	} else {
		req.Header.Set("Authorization", "Bearer "+cred)
	}
	for k, v := range e.extraHeaders {
		req.Header.Set(k, v)
	}
}
