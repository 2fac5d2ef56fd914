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

// Local talks to an Ollama-style server: /api/chat with JSON-lines
// streaming, /api/tags for availability. No auth.
type Local struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewLocal creates the engine.
func NewLocal(baseURL, model string) *Local {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &Local{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *Local) Name() string { return "local" }

func (e *Local) FormatMessages(prompt string, history []Message) []Message {
	return formatMessages(prompt, history)
}

func (e *Local) Generate(ctx context.Context, prompt string, history []Message) string {
	respBody, err := e.doChat(ctx, prompt, history, false)
	if err != nil {
		return errString(err)
	}
	defer respBody.Close()

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return errString(fmt.Errorf("local: decode response: %w", err))
	}
	return resp.Message.Content
}

func (e *Local) Stream(ctx context.Context, prompt string, history []Message, onChunk func(string)) {
	respBody, err := e.doChat(ctx, prompt, history, true)
	if err != nil {
		onChunk(errString(err))
		return
	}
	defer respBody.Close()

	// Ollama streams one JSON object per line, no SSE framing.
	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var chunk struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Message.Content != "" {
			onChunk(chunk.Message.Content)
		}
		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		onChunk(errString(err))
	}
}

func (e *Local) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", e.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *Local) doChat(ctx context.Context, prompt string, history []Message, stream bool) (io.ReadCloser, error) {
	data, err := json.Marshal(map[string]any{
		"model":    e.model,
		"messages": e.FormatMessages(prompt, history),
		"stream":   stream,
	})
	if err != nil {
		return nil, fmt.Errorf("local: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, httpError(resp.StatusCode, string(respBody), resp.Header)
	}
	return resp.Body, nil
}
