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

// Gemini speaks the REST generateContent dialect. OAuth credentials go in
// the Authorization header; API keys ride the query string. Roles map
// user→user, assistant→model; system messages are hoisted into
// systemInstruction.
type Gemini struct {
	baseURL    string
	model      string
	credential CredentialFunc
	client     *http.Client
}

// NewGemini creates the engine.
func NewGemini(credential CredentialFunc, model string) *Gemini {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		model:      model,
		credential: credential,
		client:     &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *Gemini) Name() string { return "gemini" }

func (e *Gemini) FormatMessages(prompt string, history []Message) []Message {
	return formatMessages(prompt, history)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (e *Gemini) buildBody(prompt string, history []Message) map[string]any {
	var system []geminiPart
	var contents []geminiContent

	for _, m := range e.FormatMessages(prompt, history) {
		switch m.Role {
		case RoleSystem:
			system = append(system, geminiPart{Text: m.Content})
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	body := map[string]any{"contents": contents}
	if len(system) > 0 {
		body["systemInstruction"] = geminiContent{Parts: system}
	}
	return body
}

func (e *Gemini) Generate(ctx context.Context, prompt string, history []Message) string {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", e.baseURL, e.model)

	respBody, err := e.doRequest(ctx, endpoint, e.buildBody(prompt, history))
	if err != nil {
		return errString(err)
	}
	defer respBody.Close()

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return errString(fmt.Errorf("gemini: decode response: %w", err))
	}
	if len(resp.Candidates) == 0 {
		return errString(fmt.Errorf("gemini: no candidates returned"))
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (e *Gemini) Stream(ctx context.Context, prompt string, history []Message, onChunk func(string)) {
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", e.baseURL, e.model)

	respBody, err := e.doRequest(ctx, endpoint, e.buildBody(prompt, history))
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

		var chunk struct {
			Candidates []struct {
				Content struct {
					Parts []geminiPart `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk) != nil {
			continue
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					onChunk(part.Text)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		onChunk(errString(err))
	}
}

func (e *Gemini) IsAvailable(ctx context.Context) bool {
	cred := e.credential(ctx)
	if cred == "" {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := e.baseURL + "/models"
	req, err := http.NewRequestWithContext(probeCtx, "GET", endpoint, nil)
	if err != nil {
		return false
	}
	e.authorize(req, cred)

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (e *Gemini) doRequest(ctx context.Context, endpoint string, body any) (io.ReadCloser, error) {
	cred := e.credential(ctx)
	if cred == "" {
		return nil, fmt.Errorf("gemini: no credential available")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req, cred)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, httpError(resp.StatusCode, string(respBody), resp.Header)
	}
	return resp.Body, nil
}

// authorize attaches the credential: OAuth tokens as a header, API keys as
// a query parameter.
func (e *Gemini) authorize(req *http.Request, cred string) {
	if strings.HasPrefix(cred, "Bearer ") {
		req.Header.Set("Authorization", cred)
		return
	}
	q := req.URL.Query()
	q.Set("key", cred)
	req.URL.RawQuery = q.Encode()
}
