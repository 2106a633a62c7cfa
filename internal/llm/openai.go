package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to any OpenAI-compatible chat-completion endpoint.
// Every call is bounded by Timeout (clamped to the caller's deadline when
// that is sooner) so a slow model surfaces as a typed failure, never a hang.
type OpenAIAdapter struct {
	Client    *openai.Client
	Model     string
	MaxTokens int
	Timeout   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value string
	exp   time.Time
}

const replyCacheTTL = 60 * time.Second

func NewOpenAIAdapter(apiKey, baseURL, model string, timeout time.Duration) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIAdapter{
		Client:  openai.NewClientWithConfig(cfg),
		Model:   model,
		Timeout: timeout,
		cache:   map[string]cacheEntry{},
	}
}

func (a *OpenAIAdapter) ExtractSlots(ctx context.Context, req ExtractionRequest) (Extraction, error) {
	raw, err := a.complete(ctx, extractionPrompt(req))
	if err != nil {
		return Extraction{}, err
	}
	var ext Extraction
	if err := json.Unmarshal(extractJSON(raw), &ext); err != nil {
		return Extraction{}, ErrUnparsable
	}
	if ext.ModelVersion == "" {
		ext.ModelVersion = a.Model
	}
	return ext, nil
}

func (a *OpenAIAdapter) ScoreSimilarity(ctx context.Context, req SimilarityRequest) ([]SimilarityScore, error) {
	raw, err := a.complete(ctx, similarityPrompt(req))
	if err != nil {
		return nil, err
	}
	var scores []SimilarityScore
	if err := json.Unmarshal(extractJSON(raw), &scores); err != nil {
		return nil, ErrUnparsable
	}
	return scores, nil
}

func (a *OpenAIAdapter) ComposeReply(ctx context.Context, req ReplyRequest) (string, error) {
	prompt := replyPrompt(req)
	if v, ok := a.cacheGet(prompt); ok {
		return v, nil
	}
	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(raw)
	a.cacheSet(prompt, reply)
	return reply, nil
}

func (a *OpenAIAdapter) complete(ctx context.Context, prompt string) (string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 18 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.Client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model:     a.Model,
		MaxTokens: a.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", RateLimitError{}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrUnparsable
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) cacheGet(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.cache[key]; ok {
		if time.Now().Before(e.exp) {
			return e.value, true
		}
		delete(a.cache, key)
	}
	return "", false
}

func (a *OpenAIAdapter) cacheSet(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		a.cache = map[string]cacheEntry{}
	}
	a.cache[key] = cacheEntry{value: value, exp: time.Now().Add(replyCacheTTL)}
}

// extractJSON trims markdown fences and leading prose so a chatty model
// reply still parses as the declared shape.
func extractJSON(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.IndexAny(s, "{["); start > 0 {
		s = s[start:]
	}
	return []byte(s)
}
