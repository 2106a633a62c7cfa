package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fixflow/backend/internal/models"
)

// ExtractorAdapter targets a self-hosted extraction service speaking plain
// JSON over HTTP. Kept for deployments where the model runs in-cluster.
type ExtractorAdapter struct {
	BaseURL string
	Client  *http.Client
}

type extractRequestBody struct {
	Text  string         `json:"text"`
	Known models.SlotSet `json:"known"`
}

type similarityRequestBody struct {
	Draft      models.CaseDraft `json:"draft"`
	Candidates []models.Case    `json:"candidates"`
}

type replyRequestBody struct {
	Action string `json:"action"`
	Detail string `json:"detail"`
}

func (h ExtractorAdapter) ExtractSlots(ctx context.Context, req ExtractionRequest) (Extraction, error) {
	var out Extraction
	err := h.post(ctx, "/extract", extractRequestBody{Text: req.Text, Known: req.Known}, &out)
	return out, err
}

func (h ExtractorAdapter) ScoreSimilarity(ctx context.Context, req SimilarityRequest) ([]SimilarityScore, error) {
	var out []SimilarityScore
	err := h.post(ctx, "/similarity", similarityRequestBody{Draft: req.Draft, Candidates: req.Candidates}, &out)
	return out, err
}

func (h ExtractorAdapter) ComposeReply(ctx context.Context, req ReplyRequest) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := h.post(ctx, "/reply", replyRequestBody{Action: req.Action, Detail: req.Detail}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (h ExtractorAdapter) post(ctx context.Context, path string, payload any, out any) error {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 18 * time.Second}
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+path, bytes.NewBuffer(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return RateLimitError{}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New("extractor service error")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrUnparsable
	}
	return nil
}
