package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Models used on the inference API.
const (
	GenerationModel     = "gpt2"
	ClassificationModel = "ProsusAI/finbert"
)

// Client is the text inference backend.
type Client interface {
	// Generate continues prompt; the result usually starts with the prompt itself.
	Generate(ctx context.Context, prompt string, maxLength int) (string, error)
	// Classify returns the confidence of the top label for text.
	Classify(ctx context.Context, text string) (float64, error)
}

// NewClient returns a Hugging Face client, or the offline generator when apiKey is empty.
func NewClient(apiKey, baseURL string) Client {
	if strings.TrimSpace(apiKey) == "" {
		return Offline{}
	}
	return &HuggingFace{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// HuggingFace calls the hosted inference API.
type HuggingFace struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (h *HuggingFace) Generate(ctx context.Context, prompt string, maxLength int) (string, error) {
	var out []struct {
		GeneratedText string `json:"generated_text"`
	}
	err := h.call(ctx, GenerationModel, inferenceRequest{
		Inputs:     prompt,
		Parameters: map[string]any{"max_length": maxLength, "num_return_sequences": 1},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("inference: empty generation response")
	}
	return out[0].GeneratedText, nil
}

type label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (h *HuggingFace) Classify(ctx context.Context, text string) (float64, error) {
	var raw json.RawMessage
	if err := h.call(ctx, ClassificationModel, inferenceRequest{Inputs: text}, &raw); err != nil {
		return 0, err
	}
	// the API answers either [[{label, score}]] or [{label, score}]
	var nested [][]label
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return topScore(nested[0]), nil
	}
	var flat []label
	if err := json.Unmarshal(raw, &flat); err != nil || len(flat) == 0 {
		return 0, fmt.Errorf("inference: unexpected classification response")
	}
	return topScore(flat), nil
}

func topScore(labels []label) float64 {
	best := 0.0
	for _, l := range labels {
		if l.Score > best {
			best = l.Score
		}
	}
	return best
}

func (h *HuggingFace) call(ctx context.Context, model string, body inferenceRequest, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/models/"+model, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("inference %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference %s: status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inference %s: decode response: %w", model, err)
	}
	return nil
}

// Offline stands in for the inference API when no key is configured.
// Expense prompts are echoed; anything else gets general budgeting tips.
type Offline struct{}

const offlineTips = "Track every expense for a week to see where your money goes. " +
	"Set a weekly limit for food and entertainment. " +
	"Put part of your allowance into savings as soon as you receive it. " +
	"Compare prices and look for student discounts before buying."

func (Offline) Generate(_ context.Context, prompt string, _ int) (string, error) {
	if strings.HasPrefix(prompt, expensePrompt) {
		return prompt, nil
	}
	return offlineTips, nil
}

func (Offline) Classify(context.Context, string) (float64, error) {
	return 0.5, nil
}
