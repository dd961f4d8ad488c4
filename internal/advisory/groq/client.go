// Package groq implements the advisory Provider against a Groq-hosted
// (OpenAI-compatible) chat-completions endpoint.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/arogyalabs/sahay/internal/advisory"
	"github.com/arogyalabs/sahay/internal/report"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"

	temperature = 0.3
	maxTokens   = 800
)

const promptTemplate = `You are a medical triage assistant for rural India.

Patient Profile:
- Age: %d years
- Gender: %s

Symptoms Reported:
%s

Task: Assess urgency level and provide clear guidance.

Output JSON format:
{
    "urgency_level": "EMERGENCY" | "URGENT" | "ROUTINE" | "SELF_CARE",
    "confidence": 0.0-1.0,
    "reasoning": "Clear explanation in simple language (max 100 words)",
    "red_flags": ["symptom1", "symptom2"],
    "care_pathway": "Which specialist/facility type to visit",
    "follow_up_questions": ["..."]
}

CRITICAL RULES:
- Be conservative: if uncertain, escalate urgency
- Use 6th-grade reading level for explanations
- Include "what to watch for" in reasoning
- Red flags = symptoms requiring immediate attention
- Care pathway = specific facility type (PHC/CHC/Hospital/Specialist)`

// Client talks to the chat-completions API. Per-attempt deadlines come
// from the caller's context, so the underlying http.Client carries no
// timeout of its own.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given API key and model name.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// NewWithBaseURL creates a client against a non-default endpoint, used
// for self-hosted gateways and tests.
func NewWithBaseURL(apiKey, model, baseURL string) *Client {
	c := New(apiKey, model)
	c.baseURL = baseURL
	return c
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Assess sends the triage prompt and decodes the model's JSON reply into
// the raw advisory shape. Schema validation happens in the caller.
func (c *Client) Assess(ctx context.Context, symptoms string, profile report.Profile) (*advisory.RawResult, error) {
	prompt := fmt.Sprintf(promptTemplate, profile.Age, profile.Gender, symptoms)

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisory api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("advisory response has no choices")
	}

	var raw advisory.RawResult
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal assessment: %w", err)
	}
	return &raw, nil
}
