package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	appLog "chatcal/internal/log"
	"chatcal/internal/model"
)

// LLM asks an Ollama-compatible text generation endpoint for a plan.
type LLM struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewLLM returns an LLM delegate, or nil when baseURL is empty so callers
// can pass the result straight to NewFallback.
func NewLLM(baseURL, modelName string, client *http.Client) Generator {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	if modelName == "" {
		modelName = "llama3.2"
	}
	if client == nil {
		// Deadlines come from the caller's context.
		client = &http.Client{}
	}
	return &LLM{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client:  client,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (l *LLM) Generate(ctx context.Context, goal, deadline string) (model.Plan, error) {
	body, err := json.Marshal(generateRequest{
		Model:  l.model,
		Prompt: buildPrompt(goal, deadline),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return model.Plan{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return model.Plan{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return model.Plan{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Plan{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(msg))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Plan{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	plan, err := ParsePlanText(out.Response)
	if err != nil {
		appLog.Debug("planner: unusable model reply", "reply", appLog.Truncate(out.Response, 120))
		return model.Plan{}, err
	}
	if plan.Goal == "" {
		plan.Goal = goal
	}
	if plan.Deadline == "" {
		plan.Deadline = deadline
	}
	return plan, nil
}

// ParsePlanText extracts the outermost {...} span of text and decodes it as
// a plan. A plan without milestones is rejected.
func ParsePlanText(text string) (model.Plan, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.Plan{}, fmt.Errorf("%w: no JSON object in reply", ErrUnavailable)
	}

	var raw struct {
		model.Plan
		Milestones *[]model.Milestone `json:"milestones"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return model.Plan{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if raw.Milestones == nil || len(*raw.Milestones) == 0 {
		return model.Plan{}, fmt.Errorf("%w: reply has no milestones", ErrUnavailable)
	}
	plan := raw.Plan
	plan.Milestones = *raw.Milestones
	return plan, nil
}

func buildPrompt(goal, deadline string) string {
	if deadline == "" {
		deadline = "none given"
	}
	var b strings.Builder
	b.WriteString("Break the following goal into dated milestones.\n")
	b.WriteString("Goal: " + goal + "\n")
	b.WriteString("Deadline: " + deadline + "\n")
	b.WriteString("Reply with a single JSON object and nothing else, shaped as:\n")
	b.WriteString(`{"goal": "...", "deadline": "YYYY-MM-DD", "estimated_days": 30, ` +
		`"milestones": [{"title": "...", "due": "YYYY-MM-DD", "steps": ["..."]}], ` +
		`"cadence_suggestions": ["weekly"]}`)
	return b.String()
}
