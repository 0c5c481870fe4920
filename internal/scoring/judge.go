package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meywd/benchforge/internal/provider"
)

// ProviderJudge implements LLMEvaluator on top of a provider invoker. The
// judge model is asked for a strict JSON verdict.
type ProviderJudge struct {
	invoker provider.Invoker
	modelID string
}

// NewProviderJudge creates a ProviderJudge that evaluates with the given
// model.
func NewProviderJudge(invoker provider.Invoker, modelID string) *ProviderJudge {
	return &ProviderJudge{invoker: invoker, modelID: modelID}
}

const judgeSystemPrompt = `You are a strict evaluation judge. Respond with a single JSON object:
{"score": <0..1>, "reasoning": "...", "feedback": "...", "confidence": <0..1>, "evidence": ["..."]}
No text outside the JSON object.`

// Evaluate sends the evaluation prompt to the judge model and parses its
// JSON verdict.
func (j *ProviderJudge) Evaluate(ctx context.Context, prompt string) (*LLMEvaluation, error) {
	resp, err := j.invoker.Invoke(ctx, &provider.ChatRequest{
		ModelID: j.modelID,
		Messages: []provider.Message{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge invocation failed: %w", err)
	}

	verdict := struct {
		Score      float64  `json:"score"`
		Reasoning  string   `json:"reasoning"`
		Feedback   string   `json:"feedback"`
		Confidence float64  `json:"confidence"`
		Evidence   []string `json:"evidence"`
	}{}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &verdict); err != nil {
		return nil, fmt.Errorf("judge returned an unparseable verdict: %w", err)
	}

	return &LLMEvaluation{
		Score:      clamp01(verdict.Score),
		Reasoning:  verdict.Reasoning,
		Feedback:   verdict.Feedback,
		Confidence: clamp01(verdict.Confidence),
		Evidence:   verdict.Evidence,
	}, nil
}

// extractJSON trims surrounding prose or code fences around the verdict
// object. Judge models occasionally wrap JSON despite instructions.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
