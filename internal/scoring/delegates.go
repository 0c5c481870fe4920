package scoring

import "context"

// SimilarityFunc measures how close two texts are, returning a value in
// [0,1]. Supplied by an external collaborator (embedding service or a
// cheaper lexical measure).
type SimilarityFunc func(ctx context.Context, a, b string) (float64, error)

// CustomResult is the outcome of a named custom evaluation routine.
type CustomResult struct {
	Score      float64 // normalized [0,1]
	Feedback   string
	Evidence   string
	Confidence float64
}

// CustomFunctionExecutor runs a named, sandboxed evaluation routine.
// Any error it returns is surfaced as a scoring failure for that criterion
// only; it never aborts the remaining criteria.
type CustomFunctionExecutor interface {
	Execute(ctx context.Context, name string, input CustomInput) (*CustomResult, error)
}

// CustomInput is the evaluation context handed to a custom routine.
type CustomInput struct {
	TaskID         string
	Prompt         string
	ExpectedOutput string
	ActualOutput   string
	Arguments      map[string]interface{}
}

// LLMEvaluation is the structured verdict returned by the LLM evaluator.
type LLMEvaluation struct {
	Score      float64 // normalized [0,1]
	Reasoning  string
	Feedback   string
	Confidence float64
	Evidence   []string
}

// LLMEvaluator judges an output with a structured prompt. Treated as
// best-effort: its confidence is capped so a single judge call cannot
// dominate the aggregate confidence.
type LLMEvaluator interface {
	Evaluate(ctx context.Context, prompt string) (*LLMEvaluation, error)
}
