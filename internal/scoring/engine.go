package scoring

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meywd/benchforge/internal/models"
	"github.com/meywd/benchforge/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// llmConfidenceCap bounds the confidence an LLM judge verdict may
// contribute; its self-reported confidence is treated as best-effort.
const llmConfidenceCap = 0.7

// Engine evaluates completed execution results against task criteria.
// A single criterion failing never aborts the remaining criteria: it is
// recorded as a zero-score, low-confidence contribution with an
// explanatory feedback string.
type Engine struct {
	similarity SimilarityFunc
	custom     CustomFunctionExecutor
	judge      LLMEvaluator
	batchSize  int
	logger     *logger.Logger
}

// New creates a scoring Engine. Delegates may be nil; criteria using an
// absent delegate fail individually with an explanatory feedback string.
func New(similarity SimilarityFunc, custom CustomFunctionExecutor, judge LLMEvaluator, batchSize int, log *logger.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 8
	}
	return &Engine{
		similarity: similarity,
		custom:     custom,
		judge:      judge,
		batchSize:  batchSize,
		logger:     log,
	}
}

// Score evaluates one completed execution result against its task's
// criteria. Only a completed result may be scored.
func (e *Engine) Score(ctx context.Context, result *models.ExecutionResult, task *models.Task) (*models.ExecutionScore, error) {
	if result.Status != models.ExecutionStatusCompleted {
		return nil, fmt.Errorf("cannot score execution %s with status %s", result.ID, result.Status)
	}
	if result.Response == nil {
		return nil, fmt.Errorf("execution %s has no response", result.ID)
	}

	criteria := task.Criteria
	if len(criteria) == 0 {
		criteria = DefaultCriteria(task.Category)
	}

	actual := result.Response.Content
	scores := make([]models.CriterionScore, 0, len(criteria))
	for _, criterion := range criteria {
		scores = append(scores, e.scoreCriterion(ctx, criterion, task, actual))
	}

	return &models.ExecutionScore{
		ID:           uuid.NewString(),
		ExecutionID:  result.ID,
		TaskID:       task.ID,
		Version:      1,
		OverallScore: models.WeightedOverall(scores),
		Confidence:   models.MeanConfidence(scores),
		Criteria:     scores,
		Feedback:     synthesizeFeedback(criteria, scores),
		ScoredAt:     time.Now(),
	}, nil
}

// ScoreBatch scores executions in bounded-size parallel batches. An
// execution whose task cannot be found is skipped with a log line; it is
// never fatal to the batch. Results keep no particular order.
func (e *Engine) ScoreBatch(ctx context.Context, executions []*models.ExecutionResult, tasks map[string]*models.Task) []*models.ExecutionScore {
	sem := semaphore.NewWeighted(int64(e.batchSize))
	var (
		mu     sync.Mutex
		scores []*models.ExecutionScore
		wg     sync.WaitGroup
	)

	for _, exec := range executions {
		if exec.Status != models.ExecutionStatusCompleted {
			continue
		}
		task, ok := tasks[exec.TaskID]
		if !ok {
			e.logger.WithPayload(map[string]interface{}{
				"executionID": exec.ID,
				"taskID":      exec.TaskID,
			}).Warn("Skipping execution: task not found")
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(exec *models.ExecutionResult, task *models.Task) {
			defer wg.Done()
			defer sem.Release(1)
			score, err := e.Score(ctx, exec, task)
			if err != nil {
				e.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
					"executionID": exec.ID,
				}).Warn("Scoring failed for execution")
				return
			}
			mu.Lock()
			scores = append(scores, score)
			mu.Unlock()
		}(exec, task)
	}
	wg.Wait()
	return scores
}

// scoreCriterion dispatches to the evaluation method selected for the
// criterion. The switch over method kinds is exhaustive: adding a method
// is a closed, compiler-visible change here.
func (e *Engine) scoreCriterion(ctx context.Context, criterion models.EvaluationCriterion, task *models.Task, actual string) models.CriterionScore {
	base := models.CriterionScore{
		CriterionID: criterion.ID,
		MaxScore:    criterion.MaxScore,
		Weight:      criterion.Weight,
	}

	switch criterion.Method.Kind {
	case models.MethodExactMatch:
		return e.scoreExactMatch(base, criterion, task.ExpectedOutput, actual)
	case models.MethodSemanticSimilarity:
		return e.scoreSimilarity(ctx, base, criterion, task.ExpectedOutput, actual)
	case models.MethodPatternMatch:
		return e.scorePatterns(base, criterion, actual)
	case models.MethodCustomFunction:
		return e.scoreCustom(ctx, base, criterion, task, actual)
	case models.MethodLLMJudge:
		return e.scoreLLM(ctx, base, criterion, task, actual)
	case models.MethodHumanReview:
		// Placeholder awaiting out-of-band completion; never blocks scoring.
		base.Feedback = "awaiting human review"
		return base
	default:
		base.Feedback = fmt.Sprintf("unknown evaluation method %q", criterion.Method.Kind)
		return base
	}
}

func (e *Engine) scoreExactMatch(cs models.CriterionScore, criterion models.EvaluationCriterion, expected, actual string) models.CriterionScore {
	caseSensitive := criterion.Method.ExactMatch != nil && criterion.Method.ExactMatch.CaseSensitive
	a, b := normalize(expected, caseSensitive), normalize(actual, caseSensitive)
	cs.Confidence = 1.0
	if a == b {
		cs.Score = criterion.MaxScore
		cs.Feedback = "output matches the expected value exactly"
	} else {
		cs.Feedback = "output does not match the expected value"
		cs.Evidence = fmt.Sprintf("expected %q, got %q", truncate(a, 120), truncate(b, 120))
	}
	return cs
}

func (e *Engine) scoreSimilarity(ctx context.Context, cs models.CriterionScore, criterion models.EvaluationCriterion, expected, actual string) models.CriterionScore {
	if e.similarity == nil {
		return scoringFailure(cs, "no similarity function configured")
	}
	sim, err := e.similarity(ctx, expected, actual)
	if err != nil {
		return scoringFailure(cs, "similarity evaluation failed: "+err.Error())
	}
	sim = clamp01(sim)
	cs.Score = math.Round(sim * criterion.MaxScore)
	cs.Confidence = 0.9
	cs.Feedback = fmt.Sprintf("semantic similarity %.2f", sim)
	if p := criterion.Method.SemanticSimilarity; p != nil && p.Threshold > 0 && sim < p.Threshold {
		cs.Feedback += fmt.Sprintf(" (below threshold %.2f)", p.Threshold)
	}
	return cs
}

func (e *Engine) scorePatterns(cs models.CriterionScore, criterion models.EvaluationCriterion, actual string) models.CriterionScore {
	params := criterion.Method.PatternMatch
	if params == nil || len(params.Patterns) == 0 {
		return scoringFailure(cs, "pattern match criterion declares no patterns")
	}

	matched := 0
	var missing []string
	for _, pattern := range params.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return scoringFailure(cs, fmt.Sprintf("invalid pattern %q: %v", pattern, err))
		}
		if re.MatchString(actual) {
			matched++
		} else {
			missing = append(missing, pattern)
		}
	}

	ratio := float64(matched) / float64(len(params.Patterns))
	cs.Score = math.Min(math.Round(ratio*criterion.MaxScore), criterion.MaxScore)
	cs.Confidence = 1.0
	cs.Feedback = fmt.Sprintf("matched %d of %d expected patterns", matched, len(params.Patterns))
	if len(missing) > 0 {
		cs.Evidence = "missing patterns: " + strings.Join(missing, ", ")
	}
	return cs
}

func (e *Engine) scoreCustom(ctx context.Context, cs models.CriterionScore, criterion models.EvaluationCriterion, task *models.Task, actual string) models.CriterionScore {
	params := criterion.Method.CustomFunction
	if e.custom == nil || params == nil || params.FunctionName == "" {
		return scoringFailure(cs, "no custom evaluation function available")
	}
	result, err := e.custom.Execute(ctx, params.FunctionName, CustomInput{
		TaskID:         task.ID,
		Prompt:         task.Prompt,
		ExpectedOutput: task.ExpectedOutput,
		ActualOutput:   actual,
		Arguments:      params.Arguments,
	})
	if err != nil {
		return scoringFailure(cs, fmt.Sprintf("custom function %q failed: %v", params.FunctionName, err))
	}
	cs.Score = clamp01(result.Score) * criterion.MaxScore
	cs.Confidence = clamp01(result.Confidence)
	cs.Feedback = result.Feedback
	cs.Evidence = result.Evidence
	return cs
}

func (e *Engine) scoreLLM(ctx context.Context, cs models.CriterionScore, criterion models.EvaluationCriterion, task *models.Task, actual string) models.CriterionScore {
	if e.judge == nil {
		return scoringFailure(cs, "no LLM evaluator configured")
	}
	verdict, err := e.judge.Evaluate(ctx, buildJudgePrompt(criterion, task, actual))
	if err != nil {
		return scoringFailure(cs, "LLM evaluation failed: "+err.Error())
	}
	cs.Score = math.Round(clamp01(verdict.Score) * criterion.MaxScore)
	cs.Confidence = math.Min(clamp01(verdict.Confidence), llmConfidenceCap)
	cs.Feedback = verdict.Feedback
	if cs.Feedback == "" {
		cs.Feedback = verdict.Reasoning
	}
	cs.Evidence = strings.Join(verdict.Evidence, "; ")
	return cs
}

// buildJudgePrompt assembles the structured evaluation prompt for the LLM
// judge, either from the criterion's template or a generic layout.
func buildJudgePrompt(criterion models.EvaluationCriterion, task *models.Task, actual string) string {
	if p := criterion.Method.LLMJudge; p != nil && p.PromptTemplate != "" {
		r := strings.NewReplacer(
			"{{criterion}}", criterion.Name,
			"{{prompt}}", task.Prompt,
			"{{expected}}", task.ExpectedOutput,
			"{{actual}}", actual,
		)
		return r.Replace(p.PromptTemplate)
	}
	var b strings.Builder
	b.WriteString("Evaluate the following response on the criterion \"" + criterion.Name + "\".\n")
	b.WriteString("Task prompt:\n" + task.Prompt + "\n")
	if task.ExpectedOutput != "" {
		b.WriteString("Expected output:\n" + task.ExpectedOutput + "\n")
	}
	b.WriteString("Actual response:\n" + actual + "\n")
	b.WriteString("Reply with a score in [0,1], reasoning, feedback, confidence in [0,1], and supporting evidence.")
	return b.String()
}

// scoringFailure records a criterion-level failure as a zero-score,
// low-confidence contribution.
func scoringFailure(cs models.CriterionScore, reason string) models.CriterionScore {
	cs.Score = 0
	cs.Confidence = 0.1
	cs.Feedback = reason
	return cs
}

func normalize(s string, caseSensitive bool) string {
	s = strings.TrimSpace(s)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
