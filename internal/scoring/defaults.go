package scoring

import "github.com/meywd/benchforge/internal/models"

// DefaultCriteria synthesizes a criteria set for tasks that declare none,
// keyed by the task's category. Weights within each set sum to 1.0.
func DefaultCriteria(category models.TaskCategory) []models.EvaluationCriterion {
	switch category {
	case models.CategoryCoding:
		return []models.EvaluationCriterion{
			{
				ID:       "correctness",
				Name:     "correctness",
				Method:   models.EvaluationMethod{Kind: models.MethodSemanticSimilarity, SemanticSimilarity: &models.SemanticSimilarityParams{}},
				Weight:   0.5,
				MaxScore: 100,
			},
			{
				ID:       "code_quality",
				Name:     "code quality",
				Method:   models.EvaluationMethod{Kind: models.MethodLLMJudge, LLMJudge: &models.LLMJudgeParams{}},
				Weight:   0.3,
				MaxScore: 100,
			},
			{
				ID:       "format_compliance",
				Name:     "format compliance",
				Method:   models.EvaluationMethod{Kind: models.MethodLLMJudge, LLMJudge: &models.LLMJudgeParams{}},
				Weight:   0.2,
				MaxScore: 100,
			},
		}
	case models.CategoryReasoning:
		return []models.EvaluationCriterion{
			{
				ID:       "logical_correctness",
				Name:     "logical correctness",
				Method:   models.EvaluationMethod{Kind: models.MethodSemanticSimilarity, SemanticSimilarity: &models.SemanticSimilarityParams{}},
				Weight:   0.6,
				MaxScore: 100,
			},
			{
				ID:       "clarity",
				Name:     "clarity",
				Method:   models.EvaluationMethod{Kind: models.MethodLLMJudge, LLMJudge: &models.LLMJudgeParams{}},
				Weight:   0.4,
				MaxScore: 100,
			},
		}
	default:
		return []models.EvaluationCriterion{
			{
				ID:       "general",
				Name:     "general",
				Method:   models.EvaluationMethod{Kind: models.MethodSemanticSimilarity, SemanticSimilarity: &models.SemanticSimilarityParams{}},
				Weight:   1.0,
				MaxScore: 100,
			},
		}
	}
}
