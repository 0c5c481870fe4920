package scoring

import (
	"fmt"

	"github.com/meywd/benchforge/internal/models"
)

// Percentage bands for feedback synthesis: criteria at or above the upper
// band contribute strengths, the middle band suggestions, and everything
// below weaknesses.
const (
	strengthBand   = 0.8
	suggestionBand = 0.6
)

// synthesizeFeedback sorts criterion outcomes into strengths, suggestions,
// and weaknesses with an explanatory string keyed to the percentage band.
func synthesizeFeedback(criteria []models.EvaluationCriterion, scores []models.CriterionScore) models.ScoreFeedback {
	names := make(map[string]string, len(criteria))
	for _, c := range criteria {
		names[c.ID] = c.Name
	}

	var fb models.ScoreFeedback
	for _, s := range scores {
		if s.MaxScore <= 0 {
			continue
		}
		name := names[s.CriterionID]
		if name == "" {
			name = s.CriterionID
		}
		pct := s.Score / s.MaxScore
		switch {
		case pct >= strengthBand:
			fb.Strengths = append(fb.Strengths, fmt.Sprintf("%s: strong result (%.0f%% of max score)", name, pct*100))
		case pct >= suggestionBand:
			fb.Suggestions = append(fb.Suggestions, fmt.Sprintf("%s: acceptable but improvable (%.0f%% of max score)", name, pct*100))
		default:
			fb.Weaknesses = append(fb.Weaknesses, fmt.Sprintf("%s: needs attention (%.0f%% of max score)", name, pct*100))
		}
	}

	fb.Explanation = fmt.Sprintf("%d strength(s), %d suggestion(s), %d weakness(es) across %d criteria",
		len(fb.Strengths), len(fb.Suggestions), len(fb.Weaknesses), len(scores))
	return fb
}
