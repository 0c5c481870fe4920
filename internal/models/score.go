package models

import (
	"math"
	"time"
)

// CriterionScore 是单个评估维度的得分明细。
type CriterionScore struct {
	CriterionID string  `json:"criterionID"`
	Score       float64 `json:"score"`    // 原始得分
	MaxScore    float64 `json:"maxScore"` // 该维度满分
	Weight      float64 `json:"weight"`
	Feedback    string  `json:"feedback,omitempty"`   // 文字反馈
	Evidence    string  `json:"evidence,omitempty"`   // 支撑证据
	Confidence  float64 `json:"confidence"`           // 置信度 [0,1]
}

// ScoreFeedback 是对整体得分的结构化反馈。
type ScoreFeedback struct {
	Strengths   []string `json:"strengths,omitempty"`   // 得分 >=80% 的维度
	Suggestions []string `json:"suggestions,omitempty"` // 得分 60%-80% 的维度
	Weaknesses  []string `json:"weaknesses,omitempty"`  // 得分 <60% 的维度
	Explanation string   `json:"explanation,omitempty"`
}

// ExecutionScore 是对一条已完成执行结果的评估，与执行结果一一对应。
// 评分记录只追加不修改；如需重评，应以更高的 Version 写入新记录。
type ExecutionScore struct {
	ID          string           `json:"id"`
	ExecutionID string           `json:"executionID"`
	TaskID      string           `json:"taskID"`
	Version     int              `json:"version"`

	OverallScore float64          `json:"overallScore"` // [0,100]，按权重归一化
	Confidence   float64          `json:"confidence"`   // 各维度置信度的算术平均
	Criteria     []CriterionScore `json:"criteria"`
	Feedback     ScoreFeedback    `json:"feedback"`
	ScoredAt     time.Time        `json:"scoredAt"`
}

// WeightedOverall 按不变量 overall = Σ(score_i × weight_i) / Σ(weight_i)
// 计算加权总分，得分按满分折算为百分制后再加权。
func WeightedOverall(criteria []CriterionScore) float64 {
	var weightedSum, weightSum float64
	for _, c := range criteria {
		if c.MaxScore <= 0 {
			continue
		}
		pct := c.Score / c.MaxScore * 100
		weightedSum += pct * c.Weight
		weightSum += c.Weight
	}
	if weightSum == 0 {
		return 0
	}
	return math.Round(weightedSum / weightSum)
}

// MeanConfidence 计算各维度置信度的无权算术平均。
func MeanConfidence(criteria []CriterionScore) float64 {
	if len(criteria) == 0 {
		return 0
	}
	var sum float64
	for _, c := range criteria {
		sum += c.Confidence
	}
	return sum / float64(len(criteria))
}
