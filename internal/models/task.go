package models

// TaskCategory 定义了测试任务所属的领域类别。
type TaskCategory string

const (
	CategoryCoding    TaskCategory = "coding"    // 编程类任务
	CategoryReasoning TaskCategory = "reasoning" // 推理类任务
	CategoryGeneral   TaskCategory = "general"   // 通用类任务
)

// EvaluationMethodKind 是评估方法的标签类型。
// 每种方法携带自己的参数载荷，评分引擎通过穷举 switch 进行分发，
// 新增方法是一次封闭的、编译期可检查的变更。
type EvaluationMethodKind string

const (
	MethodExactMatch         EvaluationMethodKind = "exact_match"         // 精确匹配
	MethodSemanticSimilarity EvaluationMethodKind = "semantic_similarity" // 语义相似度
	MethodPatternMatch       EvaluationMethodKind = "pattern_match"       // 正则/模式匹配
	MethodCustomFunction     EvaluationMethodKind = "custom_function"     // 自定义评估函数
	MethodLLMJudge           EvaluationMethodKind = "llm_judge"           // LLM 评估
	MethodHumanReview        EvaluationMethodKind = "human_review"        // 人工评审
)

// ExactMatchParams 是精确匹配方法的参数。
type ExactMatchParams struct {
	CaseSensitive bool `json:"caseSensitive"` // 是否区分大小写
}

// SemanticSimilarityParams 是语义相似度方法的参数。
type SemanticSimilarityParams struct {
	Threshold float64 `json:"threshold,omitempty"` // 可选的最低相似度阈值
}

// PatternMatchParams 是模式匹配方法的参数。
type PatternMatchParams struct {
	Patterns []string `json:"patterns"` // 期望命中的正则表达式列表
}

// CustomFunctionParams 是自定义函数方法的参数。
type CustomFunctionParams struct {
	FunctionName string                 `json:"functionName"` // 注册的评估函数名称
	Arguments    map[string]interface{} `json:"arguments,omitempty"`
}

// LLMJudgeParams 是 LLM 评估方法的参数。
type LLMJudgeParams struct {
	PromptTemplate string `json:"promptTemplate,omitempty"` // 评估提示词模板
}

// EvaluationMethod 是评估方法的带标签变体。
// Kind 指明生效的方法，对应的参数字段有且仅有一个非空。
type EvaluationMethod struct {
	Kind               EvaluationMethodKind      `json:"kind"`
	ExactMatch         *ExactMatchParams         `json:"exactMatch,omitempty"`
	SemanticSimilarity *SemanticSimilarityParams `json:"semanticSimilarity,omitempty"`
	PatternMatch       *PatternMatchParams       `json:"patternMatch,omitempty"`
	CustomFunction     *CustomFunctionParams     `json:"customFunction,omitempty"`
	LLMJudge           *LLMJudgeParams           `json:"llmJudge,omitempty"`
}

// EvaluationCriterion 是任务内一个命名的、带权重的评估维度。
type EvaluationCriterion struct {
	ID       string           `json:"id"`       // 维度标识
	Name     string           `json:"name"`     // 维度名称，例如 "correctness"
	Method   EvaluationMethod `json:"method"`   // 该维度使用的评估方法
	Weight   float64          `json:"weight"`   // 权重
	MaxScore float64          `json:"maxScore"` // 满分
}

// Task 是一个不可变的工作单元，由题库服务拥有，本引擎只按 ID 读取。
type Task struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Category       TaskCategory          `json:"category"`
	Prompt         string                `json:"prompt"`         // 提示词/上下文内容
	ExpectedOutput string                `json:"expectedOutput"` // 期望输出描述
	Criteria       []EvaluationCriterion `json:"criteria"`       // 评估维度列表，可以为空
}
