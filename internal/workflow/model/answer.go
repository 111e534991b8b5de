package model

// AnswerMode 生成模式
type AnswerMode string

const (
	// AnswerGrounded 基于检索上下文回答
	AnswerGrounded AnswerMode = "grounded"
	// AnswerKnowledge 不带检索上下文，仅用模型自身知识
	AnswerKnowledge AnswerMode = "knowledge"
)

type AnswerInput struct {
	Mode  AnswerMode
	Model string

	Query        string
	Context      string
	Conversation string
	// Note 知识兜底时的补充说明（首次回答或空上下文提示）
	Note string

	Temperature *float32
	MaxTokens   *int
}

type JudgeInput struct {
	Model string

	Query        string
	Context      string
	Answer       string
	Conversation string
}

type SummaryInput struct {
	Model string

	Title   string
	Content string
}
