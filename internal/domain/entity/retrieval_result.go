package entity

import "time"

// ScoreBreakdown 各阶段得分
type ScoreBreakdown struct {
	Dense    float64 `json:"dense"`
	Lexical  float64 `json:"lexical"`
	Fusion   float64 `json:"fusion"`
	MaxSim   float64 `json:"maxsim,omitempty"`
	Reranked bool    `json:"reranked"`
}

// RetrievalResult 检索命中的片段及其文档信息
type RetrievalResult struct {
	Chunk         *Chunk         `json:"chunk"`
	DocumentTitle string         `json:"document_title"`
	SourceKind    SourceKind     `json:"source_kind"`
	DocumentDate  time.Time      `json:"document_date"`
	Score         float64        `json:"score"`
	Scores        ScoreBreakdown `json:"scores"`
	// Prev / Next 相邻细节片段，仅用于展示
	Prev *Chunk `json:"prev,omitempty"`
	Next *Chunk `json:"next,omitempty"`
}

// DocumentID 返回所属文档 ID
func (r *RetrievalResult) DocumentID() string {
	if r == nil || r.Chunk == nil {
		return ""
	}
	return r.Chunk.DocumentID
}
