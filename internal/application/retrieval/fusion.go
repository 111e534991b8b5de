package retrieval

import (
	"math"
	"sort"

	"recall-api/internal/domain/entity"
)

// Weights 融合与重排权重
type Weights struct {
	Dense            float64
	Lexical          float64
	LexicalRankScale float64

	RerankFusion float64
	RerankMaxSim float64
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	return Weights{
		Dense:            0.5,
		Lexical:          0.25,
		LexicalRankScale: 10,
		RerankFusion:     0.6,
		RerankMaxSim:     0.4,
	}
}

// Fuse 融合分 = Dense*dense + Lexical*min(rank/scale, 1)，下限 0；缺失的信号记 0
func (w Weights) Fuse(dense, lexicalRank float64) float64 {
	lex := 0.0
	if lexicalRank > 0 && w.LexicalRankScale > 0 {
		lex = math.Min(lexicalRank/w.LexicalRankScale, 1)
	}
	score := w.Dense*dense + w.Lexical*lex
	if score < 0 {
		return 0
	}
	return roundScore(score)
}

// Blend 重排分 = RerankFusion*fusion + RerankMaxSim*maxsim
func (w Weights) Blend(fusion, maxSim float64) float64 {
	return roundScore(w.RerankFusion*fusion + w.RerankMaxSim*maxSim)
}

// SimilarityScore 向量库返回的 float32 相似度按其有效精度取整
func SimilarityScore(s float32) float64 {
	return math.Round(float64(s)*1e6) / 1e6
}

// roundScore 分数统一到 1e-9 网格，浮点误差不影响并列判断
func roundScore(f float64) float64 {
	return math.Round(f*1e9) / 1e9
}

// candidate 一阶段候选，order 为进入候选集的顺序
type candidate struct {
	result *entity.RetrievalResult
	order  int
}

// rank 按最终分数稳定降序
func rank(cands []*candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].result.Score != cands[j].result.Score {
			return cands[i].result.Score > cands[j].result.Score
		}
		return cands[i].order < cands[j].order
	})
}
