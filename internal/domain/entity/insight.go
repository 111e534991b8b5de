package entity

// RelationshipKind 文档关系类型
type RelationshipKind string

const (
	RelationSharedSpeaker    RelationshipKind = "shared_speaker"
	RelationTopicalOverlap   RelationshipKind = "topical_overlap"
	RelationProblemSolution  RelationshipKind = "problem_solution"
	RelationTemporalSequence RelationshipKind = "temporal_sequence"
	RelationTechSynergy      RelationshipKind = "technology_synergy"
)

// DocumentRelationship 两个文档之间的派生关系，不持久化
type DocumentRelationship struct {
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Kind       RelationshipKind `json:"kind"`
	Confidence float64          `json:"confidence"`
	Evidence   string           `json:"evidence"`
}

// CrossContextInsight 跨文档推理结果
type CrossContextInsight struct {
	PrimaryDocuments []DocumentRef          `json:"primary_documents"`
	RelatedDocuments []DocumentRef          `json:"related_documents"`
	Insights         []string               `json:"insights"`
	Relationships    []DocumentRelationship `json:"relationships,omitempty"`
	Confidence       float64                `json:"confidence"`
}

// Empty 是否没有任何洞察
func (c *CrossContextInsight) Empty() bool {
	return c == nil || len(c.Insights) == 0
}
