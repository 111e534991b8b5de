package reasoning

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"recall-api/internal/domain/entity"
)

const (
	sharedSpeakerConfidence = 0.9
	minSharedConcepts       = 2
)

var (
	solutionSeekingWords = map[string]struct{}{
		"how": {}, "solve": {}, "help": {}, "helps": {},
		"kann": {}, "könnte": {}, "nutzen": {}, "einsetzen": {}, "lösen": {}, "helfen": {},
	}
	problemVocabulary  = []string{"problem", "need", "challenge", "anforderung", "bedarf"}
	solutionVocabulary = []string{"solution", "lösung", "approach", "tool"}

	techKeywords = []string{
		"api", "integration", "automation", "tool", "server", "system",
		"platform", "framework", "service", "protocol", "workflow",
	}
	// 互补技术组合
	techPairs = [][2]string{{"api", "integration"}, {"server", "automation"}}
)

// profile 参与推理的文档及其预加载数据
type profile struct {
	ref      entity.DocumentRef
	speakers []string
	chunks   []*entity.Chunk
	concepts []string
	techs    map[string]struct{}
}

func newProfile(ref entity.DocumentRef, speakers []string, chunks []*entity.Chunk) *profile {
	p := &profile{ref: ref, chunks: chunks, techs: make(map[string]struct{})}
	seen := make(map[string]struct{})
	for _, s := range speakers {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		p.speakers = append(p.speakers, s)
	}
	sort.Strings(p.speakers)
	p.concepts = documentConcepts(chunks)
	for _, c := range chunks {
		for _, w := range wordPattern.FindAllString(strings.ToLower(c.Content), -1) {
			for _, k := range techKeywords {
				if strings.HasPrefix(w, k) {
					p.techs[k] = struct{}{}
				}
			}
		}
	}
	return p
}

func (p *profile) mentions(vocabulary []string) bool {
	for _, c := range p.chunks {
		lower := strings.ToLower(c.Content)
		for _, v := range vocabulary {
			if strings.Contains(lower, v) {
				return true
			}
		}
	}
	return false
}

func (p *profile) hasTech(k string) bool {
	_, ok := p.techs[k]
	return ok
}

// peopleAcrossDocuments 同一说话人出现在多个文档中
func peopleAcrossDocuments(profiles []*profile) []string {
	var order []string
	titles := make(map[string][]string)
	for _, p := range profiles {
		for _, s := range p.speakers {
			if _, ok := titles[s]; !ok {
				order = append(order, s)
			}
			titles[s] = append(titles[s], p.ref.Title)
		}
	}
	var out []string
	for _, s := range order {
		if len(titles[s]) > 1 {
			out = append(out, fmt.Sprintf("%s appears in multiple contexts: %s", s, strings.Join(firstN(titles[s], 3), ", ")))
		}
	}
	return out
}

// problemSolutionMatches 仅当查询在寻求解决办法时，把主文档中的需求与关联文档中的方案配对
func problemSolutionMatches(query string, primary, related []*profile) []string {
	if !seeksSolution(query) {
		return nil
	}
	var out []string
	for _, p := range primary {
		if !p.mentions(problemVocabulary) {
			continue
		}
		for _, r := range related {
			if r.ref.ID == p.ref.ID || !r.mentions(solutionVocabulary) {
				continue
			}
			out = append(out, fmt.Sprintf("Potential connection: %s might address needs from %s", r.ref.Title, p.ref.Title))
		}
	}
	return out
}

func seeksSolution(query string) bool {
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if _, ok := solutionSeekingWords[w]; ok {
			return true
		}
	}
	return false
}

// temporalRecurrence 按创建时间排序，相邻文档共享概念时视为话题延续
func temporalRecurrence(profiles []*profile) []string {
	dated := make([]*profile, 0, len(profiles))
	for _, p := range profiles {
		if !p.ref.CreatedAt.IsZero() {
			dated = append(dated, p)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].ref.CreatedAt.Before(dated[j].ref.CreatedAt) })

	var out []string
	for i := 0; i+1 < len(dated); i++ {
		a, b := dated[i], dated[i+1]
		common := intersect(a.concepts, b.concepts)
		if len(common) == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("Topic evolution: '%s' discussed in both %s and later in %s",
			strings.Join(firstN(common, 2), ", "), a.ref.Title, b.ref.Title))
	}
	return out
}

// technologySynergies 两个文档分别覆盖互补技术
func technologySynergies(profiles []*profile) []string {
	var out []string
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			a, b := profiles[i], profiles[j]
			if complementary(a, b) || complementary(b, a) {
				out = append(out, fmt.Sprintf("Integration opportunity: %s and %s could work together", a.ref.Title, b.ref.Title))
			}
		}
	}
	return out
}

func complementary(a, b *profile) bool {
	for _, pair := range techPairs {
		if a.hasTech(pair[0]) && b.hasTech(pair[1]) {
			return true
		}
	}
	return false
}

// relate 推导两个文档之间的关系：共同说话人、至少两个共同概念
func relate(a, b *profile) []entity.DocumentRelationship {
	var out []entity.DocumentRelationship
	if shared := intersect(a.speakers, b.speakers); len(shared) > 0 {
		out = append(out, entity.DocumentRelationship{
			SourceID:   a.ref.ID,
			TargetID:   b.ref.ID,
			Kind:       entity.RelationSharedSpeaker,
			Confidence: sharedSpeakerConfidence,
			Evidence:   "Both involve: " + strings.Join(shared, ", "),
		})
	}
	if shared := intersect(a.concepts, b.concepts); len(shared) >= minSharedConcepts {
		n := math.Min(float64(len(shared)), 3)
		out = append(out, entity.DocumentRelationship{
			SourceID:   a.ref.ID,
			TargetID:   b.ref.ID,
			Kind:       entity.RelationTopicalOverlap,
			Confidence: math.Min(0.7+0.1*n, 1),
			Evidence:   "Shared topics: " + strings.Join(firstN(shared, 3), ", "),
		})
	}
	return out
}

// confidence 0.5 + min(0.1·洞察数, 0.3) + min(0.05·关联文档数, 0.2)，上限 1
func confidence(insights, related int) float64 {
	score := 0.5 + math.Min(0.1*float64(insights), 0.3) + math.Min(0.05*float64(related), 0.2)
	return math.Min(score, 1)
}
