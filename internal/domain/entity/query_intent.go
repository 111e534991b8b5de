package entity

import "strconv"

// Strategy 检索策略
type Strategy string

const (
	StrategyDocumentRef Strategy = "document_ref"
	StrategySpeakerRef  Strategy = "speaker_ref"
	StrategyTemporal    Strategy = "temporal"
	StrategyGeneral     Strategy = "general"
)

// IntentSlots 从查询中抽取的结构化槽位
type IntentSlots struct {
	Author  string `json:"author,omitempty"`
	Topic   string `json:"topic,omitempty"`
	DocType string `json:"doc_type,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	// DaysAgo 相对时间窗口（天），nil 表示未识别
	DaysAgo *int `json:"days_ago,omitempty"`
}

// DaysAgoString 以字符串形式返回时间窗口
func (s IntentSlots) DaysAgoString() string {
	if s.DaysAgo == nil {
		return ""
	}
	return strconv.Itoa(*s.DaysAgo)
}

// Empty 槽位是否全部为空
func (s IntentSlots) Empty() bool {
	return s.Author == "" && s.Topic == "" && s.DocType == "" && s.Speaker == "" && s.DaysAgo == nil
}

// QueryIntent 单次查询的意图
type QueryIntent struct {
	Strategy   Strategy    `json:"strategy"`
	Confidence float64     `json:"confidence"`
	Slots      IntentSlots `json:"slots"`
	// Rule 命中的规则名
	Rule string `json:"rule,omitempty"`
}

// GeneralIntent 兜底意图
func GeneralIntent() QueryIntent {
	return QueryIntent{Strategy: StrategyGeneral, Confidence: 0.5, Rule: "general"}
}
