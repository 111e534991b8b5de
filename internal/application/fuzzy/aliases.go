package fuzzy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliasesYAML []byte

type aliasFile struct {
	Groups map[string][]string `yaml:"groups"`
}

// AliasTable 多对多同义词组，双向展开
type AliasTable struct {
	canonical []string
	groups    map[string][]string
}

// DefaultAliases 内置别名表
func DefaultAliases() *AliasTable {
	t, err := ParseAliases(defaultAliasesYAML)
	if err != nil {
		panic(fmt.Sprintf("fuzzy: invalid embedded alias table: %v", err))
	}
	return t
}

// LoadAliases 从 YAML 文件加载别名表，path 为空时使用内置表
func LoadAliases(path string) (*AliasTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultAliases(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases 解析 YAML 别名表
func ParseAliases(data []byte) (*AliasTable, error) {
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}
	t := &AliasTable{groups: make(map[string][]string, len(f.Groups))}
	for key, aliases := range f.Groups {
		k := normalize(key)
		if k == "" {
			continue
		}
		for _, a := range aliases {
			if a = normalize(a); a != "" && a != k {
				t.groups[k] = append(t.groups[k], a)
			}
		}
		t.canonical = append(t.canonical, k)
	}
	sort.Strings(t.canonical)
	return t, nil
}

// Groups 返回规范词及其别名
func (t *AliasTable) Groups() map[string][]string {
	out := make(map[string][]string, len(t.groups))
	for k, v := range t.groups {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Expand 双向展开：规范词 -> 别名，别名 -> 规范词及同组别名
func (t *AliasTable) Expand(terms []string) []string {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = normalize(term)
		if term == "" {
			continue
		}
		set[term] = struct{}{}
		if t == nil {
			continue
		}
		for _, key := range t.canonical {
			aliases := t.groups[key]
			if term == key || contains(aliases, term) {
				set[key] = struct{}{}
				for _, a := range aliases {
					set[a] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(set)
}

// Resolve 将名称与别名表比对：完全命中为 alias(1.0)，互相包含为 semantic(0.8)
func (t *AliasTable) Resolve(name string) []EntityMatch {
	if t == nil {
		return nil
	}
	n := normalize(name)
	if n == "" {
		return nil
	}
	var out []EntityMatch
	for _, key := range t.canonical {
		aliases := t.groups[key]
		switch {
		case n == key || contains(aliases, n):
			out = append(out, EntityMatch{Original: name, Matched: key, Confidence: 1.0, Kind: MatchAlias})
		case anyOverlap(n, aliases):
			out = append(out, EntityMatch{Original: name, Matched: key, Confidence: 0.8, Kind: MatchSemantic})
		}
	}
	return out
}

func anyOverlap(n string, aliases []string) bool {
	for _, a := range aliases {
		if strings.Contains(a, n) || strings.Contains(n, a) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
