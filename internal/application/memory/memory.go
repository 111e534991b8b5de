// Package memory 会话记忆：原始问题捕获、实体收集、检索尝试记录与原始问题提醒
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"recall-api/internal/domain/entity"
	"recall-api/pkg/logger"
	"recall-api/pkg/tracer"
)

const (
	defaultTTL              = 24 * time.Hour
	defaultMinQuestionRunes = 20
	defaultReminderAttempts = 2
	defaultReminderOverlap  = 0.3
	reminderFormat          = "\n\n---\nZur Erinnerung an deine ursprüngliche Frage: %s"
)

// Store 会话意图持久化
type Store interface {
	// Load 不存在时返回 nil, nil
	Load(ctx context.Context, sessionID string) (*entity.ConversationIntent, error)
	Save(ctx context.Context, intent *entity.ConversationIntent, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// Options 会话记忆参数
type Options struct {
	TTL                 time.Duration
	MinQuestionRunes    int
	ReminderMinAttempts int
	ReminderMaxOverlap  float64
}

// Memory 会话记忆服务；store 为 nil 时会话只在单次调用内有效
type Memory struct {
	store Store
	locks *sessionLocks
	opts  Options
	now   func() time.Time
}

func New(store Store, opts Options) *Memory {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MinQuestionRunes <= 0 {
		opts.MinQuestionRunes = defaultMinQuestionRunes
	}
	if opts.ReminderMinAttempts <= 0 {
		opts.ReminderMinAttempts = defaultReminderAttempts
	}
	if opts.ReminderMaxOverlap <= 0 {
		opts.ReminderMaxOverlap = defaultReminderOverlap
	}
	return &Memory{store: store, locks: newSessionLocks(), opts: opts, now: time.Now}
}

// Session 一次管线运行独占的会话，必须调用 Close
type Session struct {
	Intent *entity.ConversationIntent

	mem    *Memory
	unlock func()
}

// Open 锁定并加载会话，再用本轮消息更新原始问题与实体。
// 同一会话的并发调用在此排队；存储不可用时退化为临时会话。
func (m *Memory) Open(ctx context.Context, sessionID string, turns []entity.Turn) (*Session, error) {
	ctx, span := tracer.Start(ctx, "memory.Memory.Open")
	defer span.End()

	s := &Session{mem: m, unlock: func() {}}
	if sessionID != "" && m.store != nil {
		unlock, err := m.locks.acquire(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("acquire session %s: %w", sessionID, err)
		}
		s.unlock = unlock

		intent, err := m.store.Load(ctx, sessionID)
		if err != nil {
			logger.Warn(ctx, "session store unavailable, using transient session", "session_id", sessionID, "error", err)
		}
		s.Intent = intent
	}
	if s.Intent == nil {
		s.Intent = entity.NewConversationIntent(sessionID)
	}
	m.capture(s.Intent, turns)
	return s, nil
}

// capture 首个足够长且非问候的用户消息作为原始问题；所有消息的实体取并集
func (m *Memory) capture(intent *entity.ConversationIntent, turns []entity.Turn) {
	if intent.OriginalQuestion == "" {
		for _, t := range turns {
			if t.Role != entity.RoleUser {
				continue
			}
			content := strings.TrimSpace(t.Content)
			if utf8.RuneCountInString(content) > m.opts.MinQuestionRunes && !IsGreeting(content) {
				intent.OriginalQuestion = content
				intent.State = entity.SessionIntentCaptured
				break
			}
		}
	}

	seen := make(map[string]struct{}, len(intent.Entities))
	for _, e := range intent.Entities {
		seen[e] = struct{}{}
	}
	for _, t := range turns {
		for _, e := range ExtractEntities(t.Content) {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			intent.Entities = append(intent.Entities, e)
		}
	}
	intent.UpdatedAt = m.now()
}

// RecordAttempt 记录一次检索尝试，无论是否有结果
func (s *Session) RecordAttempt(query string, strategy entity.Strategy, resultCount int) {
	s.Intent.Attempts = append(s.Intent.Attempts, entity.SearchAttempt{
		Query:       query,
		Strategy:    strategy,
		Found:       resultCount > 0,
		ResultCount: resultCount,
		At:          s.mem.now(),
	})
	if s.Intent.OriginalQuestion != "" {
		s.Intent.State = entity.SessionSearchAttempted
	}
	s.Intent.UpdatedAt = s.mem.now()
}

// ShouldRemind 多次检索后回答偏离原始问题时为 true
func (s *Session) ShouldRemind(answer string) bool {
	if s.Intent.OriginalQuestion == "" {
		return false
	}
	overlap := KeywordOverlap(s.Intent.OriginalQuestion, answer)
	return ShouldRemind(s.Intent.AttemptCount(), overlap, s.mem.opts.ReminderMinAttempts, s.mem.opts.ReminderMaxOverlap)
}

// Reminder 追加到回答末尾的原始问题提醒
func (s *Session) Reminder() string {
	if s.Intent.OriginalQuestion == "" {
		return ""
	}
	return fmt.Sprintf(reminderFormat, s.Intent.OriginalQuestion)
}

// AddEntityAlias 登记实体别名（小写保存）
func (s *Session) AddEntityAlias(name string, aliases []string) {
	if s.Intent.EntityAliases == nil {
		s.Intent.EntityAliases = make(map[string][]string)
	}
	lowered := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			lowered = append(lowered, a)
		}
	}
	s.Intent.EntityAliases[strings.ToLower(name)] = lowered
}

// ResolveEntity 依次尝试直接命中、别名命中、包含关系；都不命中时原样返回
func (s *Session) ResolveEntity(mention string) string {
	return resolveEntity(s.Intent.EntityAliases, mention)
}

// Close 持久化会话并释放锁；answered 为 true 时标记为已回答
func (s *Session) Close(ctx context.Context, answered bool) error {
	defer s.unlock()

	if answered && s.Intent.OriginalQuestion != "" {
		s.Intent.State = entity.SessionAnswered
	}
	if s.Intent.SessionID == "" || s.mem.store == nil {
		return nil
	}
	if err := s.mem.store.Save(context.WithoutCancel(ctx), s.Intent, s.mem.opts.TTL); err != nil {
		return fmt.Errorf("save session %s: %w", s.Intent.SessionID, err)
	}
	return nil
}

// Reset 删除会话
func (m *Memory) Reset(ctx context.Context, sessionID string) error {
	if m.store == nil || sessionID == "" {
		return nil
	}
	return m.store.Delete(ctx, sessionID)
}

func resolveEntity(aliases map[string][]string, mention string) string {
	lower := strings.ToLower(strings.TrimSpace(mention))
	if lower == "" {
		return mention
	}
	if _, ok := aliases[lower]; ok {
		return mention
	}
	names := sortedNames(aliases)
	for _, name := range names {
		for _, a := range aliases[name] {
			if a == lower {
				return name
			}
		}
	}
	for _, name := range names {
		for _, term := range append([]string{name}, aliases[name]...) {
			if strings.Contains(term, lower) || strings.Contains(lower, term) {
				return name
			}
		}
	}
	return mention
}

func sortedNames(aliases map[string][]string) []string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
