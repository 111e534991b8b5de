package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recall-api/internal/domain/entity"
)

const sessionKeyPrefix = "session:intent:"

// SessionStore 会话意图存储
type SessionStore struct {
	client *Client
}

func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Load 不存在时返回 nil, nil
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*entity.ConversationIntent, error) {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.Load",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	raw, err := s.client.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var intent entity.ConversationIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &intent, nil
}

func (s *SessionStore) Save(ctx context.Context, intent *entity.ConversationIntent, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.Save",
		trace.WithAttributes(attribute.String("session.id", intent.SessionID)))
	defer span.End()

	raw, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.rdb.Set(ctx, sessionKey(intent.SessionID), raw, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.Delete",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := s.client.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
