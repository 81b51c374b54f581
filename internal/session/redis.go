package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/pdfchat/internal/models"
)

const maxAppendAttempts = 5

// RedisStore keeps each session as a JSON value under prefix+id. Sessions
// carry no TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, documentID string) (*models.Session, error) {
	sess := &models.Session{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Messages:   []models.Message{},
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(sess.ID), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session id %s already taken", sess.ID)
	}
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.get(ctx, s.client, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, sessionID string) (*models.Session, error) {
	val, err := c.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var sess models.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	sess.ID = sessionID
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	return &sess, nil
}

// Append uses optimistic locking so concurrent appends to one session are
// never lost.
func (s *RedisStore) Append(ctx context.Context, sessionID string, messages ...models.Message) error {
	key := s.key(sessionID)

	txf := func(tx *redis.Tx) error {
		sess, err := s.get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		sess.Messages = append(sess.Messages, messages...)

		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for range maxAppendAttempts {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("append to session %s: too much contention", sessionID)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
