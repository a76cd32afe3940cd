package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisTaskConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisTaskStore keeps each task record in a hash at <prefix><ref>.
type RedisTaskStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTaskStore(ctx context.Context, cfg RedisTaskConfig) (*RedisTaskStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisTaskStoreWithClient(client, cfg.KeyPrefix), nil
}

func NewRedisTaskStoreWithClient(client *redis.Client, prefix string) *RedisTaskStore {
	if prefix == "" {
		prefix = "task:"
	}
	return &RedisTaskStore{client: client, prefix: prefix}
}

func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}

// CreateTask registers a pending record for ref.
func (s *RedisTaskStore) CreateTask(ctx context.Context, ref string) error {
	err := s.client.HSet(ctx, s.key(ref),
		"status", "pending",
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *RedisTaskStore) Get(ctx context.Context, ref string) (*TaskRecord, error) {
	values, err := s.client.HGetAll(ctx, s.key(ref)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("read task: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrTaskNotFound
	}

	task := &TaskRecord{
		Ref:          ref,
		Status:       values["status"],
		ErrorMessage: values["error_message"],
	}
	if data := values["result_data"]; data != "" {
		task.ResultData = []byte(data)
	}
	if stamp := values["updated_at"]; stamp != "" {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, stamp); parseErr == nil {
			task.UpdatedAt = parsed
		}
	}
	return task, nil
}

func (s *RedisTaskStore) Update(ctx context.Context, ref string, update TaskUpdate) error {
	key := s.key(ref)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check task: %w", err)
	}
	if exists == 0 {
		return ErrTaskNotFound
	}

	fields := []any{
		"status", update.Status,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	}
	if update.ErrorMessage != "" {
		fields = append(fields, "error_message", update.ErrorMessage)
	}
	if len(update.ResultData) > 0 {
		fields = append(fields, "result_data", string(update.ResultData))
	}
	if err := s.client.HSet(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *RedisTaskStore) key(ref string) string {
	return s.prefix + ref
}
