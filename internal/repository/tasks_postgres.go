package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTaskStore mirrors jobs into the `task` table. Each write runs on
// its own acquired pool connection.
type PostgresTaskStore struct {
	pool *pgxpool.Pool
}

func NewPostgresTaskStore(ctx context.Context, databaseURL string) (*PostgresTaskStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresTaskStore{pool: pool}, nil
}

func (s *PostgresTaskStore) Close() {
	s.pool.Close()
}

func (s *PostgresTaskStore) Get(ctx context.Context, ref string) (*TaskRecord, error) {
	var (
		task         TaskRecord
		errorMessage *string
		resultData   []byte
		updatedAt    *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id::text, status, error_message, result_data, updated_at
		FROM task
		WHERE id::text = $1
	`, ref).Scan(&task.Ref, &task.Status, &errorMessage, &resultData, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("query task: %w", err)
	}

	if errorMessage != nil {
		task.ErrorMessage = *errorMessage
	}
	task.ResultData = resultData
	if updatedAt != nil {
		task.UpdatedAt = *updatedAt
	}
	return &task, nil
}

func (s *PostgresTaskStore) Update(ctx context.Context, ref string, update TaskUpdate) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire pg connection: %w", err)
	}
	defer conn.Release()

	var resultData any
	if len(update.ResultData) > 0 {
		resultData = string(update.ResultData)
	}

	command, err := conn.Exec(ctx, `
		UPDATE task
		SET status = $2,
			error_message = COALESCE(NULLIF($3, ''), error_message),
			result_data = COALESCE($4::jsonb, result_data),
			updated_at = $5
		WHERE id::text = $1
	`, ref, update.Status, update.ErrorMessage, resultData, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}
