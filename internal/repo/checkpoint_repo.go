package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
)

const checkpointSchema = `
	CREATE TABLE IF NOT EXISTS dagon_checkpoints (
		workflow    TEXT        NOT NULL,
		task        TEXT        NOT NULL,
		status      TEXT        NOT NULL,
		code        INTEGER     NOT NULL DEFAULT 0,
		working_dir TEXT        NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (workflow, task)
	)
`

// CheckpointRepo — зеркало записей checkpoint в PostgreSQL.
// Реализует checkpoint.Mirror.
type CheckpointRepo struct {
	pool *pgxpool.Pool
}

var _ checkpoint.Mirror = (*CheckpointRepo)(nil)

// NewCheckpointRepo создаёт новый CheckpointRepo.
func NewCheckpointRepo(pool *pgxpool.Pool) *CheckpointRepo {
	return &CheckpointRepo{pool: pool}
}

// EnsureSchema создаёт таблицу, если её нет.
func (r *CheckpointRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, checkpointSchema); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Save сохраняет или перезаписывает запись задачи.
func (r *CheckpointRepo) Save(ctx context.Context, workflow, task string, rec checkpoint.Record) error {
	if workflow == "" || task == "" {
		return fmt.Errorf("%w: empty workflow or task", ErrInvalidRecord)
	}
	if _, err := domain.ParseTaskStatus(string(rec.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	query := `
		INSERT INTO dagon_checkpoints (workflow, task, status, code, working_dir, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (workflow, task) DO UPDATE
		SET status = EXCLUDED.status,
		    code = EXCLUDED.code,
		    working_dir = EXCLUDED.working_dir,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, workflow, task, string(rec.Status), rec.Code, rec.WorkingDir)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", checkpoint.Key(workflow, task), err)
	}
	return nil
}

// Load возвращает записи workflow с ключами "<workflow>.<task>".
func (r *CheckpointRepo) Load(ctx context.Context, workflow string) (map[string]checkpoint.Record, error) {
	query := `
		SELECT task, status, code, working_dir
		FROM dagon_checkpoints
		WHERE workflow = $1
		ORDER BY task
	`
	rows, err := r.pool.Query(ctx, query, workflow)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints %s: %w", workflow, err)
	}
	defer rows.Close()

	out := make(map[string]checkpoint.Record)
	for rows.Next() {
		var (
			task   string
			status string
			rec    checkpoint.Record
		)
		if err := rows.Scan(&task, &status, &rec.Code, &rec.WorkingDir); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		rec.Status = domain.TaskStatus(status)
		out[checkpoint.Key(workflow, task)] = rec
	}
	return out, rows.Err()
}

// Delete удаляет все записи workflow и возвращает их количество.
func (r *CheckpointRepo) Delete(ctx context.Context, workflow string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dagon_checkpoints WHERE workflow = $1`, workflow)
	if err != nil {
		return 0, fmt.Errorf("delete checkpoints %s: %w", workflow, err)
	}
	return tag.RowsAffected(), nil
}
