package repo

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container skipped in -short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dagon"),
		postgres.WithUsername("dagon"),
		postgres.WithPassword("dagon"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestCheckpointRepo(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	r := NewCheckpointRepo(pool)
	require.NoError(t, r.EnsureSchema(ctx))
	require.NoError(t, r.EnsureSchema(ctx), "schema creation is idempotent")

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, r.Save(ctx, "wf", "cp", checkpoint.Record{
			Status:     domain.TaskStatusFinished,
			WorkingDir: "/scratch/cp-checkpoint",
		}))
		require.NoError(t, r.Save(ctx, "other", "cp", checkpoint.Record{
			Status:     domain.TaskStatusFinished,
			WorkingDir: "/scratch/other",
		}))

		got, err := r.Load(ctx, "wf")
		require.NoError(t, err)
		assert.Equal(t, map[string]checkpoint.Record{
			"wf.cp": {Status: domain.TaskStatusFinished, WorkingDir: "/scratch/cp-checkpoint"},
		}, got)
	})

	t.Run("Save overwrites", func(t *testing.T) {
		require.NoError(t, r.Save(ctx, "wf", "cp", checkpoint.Record{
			Status:     domain.TaskStatusFailed,
			Code:       3,
			WorkingDir: "/scratch/cp",
		}))

		got, err := r.Load(ctx, "wf")
		require.NoError(t, err)
		assert.Equal(t, 3, got["wf.cp"].Code)
		assert.False(t, got["wf.cp"].Finished())
	})

	t.Run("Invalid record", func(t *testing.T) {
		assert.ErrorIs(t, r.Save(ctx, "", "cp", checkpoint.Record{Status: domain.TaskStatusFinished}), ErrInvalidRecord)
		assert.ErrorIs(t, r.Save(ctx, "wf", "cp", checkpoint.Record{Status: "DONE"}), ErrInvalidRecord)
	})

	t.Run("Delete", func(t *testing.T) {
		n, err := r.Delete(ctx, "wf")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := r.Load(ctx, "wf")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Manager mirror", func(t *testing.T) {
		m := checkpoint.NewManager(checkpoint.Config{Dir: t.TempDir(), Mirror: r})
		store := checkpoint.NewStore()
		rec := checkpoint.Record{Status: domain.TaskStatusFinished, WorkingDir: "/scratch/gen-checkpoint"}

		_, err := m.Commit(ctx, store, "mirrored", "gen", rec)
		require.NoError(t, err)

		got, err := m.LoadMirror(ctx, "mirrored")
		require.NoError(t, err)
		assert.Equal(t, rec, got["mirrored.gen"])
	})
}
