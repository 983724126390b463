package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meikuraledutech/pipegraph"
)

func newStore(t *testing.T) *PGStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pipegraph"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.CreateSchema(ctx))
	return s
}

func TestPGStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	t.Run("pipes", func(t *testing.T) {
		p := &pipegraph.PipeConfig{WorkspaceID: 3, Stages: []pipegraph.Stage{
			{Connector: "sqlite", Role: pipegraph.RoleSource, Fields: map[string]any{"path": "/a", "strict": true}},
			{Connector: "hello_world", Role: pipegraph.RoleDestination, Fields: map[string]any{"interval_milis": int64(10)}},
		}}

		id, err := s.CreatePipe(ctx, p)
		require.NoError(t, err)
		assert.Positive(t, id)

		got, err := s.GetPipe(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(3), got.WorkspaceID)
		require.Len(t, got.Stages, 2)
		assert.Equal(t, "sqlite_source", got.Stages[0].Name())
		assert.Equal(t, true, got.Stages[0].Fields["strict"])

		p.ID = id
		p.Stages[0].Fields["path"] = "/b"
		require.NoError(t, s.UpdatePipe(ctx, p))

		pipes, err := s.ListPipes(ctx)
		require.NoError(t, err)
		require.Len(t, pipes, 1)
		assert.Equal(t, "/b", pipes[0].Stages[0].Fields["path"])

		require.NoError(t, s.DeletePipe(ctx, id))
		assert.ErrorIs(t, s.DeletePipe(ctx, id), pipegraph.ErrPipeNotFound)
		assert.ErrorIs(t, s.UpdatePipe(ctx, p), pipegraph.ErrPipeNotFound)

		missing, err := s.GetPipe(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("daemons", func(t *testing.T) {
		d := &pipegraph.Daemon{ID: "d1", DisplayName: "laptop", Sources: []pipegraph.Stage{
			{Connector: "file", Role: pipegraph.RoleSource, Fields: map[string]any{"path": "/in"}},
		}}
		require.NoError(t, s.RegisterDaemon(ctx, d))

		d.DisplayName = "desktop"
		require.NoError(t, s.RegisterDaemon(ctx, d))

		daemons, err := s.ListDaemons(ctx)
		require.NoError(t, err)
		require.Len(t, daemons, 1)
		assert.Equal(t, "desktop", daemons[0].DisplayName)
		assert.Equal(t, "file_source", daemons[0].Sources[0].Name())
		assert.Empty(t, daemons[0].Destinations)
	})

	t.Run("drop schema", func(t *testing.T) {
		require.NoError(t, s.DropSchema(ctx))
		_, err := s.ListPipes(ctx)
		assert.Error(t, err)
		require.NoError(t, s.CreateSchema(ctx))
	})
}
