package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/pipegraph"
)

func TestPipeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &pipegraph.PipeConfig{ID: 99, WorkspaceID: 2, Stages: []pipegraph.Stage{
		{Connector: "sqlite", Role: pipegraph.RoleSource, Fields: map[string]any{"path": "/a"}},
		{Connector: "hello_world", Role: pipegraph.RoleDestination},
	}}
	id, err := s.CreatePipe(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "caller id is ignored")

	id2, err := s.CreatePipe(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)

	// Stored stages are isolated from the caller's.
	p.Stages[0].Fields["path"] = "/changed"

	pipes, err := s.ListPipes(ctx)
	require.NoError(t, err)
	require.Len(t, pipes, 2)
	assert.Equal(t, int64(1), pipes[0].ID)
	assert.Equal(t, "/a", pipes[0].Stages[0].Fields["path"])

	upd := pipes[0]
	upd.Stages = upd.Stages[:1]
	require.NoError(t, s.UpdatePipe(ctx, &upd))

	assert.ErrorIs(t, s.UpdatePipe(ctx, &pipegraph.PipeConfig{ID: 50}), pipegraph.ErrPipeNotFound)

	require.NoError(t, s.DeletePipe(ctx, 2))
	assert.ErrorIs(t, s.DeletePipe(ctx, 2), pipegraph.ErrPipeNotFound)

	pipes, err = s.ListPipes(ctx)
	require.NoError(t, err)
	require.Len(t, pipes, 1)
	assert.Len(t, pipes[0].Stages, 1)
}

func TestListPipesEmpty(t *testing.T) {
	pipes, err := New().ListPipes(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pipes)
	assert.Empty(t, pipes)
}

func TestDaemons(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.RegisterDaemon(ctx, &pipegraph.Daemon{ID: "b", DisplayName: "second"}))
	require.NoError(t, s.RegisterDaemon(ctx, &pipegraph.Daemon{ID: "a", DisplayName: "first"}))
	require.NoError(t, s.RegisterDaemon(ctx, &pipegraph.Daemon{ID: "b", DisplayName: "renamed"}))

	daemons, err := s.ListDaemons(ctx)
	require.NoError(t, err)
	require.Len(t, daemons, 2)
	assert.Equal(t, "a", daemons[0].ID)
	assert.Equal(t, "renamed", daemons[1].DisplayName)
}
