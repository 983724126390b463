package editor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/catalog"
	"github.com/meikuraledutech/pipegraph/logging"
	"github.com/meikuraledutech/pipegraph/memory"
)

func newSession(b pipegraph.Backend) *Session {
	return NewSession(b, catalog.Default(), 1, logging.Discard(), nil)
}

// brokenBackend returns a stored pipe the catalog rejects.
type brokenBackend struct{ *memory.Store }

func (brokenBackend) ListPipes(context.Context) ([]pipegraph.PipeConfig, error) {
	return []pipegraph.PipeConfig{{ID: 1}}, nil
}

type downBackend struct{ *memory.Store }

func (downBackend) ListPipes(context.Context) ([]pipegraph.PipeConfig, error) {
	return nil, pipegraph.ErrNetworkFailure
}

func TestDropConnectPublishReload(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := newSession(backend)

	src, err := s.Drop(catalog.SQLite, pipegraph.Position{})
	require.NoError(t, err)
	require.NoError(t, s.SetField(src.ID, "path", "/a"))
	relay, err := s.Drop(catalog.MycelialNet, pipegraph.Position{X: 280})
	require.NoError(t, err)
	dst, err := s.Drop(catalog.HelloWorld, pipegraph.Position{X: 560})
	require.NoError(t, err)

	_, ok := s.Store().Connect(src.ID, relay.ID)
	require.True(t, ok)
	_, ok = s.Store().Connect(relay.ID, dst.ID)
	require.True(t, ok)

	report, err := s.Publish(ctx)
	require.NoError(t, err)
	require.Len(t, report.Paths, 2)

	pipes, err := backend.ListPipes(ctx)
	require.NoError(t, err)
	require.Len(t, pipes, 2)
	assert.Equal(t, "mycelial_net_destination", pipes[0].Stages[1].Name())
	assert.Equal(t, "mycelial_net_source", pipes[1].Stages[0].Name())

	for _, e := range s.Store().Snapshot().Edges {
		assert.NotZero(t, e.PipeID)
		assert.True(t, e.Animated)
	}

	// A reload yields the same published shape with stable ids.
	require.NoError(t, s.Load(ctx))
	first := s.Store().Snapshot()
	assert.Len(t, first.Nodes, 3)
	assert.Len(t, first.Edges, 2)

	require.NoError(t, s.Load(ctx))
	second := s.Store().Snapshot()
	assert.Equal(t, first, second)

	// Publishing the reloaded graph only updates.
	report, err = s.Publish(ctx)
	require.NoError(t, err)
	for _, p := range report.Paths {
		assert.False(t, p.Created)
	}
	pipes, _ = backend.ListPipes(ctx)
	assert.Len(t, pipes, 2)
}

func TestDeleteAfterReload(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	s := newSession(backend)

	a, _ := s.Drop(catalog.File, pipegraph.Position{})
	require.NoError(t, s.SetField(a.ID, "path", "/in"))
	b, _ := s.Drop(catalog.File, pipegraph.Position{})
	require.NoError(t, s.SetField(b.ID, "path", "/out"))
	s.Store().Connect(a.ID, b.ID)
	_, err := s.Publish(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Load(ctx))
	g := s.Store().Snapshot()
	require.Len(t, g.Edges, 1)
	s.Store().MarkEdgeDeleted(g.Edges[0].ID)

	report, err := s.Publish(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, report.Deleted)

	pipes, _ := backend.ListPipes(ctx)
	assert.Empty(t, pipes)
}

func TestLoadInvalidShowsEmptyCanvas(t *testing.T) {
	s := newSession(brokenBackend{memory.New()})
	s.Drop(catalog.File, pipegraph.Position{})

	err := s.Load(context.Background())
	assert.ErrorIs(t, err, pipegraph.ErrInvalidFormat)
	assert.Empty(t, s.Store().Snapshot().Nodes)
}

func TestLoadNetworkFailureKeepsCanvas(t *testing.T) {
	s := newSession(downBackend{memory.New()})
	s.Drop(catalog.File, pipegraph.Position{})

	err := s.Load(context.Background())
	assert.True(t, errors.Is(err, pipegraph.ErrNetworkFailure))
	assert.Len(t, s.Store().Snapshot().Nodes, 1)
}

func TestDropRejectsUnknownConnector(t *testing.T) {
	s := newSession(memory.New())
	_, err := s.Drop("ftp", pipegraph.Position{})
	assert.ErrorIs(t, err, pipegraph.ErrUnknownConnector)
	assert.Empty(t, s.Store().Snapshot().Nodes)
}

func TestSetFieldValidates(t *testing.T) {
	s := newSession(memory.New())
	n, err := s.Drop(catalog.HelloWorld, pipegraph.Position{})
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetField(n.ID, "interval_milis", "soon"), pipegraph.ErrInvalidFormat)
	assert.ErrorIs(t, s.SetField(n.ID, "colour", "red"), pipegraph.ErrInvalidFormat)
	require.NoError(t, s.SetField(n.ID, "interval_milis", 20))
	require.NoError(t, s.SetField("missing", "interval_milis", 20))

	got, _ := s.Store().Node(n.ID)
	assert.Equal(t, int64(20), got.Data.Fields["interval_milis"])
}

func TestDropStageFromPalette(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	require.NoError(t, backend.RegisterDaemon(ctx, &pipegraph.Daemon{
		ID: "d1",
		Sources: []pipegraph.Stage{{
			Connector: catalog.SQLite, Role: pipegraph.RoleSource, ClientID: "d1",
			Fields: map[string]any{"path": "/data.db"},
		}},
	}))
	s := newSession(backend)

	palette, err := s.Palette(ctx)
	require.NoError(t, err)
	require.Len(t, palette, 1)

	n, err := s.DropStage(palette[0].Sources[0], pipegraph.Position{})
	require.NoError(t, err)
	assert.Equal(t, "d1", n.Data.ClientID)
	assert.Equal(t, pipegraph.RoleNone, n.Data.Role)
	assert.Equal(t, "*", n.Data.Fields["tables"])
}

func TestExportImport(t *testing.T) {
	s := newSession(memory.New())
	a, _ := s.Drop(catalog.File, pipegraph.Position{X: 1})
	b, _ := s.Drop(catalog.HelloWorld, pipegraph.Position{X: 2})
	s.Store().Connect(a.ID, b.ID)
	s.Store().QueueDeletion(12)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))

	other := newSession(memory.New())
	require.NoError(t, other.Import(&buf))

	assert.Equal(t, s.Store().Snapshot(), other.Store().Snapshot())
	assert.Equal(t, []int64{12}, other.Store().PendingDeletions())
}

func TestImportRejectsBadDocuments(t *testing.T) {
	s := newSession(memory.New())

	assert.ErrorIs(t, s.Import(strings.NewReader(`{`)), pipegraph.ErrInvalidFormat)

	err := s.Import(strings.NewReader(`{"nodes":[],"edges":[{"id":"e","source":"a","target":"b"}]}`))
	assert.ErrorIs(t, err, pipegraph.ErrDanglingReference)

	err = s.Import(strings.NewReader(`{"nodes":[{"id":"a","connector":"ftp","data":{"name":"ftp"}}],"edges":[]}`))
	assert.ErrorIs(t, err, pipegraph.ErrUnknownConnector)
}
