// Package publish pushes an editor graph to the backend.
//
// Each decomposed path is sent sequentially: a create when it has no pipe id,
// an update otherwise. A path's pipe id leaves the deletion ledger before the
// call because the pipe is still live. After all paths, every id remaining in
// the ledger is deleted. Failures are isolated per path and per delete and
// nothing is retried; a failed delete stays in the ledger for the next
// publish.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/decompose"
	"github.com/meikuraledutech/pipegraph/graphstore"
	"github.com/meikuraledutech/pipegraph/metrics"
)

// PathResult is the outcome of one path.
type PathResult struct {
	PipeID  int64
	Created bool
	EdgeIDs []string
	Err     error
}

// Report summarizes a publish.
type Report struct {
	Paths          []PathResult
	Deleted        []int64
	DeleteFailures map[int64]error
	Unconnected    []string
}

// Failed reports whether any path or delete failed.
func (r *Report) Failed() bool {
	if len(r.DeleteFailures) > 0 {
		return true
	}
	for _, p := range r.Paths {
		if p.Err != nil {
			return true
		}
	}
	return false
}

// Publisher coordinates publishes for one backend. It refuses to run two
// publishes at once.
type Publisher struct {
	backend pipegraph.Backend
	fanOut  decompose.FanOutFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	inFlight atomic.Bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMetrics records publish outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// New returns a Publisher. fanOut tells the decomposer which connector
// types split paths.
func New(backend pipegraph.Backend, fanOut decompose.FanOutFunc, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{backend: backend, fanOut: fanOut, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish decomposes the store's graph and reconciles it with the backend.
// It returns pipegraph.ErrPublishInFlight without side effects when another
// publish is running, and the decomposition error when the graph cannot be
// split. Otherwise it always returns a report; the error joins every path
// and delete failure.
func (p *Publisher) Publish(ctx context.Context, store *graphstore.Store, workspaceID int64) (*Report, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, pipegraph.ErrPublishInFlight
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	defer func() { p.metrics.ObservePublish(time.Since(start).Seconds()) }()

	g := store.Snapshot()
	res, err := decompose.Decompose(g.Nodes, g.Edges, p.fanOut)
	if err != nil {
		return nil, fmt.Errorf("publish: decompose: %w", err)
	}

	report := &Report{DeleteFailures: map[int64]error{}, Unconnected: res.Unconnected}
	if len(res.Unconnected) > 0 {
		p.logger.Warn("unconnected nodes are not published", "count", len(res.Unconnected))
	}

	// Pipes known to run along each edge. Created pipes join as they are
	// created.
	owners := make(map[string]map[int64]bool)
	for _, path := range res.Paths {
		if path.PipeID != 0 {
			addOwner(owners, path.EdgeIDs, path.PipeID)
		}
	}

	var errs []error
	for _, path := range res.Paths {
		r := p.publishPath(ctx, store, workspaceID, path, owners)
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
		report.Paths = append(report.Paths, r)
	}

	for _, id := range store.PendingDeletions() {
		err := p.backend.DeletePipe(ctx, id)
		if errors.Is(err, pipegraph.ErrPipeNotFound) {
			p.logger.Debug("pipe already gone on backend", "pipe_id", id, "error", err)
			err = nil
		}
		if err != nil {
			p.logger.Error("delete pipe failed", "pipe_id", id, "error", err)
			p.metrics.Delete("failed")
			report.DeleteFailures[id] = err
			errs = append(errs, fmt.Errorf("delete pipe %d: %w", id, err))
			continue
		}
		p.logger.Info("pipe deleted", "pipe_id", id)
		p.metrics.Delete("deleted")
		store.ConfirmDeletion(id)
		report.Deleted = append(report.Deleted, id)
	}

	return report, errors.Join(errs...)
}

func (p *Publisher) publishPath(ctx context.Context, store *graphstore.Store, workspaceID int64, path decompose.Path, owners map[string]map[int64]bool) PathResult {
	r := PathResult{PipeID: path.PipeID, EdgeIDs: path.EdgeIDs}
	cfg := &pipegraph.PipeConfig{ID: path.PipeID, WorkspaceID: workspaceID, Stages: path.Stages}

	if path.PipeID == 0 {
		id, err := p.backend.CreatePipe(ctx, cfg)
		if err != nil {
			p.logger.Error("create pipe failed", "stages", len(path.Stages), "error", err)
			p.metrics.Path("failed")
			r.Err = fmt.Errorf("create pipe: %w", err)
			return r
		}
		r.PipeID, r.Created = id, true
		p.metrics.Path("created")
		p.logger.Info("pipe created", "pipe_id", id, "stages", len(path.Stages))
	} else {
		store.CancelDeletion(path.PipeID)
		if err := p.backend.UpdatePipe(ctx, cfg); err != nil {
			p.logger.Error("update pipe failed", "pipe_id", path.PipeID, "error", err)
			p.metrics.Path("failed")
			r.Err = fmt.Errorf("update pipe %d: %w", path.PipeID, err)
			return r
		}
		p.metrics.Path("updated")
		p.logger.Info("pipe updated", "pipe_id", path.PipeID, "stages", len(path.Stages))
	}

	// An edge keeps its old pipe only while another path of this publish
	// still runs that pipe along it; otherwise it is rebound.
	for _, id := range path.EdgeIDs {
		e, ok := store.Edge(id)
		if !ok {
			continue
		}
		if e.PipeID != 0 && e.PipeID != r.PipeID && owners[id][e.PipeID] {
			store.AddParallelEdge(id, r.PipeID)
		} else {
			store.UpdateEdgeAfterPublish(id, r.PipeID)
		}
	}
	addOwner(owners, path.EdgeIDs, r.PipeID)
	return r
}

func addOwner(owners map[string]map[int64]bool, edgeIDs []string, pipeID int64) {
	for _, id := range edgeIDs {
		if owners[id] == nil {
			owners[id] = map[int64]bool{}
		}
		owners[id][pipeID] = true
	}
}
