// Package api serves the pipe backend REST surface over any
// pipegraph.Backend:
//
//	GET    /pipe        list pipes
//	POST   /pipe        create pipes, returns [{"id": N}]
//	PUT    /pipe        update pipes
//	DELETE /pipe/:id    delete one pipe
//	GET    /clients     list registered daemons
//	POST   /clients     register a daemon
//	GET    /healthz     liveness
//	GET    /metrics     Prometheus exposition
//
// Stages are validated and default-filled against the connector catalog
// before they reach the backend.
package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/catalog"
	"github.com/meikuraledutech/pipegraph/metrics"
)

// Options configures the app built by NewApp.
type Options struct {
	// Token, when set, is required as "Authorization: <type> <Token>" on
	// /pipe and /clients.
	Token string

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// RequestLog enables the fiber request logger.
	RequestLog bool
}

// Handler holds the dependencies of the routes.
type Handler struct {
	backend pipegraph.Backend
	catalog *catalog.Catalog
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a Handler. m may be nil.
func NewHandler(backend pipegraph.Backend, cat *catalog.Catalog, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{backend: backend, catalog: cat, logger: logger, metrics: m}
}

// NewApp builds a fiber app with middleware and every route registered.
func NewApp(h *Handler, opts Options) *fiber.App {
	app := fiber.New()

	app.Use(recoverer.New())
	if opts.RequestLog {
		app.Use(logger.New())
	}

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.Token != "" {
		auth := requireToken(opts.Token)
		app.Use("/pipe", auth)
		app.Use("/clients", auth)
	}
	h.Register(app)
	return app
}

// Register mounts the pipe and daemon routes on app.
func (h *Handler) Register(app *fiber.App) {
	// ── Pipes ─────────────────────────────────────────────────────────
	app.Get("/pipe", h.listPipes)
	app.Post("/pipe", h.createPipes)
	app.Put("/pipe", h.updatePipes)
	app.Delete("/pipe/:id", h.deletePipe)

	// ── Daemons ───────────────────────────────────────────────────────
	app.Get("/clients", h.listDaemons)
	app.Post("/clients", h.registerDaemon)
}

func (h *Handler) listPipes(c fiber.Ctx) error {
	pipes, err := h.backend.ListPipes(c.Context())
	h.metrics.PipeOp("list", err)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(pipegraph.PipeList{Configs: pipes})
}

func (h *Handler) createPipes(c fiber.Ctx) error {
	var body pipegraph.PipeList
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := h.normalize(body.Configs); err != nil {
		return h.fail(c, err)
	}

	created := make([]pipegraph.CreatedPipe, 0, len(body.Configs))
	for i := range body.Configs {
		id, err := h.backend.CreatePipe(c.Context(), &body.Configs[i])
		h.metrics.PipeOp("create", err)
		if err != nil {
			return h.fail(c, err)
		}
		h.logger.Info("pipe created", "pipe_id", id, "workspace_id", body.Configs[i].WorkspaceID)
		created = append(created, pipegraph.CreatedPipe{ID: id})
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *Handler) updatePipes(c fiber.Ctx) error {
	var body pipegraph.PipeList
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := h.normalize(body.Configs); err != nil {
		return h.fail(c, err)
	}

	for i := range body.Configs {
		if body.Configs[i].ID == 0 {
			return h.fail(c, fmt.Errorf("%w: update needs a pipe id", pipegraph.ErrInvalidFormat))
		}
		err := h.backend.UpdatePipe(c.Context(), &body.Configs[i])
		h.metrics.PipeOp("update", err)
		if err != nil {
			return h.fail(c, err)
		}
		h.logger.Info("pipe updated", "pipe_id", body.Configs[i].ID)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) deletePipe(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid pipe id"})
	}
	err = h.backend.DeletePipe(c.Context(), id)
	h.metrics.PipeOp("delete", err)
	if err != nil {
		return h.fail(c, err)
	}
	h.logger.Info("pipe deleted", "pipe_id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listDaemons(c fiber.Ctx) error {
	daemons, err := h.backend.ListDaemons(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(pipegraph.DaemonList{Clients: daemons})
}

func (h *Handler) registerDaemon(c fiber.Ctx) error {
	var d pipegraph.Daemon
	if err := c.Bind().JSON(&d); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if d.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "daemon id is required"})
	}
	for _, list := range [][]pipegraph.Stage{d.Sources, d.Destinations} {
		for i := range list {
			norm, err := h.catalog.Normalize(list[i])
			if err != nil {
				return h.fail(c, err)
			}
			list[i] = norm
		}
	}
	if err := h.backend.RegisterDaemon(c.Context(), &d); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// normalize validates every stage and fills connector defaults in place.
func (h *Handler) normalize(configs []pipegraph.PipeConfig) error {
	if len(configs) == 0 {
		return fmt.Errorf("%w: no configs", pipegraph.ErrInvalidFormat)
	}
	for ci := range configs {
		cfg := &configs[ci]
		if len(cfg.Stages) < 2 {
			return fmt.Errorf("%w: pipe %d needs at least two stages", pipegraph.ErrInvalidFormat, cfg.ID)
		}
		for si := range cfg.Stages {
			norm, err := h.catalog.Normalize(cfg.Stages[si])
			if err != nil {
				return fmt.Errorf("pipe %d stage %d: %w", cfg.ID, si, err)
			}
			cfg.Stages[si] = norm
		}
	}
	return nil
}

func (h *Handler) fail(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pipegraph.ErrPipeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "pipe not found"})
	case errors.Is(err, pipegraph.ErrInvalidFormat), errors.Is(err, pipegraph.ErrUnknownConnector):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	h.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func requireToken(token string) fiber.Handler {
	return func(c fiber.Ctx) error {
		_, got, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}
