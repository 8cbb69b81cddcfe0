// Package mockbase is an in-memory backend speaking the roost HTTP API. It
// serves tests and local development; nothing it stores survives a restart.
package mockbase

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Version is reported by the root and health endpoints
const Version = "1.0.0"

// codec keeps numbers as written so large integers round-trip through
// stored rows.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Server is the mock backend
type Server struct {
	config  *Config
	app     *fiber.App
	logger  logrus.FieldLogger
	metrics *Metrics
	now     func() time.Time
	started time.Time

	tables    *tableStore
	auth      *authStore
	objects   *objectStore
	channels  *channelStore
	functions *functionRegistry

	extra        []fiber.Handler
	shutdownOnce sync.Once
}

// Option customizes a Server
type Option func(*Server)

// WithMiddleware runs h on every request after the built-in middleware
func WithMiddleware(h fiber.Handler) Option {
	return func(s *Server) {
		s.extra = append(s.extra, h)
	}
}

// New creates a server. A nil logger discards request logs below warn.
func New(cfg *Config, logger logrus.FieldLogger, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(),
		now:     time.Now,
		started: time.Now(),
	}
	s.tables = newTableStore(s.clock)
	s.auth = newAuthStore(cfg, s.clock)
	s.objects = newObjectStore(s.clock)
	s.channels = newChannelStore(s.clock)
	s.functions = newFunctionRegistry()
	s.functions.register("echo", echoFunction)
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "roost-mockbase",
		ErrorHandler:          s.errorHandler,
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             32 << 20,
		Immutable:             true,
		JSONEncoder:           codec.Marshal,
		JSONDecoder:           codec.Unmarshal,
		DisableStartupMessage: true,
	})
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// clock indirects through s.now so tests can move time after construction
func (s *Server) clock() time.Time {
	return s.now()
}

// App returns the fiber application, for app.Test in tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Metrics returns the server metrics
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Listen serves on the configured address until Shutdown
func (s *Server) Listen() error {
	s.logger.WithField("address", s.config.Address()).Info("mockbase listening")
	return s.app.Listen(s.config.Address())
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.app.ShutdownWithContext(ctx)
	})
	return err
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.requestLogger())
	s.app.Use(s.metrics.Middleware())
	s.app.Use(timingMiddleware())
	for _, h := range s.extra {
		s.app.Use(h)
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.health)
	if s.config.MetricsPath != "" {
		s.app.Get(s.config.MetricsPath, adaptor.HTTPHandler(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}),
		))
	}

	api := s.app.Group("/api", s.authenticate)

	db := api.Group("/database/records")
	db.Get("/:table", s.listRecords)
	db.Post("/:table", s.insertRecords)
	db.Patch("/:table", s.updateRecords)
	db.Delete("/:table", s.deleteRecords)

	auth := api.Group("/auth")
	auth.Post("/users", s.signUp)
	auth.Post("/sessions", s.signIn)
	auth.Post("/refresh", s.refresh)
	auth.Post("/logout", s.requireUser, s.logout)
	auth.Get("/sessions/current", s.requireUser, s.currentSession)

	storage := api.Group("/storage/buckets/:bucket/objects")
	storage.Get("/", s.listObjects)
	storage.Post("/", s.uploadObjectAuto)
	storage.Get("/:key", s.downloadObject)
	storage.Put("/:key", s.uploadObject)
	storage.Delete("/:key", s.deleteObject)

	ai := api.Group("/ai")
	ai.Post("/chat/completion", s.chatCompletion)
	ai.Post("/image/generation", s.imageGeneration)
	ai.Get("/models", s.listModels)

	realtime := api.Group("/realtime/channels")
	realtime.Get("/", s.listChannels)
	realtime.Post("/:channel/messages", s.publishMessage)
	realtime.Get("/:channel/messages", s.listMessages)

	s.app.All("/functions/:slug", s.authenticate, s.invokeFunction)

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "roost-mockbase",
			"version": Version,
			"status":  "running",
			"endpoints": fiber.Map{
				"records":   "GET|POST|PATCH|DELETE /api/database/records/:table",
				"auth":      "POST /api/auth/{users,sessions,refresh,logout}",
				"storage":   "/api/storage/buckets/:bucket/objects[/:key]",
				"functions": "POST /functions/:slug",
				"ai":        "/api/ai/{chat/completion,image/generation,models}",
				"realtime":  "/api/realtime/channels[/:channel/messages]",
			},
		})
	})

	// 404 handler
	s.app.Use(func(c *fiber.Ctx) error {
		return apiError(c, fiber.StatusNotFound, ErrCodeNotFound, "route "+c.Method()+" "+c.Path()+" not found")
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "healthy",
		Service: "roost-mockbase",
		Version: Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

// CreateUser registers an account without issuing a session
func (s *Server) CreateUser(email, password, name string) (UserResponse, error) {
	return s.auth.createUser(email, password, name)
}

// CreateTable makes an empty table readable before anything is inserted
func (s *Server) CreateTable(name string) {
	s.tables.createTable(name)
}

// Tables returns the table names in lexical order
func (s *Server) Tables() []string {
	return s.tables.tableNames()
}

// CreateChannel adds a realtime channel; an existing channel is updated
func (s *Server) CreateChannel(name, description string, enabled bool) {
	s.channels.create(name, description, enabled)
}

// RegisterFunction installs handler under slug, replacing any previous one
func (s *Server) RegisterFunction(slug string, handler FunctionHandler) {
	s.functions.register(slug, handler)
}
