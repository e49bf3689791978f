// Package web serves the monitoring dashboard API: live stats and camera
// status, the alert ledger, hotspot views, MJPEG live video and websocket
// pushes for alerts and status.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-shesafe/internal/log"
	"github.com/teslashibe/go-shesafe/pkg/alert"
	"github.com/teslashibe/go-shesafe/pkg/camera"
	"github.com/teslashibe/go-shesafe/pkg/hotspot"
	"github.com/teslashibe/go-shesafe/pkg/hub"
	"github.com/teslashibe/go-shesafe/pkg/state"
	"github.com/teslashibe/go-shesafe/pkg/worker"
)

// AlertReader reads the alert ledger.
type AlertReader interface {
	Recent(ctx context.Context, n int) ([]alert.Event, error)
}

// HotspotView exposes the latest published hotspot snapshot.
type HotspotView interface {
	Snapshot() *hotspot.Snapshot
	MapHTML() []byte
}

// Sources are the read-only views the server exposes. Alerts, Hotspots,
// Gatherer and Workers may be nil.
type Sources struct {
	Registry *camera.Registry
	Store    *state.Store
	Alerts   AlertReader
	Hotspots HotspotView
	Gatherer prometheus.Gatherer
	Workers  func() map[string]worker.State
}

// Config holds server settings.
type Config struct {
	Addr           string
	StaticDir      string        // dashboard assets; empty disables
	AlertLimit     int           // rows returned by /api/alerts
	StatusInterval time.Duration // /ws/status push period
	FrameInterval  time.Duration // MJPEG frame period

	// StreamKeepAlive is the longest an MJPEG stream goes without a write.
	StreamKeepAlive time.Duration
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AlertLimit:     50,
		StatusInterval: 2 * time.Second,
		FrameInterval:  66 * time.Millisecond,

		StreamKeepAlive: time.Second,
	}
}

// Server is the dashboard API server
type Server struct {
	app    *fiber.App
	cfg    Config
	src    Sources
	logger *slog.Logger
	now    func() time.Time

	// Hubs for websocket broadcast
	alertHub  *hub.Hub
	statusHub *hub.Hub

	stop     chan struct{}
	stopOnce sync.Once

	// open MJPEG streams
	streams atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides time.Now, used for camera status.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates the API server. Store and Registry are required.
func NewServer(cfg Config, src Sources, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.AlertLimit <= 0 {
		cfg.AlertLimit = def.AlertLimit
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.StreamKeepAlive <= 0 {
		cfg.StreamKeepAlive = def.StreamKeepAlive
	}

	s := &Server{
		cfg:  cfg,
		src:  src,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Component(s.logger, "web")
	s.alertHub = hub.New("alerts", s.logger)
	s.statusHub = hub.New("status", s.logger)
	s.statusHub.OnConnect(s.statusGreeting)

	app := fiber.New(fiber.Config{
		AppName:               "SheSafe",
		DisableStartupMessage: true,
	})

	// CORS for the dashboard served from elsewhere
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	if src.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(src.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/cameras", s.handleCameras)
	api.Get("/cameras/priority", s.handlePriority)
	api.Get("/alerts", s.handleAlerts)
	api.Get("/hotspots", s.handleHotspots)
	api.Get("/hotspots/map", s.handleHotspotMap)

	app.Get("/video/:id", s.handleVideo)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/alerts", websocket.New(s.handleWS(s.alertHub)))
	app.Get("/ws/status", websocket.New(s.handleWS(s.statusHub)))

	s.app = app
	return s
}

// App returns the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

// PublishAlert pushes an accepted alert to /ws/alerts clients. It never
// blocks, so it can be registered with alert.Coordinator.OnAccept.
func (s *Server) PublishAlert(ev alert.Event) {
	if err := s.alertHub.BroadcastJSON(ev); err != nil {
		s.logger.Warn("encode alert", "error", err)
	}
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.alertHub.Run(ctx)
	go s.statusHub.Run(ctx)
	go s.pushStatus(ctx)

	s.logger.Info("dashboard api listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		s.shutdownStreams()
		return err
	case <-ctx.Done():
	}

	s.shutdownStreams()
	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) shutdownStreams() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Server) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
				s.logger.Warn("encode status", "error", err)
			}
		}
	}
}

func (s *Server) statusGreeting() (hub.Message, bool) {
	data, err := json.Marshal(s.status())
	if err != nil {
		return hub.Message{}, false
	}
	return hub.NewJSONMessage(data), true
}

func (s *Server) handleWS(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.NewClient(h, c).Run()
	}
}
