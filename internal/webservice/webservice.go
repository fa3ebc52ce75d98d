// Package webservice provides the HTTP server that serves the issue metrics
// read API and accepts GitHub webhook deliveries.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/webcompat/ochazuke/internal/metrics"
	"github.com/webcompat/ochazuke/internal/webservice/handlers"
	wsmetrics "github.com/webcompat/ochazuke/internal/webservice/metrics"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metrics.Server
	cm            dConfigManager

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	mu          sync.RWMutex
	primaryAddr net.Addr
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	MaxHeaderBytes  int
	MaxWebhookBytes int

	ListenHost string
	ListenPort int

	MetricsHost string
	MetricsPort int

	// WebhookSecret is the shared secret GitHub signs deliveries with.
	// It is never read from the config file, only from the environment.
	WebhookSecret string `mapstructure:"-"`
}

// Deps holds the collaborators the HTTP handlers are wired with.
type Deps struct {
	Timelines handlers.TimelineStore
	Fetcher   handlers.Fetcher
	Processor handlers.EventProcessor
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	IsValidCategory(string) bool
}

// New creates a new Server instance with the given config manager, handler
// dependencies and static configuration.
func New(ctx context.Context, cm dConfigManager, deps Deps, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:     cm,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	reg := prometheus.NewRegistry()
	endpointMW := wsmetrics.NewEndpointMiddleware(reg)

	secret := []byte(sc.WebhookSecret)
	maxBytes := int64(sc.MaxWebhookBytes)

	mux := http.NewServeMux()
	mux.Handle("GET /", endpointMW.Wrap("home", http.HandlerFunc(handlers.HomeHandler)))
	mux.Handle("GET /version", endpointMW.Wrap("version", http.HandlerFunc(handlers.VersionHandler)))

	mux.Handle("GET /data/{metric}", endpointMW.Wrap("timeline",
		wsmetrics.HandlerApplyLabels(handlers.NewTimeline(cm, deps.Timelines))))
	mux.Handle("GET /data/weekly-counts", endpointMW.Wrap("weekly-counts",
		wsmetrics.HandlerApplyLabels(handlers.NewWeekly(deps.Timelines))))
	mux.Handle("GET /data/triage-bugs", endpointMW.Wrap("triage-bugs",
		wsmetrics.HandlerApplyLabels(handlers.NewTriageBugs(deps.Fetcher))))
	mux.Handle("GET /data/tsci-doc", endpointMW.Wrap("tsci-doc",
		wsmetrics.HandlerApplyLabels(handlers.NewTSCIDoc(deps.Fetcher))))

	mux.Handle("POST /webhooks/issues", endpointMW.Wrap("webhook-issues",
		wsmetrics.HandlerApplyLabels(handlers.NewWebhook("issues", secret, deps.Processor, maxBytes))))
	mux.Handle("POST /webhooks/label", endpointMW.Wrap("webhook-label",
		wsmetrics.HandlerApplyLabels(handlers.NewWebhook("label", secret, deps.Processor, maxBytes))))
	mux.Handle("POST /webhooks/milestone", endpointMW.Wrap("webhook-milestone",
		wsmetrics.HandlerApplyLabels(handlers.NewWebhook("milestone", secret, deps.Processor, maxBytes))))

	handler := wsmetrics.NewMuxMiddleware(reg).Wrap("webservice", mux)

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(handler, sc.RequestTimeout, ""),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	s.metricsServer = metrics.New(metrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, reg)

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.primaryAddr = listener.Addr()
	s.mu.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	metricsErr := make(chan error, 1)
	go func() {
		defer close(metricsErr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
		err := s.httpServer.Shutdown(s.ctx)
		errM := s.metricsServer.Shutdown(s.ctx)
		if err != nil || errM != nil {
			slog.Error("Graceful shutdown failed", "err", err, "metricsErr", errM)
			return errors.Join(err, errM)
		}
		slog.Info("Server shut down gracefully")
		// now kill everything else (watchers, handlers, etc.)
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			slog.Error("Server encountered error", "err", err)
		}
		errM := s.metricsServer.Close()
		s.cancel()
		return errors.Join(err, errM)

	case err := <-metricsErr:
		if err != nil {
			slog.Error("Metrics server encountered error", "err", err)
		}
		errC := s.httpServer.Close()
		s.cancel()
		return errors.Join(err, errC)

	case err := <-watchErr:
		if err != nil {
			slog.Error("Config watcher encountered unrecoverable error", "err", err)
		}
		errC := s.httpServer.Close()
		errM := s.metricsServer.Close()
		s.cancel()

		return errors.Join(err, errC, errM)
	}
}

// Quit shuts down the HTTP server gracefully.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.metricsServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}
