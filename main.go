package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"ad-eraser-server/api"
	"ad-eraser-server/config"
	"ad-eraser-server/eventbus"
	"ad-eraser-server/lobby"
	"ad-eraser-server/loghandler"
	"ad-eraser-server/prefs"
	"ad-eraser-server/score"
	"ad-eraser-server/storage"
	"ad-eraser-server/telemetry"
	"ad-eraser-server/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found; using environment variables", "tag", "main")
	}

	app := &cli.App{
		Name:   "ad-eraser-server",
		Usage:  "timed ad-dismissal game server with local and shared score storage",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the WebSocket and HTTP server",
				Action: serve,
			},
			{
				Name:  "leaderboard",
				Usage: "print the shared leaderboard",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "number of entries"},
				},
				Action: printLeaderboard,
			},
			{
				Name:   "best",
				Usage:  "print this device's personal best",
				Action: printBest,
			},
			{
				Name:   "clear-local",
				Usage:  "delete every score stored on this device",
				Action: clearLocal,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("exiting", "tag", "main", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the default logger.
func loadConfig() *config.Config {
	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stderr, cfg.SlogLevel())))
	return cfg
}

// stack wires the storage adapters, score service and their collaborators.
type stack struct {
	cfg      *config.Config
	embedded *storage.EmbeddedStore
	remote   *storage.RemoteStore
	scores   *score.Service
	prefs    *prefs.Preferences
	bus      *eventbus.Bus
	metrics  *telemetry.Recorder
	registry *prometheus.Registry
}

func newStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	remote, err := storage.NewRemoteStore(cfg.DatabaseURL, cfg.RemoteTimeout())
	if err != nil {
		return nil, fmt.Errorf("remote store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(registry)
	bus := eventbus.New(slog.Default())

	local := storage.NewLocalStore(cfg.LocalStorePath)
	embedded := storage.NewEmbeddedStore(cfg.LocalDBPath)
	scores := score.NewService(local, embedded, remote, score.Options{
		MaxNameLength:       cfg.MaxNameLength,
		LeaderboardMaxLimit: cfg.LeaderboardMaxLimit,
		Events:              bus,
		Metrics:             metrics,
	})
	scores.Init(ctx)

	return &stack{
		cfg:      cfg,
		embedded: embedded,
		remote:   remote,
		scores:   scores,
		prefs:    prefs.New(local),
		bus:      bus,
		metrics:  metrics,
		registry: registry,
	}, nil
}

func (s *stack) Close() {
	s.bus.Close()
	s.embedded.Close()
	s.remote.Close()
}

// routes starts the hub and returns the root handler. Background work stops when ctx is cancelled.
func (s *stack) routes(ctx context.Context) (http.Handler, error) {
	updates, err := s.bus.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to score events: %w", err)
	}
	lb := lobby.New(ctx, s.cfg, s.scores, s.prefs, s.metrics)
	hub := ws.NewHub(s.cfg, lb, updates)
	go hub.Run(ctx)

	r := chi.NewRouter()
	r.Get("/ws", hub.ServeWS)
	r.Mount("/api", api.NewHandler(s.cfg, s.scores, s.prefs).Routes())
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r, nil
}

func serve(c *cli.Context) error {
	cfg := loadConfig()
	slog.Info("configuration", "tag", "main",
		"duration", cfg.SessionDurationSec,
		"base", cfg.BaseIncrement,
		"bonus", cfg.BonusFactor,
		"window", cfg.ComboWindow,
		"penalty", cfg.MissPenaltySec,
		"port", cfg.WSPort,
		"remote", cfg.DatabaseURL != "")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	handler, err := st.routes(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WSPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "tag", "main", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printLeaderboard(c *cli.Context) error {
	st, err := newStack(c.Context, loadConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	entries := st.scores.Leaderboard(c.Context, c.Int("limit"))
	if len(entries) == 0 {
		fmt.Fprintln(c.App.Writer, "leaderboard unavailable")
		return nil
	}
	for i, e := range entries {
		fmt.Fprintf(c.App.Writer, "%3d. %-24s %6d  %s\n", i+1, e.PlayerName, e.Score, e.RecordedAt.Format(time.DateTime))
	}
	return nil
}

func printBest(c *cli.Context) error {
	st, err := newStack(c.Context, loadConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Fprintln(c.App.Writer, st.scores.PersonalBest(c.Context))
	return nil
}

func clearLocal(c *cli.Context) error {
	st, err := newStack(c.Context, loadConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	return st.scores.ClearLocal(c.Context)
}
