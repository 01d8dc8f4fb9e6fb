package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/albumnight/internal/api"
	"github.com/kiliankoe/albumnight/internal/config"
	"github.com/kiliankoe/albumnight/internal/device"
	"github.com/kiliankoe/albumnight/internal/events"
	"github.com/kiliankoe/albumnight/internal/feed"
	"github.com/kiliankoe/albumnight/internal/game"
	"github.com/kiliankoe/albumnight/internal/store/gormstore"
	"github.com/kiliankoe/albumnight/internal/store/memory"
	"github.com/kiliankoe/albumnight/internal/store/sqlstore"
	"github.com/kiliankoe/albumnight/internal/ws"
	staticserver "github.com/kiliankoe/albumnight/static"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "v1.0.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		envFile     = flag.String("env-file", "", "Load environment from this file instead of ./.env")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Album Night - listen to an album together and score every track

Usage: %s [options]

Options:
  -h, --help        Show this help message
  -v, --version     Show version information
  --port PORT       Port to listen on (default: 8080 or PORT env var)
  --env-file PATH   Load environment from PATH (default: ./.env if present)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  STORE_DRIVER        memory, sqlite, postgres or mysql (default: memory)
  DATABASE_URL        DSN / file path for the sqlite, postgres and mysql stores
  STORE_TIMEOUT       Bound on every store call (default: 5s)
  REDIS_URL           redis:// URL; shares change notifications between instances
  KAFKA_BROKERS       Comma-separated brokers; publishes session events
  KAFKA_TOPIC         Topic for session events (default: album-night-events)
  DEVICE_TOKEN_SECRET Secret for participant device tokens (random if unset)
  GM_USER             Username for basic auth on session creation
  GM_PASS             Password for basic auth on session creation
  DEFAULT_TITLE       Title of new sessions (default: Album Night)
  ROSTER_NAMES        Four comma-separated display names (default: James,Lee,Ben,Steph)
  STRICT_LOCK         Refuse lock-in until all four scores are in (default: false)
  EXPORT_ENABLED      Export results when an album completes (default: false)
  EXPORT_FILE         Path to export results (default: exports/album-night.txt)
  LOG_LEVEL           debug, info, warn, error (default: info)
  LOG_FORMAT          console or json (default: console)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000

Visit http://localhost:8080 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Album Night %s\n", version)
		return
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shut down")
}

// run serves until ctx ends. Every resource it opens is released before it
// returns, including on error.
func run(ctx context.Context, cfg config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer closeStore()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	hub := feed.NewHub(feed.DefaultBuffer)
	notifiers := game.Notifiers{hub}
	if cfg.RedisURL != "" {
		client, err := feed.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		bridge := feed.NewRedisBridge(client, cfg.RedisChannel, hub)
		notifiers = append(notifiers, bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("redis change bridge stopped")
			}
		}()
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer sink.Close()
		notifiers = append(notifiers, sink)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing session events to kafka")
	}

	binder, err := device.NewBinder(cfg.DeviceTokenSecret, cfg.DeviceTokenTTL)
	if err != nil {
		return fmt.Errorf("init device tokens: %w", err)
	}
	if cfg.DeviceTokenSecret == "" {
		log.Warn().Msg("DEVICE_TOKEN_SECRET unset; device tokens will not survive a restart")
	}
	svc := game.NewService(store, binder, notifiers, cfg.GameOptions())

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	api.New(svc, hub, cfg.GMUser, cfg.GMPass).Register(r)

	sock := ws.New(svc, hub)
	io := sock.Mount(r)
	defer io.Close()
	go sock.Run(ctx)

	// Serve frontend (if embedded build is present) for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", cfg.Port).Str("version", version).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
	}
	return nil
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat != "json" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = log.Output(cw)
	}
}

func openStore(ctx context.Context, cfg config.Config) (game.Store, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite", "postgres":
		st, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "mysql":
		st, err := gormstore.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	}
	return memory.New(), func() {}, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Admin-Token"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}
