package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"daybook/auth"
	"daybook/config"
	"daybook/crypto"
	"daybook/db"
	"daybook/handlers"
	"daybook/i18n"
	"daybook/memory"
	"daybook/server"
	"daybook/upload"
)

const sessionPurgeInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return err
	}
	logger.Info("database ready", "driver", cfg.DatabaseDriver, "path", cfg.DatabasePath)

	creds, err := auth.NewCredentialStore(conn, crypto.NewHasher(cfg.PasswordHasher, cfg.BcryptCost))
	if err != nil {
		conn.Close()
		return err
	}
	sessions := auth.NewSessionManager(conn, cfg.SessionKey, cfg.SessionMaxAge, cfg.SecureCookies)

	backend, err := newUploadBackend(ctx, cfg)
	if err != nil {
		conn.Close()
		return err
	}

	tr, err := i18n.Load()
	if err != nil {
		conn.Close()
		return err
	}

	h, err := handlers.New(cfg, handlers.Deps{
		DB:          conn,
		Credentials: creds,
		Sessions:    sessions,
		Memories:    memory.NewStore(conn),
		Uploads:     upload.NewHandler(backend, cfg.ImageMaxWidth, logger),
		Translator:  tr,
		Logger:      logger,
	})
	if err != nil {
		conn.Close()
		return err
	}

	srv := server.New(h.Router(), cfg.Addr(), cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)
	srv.OnShutdown("database", func(context.Context) error { return conn.Close() })

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go purgeSessions(purgeCtx, sessions, logger)
	srv.OnShutdown("session purger", func(context.Context) error {
		stopPurge()
		return nil
	})

	logger.Info("starting", "app", cfg.AppName, "addr", cfg.Addr(), "upload_backend", cfg.UploadBackend)
	return srv.Run(ctx)
}

func newUploadBackend(ctx context.Context, cfg *config.Config) (upload.Backend, error) {
	switch cfg.UploadBackend {
	case "s3":
		client, err := upload.NewS3Client(ctx, upload.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return upload.NewS3Backend(client, cfg.S3Bucket), nil
	case "local":
		return upload.NewLocalBackend(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.UploadBackend)
	}
}

func purgeSessions(ctx context.Context, sessions *auth.SessionManager, logger *slog.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", "count", n)
			}
		}
	}
}

func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
