package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"presentation-scheduler/internal/app"
	"presentation-scheduler/internal/config"
	"presentation-scheduler/internal/server"
	"presentation-scheduler/internal/telemetry"
	"presentation-scheduler/migrations"
)

const serviceName = "presentation-scheduler"

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  serviceName,
		Usage: "Book presentation slots on the weekly schedule.",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			datesCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the booking HTTP API.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := setupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
				Enabled:      cfg.OTelEnabled,
				ServiceName:  serviceName,
				OTLPEndpoint: cfg.OTelEndpoint,
				SampleRatio:  cfg.OTelSampleRatio,
			})
			if err != nil {
				logger.Error("otel setup failed", "err", err)
			} else {
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = otelShutdown(shutdownCtx)
				}()
			}

			application, cleanup, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if strings.EqualFold(cfg.LogLevel, "debug") {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			auth := app.AuthConfig{StaticTokens: cfg.StaticTokens, JWTSecret: cfg.JWTSecret}
			if !auth.Enabled() {
				logger.Warn("API authentication disabled: set STATIC_TOKENS or JWT_HMAC_SECRET")
			}
			router := app.NewRouter(application, auth)

			return server.Run(ctx, ":"+cfg.Port, router, logger)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations for the postgres backend.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := setupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL required")
			}

			pool, err := app.OpenPool(c.Context, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to db: %w", err)
			}
			defer pool.Close()

			if err := migrations.Up(c.Context, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func datesCommand() *cli.Command {
	return &cli.Command{
		Name:  "dates",
		Usage: "Print the candidate presentation dates and whether each is still open.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "weeks", Usage: "Number of weeks to list (defaults to the booking window)."},
			&cli.StringFlag{Name: "from", Usage: "Reference date, YYYY-MM-DD (defaults to today)."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := setupLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

			application, cleanup, err := buildApp(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			ref := time.Now()
			if v := c.String("from"); v != "" {
				if ref, err = time.Parse(app.DateLayout, v); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
			}
			weeks := application.Schedule.WindowWeeks
			if c.IsSet("weeks") {
				weeks = c.Int("weeks")
			}

			dates, err := application.AvailableDates(c.Context, ref, weeks, "")
			if err != nil {
				return err
			}
			for _, d := range dates {
				state := "open"
				if !d.Open {
					state = "booked"
				}
				fmt.Fprintf(c.App.Writer, "%s  %-9s  %s  %s\n", d.Date, d.Weekday, d.Time, state)
			}
			return nil
		},
	}
}

// buildApp wires the configured backend, slot locker and schedule.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, func(), error) {
	schedule, err := scheduleFromConfig(cfg.Schedule)
	if err != nil {
		return nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var backend app.Backend
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := app.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to db: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.Up(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		backend = app.NewPostgresBackend(pool)
	case config.BackendSheets:
		srv, err := app.NewSheetsService(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		sb := app.NewSheetsBackend(srv, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName)
		if err := sb.EnsureHeader(ctx); err != nil {
			return nil, nil, err
		}
		backend = sb
	default:
		logger.Warn("using in-memory appointment store; bookings are lost on restart")
		backend = app.NewMemoryBackend()
	}

	var locker app.SlotLocker = app.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		rl := app.NewRedisLocker(rdb, serviceName, 10*time.Second)
		if err := rl.Ping(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = rl
	}

	logger.Info("appointment store ready", "backend", cfg.Backend, "redis_locks", cfg.RedisAddr != "")
	store := app.NewStore(backend, locker, schedule, logger)
	return app.New(store, schedule, logger), cleanup, nil
}

func scheduleFromConfig(sc config.ScheduleConfig) (app.Schedule, error) {
	weekdays, err := sc.ParsedWeekdays()
	if err != nil {
		return app.Schedule{}, err
	}
	tod, err := sc.ParsedTime()
	if err != nil {
		return app.Schedule{}, err
	}
	duration, err := sc.ParsedDuration()
	if err != nil {
		return app.Schedule{}, err
	}
	return app.Schedule{
		Weekdays:    weekdays,
		Time:        tod,
		Duration:    duration,
		WindowWeeks: sc.WindowWeeks,
	}, nil
}

// setupLogger installs the default logger; both formats write to w.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
