package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carebridge/careplan/internal/config"
	"github.com/carebridge/careplan/internal/domain/careplan"
	"github.com/carebridge/careplan/internal/domain/orders"
	"github.com/carebridge/careplan/internal/llm"
	"github.com/carebridge/careplan/internal/platform/db"
	"github.com/carebridge/careplan/internal/platform/middleware"
	"github.com/carebridge/careplan/internal/queue"
	"github.com/carebridge/careplan/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careplan-server",
		Short: "Order intake and care plan generation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			withWorker, _ := cmd.Flags().GetBool("with-worker")
			return runServer(withWorker)
		},
	}
	cmd.Flags().Bool("with-worker", false, "Run generation workers in-process alongside the API")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the care plan generation workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// deps holds the wired application components shared by the API server and
// the workers.
type deps struct {
	cfg       *config.Config
	log       zerolog.Logger
	pool      *pgxpool.Pool
	patients  orders.PatientRepository
	providers orders.ProviderRepository
	orderRepo orders.OrderRepository
	planRepo  careplan.Repository
	q         queue.Queue
	orderSvc  *orders.Service
	planSvc   *careplan.Service
	generator llm.Generator
	model     string
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	q, err := buildQueue(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	patients := orders.NewPatientRepoPG(pool)
	providers := orders.NewProviderRepoPG(pool)
	orderRepo := orders.NewOrderRepoPG(pool)
	planRepo := careplan.NewRepoPG(pool)

	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	orderSvc := orders.NewService(txRunner, patients, providers, orderRepo, queueEnqueuer{q}, logger)
	planSvc := careplan.NewService(txRunner, orderSvc, orderRepo, planRepo, queueEnqueuer{q}, logger)

	gen, model, err := buildGenerator(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &deps{
		cfg:       cfg,
		log:       logger,
		pool:      pool,
		patients:  patients,
		providers: providers,
		orderRepo: orderRepo,
		planRepo:  planRepo,
		q:         q,
		orderSvc:  orderSvc,
		planSvc:   planSvc,
		generator: gen,
		model:     model,
	}, nil
}

func (d *deps) close() {
	_ = d.q.Close()
	d.pool.Close()
}

// queueEnqueuer adapts queue.Queue to the narrower orders.Enqueuer the
// services depend on.
type queueEnqueuer struct {
	q queue.Queue
}

func (e queueEnqueuer) Enqueue(ctx context.Context, id uuid.UUID) error {
	return e.q.Enqueue(ctx, id)
}

func buildQueue(cfg *config.Config, pool *pgxpool.Pool) (queue.Queue, error) {
	switch cfg.QueueDriver {
	case "redis":
		return queue.NewRedisQueue(cfg.RedisURL, cfg.QueueVisibilityTimeout())
	case "memory":
		return queue.NewMemoryQueue(cfg.QueueVisibilityTimeout()), nil
	default:
		return queue.NewPostgresQueue(pool, cfg.QueueVisibilityTimeout()), nil
	}
}

func buildGenerator(cfg *config.Config, logger zerolog.Logger) (llm.Generator, string, error) {
	if cfg.GeminiAPIKey == "" {
		if cfg.IsProduction() {
			return nil, "", fmt.Errorf("GEMINI_API_KEY is required in production")
		}
		logger.Warn().Msg("no GEMINI_API_KEY set, using static generator")
		return &llm.StaticGenerator{}, "static", nil
	}
	gen, err := llm.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, logger)
	if err != nil {
		return nil, "", err
	}
	return gen, gen.Model(), nil
}

func runServer(withWorker bool) error {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = orders.ErrorHandler

	e.Use(middleware.Recovery(d.log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.log))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(d.pool))

	apiV1 := e.Group("/api/v1")
	orders.NewHandler(d.orderSvc).RegisterRoutes(apiV1)
	careplan.NewHandler(d.planSvc).RegisterRoutes(apiV1)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if withWorker {
		pool := newWorkerPool(d)
		go pool.Run(workerCtx)
		d.log.Info().Int("workers", d.cfg.WorkerCount).Msg("in-process workers started")
	}

	addr := ":" + d.cfg.Port
	go func() {
		d.log.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			d.log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	d.log.Info().Msg("shutting down server")
	stopWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		d.log.Fatal().Err(err).Msg("server shutdown failed")
	}
	d.log.Info().Msg("server stopped")
	return nil
}

func runWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	pool := newWorkerPool(d)
	d.log.Info().Int("workers", d.cfg.WorkerCount).Msg("workers started")
	pool.Run(ctx)
	d.log.Info().Msg("workers stopped")
	return nil
}

func newWorkerPool(d *deps) *worker.Pool {
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, d.pool, fn)
	}
	return worker.NewPool(d.q, d.orderRepo, d.orderSvc, d.planRepo, d.generator, txRunner,
		worker.Config{
			Workers:           d.cfg.WorkerCount,
			GenerationTimeout: d.cfg.GenerationTimeout(),
			Retry: worker.RetryPolicy{
				MaxAttempts:    d.cfg.GenerationMaxAttempts,
				InitialBackoff: time.Duration(d.cfg.GenerationBackoffSeconds) * time.Second,
				Multiplier:     2,
				MaxBackoff:     time.Minute,
			},
			Model: d.model,
		}, d.log)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}
