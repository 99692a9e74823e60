package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commentbot/packages/browser"
	"commentbot/packages/classifier"
	"commentbot/packages/config"
	"commentbot/packages/domain"
	"commentbot/packages/generator"
	"commentbot/packages/guard"
	"commentbot/packages/logging"
	"commentbot/packages/metrics"
	"commentbot/packages/scanner"
	"commentbot/packages/store"
	"commentbot/packages/worker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// managerSessions adapts the browser manager to the worker's and scanner's
// session ports. Sessions are looked up per call, never captured, so a
// recreated session is visible on the next operation.
type managerSessions struct {
	m *browser.Manager
}

func (a managerSessions) Posting(ctx context.Context) (worker.PostingSession, error) {
	sess, ok := a.m.Session(domain.RolePost)
	if !ok {
		return nil, domain.NewFault(domain.FaultSessionUnavailable, "posting session not started")
	}
	return sess, nil
}

func (a managerSessions) Scanning(ctx context.Context) (scanner.FeedSession, error) {
	sess, ok := a.m.Session(domain.RoleScan)
	if !ok {
		return nil, domain.NewFault(domain.FaultSessionUnavailable, "scan session not started")
	}
	return sess, nil
}

func (a managerSessions) FlagUnhealthy(role domain.SessionRole) {
	a.m.FlagUnhealthy(role)
}

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("FATAL: Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogFile, cfg.LogLevel, "commentbot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("--- Starting CommentBot ---")

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		slog.Error("Failed to load policy", "error", err)
		os.Exit(1)
	}

	go metrics.ExposeMetrics(cfg.MetricsAddr)

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("Store: PostgreSQL")
	} else {
		st = store.NewMemoryStore()
		slog.Warn("Store: in-memory (DATABASE_URL unset); state is lost on restart")
	}
	defer st.Close()

	if err := store.SeedTemplates(ctx, st, policy.Templates); err != nil {
		slog.Error("Failed to seed templates", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
	}
	g := guard.New(rdb, cfg.SeenSetKey, guard.Limits{
		MaxPostsPerDay:    cfg.MaxPostsPerDay,
		MinInterPostDelay: cfg.MinInterPostDelay,
		MaxInterPostDelay: cfg.MaxInterPostDelay,
	})

	manager := browser.NewManager(ctx, browser.Config{
		Headless:      cfg.Headless,
		UserDataDir:   cfg.UserDataDir,
		CookieFile:    cfg.CookieFile,
		LoginEmail:    cfg.LoginEmail,
		LoginPassword: cfg.LoginPassword,
		FeedURL:       cfg.FeedURL,
		Retries:       cfg.SessionRetries,
		Backoff:       cfg.SessionBackoff,
		PageTimeout:   cfg.ScanPageTimeout,
		Locators:      policy.Locators,
		Pacing:        policy.Pacing,
	})
	defer manager.Close()

	if err := manager.Start(ctx, domain.RoleScan, domain.RolePost); err != nil {
		slog.Error("Failed to start browser sessions", "error", err)
		os.Exit(1)
	}

	var ai generator.AIClient
	if cfg.AIGeneration {
		gemini, err := generator.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Warn("AI generation unavailable, using templates only", "error", err)
		} else {
			ai = gemini
		}
	}
	gen := generator.New(st, ai, policy.Variations, nil)
	cls := classifier.New(policy)

	sessions := managerSessions{m: manager}
	appWorker := worker.New(st, sessions, g, cfg.QueueSize, cfg.StatsEvery, cfg.ImageAttachments)
	appScanner := scanner.New(cfg.FeedURL, cfg.ScanInterval, policy.Feed, sessions, cls, gen, st, g)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return appWorker.Run(gctx) })
	group.Go(func() error { return appScanner.Run(gctx) })
	group.Go(func() error {
		manager.Supervise(gctx, time.Minute)
		return nil
	})
	group.Go(func() error { return appWorker.ProcessPendingLoop(gctx, 30*time.Second) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Run group exited", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
