package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kamipay/gwselector/internal/cache"
	"github.com/kamipay/gwselector/internal/config"
	"github.com/kamipay/gwselector/internal/decisionlog"
	"github.com/kamipay/gwselector/internal/gwselect"
	"github.com/kamipay/gwselector/internal/logging"
	"github.com/kamipay/gwselector/internal/metrics"
	"github.com/kamipay/gwselector/internal/opsserver"
	"github.com/kamipay/gwselector/internal/repository/cached"
	"github.com/kamipay/gwselector/internal/repository/file"
	"github.com/kamipay/gwselector/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "GWSELECTOR", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	baseRepo, repoCleanup, err := buildRepository(ctx, logger, cfg.Server.Repository)
	if err != nil {
		logger.Error("repository setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer repoCleanup()

	repoCache := buildCache(logger, cfg.Server.Cache)
	repo := wrapWithCache(baseRepo, repoCache, cfg.Server.Cache)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := repoCache.Close(closeCtx); err != nil {
			logger.Error("repository cache shutdown failed", slog.Any("error", err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	decisionRenderer, err := buildDecisionLogRenderer(cfg.Server.DecisionLog)
	if err != nil {
		logger.Error("decision log template setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	var snapshot atomic.Pointer[gwselect.CompiledRuleSet]
	compileOpts := gwselect.CompilerOptions{
		RuleSetID:      cfg.Server.Compile.RuleSetID,
		Debug:          cfg.Server.Compile.Debug,
		Logger:         logger,
		CaptureCtxKeys: cfg.Server.Compile.CaptureCtxKeys,
	}

	if err := recompile(ctx, repo, compileOpts, &snapshot, metricsRecorder, decisionRenderer, logger); err != nil {
		logger.Warn("initial compile produced no active snapshot", slog.Any("error", err))
	}

	if fileRepo, ok := baseRepo.(*file.Repo); ok && cfg.Server.Repository.Watch {
		watcher, err := file.Watch(ctx, fileRepo, func() {
			if err := recompile(ctx, repo, compileOpts, &snapshot, metricsRecorder, decisionRenderer, logger); err != nil {
				logger.Error("recompile after file change failed", slog.Any("error", err))
			}
		}, func(err error) {
			logger.Error("rule file watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("rule file watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	mux := http.NewServeMux()
	handler := opsserver.NewHandler(opsserver.NewSnapshotSource(&snapshot), metricsRecorder)
	mux.Handle("/", handler)

	srv, err := opsserver.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct ops server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ops server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("gwselector shutdown complete")
}

// recompile runs the compiler and, on success, atomically swaps the
// active snapshot. A failed compile leaves the previous snapshot (if
// any) in place so a bad rule set never takes a healthy one offline.
// When decisionRenderer is configured, it also runs one canary Select
// call against an empty context and logs the rendered decision line,
// giving operators an immediate end-to-end signal that the compiled
// snapshot and the decision-log template both work before any real
// traffic reaches a host application built on this snapshot.
func recompile(ctx context.Context, repo gwselect.Repository, opts gwselect.CompilerOptions, snapshot *atomic.Pointer[gwselect.CompiledRuleSet], recorder *metrics.Recorder, decisionRenderer *decisionlog.Renderer, logger *slog.Logger) error {
	start := time.Now()
	compiled, err := gwselect.CompileRuleSet(ctx, repo, opts)
	if err != nil {
		recorder.ObserveCompile("error", time.Since(start))
		return err
	}
	recorder.ObserveCompile("ok", time.Since(start))
	snapshot.Store(compiled)
	logger.Info("rule set compiled",
		slog.Int64("ruleset_id", compiled.RulesetID),
		slog.Int64("version", compiled.Version),
		slog.Int("total_rules", compiled.TotalRules),
	)

	if decisionRenderer != nil {
		var canaryLine string
		_, _ = gwselect.Select(gwselect.Context{}, compiled, gwselect.SelectOptions{
			AllowFallback: true,
			OnDecision:    decisionRenderer.Hook(func(line string) { canaryLine = line }),
		})
		if canaryLine != "" {
			logger.Info("compile canary decision", slog.String("decision_line", canaryLine))
		}
	}
	return nil
}

// buildDecisionLogRenderer constructs the decisionlog.Renderer named by
// configuration: a sandboxed file template when TemplateFile is set,
// otherwise an inline template (falling back to the built-in default
// format when Format is empty).
func buildDecisionLogRenderer(cfg config.DecisionLogConfig) (*decisionlog.Renderer, error) {
	if strings.TrimSpace(cfg.TemplateFile) != "" {
		r, err := decisionlog.NewFileRenderer(cfg.TemplateDir, cfg.TemplateFile, cfg.AllowEnv, cfg.AllowedEnv)
		if err != nil {
			return nil, fmt.Errorf("cmd: decision log file template: %w", err)
		}
		return r, nil
	}
	r, err := decisionlog.NewRenderer(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("cmd: decision log template: %w", err)
	}
	return r, nil
}

// buildRepository selects the gwselect.Repository backend named by
// configuration. It does not apply the TTL cache decorator; that is
// wrapWithCache's job. The returned cleanup func is a no-op for both
// supported backends, which hold no resources that need closing.
func buildRepository(ctx context.Context, logger *slog.Logger, cfg config.RepositoryConfig) (gwselect.Repository, func(), error) {
	var repo gwselect.Repository
	noop := func() {}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using empty in-memory repository; no rule set will compile until one is supplied programmatically")
		repo = memory.New(gwselect.RuleSet{}, nil, nil)
	case "file":
		fileRepo, err := file.New(cfg.FilePath)
		if err != nil {
			return nil, noop, fmt.Errorf("cmd: file repository: %w", err)
		}
		logger.Info("using file repository", slog.String("path", cfg.FilePath), slog.Bool("watch", cfg.Watch))
		repo = fileRepo
	default:
		return nil, noop, fmt.Errorf("cmd: unsupported repository backend: %s", cfg.Backend)
	}

	return repo, noop, nil
}

// buildCache constructs the repository cache backend named by
// configuration, falling back to memory on misconfiguration so a bad
// Redis address degrades the process rather than crashing it.
func buildCache(logger *slog.Logger, cfg config.ServerCacheConfig) cache.Cache {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory repository cache")
		return cache.NewMemory()
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return cache.NewMemory()
		}
		logger.Info("using redis repository cache", slog.String("address", cfg.Redis.Address))
		return redisCache
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory()
	}
}

// wrapWithCache always applies the TTL cache decorator around repo,
// using the configured TTL for every method, keeping cmd free of the
// cached package's TTLConfig plumbing.
func wrapWithCache(repo gwselect.Repository, c cache.Cache, cfg config.ServerCacheConfig) gwselect.Repository {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	return cached.New(repo, c, cached.TTLConfig{
		ActiveRuleSet: ttl,
		RuleSetByID:   ttl,
		Rules:         ttl,
		Gateways:      ttl,
	})
}
