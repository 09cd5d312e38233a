package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sehgal-vip/travel-agent/agents"
	"github.com/sehgal-vip/travel-agent/config"
	"github.com/sehgal-vip/travel-agent/contrib/provider"
	"github.com/sehgal-vip/travel-agent/contrib/tokenizer/tiktoken"
	"github.com/sehgal-vip/travel-agent/dispatcher"
	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/memory"
	"github.com/sehgal-vip/travel-agent/middleware"
	"github.com/sehgal-vip/travel-agent/middleware/errorhandler"
	"github.com/sehgal-vip/travel-agent/middleware/limiter"
	"github.com/sehgal-vip/travel-agent/middleware/logger"
	"github.com/sehgal-vip/travel-agent/middleware/timeout"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/pkg/telemetry"
	"github.com/sehgal-vip/travel-agent/router"
	"github.com/sehgal-vip/travel-agent/runner"
	"github.com/sehgal-vip/travel-agent/session"
	"github.com/sehgal-vip/travel-agent/session/store"
)

// app is the wired object graph.
type app struct {
	cfg      *config.Config
	sessions *session.Manager
	memory   *memory.Manager
	runner   *runner.Runner
	closers  []func(context.Context) error
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// openRepository connects the configured conversation store.
func openRepository(ctx context.Context, cfg config.StoreConfig) (session.Repository, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Backend {
	case config.StoreRedis:
		s := store.NewRedisStore(&store.RedisConfig{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
			Prefix: cfg.Redis.Prefix, TTL: cfg.Redis.TTL,
		})
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.StorePostgres:
		p := cfg.Postgres
		s, err := store.NewPostgresStore(ctx, &store.PostgresConfig{
			Host: p.Host, Port: p.Port, User: p.User, Password: p.Password,
			DBName: p.DBName, SSLMode: p.SSLMode, Table: p.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.StoreMongo:
		s, err := store.NewMongoStore(ctx, &store.MongoConfig{
			URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return store.NewInMemoryStore(), noop, nil
	}
}

// newMemory builds the memory manager, counting tokens with tiktoken when
// an encoding is configured.
func newMemory(cfg *config.Config, log *slog.Logger) (*memory.Manager, memory.TokenCounter) {
	opts := []memory.Option{memory.WithNoteCaps(cfg.Memory.MaxPinned, cfg.Memory.MaxEphemeral)}
	var counter memory.TokenCounter
	if cfg.Memory.Encoding != "" {
		tok, err := tiktoken.New(cfg.Memory.Encoding)
		if err != nil {
			log.Warn("tiktoken unavailable, using character estimate", "encoding", cfg.Memory.Encoding, "error", err)
		} else {
			counter = tok
			opts = append(opts, memory.WithTokenCounter(tok))
		}
	}
	return memory.NewManager(cfg.DataDir, opts...), counter
}

// invocationChain wraps every handler call: panics become errors, calls are
// logged, bounded per handler and given a deadline.
func invocationChain(cfg *config.Config) *middleware.MiddlewareChain {
	log := logging.WithComponent("handler")
	return middleware.NewChain(
		errorhandler.NewRecoverer(),
		errorhandler.NewErrorHandler(func(ctx *middleware.Context, err error) error {
			if errors.Is(err, errorskg.ErrRetriesExhausted) {
				log.Warn("text generation unavailable", "handler", ctx.Handler, "error", err)
			}
			return err
		}),
		logger.New(log),
		limiter.NewConcurrencyLimiter(cfg.Dispatcher.MaxPerHandler),
		timeout.New(cfg.Dispatcher.HandlerTimeout),
	)
}

func retryPolicy(cfg config.LLMConfig) llm.Retry {
	return llm.Retry{
		MaxAttempts: cfg.MaxRetries,
		Backoff:     cfg.Backoff,
		Timeout:     cfg.Timeout,
		Logger:      logging.WithComponent("llm"),
	}
}

// newApp wires the configured components.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	log := logging.WithComponent("app")
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Disable:     cfg.Telemetry.Disable,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	repo, closeRepo, err := openRepository(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)
	a.sessions = session.NewManager(repo)

	gen, err := provider.New(ctx, provider.Config{
		Name:        cfg.Provider.Name,
		APIKey:      cfg.Provider.APIKey,
		Model:       cfg.Provider.Model,
		BaseURL:     cfg.Provider.BaseURL,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
	})
	if err != nil {
		return nil, err
	}
	retry := retryPolicy(cfg.LLM)

	mem, counter := newMemory(cfg, log)
	a.memory = mem

	agentOpts := []agents.Option{agents.WithRetry(retry), agents.WithTokenCounter(counter)}
	if cfg.Memory.Enabled {
		agentOpts = append(agentOpts, agents.WithMemory(mem))
	}
	registry := handler.NewRegistry()
	if err := agents.Register(registry, gen, agentOpts...); err != nil {
		return nil, err
	}
	if err := registry.Register(handler.Librarian, agents.NewLibrarian(mem)); err != nil {
		return nil, err
	}

	rt := router.New(registry,
		router.WithClassifier(agents.NewClassifier(gen, retry, agents.Roster())),
		router.WithChatter(agents.NewChatter(gen, retry)),
		router.WithMaxDepth(cfg.Dispatcher.MaxLoopbackDepth),
	)

	dispOpts := []dispatcher.Option{dispatcher.WithMiddleware(invocationChain(cfg))}
	runOpts := []runner.Option{}
	if cfg.Memory.Enabled {
		dispOpts = append(dispOpts,
			dispatcher.WithMemory(mem),
			dispatcher.WithNotetaker(agents.NewNotetaker(gen, retry)),
		)
		runOpts = append(runOpts, runner.WithRetirer(mem))
	}
	a.runner = runner.New(dispatcher.New(registry, rt, dispOpts...), a.sessions, cfg.MaxConcurrency, runOpts...)

	log.Info("travel agent ready",
		"provider", cfg.Provider.Name,
		"store", cfg.Store.Backend,
		"handlers", registry.Names(),
		"memory", cfg.Memory.Enabled,
	)
	return a, nil
}
