package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/config"
	"github.com/rx3lixir/echonet/internal/limiter"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/internal/presence"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/internal/server"
	"github.com/rx3lixir/echonet/internal/session"
	"github.com/rx3lixir/echonet/internal/storage/postgres"
	"github.com/rx3lixir/echonet/internal/storage/s3"
	"github.com/rx3lixir/echonet/internal/transcript"
	"github.com/rx3lixir/echonet/internal/user"
	"github.com/rx3lixir/echonet/internal/websocket"
	"github.com/rx3lixir/echonet/pkg/logger"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	rooms    room.Store
	messages message.Store
	users    user.Store
	pool     *pgxpool.Pool // nil for the memory driver
}

func main() {
	configPath := pflag.StringP("config", "c", "internal/config/config.yaml", "path to the config file")
	pflag.Parse()

	// Initializing and validating config
	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting config file: %v\n", err)
		os.Exit(1)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initializing logger
	log := logger.Must(logger.New(logger.Config{
		Env:   c.GeneralParams.Env,
		Level: c.GeneralParams.LogLevel,
	}))

	log.Info(
		"Config loaded successfully!",
		"env", c.GeneralParams.Env,
		"http_server_address", c.HttpServerParams.GetAddress(),
		"db_driver", c.MainDBParams.Driver,
		"redis", c.RedisParams.Enabled,
		"s3", c.S3Params.Enabled,
	)

	if err := run(c, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(c *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, c, log)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	health := map[string]server.HealthCheck{}
	if st.pool != nil {
		health["postgres"] = func(ctx context.Context) error { return postgres.Health(ctx, st.pool) }
	}

	// Send rate limiting and token revocation: Redis when configured,
	// otherwise in process
	var (
		strategy limiter.Strategy
		local    *limiter.LocalSlidingWindow
		revoked  auth.Denylist
	)
	if c.RedisParams.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisParams.Addr,
			Password: c.RedisParams.Password,
			DB:       c.RedisParams.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		strategy = limiter.NewRedisFixedWindow(rdb)
		revoked = auth.NewRedisDenylist(rdb)
		log.Info("Redis rate limiter and token denylist enabled", "addr", c.RedisParams.Addr)
	} else {
		local = limiter.NewLocalSlidingWindow()
		strategy = local
		revoked = auth.NewMemoryDenylist()
	}
	sendLimiter := limiter.NewManager(strategy, c.ChatParams.SendRateLimit, c.ChatParams.SendRateWindow)

	coord := session.NewCoordinator(session.Deps{
		Rooms:    st.rooms,
		Messages: st.messages,
		Registry: presence.NewRegistry(),
		Reaper:   presence.NewReaper(),
		Limiter:  sendLimiter,
		Users:    st.users,
		Log:      log.Component("session"),
	}, session.Config{
		GracePeriod:  c.ChatParams.GracePeriod,
		HistoryLimit: c.ChatParams.HistoryLimit,
		XPPerMessage: c.ChatParams.XPPerMessage,
		MessageTTL:   c.ChatParams.MessageTTL,
		StoreTimeout: c.MainDBParams.DBTimeout(),
	})
	defer coord.Shutdown()

	// JWT Service intialization
	authService := auth.NewService(
		c.GeneralParams.SecretKey,
		c.ChatParams.AccessTokenTTL,
		c.ChatParams.RefreshTokenTTL,
	)

	var transcriptHandler *transcript.Handler
	if c.S3Params.Enabled {
		client, err := s3.NewClient(c.S3Params)
		if err != nil {
			return err
		}
		if err := s3.EnsureBucket(ctx, client, c.S3Params.BucketName); err != nil {
			return err
		}

		exporter := transcript.NewExporter(
			coord,
			transcript.NewMinIOStore(client, c.S3Params.BucketName),
			transcript.DefaultURLExpiry,
			log.Component("transcript"),
		)
		coord.OnDelete(exporter.RemoveRoom)
		health["s3"] = func(ctx context.Context) error { return s3.Health(ctx, client, c.S3Params.BucketName) }
		transcriptHandler = transcript.NewHandler(exporter, log.Component("transcript"))
		log.Info("Transcript export enabled", "bucket", c.S3Params.BucketName)
	}

	wsHandler := websocket.NewHandler(coord, authService, c.HttpServerParams.AllowedOrigins, log.Component("websocket"))

	router := server.NewRouter(server.RouterConfig{
		UserHandler:       user.NewHandler(st.users, authService, revoked, log.Component("user"), c.MainDBParams.DBTimeout()),
		RoomHandler:       room.NewHandler(coord, log.Component("room")),
		TranscriptHandler: transcriptHandler,
		WSHandler:         wsHandler,
		AuthService:       authService,
		AllowedOrigins:    c.HttpServerParams.AllowedOrigins,
		Health:            health,
		Log:               log.Component("http"),
	})

	srv := server.New(c.HttpServerParams.GetAddress(), router, log.Component("http"))
	srv.RegisterOnShutdown(wsHandler.CloseAll)

	var extra []func(context.Context)
	if local != nil {
		window := c.ChatParams.SendRateWindow
		extra = append(extra, func(context.Context) { local.Prune(window) })
	}
	sweeper := session.NewSweeper(coord, c.ChatParams.SweepInterval, log.Component("sweeper"), extra...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("Server stopped")
	return nil
}

func openStores(ctx context.Context, c *config.Config, log *logger.Logger) (*stores, error) {
	if c.MainDBParams.Driver == "memory" {
		log.Warn("Using in-memory storage, nothing survives a restart")
		return &stores{
			rooms:    room.NewMemoryStore(),
			messages: message.NewMemoryStore(c.ChatParams.MessageTTL),
			users:    user.NewMemoryStore(),
		}, nil
	}

	// Creating database connection and init Postgres
	pool, err := postgres.NewPool(ctx, c.MainDBParams.GetDSN(), c.MainDBParams.DBTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool for %s: %w", c.MainDBParams.Name, err)
	}

	log.Info(
		"Database connection established",
		"host", c.MainDBParams.Host,
		"db", c.MainDBParams.Name,
	)

	if err := postgres.Migrate(ctx, pool, log.Component("migrate")); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &stores{
		rooms:    room.NewPostgresStore(pool),
		messages: message.NewPostgresStore(pool, c.ChatParams.MessageTTL),
		users:    user.NewPostgresStore(pool),
		pool:     pool,
	}, nil
}
