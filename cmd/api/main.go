package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/bank-es/internal/api"
	"github.com/example/bank-es/internal/auth"
	"github.com/example/bank-es/internal/command"
	"github.com/example/bank-es/internal/config"
	"github.com/example/bank-es/internal/domain/snapshot"
	"github.com/example/bank-es/internal/domain/user"
	"github.com/example/bank-es/internal/infrastructure/kafka"
	"github.com/example/bank-es/internal/infrastructure/nats"
	"github.com/example/bank-es/internal/infrastructure/store"
	"github.com/example/bank-es/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	events    store.EventStoreInterface
	snapshots store.SnapshotStoreInterface
	users     store.UserStoreInterface
	numbers   store.AccountNumberStoreInterface
	closers   []io.Closer
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher, closePublisher, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheus(registry)

	strategy, err := snapshot.NewEventCount(cfg.SnapshotInterval)
	if err != nil {
		return err
	}

	commands, err := command.NewHandler(command.Config{
		EventStore:     st.events,
		SnapshotStore:  st.snapshots,
		Strategy:       strategy,
		AccountNumbers: st.numbers,
		Publisher:      publisher,
		Logger:         logger,
		Metrics:        recorder,
	})
	if err != nil {
		return err
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	users := user.NewService(st.users, auth.NewHasher(auth.DefaultCost), logger)

	router := api.NewRouter(api.RouterConfig{
		Handlers:     api.NewHandlers(commands, logger),
		AuthHandlers: api.NewAuthHandlers(users, jwtService, logger),
		JWTService:   jwtService,
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			"addr", cfg.HTTPAddr,
			"event_store", cfg.EventStore,
			"snapshot_store", cfg.SnapshotStore,
			"snapshot_interval", cfg.SnapshotInterval,
			"publisher", cfg.Publisher,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.EventStore {
	case config.StoreMemory:
		st.events = store.NewEventStore()
		st.snapshots = store.NewSnapshotStore()
		st.users = store.NewUserStore()
		st.numbers = store.NewAccountNumberStore()

	case config.StorePostgres:
		db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db)
		if err := store.EnsurePostgresSchema(ctx, db); err != nil {
			st.Close()
			return nil, err
		}
		st.events = store.NewPostgresEventStore(db)
		st.snapshots = store.NewPostgresSnapshotStore(db)
		st.users = store.NewPostgresUserStore(db)
		st.numbers = store.NewPostgresAccountNumberStore(db)

	case config.StoreSQLite:
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db)
		st.events = store.NewSQLiteEventStore(db)
		st.snapshots = store.NewSQLiteSnapshotStore(db)
		st.users = store.NewSQLiteUserStore(db)
		st.numbers = store.NewSQLiteAccountNumberStore(db)

	case config.StoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		st.events = store.NewDynamoEventStore(client, cfg.DynamoEventsTable)
		st.snapshots = store.NewDynamoSnapshotStore(client, cfg.DynamoSnapshotsTable)
		st.users = store.NewDynamoUserStore(client, cfg.DynamoUsersTable)
		st.numbers = store.NewDynamoAccountNumberStore(client, cfg.DynamoAccountNumbersTable)
	}

	if cfg.SnapshotStore == config.SnapshotsRedis {
		client, err := store.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, client)
		st.snapshots = store.NewRedisSnapshotStore(client)
	}

	return st, nil
}

func openPublisher(ctx context.Context, cfg config.Config) (command.Publisher, func(), error) {
	switch cfg.Publisher {
	case config.PublisherKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		return producer, func() { _ = producer.Close() }, nil

	case config.PublisherNATS:
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := nats.NewPublisher(ctx, nc, cfg.NATSStream, cfg.NATSSubjectPrefix)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return publisher, func() { _ = nc.Drain() }, nil

	default:
		return nil, func() {}, nil
	}
}
