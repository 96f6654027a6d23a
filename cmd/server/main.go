package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/asset-ledger/internal/adapter/handler"
	"github.com/rl1809/asset-ledger/internal/adapter/sink"
	"github.com/rl1809/asset-ledger/internal/adapter/storage"
	"github.com/rl1809/asset-ledger/internal/config"
	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/core/service"
	"github.com/rl1809/asset-ledger/internal/port"
)

// stores is the persistence for one backend.
type stores struct {
	assets   port.InvariantStore[domain.Asset]
	licenses port.InvariantStore[domain.License]
	groups   port.InvariantStore[domain.AssetGroup]
	mongoDB  *mongo.Database
	closers  []func() error
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func main() {
	var flags config.Flags
	fs := pflag.NewFlagSet("asset-ledger", pflag.ExitOnError)
	flags.AddFlags(fs)
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table, err := cfg.TransitionTable()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Event delivery
	dispatcher := sink.NewDispatcher(cfg.Dispatcher.QueueSize, logger)
	var history handler.HistoryReader
	if st.mongoDB != nil {
		auditLog := sink.NewMongoAuditLog(st.mongoDB)
		dispatcher.AddAudit(auditLog)
		history = auditLog
	} else {
		dispatcher.AddAudit(sink.NewAuditLog(logger))
	}
	dispatcher.AddNotifier(sink.NewLogNotifier(logger))
	dispatcher.AddHandler(service.NewMembershipProjector(st.assets, st.groups, logger, cfg.Allocator.MaxAttempts))
	dispatcher.Start(cfg.Dispatcher.Workers)
	logger.Info("started dispatcher", zap.Int("workers", cfg.Dispatcher.Workers))

	sinks := service.Sinks{Audit: dispatcher, Notify: dispatcher}
	lifecycle := service.NewLifecycleManager(st.assets, table, sinks, logger, service.WithGroupStore(st.groups))
	seats := service.NewLicenseSeats(st.licenses, sinks, logger, cfg.Allocator.MaxAttempts)
	stock := service.NewStockTracker(st.groups, sinks, logger, cfg.Allocator.MaxAttempts)

	// gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(logger)))
		handler.RegisterAllocationServer(grpcServer, handler.NewGRPCHandler(lifecycle, seats, stock, logger))

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
		}
		go func() {
			logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	// HTTP server
	var httpServer *http.Server
	if cfg.HTTP.Addr != "" {
		httpServer = &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: handler.NewHTTPHandler(lifecycle, seats, stock, history, logger).Router(),
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("HTTP server error", zap.Error(err))
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}

	// Drain pending events before the stores go away
	dispatcher.Close()
	logger.Info("dispatcher stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		rc := cfg.Store.Redis
		rdb := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			PoolSize: rc.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", rc.Addr))
		return &stores{
			assets:   storage.NewRedisStore[domain.Asset](rdb, "asset"),
			licenses: storage.NewRedisLicenseStore(rdb),
			groups:   storage.NewRedisStore[domain.AssetGroup](rdb, "group"),
			closers:  []func() error{rdb.Close},
		}, nil

	case config.BackendMySQL:
		mc := cfg.Store.MySQL
		db, err := sql.Open("mysql", mc.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(mc.MaxOpenConns)
		db.SetMaxIdleConns(mc.MaxIdleConns)
		db.SetConnMaxLifetime(mc.ConnMaxLifetime)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to mysql")
		return &stores{
			assets:   storage.NewMySQLStore[domain.Asset](db, "asset"),
			licenses: storage.NewMySQLStore[domain.License](db, "license"),
			groups:   storage.NewMySQLStore[domain.AssetGroup](db, "group"),
			closers:  []func() error{db.Close},
		}, nil

	case config.BackendMongo:
		mc := cfg.Store.Mongo
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mc.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			client.Disconnect(context.Background())
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		logger.Info("connected to mongo", zap.String("database", mc.Database))
		db := client.Database(mc.Database)
		return &stores{
			assets:   storage.NewMongoStore[domain.Asset](db, "assets", "asset"),
			licenses: storage.NewMongoStore[domain.License](db, "licenses", "license"),
			groups:   storage.NewMongoStore[domain.AssetGroup](db, "asset_groups", "group"),
			mongoDB:  db,
			closers: []func() error{func() error {
				return client.Disconnect(context.Background())
			}},
		}, nil
	}

	logger.Warn("using in-memory store; state is lost on exit")
	return &stores{
		assets:   storage.NewMemoryStore[domain.Asset]("asset"),
		licenses: storage.NewMemoryStore[domain.License]("license"),
		groups:   storage.NewMemoryStore[domain.AssetGroup]("group"),
	}, nil
}
