// Command econtract-server serves the contract API over gRPC and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/econtract/internal/auth"
	"github.com/and161185/econtract/internal/config"
	"github.com/and161185/econtract/internal/events"
	"github.com/and161185/econtract/internal/limiter"
	"github.com/and161185/econtract/internal/migrate"
	"github.com/and161185/econtract/internal/observability"
	"github.com/and161185/econtract/internal/reconcile"
	"github.com/and161185/econtract/internal/repository"
	"github.com/and161185/econtract/internal/repository/memory"
	"github.com/and161185/econtract/internal/repository/postgres"
	"github.com/and161185/econtract/internal/repository/sqlite"
	"github.com/and161185/econtract/internal/rpc"
	grpcserver "github.com/and161185/econtract/internal/server/grpc"
	httpserver "github.com/and161185/econtract/internal/server/http"
	"github.com/and161185/econtract/internal/service"
	"github.com/and161185/econtract/internal/storage"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const serviceName = "econtract"

// main loads configuration and runs the servers until SIGINT/SIGTERM.
func main() {
	// Flags override the config file and environment; validation runs after both.
	cfgPath := flag.String("config", "", "path to YAML config")
	envFile := flag.String("env-file", ".env", "dotenv file with ECONTRACT_* variables")
	httpAddr := flag.String("http-addr", "", "HTTP listen address")
	grpcAddr := flag.String("grpc-addr", "", "gRPC listen address")
	driver := flag.String("store", "", "store driver: memory|postgres|sqlite")
	dsn := flag.String("dsn", "", "store DSN")
	dev := flag.Bool("dev", false, "development logging and gRPC reflection")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-addr":
			cfg.Server.HTTPAddr = *httpAddr
		case "grpc-addr":
			cfg.Server.GRPCAddr = *grpcAddr
		case "store":
			cfg.Store.Driver = *driver
		case "dsn":
			cfg.Store.DSN = *dsn
		case "dev":
			cfg.Server.Dev = *dev
			if *dev {
				cfg.Log.Mode = "dev"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log.Mode)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("store", cfg.Store.Driver),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(mode string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if mode == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			ServiceName: serviceName,
			Version:     version,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRatio: cfg.Tracing.SampleRatio,
		}, logger)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	opts := []service.Option{service.WithLogger(logger)}

	if cfg.Limiter.Enabled {
		if st.pg != nil {
			opts = append(opts, service.WithLimiter(limiter.NewPG(st.pg.Pool, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)))
		} else {
			opts = append(opts, service.WithLimiter(limiter.NewMemory(cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)))
		}
	}

	if cfg.Events.RedisAddr != "" {
		pub, err := events.NewRedisPublisher(ctx, cfg.Events.RedisAddr, cfg.Events.Channel, logger)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, service.WithPublisher(pub))
	}

	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewMinioStore(storage.Config{
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			UseSSL:        cfg.Storage.UseSSL,
			ExpireDays:    cfg.Storage.ExpireDays,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("storage bucket: %w", err)
		}
		opts = append(opts, service.WithObjectStore(store))
	}

	// Services
	contracts := service.NewContractService(st.repo, service.Config{
		SigningRule:       cfg.SigningRule(),
		StrictTransitions: cfg.Service.StrictTransitions,
		AutoActivate:      cfg.Service.AutoActivate,
		MaxList:           cfg.Service.MaxList,
	}, opts...)
	verifier := auth.NewVerifier([]byte(cfg.Auth.JWTKey), cfg.Auth.Leeway)

	// gRPC server with interceptors
	gopts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(
		grpcserver.RecoverUnary(logger),
		grpcserver.LoggingUnary(logger),
		grpcserver.AuthUnary(verifier),
	)}
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		gopts = append(gopts, grpc.Creds(creds))
	}
	gs := grpc.NewServer(gopts...)
	rpc.RegisterContractServiceServer(gs, grpcserver.New(contracts, logger))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Server.Dev {
		reflection.Register(gs)
	}

	var tracedName string
	if cfg.Tracing.Enabled {
		tracedName = serviceName
	}
	hsrv := httpserver.NewServer(cfg.Server.HTTPAddr, httpserver.RouterConfig{
		Contracts:      contracts,
		Verifier:       verifier,
		Log:            logger,
		AllowOrigins:   cfg.Server.AllowOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		MaxUpload:      cfg.Server.MaxUploadMB << 20,
		ServiceName:    tracedName,
	})

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr), zap.Bool("tls", cfg.Server.TLSCert != ""))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		return hsrv.ListenAndServe()
	})
	g.Go(func() error {
		reconcile.New(contracts, cfg.Reconcile.Interval, logger).Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		shutdownServers(gs, hsrv, cfg.Server.ShutdownTimeout, logger)
		return nil
	})
	return g.Wait()
}

// shutdownServers stops both servers gracefully, forcing gRPC after timeout.
func shutdownServers(gs *grpc.Server, hsrv *httpserver.Server, timeout time.Duration, logger *zap.Logger) {
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := hsrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-sctx.Done():
		gs.Stop()
	}
}

type store struct {
	repo  repository.ContractRepository
	pg    *postgres.DB
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if cfg.Store.Migrate {
			if err := migrate.Up(ctx, cfg.Store.DSN); err != nil {
				return nil, fmt.Errorf("migrate up: %w", err)
			}
			if v, err := migrate.Version(ctx, cfg.Store.DSN); err == nil {
				logger.Info("schema version", zap.Int64("version", v))
			}
		}
		db, err := postgres.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		return &store{repo: postgres.NewContractRepo(db), pg: db, close: db.Close}, nil
	case config.DriverSQLite:
		gdb, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return &store{repo: sqlite.NewContractRepo(gdb), close: closeFn}, nil
	default:
		logger.Warn("using in-memory store; data is lost on exit")
		return &store{repo: memory.NewContractRepo(), close: func() {}}, nil
	}
}
