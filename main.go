package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/aster/config"
	actorrepo "github.com/Ramsey-B/aster/internal/repositories/actor"
	identifierrepo "github.com/Ramsey-B/aster/internal/repositories/identifier"
	matchdecisionrepo "github.com/Ramsey-B/aster/internal/repositories/matchdecision"
	mergerecordrepo "github.com/Ramsey-B/aster/internal/repositories/mergerecord"
	reviewrepo "github.com/Ramsey-B/aster/internal/repositories/review"
	signalrepo "github.com/Ramsey-B/aster/internal/repositories/signal"
	signallinkrepo "github.com/Ramsey-B/aster/internal/repositories/signallink"
	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/dupscan"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/kafka"
	"github.com/Ramsey-B/aster/pkg/matching"
	"github.com/Ramsey-B/aster/pkg/merging"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/processor"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/review"
	actorroute "github.com/Ramsey-B/aster/pkg/routes/actor"
	duplicateroute "github.com/Ramsey-B/aster/pkg/routes/duplicate"
	"github.com/Ramsey-B/aster/pkg/routes/health"
	mergeroute "github.com/Ramsey-B/aster/pkg/routes/merge"
	reviewroute "github.com/Ramsey-B/aster/pkg/routes/review"
	signalroute "github.com/Ramsey-B/aster/pkg/routes/signal"
	"github.com/Ramsey-B/aster/pkg/scoring"
	"github.com/Ramsey-B/aster/pkg/startup"
	"github.com/Ramsey-B/aster/pkg/store"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// version is set at build time
var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to shut down tracer provider")
	}
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	// Postgres
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlxDB.Close()
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)

	// Redis
	rdb, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()
	locker := redis.NewLocker(rdb, "aster:")

	// Repositories
	actorRepo := actorrepo.NewRepository(db, logger)
	idRepo := identifierrepo.NewRepository(db, logger)
	linkRepo := signallinkrepo.NewRepository(db, logger)
	signalRepo := signalrepo.NewRepository(db, logger)
	decisionRepo := matchdecisionrepo.NewRepository(db, logger)
	dispositionRepo := reviewrepo.NewRepository(db, logger)
	mergeRecordRepo := mergerecordrepo.NewRepository(db, logger)

	actors := store.NewActorStore(actorRepo, idRepo, linkRepo, signalRepo, logger)

	engineCfg := matching.DefaultConfig()
	engineCfg.CountryDefault = cfg.CountryDefault
	engineCfg.Tier2Floor = cfg.Tier2Floor
	engineCfg.Tier3Floor = cfg.Tier3Floor
	engineCfg.WeakScoreCap = cfg.WeakScoreCap
	engineCfg.NameWeight = cfg.NameWeight
	engineCfg.BehaviorWeight = cfg.BehaviorWeight
	engineCfg.MaxCandidates = cfg.MaxCandidates
	matchEngine := matching.NewEngine(actors, actorRepo, idRepo, decisionRepo, scoring.NewScorer(), engineCfg, logger)

	mergeCfg := merging.DefaultConfig()
	mergeCfg.LockTTL = cfg.MergeLockTTL
	mergeEngine := merging.NewEngine(actorRepo, idRepo, linkRepo, mergeRecordRepo, locker, mergeCfg, logger)

	// Kafka
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	defer producer.Close()
	emitter := events.NewEmitter(producer, logger)

	proc := processor.NewProcessor(logger, matchEngine, emitter, cfg.ResolveWorkers)
	consumer := kafka.NewConsumer(cfg, logger, proc.ProcessMessage)

	// Graph projection is best effort; the relational store stays
	// authoritative, so a down graph database never blocks startup.
	var projection *graph.Projection
	if cfg.GraphSyncEnabled {
		graphClient, err := graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to graph database, projection disabled")
		} else {
			defer graphClient.Close(context.Background())
			projection = graph.NewProjection(graphClient, logger)
			actors.SetProjector(projection)
			mergeEngine.SetProjector(projection)
		}
	}

	scanCfg := dupscan.DefaultConfig()
	scanCfg.MergeThreshold = cfg.MergeThreshold
	scanner := dupscan.NewScanner(idRepo, decisionRepo, actorRepo, mergeEngine, emitter, scanCfg, logger)
	scheduler := dupscan.NewScheduler(scanner, actorRepo, locker, cfg.DuplicateScanInterval, logger)

	reviewService := review.NewService(decisionRepo, dispositionRepo, signalRepo, actors, matchEngine, logger)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	registrations := []func() error{
		func() error { return ectoinject.RegisterInstance[*actorrepo.Repository](container, actorRepo) },
		func() error { return ectoinject.RegisterInstance[*identifierrepo.Repository](container, idRepo) },
		func() error { return ectoinject.RegisterInstance[*signallinkrepo.Repository](container, linkRepo) },
		func() error { return ectoinject.RegisterInstance[*signalrepo.Repository](container, signalRepo) },
		func() error {
			return ectoinject.RegisterInstance[*matchdecisionrepo.Repository](container, decisionRepo)
		},
		func() error { return ectoinject.RegisterInstance[*reviewrepo.Repository](container, dispositionRepo) },
		func() error {
			return ectoinject.RegisterInstance[*mergerecordrepo.Repository](container, mergeRecordRepo)
		},
		func() error { return ectoinject.RegisterInstance[*store.ActorStore](container, actors) },
		func() error { return ectoinject.RegisterInstance[*matching.Engine](container, matchEngine) },
		func() error { return ectoinject.RegisterInstance[*merging.Engine](container, mergeEngine) },
		func() error { return ectoinject.RegisterInstance[*events.Emitter](container, emitter) },
		func() error { return ectoinject.RegisterInstance[*processor.Processor](container, proc) },
		func() error { return ectoinject.RegisterInstance[*dupscan.Scanner](container, scanner) },
		func() error { return ectoinject.RegisterInstance[*review.Service](container, reviewService) },
	}
	if projection != nil {
		registrations = append(registrations, func() error {
			return ectoinject.RegisterInstance[*graph.Projection](container, projection)
		})
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return fmt.Errorf("failed to register dependency: %w", err)
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	api := e.Group("/api/v1")
	signalroute.Register(api.Group("/signals"))
	actorroute.Register(api.Group("/actors"))
	reviewroute.Register(api.Group("/review"))
	mergeroute.Register(api.Group("/merges"))
	duplicateroute.Register(api.Group("/duplicates"))

	checker := health.NewChecker(sqlxDB, rdb, version)
	checker.RegisterRoutes(e)
	e.GET("/healthcheck", checker.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	boot := startup.New(logger, cfg.StartupMaxAttempts)
	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(component{
			name:  "kafka-consumer",
			start: consumer.Start,
			stop:  func(context.Context) error { return consumer.Stop() },
		})
	}
	if cfg.DuplicateScanEnabled {
		boot.AddDependency(component{
			name:  "scan-scheduler",
			start: scheduler.Start,
			stop:  func(context.Context) error { return scheduler.Stop() },
		})
	}
	boot.AddDependency(component{
		name: "http-server",
		start: func(context.Context) error {
			go func() {
				if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server exited with error")
					os.Exit(1)
				}
			}()
			return nil
		},
		stop: e.Shutdown,
	})

	if err := boot.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	checker.SetReady(true)
	logger.WithField("port", cfg.Port).Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("Shutdown signal received, stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return boot.Stop(stopCtx)
}

// component adapts closures to the startup dependency interface
type component struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (c component) GetName() string                 { return c.name }
func (c component) DependsOn() []string             { return c.dependsOn }
func (c component) Start(ctx context.Context) error { return c.start(ctx) }
func (c component) Stop(ctx context.Context) error  { return c.stop(ctx) }

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	z, err := zapCfg.Build(zap.WithCaller(false))
	if err != nil {
		return nil, err
	}

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		fields := make([]zap.Field, 0, len(msg.Fields)+1)
		for k, v := range msg.Fields {
			fields = append(fields, zap.Any(k, v))
		}
		if msg.Err != nil {
			fields = append(fields, zap.Error(msg.Err))
		}
		switch strings.ToLower(fmt.Sprint(msg.Level)) {
		case "debug":
			z.Debug(msg.Message, fields...)
		case "warn", "warning":
			z.Warn(msg.Message, fields...)
		case "error":
			z.Error(msg.Message, fields...)
		case "fatal":
			z.Fatal(msg.Message, fields...)
		default:
			z.Info(msg.Message, fields...)
		}
	})

	return logger, nil
}
