package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vialactivo/api"
	"vialactivo/api/services"
	"vialactivo/db"
	"vialactivo/pkg/auth"
	"vialactivo/pkg/cache"
	"vialactivo/pkg/config"
	"vialactivo/pkg/logger"
	"vialactivo/pkg/photos"
	embeddednats "vialactivo/pkg/services/embedded-nats"
	"vialactivo/pkg/services/workers"
	"vialactivo/pkg/shared"
	"vialactivo/pkg/store"
	"vialactivo/pkg/store/mongodb"
	"vialactivo/pkg/store/sqlite"
)

func initStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.Store.Driver == config.StoreMongo {
		mongoStore, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDB,
		}, log)
		if err != nil {
			return nil, err
		}
		return mongoStore, nil
	}

	dbConfig := db.DefaultConfig()
	dbConfig.DBPath = cfg.Store.SQLitePath
	dbConfig.AutoInitialize = true

	dbService, err := db.New(dbConfig, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	// Verify schema is properly initialized
	if err := dbService.VerifySchema(); err != nil {
		log.Warn("Schema verification failed, initializing schema", zap.Error(err))
		if err := dbService.InitializeSchema(); err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return sqlite.New(dbService, log), nil
}

// initCache falls back to an in-process store when REDIS_ADDR is empty.
func initCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (cache.KVStore, HealthChecks, func()) {
	if cfg.Redis.Addr == "" {
		log.Info("Redis not configured, caching statistics in memory")
		return cache.NewMemoryKVStore(), nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := cache.NewRedisKVStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := kv.Ping(pingCtx); err != nil {
		// Statistics still work without a cache; reads go to the store.
		log.Warn("Redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		log.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	return kv, HealthChecks{"redis": kv.Ping}, func() { _ = client.Close() }
}

func initNATS(cfg *config.Config, log *zap.Logger) (*embeddednats.EmbeddedNATS, error) {
	natsConfig := embeddednats.DefaultConfig()
	natsConfig.DataDir = cfg.NATS.DataDir
	natsConfig.Port = cfg.NATS.Port

	nats, err := embeddednats.New(natsConfig, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS: %w", err)
	}

	if err := nats.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS: %w", err)
	}

	if err := nats.CreateVialActivoStreams(); err != nil {
		return nil, fmt.Errorf("failed to create streams: %w", err)
	}

	for _, c := range workers.Consumers() {
		if err := nats.CreateDurableConsumer(c.Stream, c.Consumer, c.Filter); err != nil {
			return nil, fmt.Errorf("failed to create consumer %s: %w", c.Consumer, err)
		}
	}

	log.Info("NATS JetStream initialized successfully")
	return nats, nil
}

func initPhotos(ctx context.Context, cfg *config.Config, log *zap.Logger) (photos.Store, string, func(), error) {
	if cfg.Photos.Backend == config.PhotoBackendGCS {
		gcs, err := photos.NewGCSStore(ctx, cfg.Photos.GCSBucket, cfg.Photos.GCSPrefix, log)
		if err != nil {
			return nil, "", nil, err
		}
		return gcs, "", func() { _ = gcs.Close() }, nil
	}

	local, err := photos.NewLocalStore(cfg.Photos.UploadDir, cfg.Photos.PublicBaseURL, log)
	if err != nil {
		return nil, "", nil, err
	}
	return local, local.Dir(), func() {}, nil
}

// HealthChecks names the optional dependencies reported by /health.
type HealthChecks map[string]api.HealthCheck

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, shared.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	st, err := initStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	log.Info("Store initialized", zap.String("driver", cfg.Store.Driver))

	kv, checks, closeCache := initCache(ctx, cfg, log)
	if checks == nil {
		checks = HealthChecks{}
	}
	statsCache := cache.NewStatisticsCache(kv, cfg.StatsCacheTTL, log)

	// Initialize embedded NATS and its workers
	var (
		nats          *embeddednats.EmbeddedNATS
		workerManager *workers.Manager
		events        services.EventPublisher
	)
	if cfg.NATS.Enabled {
		nats, err = initNATS(cfg, log)
		if err != nil {
			log.Fatal("Failed to initialize NATS", zap.Error(err))
		}
		events = nats
		checks["nats"] = func(context.Context) error { return nats.HealthCheck() }

		workerManager, err = workers.NewManager(nats, statsCache, log)
		if err != nil {
			log.Fatal("Failed to create worker manager", zap.Error(err))
		}
		if err := workerManager.Start(); err != nil {
			log.Fatal("Failed to start workers", zap.Error(err))
		}
	} else {
		log.Info("NATS disabled; statistics refresh on cache TTL only")
	}

	reportService := services.NewReportService(st, events, log).WithCacheInvalidator(statsCache)
	adminService := services.NewAdminService(st, events, log)
	statisticsService := services.NewStatisticsService(st, statsCache, log)

	if cfg.Auth.BootstrapAdmin != "" {
		admin, err := adminService.Register(ctx, cfg.Auth.BootstrapAdmin)
		if err != nil {
			log.Fatal("Failed to register bootstrap admin", zap.Error(err))
		}
		log.Info("Bootstrap admin ready", zap.String("email", admin.Email))
	}

	photoStore, uploadDir, closePhotos, err := initPhotos(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize photo store", zap.String("backend", cfg.Photos.Backend), zap.Error(err))
	}

	handlers := api.NewHandlers(api.Dependencies{
		Reports:    reportService,
		Admins:     adminService,
		Statistics: statisticsService,
		Issuer:     auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Photos:     photoStore,
		UploadDir:  uploadDir,
		StoreCheck: st.Health,
		Checks:     checks,
		Logger:     log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Starting VialActivo API server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("Shutting down server", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
	}

	if workerManager != nil {
		if err := workerManager.Stop(); err != nil {
			log.Error("Failed to stop workers", zap.Error(err))
		}
	}

	if nats != nil {
		if err := nats.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown NATS", zap.Error(err))
		}
	}

	closePhotos()
	closeCache()
	if err := st.Close(shutdownCtx); err != nil {
		log.Error("Failed to close store", zap.Error(err))
	}

	log.Info("Server shutdown complete")
}
