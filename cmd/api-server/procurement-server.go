package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/config"
	"procurement/internal/events"
	"procurement/internal/handlers"
	"procurement/internal/identity"
	"procurement/internal/logger"
	"procurement/internal/procurement"
	"procurement/internal/vault"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Cannot init logger: %v", err)
	}
	defer zapLogger.Sync()

	dbConn, err := sqlx.Connect("postgres", cfg.Database.Conn)
	if err != nil {
		zapLogger.Fatal("Cannot connect to DB", zap.Error(err))
	}
	defer dbConn.Close()
	dbConn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbConn.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if cfg.Migrations.Auto {
		if err := migrations.Run(dbConn.DB); err != nil {
			zapLogger.Fatal("Cannot apply migrations", zap.Error(err))
		}
		if v, err := migrations.Version(dbConn.DB); err == nil {
			zapLogger.Info("Schema up to date", zap.Int64("version", v))
		}
	}

	key, err := vault.ParseKey(cfg.Crypto.BidEncryptionKey)
	if err != nil {
		zapLogger.Fatal("Invalid bid encryption key", zap.Error(err))
	}
	sealer, err := vault.New(key)
	if err != nil {
		zapLogger.Fatal("Cannot init bid vault", zap.Error(err))
	}

	dir, closeDir := directory(cfg, zapLogger)
	defer closeDir()

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		p, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			zapLogger.Fatal("Cannot connect to NATS", zap.Error(err))
		}
		publisher = p
	}
	defer publisher.Close()

	store := db.NewStorage(dbConn, cfg.Database.Timeout)
	svc := procurement.NewService(store, sealer, identity.NewAuthorizer(dir),
		procurement.WithLogger(zapLogger),
		procurement.WithPublisher(publisher),
	)
	h := handlers.NewHandler(svc, zapLogger)
	h.DB = store

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handlers.NewRouter(h, cfg.JWT.Secret, zapLogger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Starting server", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
}

// directory prefers the Redis projection and falls back to the seed file.
func directory(cfg *config.Config, zapLogger *zap.Logger) (identity.Directory, func()) {
	if cfg.Redis.Addr != "" {
		d, err := identity.NewRedisDirectory(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zapLogger.Fatal("Cannot connect to identity directory", zap.Error(err))
		}
		return d, func() { d.Close() }
	}
	d, err := identity.LoadStaticDirectory(cfg.Directory.SeedFile)
	if err != nil {
		zapLogger.Fatal("Cannot load identity directory", zap.Error(err))
	}
	zapLogger.Warn("Using static identity directory", zap.String("seed_file", cfg.Directory.SeedFile))
	return d, func() {}
}
