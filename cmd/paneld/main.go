package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"vending-panel-backend/config"
	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/api"
	"vending-panel-backend/internal/blob"
	"vending-panel-backend/internal/db"
	"vending-panel-backend/internal/identity"
	"vending-panel-backend/internal/logger"
	"vending-panel-backend/internal/notification"
	"vending-panel-backend/internal/sales"
	"vending-panel-backend/internal/session"
	"vending-panel-backend/internal/status"
	"vending-panel-backend/internal/store"
	"vending-panel-backend/internal/tree"
	"vending-panel-backend/internal/watcher"
)

const identityTimeout = 10 * time.Second

func main() {
	// Local development keeps secrets in .env files; deployments use the environment.
	_ = godotenv.Load(".env.local", ".env")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	zlog, err := logger.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := cfg.Backend()
	if err != nil {
		return err
	}

	creds, source, err := cfg.CredentialsJSON()
	if err != nil {
		return err
	}
	zlog.Info("loaded service account credentials", zap.String("source", source))

	fbConfig := &firebase.Config{StorageBucket: cfg.Firebase.StorageBucket}
	if backend == config.BackendFirebase {
		fbConfig.DatabaseURL = cfg.Firebase.DBURL
	}
	app, err := firebase.NewApp(ctx, fbConfig, option.WithCredentialsJSON(creds))
	if err != nil {
		return fmt.Errorf("init firebase app: %w", err)
	}

	var data tree.Tree
	switch backend {
	case config.BackendFirebase:
		client, err := app.Database(ctx)
		if err != nil {
			return fmt.Errorf("init realtime database: %w", err)
		}
		data = tree.NewFirebase(client)
	default:
		gormDB, err := db.Init(cfg, zlog)
		if err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		data = tree.NewSQL(gormDB)
	}
	zlog.Info("data store ready", zap.String("backend", string(backend)))

	storageClient, err := app.Storage(ctx)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	bucket, err := storageClient.Bucket(cfg.Firebase.StorageBucket)
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", cfg.Firebase.StorageBucket, err)
	}

	loc := cfg.Status.Location
	appStore := store.NewTreeStore(data, loc, zlog.Named("store"))
	provider := identity.NewClient(cfg.Firebase.IdentityURL, cfg.Firebase.WebAPIKey, identityTimeout)
	gate := access.NewGate(provider, appStore, access.Options{
		AdminEmail:         cfg.Access.AdminEmail,
		DefaultMachine:     cfg.Access.DefaultMachine,
		PlaceholderMachine: cfg.Access.PlaceholderMachine,
	}, zlog.Named("access"))

	sessions, err := session.NewManager(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		zlog.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	evaluator := status.NewEvaluator(cfg.Status.HeartbeatWindow, loc)

	var webpushOptions *webpush.Options
	var dispatcher watcher.Dispatcher
	if cfg.PushEnabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, zlog.Named("push"))
		pool.Start(ctx)
		dispatcher = pool
	} else {
		zlog.Warn("VAPID keys not configured; push alerts disabled")
	}

	if cfg.Watcher.Enabled {
		svc := watcher.NewService(appStore, evaluator, dispatcher, cfg.Watcher.Interval, zlog.Named("watcher"))
		go svc.Run(ctx)
	}

	gin.SetMode(cfg.Server.GinMode)
	handler := api.NewHandler(api.Deps{
		Store:          appStore,
		Gate:           gate,
		Sessions:       sessions,
		Evaluator:      evaluator,
		Normalizer:     sales.NewNormalizer(loc, zlog.Named("sales")),
		Photos:         blob.NewPhotos(blob.NewGCSUploader(bucket, cfg.Firebase.StorageBucket)),
		WebPush:        webpushOptions,
		Location:       loc,
		SecureCookies:  cfg.Server.SecureCookies,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Log:            zlog.Named("api"),
	})
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthRateLimit:  cfg.Server.AuthRateLimit,
		AuthRateBurst:  cfg.Server.AuthRateBurst,
		Log:            zlog.Named("http"),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	zlog.Info("shutdown signal received, stopping services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutS)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	zlog.Info("server gracefully stopped")
	return nil
}
