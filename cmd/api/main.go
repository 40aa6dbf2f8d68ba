package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"pairchat/internal/adapter/api"
	"pairchat/internal/adapter/api/handler"
	apimiddleware "pairchat/internal/adapter/api/middleware"
	"pairchat/internal/adapter/api/router"
	"pairchat/internal/adapter/repository"
	domainrepo "pairchat/internal/domain/repository"
	"pairchat/internal/infrastructure/firebase"
	"pairchat/internal/infrastructure/jwtauth"
	"pairchat/internal/infrastructure/ratelimit"
	"pairchat/internal/infrastructure/storage"
	"pairchat/internal/infrastructure/websocket"
	"pairchat/internal/usecase"
	"pairchat/pkg/config"
	"pairchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Init(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := googleOptions(cfg)

	messageRepo, storePing, closeStore, err := openStore(ctx, cfg, opts)
	if err != nil {
		logger.Error("Failed to open %s message store: %v", cfg.StoreDriver, err)
		os.Exit(1)
	}
	defer closeStore()

	var verifier usecase.TokenVerifier
	var issuer handler.TokenIssuer
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			logger.Error("Failed to initialize Firebase: %v", err)
			os.Exit(1)
		}
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			logger.Error("Failed to initialize Firebase Auth: %v", err)
			os.Exit(1)
		}
		verifier = firebase.NewFirebaseAuthClient(authClient)
	default:
		jwtVerifier := jwtauth.NewVerifier(cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second)
		verifier = jwtVerifier
		issuer = jwtVerifier
	}

	var mediaUseCase *usecase.MediaUseCase
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.AllowedOrigins, opts...)
		if err != nil {
			logger.Error("Failed to initialize Cloud Storage: %v", err)
			os.Exit(1)
		}
		defer storageClient.Close()
		mediaUseCase = usecase.NewMediaUseCase(storageClient)
	} else {
		logger.Warn("STORAGE_BUCKET not set, image uploads are disabled")
	}

	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Policy{
		ratelimit.ActionSendMessage: {PerMinute: cfg.SendRatePerMin, Burst: burst(cfg.SendRatePerMin)},
		ratelimit.ActionTyping:      {PerMinute: cfg.TypingRatePerMin, Burst: burst(cfg.TypingRatePerMin)},
	})
	limiter.StartCleanupRoutine(ctx, 5*time.Minute)

	wsManager := websocket.NewManager(websocket.Policy(cfg.PresencePolicy), limiter)
	messageUseCase := usecase.NewMessageUseCase(messageRepo, wsManager, limiter)
	wsManager.AttachLifecycle(messageUseCase)
	wsManager.Start(ctx)

	handler.Setup(messageUseCase, mediaUseCase, wsManager, cfg.AllowedOrigins, storePing, issuer)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(apimiddleware.RateLimit(limiter))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	router.Setup(e, authMiddleware, cfg.Environment)

	go func() {
		logger.Info("Starting server on port %s (store=%s, auth=%s, presence=%s)",
			cfg.ServerPort, cfg.StoreDriver, cfg.AuthProvider, cfg.PresencePolicy)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func googleOptions(cfg *config.Config) []option.ClientOption {
	switch {
	case cfg.FirebaseCredentialsJS != "":
		logger.Info("Using Google service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJS))}
	case cfg.FirebaseCredentials != "":
		logger.Info("Using Google service account from file: %s", cfg.FirebaseCredentials)
		return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseCredentials)}
	default:
		return nil
	}
}

// openStore returns the configured message store, a health check (nil for the
// in-memory store) and a close func.
func openStore(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (domainrepo.MessageRepository, handler.Pinger, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			return nil, nil, nil, err
		}
		ping := handler.PingFunc(func(ctx context.Context) error {
			_, err := client.Collection("messages").Limit(1).Documents(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		})
		return repository.NewFirestoreMessageRepository(client), ping, func() { client.Close() }, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, nil, err
		}
		db := client.Database(cfg.MongoDatabase)
		if err := repository.EnsureMessageIndexes(ctx, db); err != nil {
			client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		ping := handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("Mongo disconnect: %v", err)
			}
		}
		return repository.NewMongoMessageRepository(db), ping, closeFn, nil

	default:
		logger.Warn("Using the in-memory message store; messages are lost on restart")
		return repository.NewMemoryMessageRepository(), nil, func() {}, nil
	}
}

func burst(perMinute int) int {
	if b := perMinute / 3; b > 0 {
		return b
	}
	return 1
}
