package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/userhub/userhub/internal/config"
	"github.com/userhub/userhub/internal/es"
	"github.com/userhub/userhub/internal/handlers"
	"github.com/userhub/userhub/internal/logging"
	mwauth "github.com/userhub/userhub/internal/middleware/auth"
	loggingmw "github.com/userhub/userhub/internal/middleware/logging"
	"github.com/userhub/userhub/internal/mongodb"
	"github.com/userhub/userhub/internal/mykafka"
	"github.com/userhub/userhub/internal/repository"
	"github.com/userhub/userhub/internal/storage"
	"github.com/userhub/userhub/internal/tokens"
	httpserver "github.com/userhub/userhub/internal/transport/http"
)

const usersIndex = "users"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	config.MustNonEmpty(cfg.MongoURI, "MONGODB_URI")
	config.MustNonEmpty(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmpty(cfg.RefreshSecret, "JWT_REFRESH_SECRET")

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	client, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("mongo init error: %v", err)
	}
	store := repository.NewMongoUserStore(db, logger)

	var producer *mykafka.Producer
	if cfg.KafkaAddress != "" {
		producer = mykafka.NewProducer(cfg.KafkaAddress, "user_events")
	}

	var searchHandler *handlers.SearchHandler

	tokenService := tokens.NewService([]byte(cfg.JWTSecret), []byte(cfg.RefreshSecret))

	var files storage.Store
	uploadDir := ""
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			PublicURL:    cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatalf("s3 init error: %v", err)
		}
		files = s3Store
	} else {
		diskStore, err := storage.NewDiskStore(cfg.UploadDir)
		if err != nil {
			log.Fatalf("upload dir error: %v", err)
		}
		files = diskStore
		uploadDir = cfg.UploadDir
	}

	authHandler := &handlers.AuthHandler{
		Store:         store,
		Tokens:        tokenService,
		Producer:      producer,
		ESIndex:       usersIndex,
		Files:         files,
		SecureCookies: cfg.Production(),
	}
	userHandler := &handlers.UserHandler{
		Store:    store,
		Producer: producer,
		ESIndex:  usersIndex,
		Files:    files,
	}

	if cfg.ESURL != "" {
		esConn, err := es.NewClient(cfg, logger)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		authHandler.ES = esConn
		userHandler.ES = esConn
		searchHandler = handlers.NewSearchHandler(esConn, usersIndex)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	httpserver.Register(e, &httpserver.Deps{
		Auth:      authHandler,
		Users:     userHandler,
		Search:    searchHandler,
		Gate:      &mwauth.Gate{Tokens: tokenService, Store: store},
		UploadDir: uploadDir,
	})

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server started", "address", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Printf("mongo disconnect error: %v", err)
	}
	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	logger.Info("shutdown complete")
}
