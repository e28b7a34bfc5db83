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

	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/config"
	"github.com/Skotchmaster/data_delivery/internal/httpserver"
	"github.com/Skotchmaster/data_delivery/internal/keys"
	"github.com/Skotchmaster/data_delivery/internal/logging"
	"github.com/Skotchmaster/data_delivery/internal/mailer"
	authmw "github.com/Skotchmaster/data_delivery/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/data_delivery/internal/middleware/logging"
	"github.com/Skotchmaster/data_delivery/internal/mykafka"
	"github.com/Skotchmaster/data_delivery/internal/repo"
	"github.com/Skotchmaster/data_delivery/internal/service"
	"github.com/Skotchmaster/data_delivery/internal/storage"
	"github.com/Skotchmaster/data_delivery/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.ServiceName)
	ctx := logging.IntoContext(context.Background(), logger)

	db, err := config.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Ошибка инициализации БД: %v", err)
	}
	store, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatal(err)
	}

	var sender mailer.Sender = mailer.LogSender{Logger: logger}
	if cfg.Mail.Host != "" {
		smtp, err := mailer.NewSMTP(cfg.Mail)
		if err != nil {
			log.Fatal(err)
		}
		sender = smtp
	}
	mail := mailer.NewAsync(sender, time.Duration(cfg.Mail.TimeoutSeconds)*time.Second, logger)

	var (
		events service.EventPublisher
		prod   *mykafka.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		prod = mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		events = prod
	}

	r := &repo.GormRepo{DB: db}
	engine := keys.New(cfg.RSAKeyBits)
	tok := tokens.NewService(tokens.Config{
		Secret: []byte(cfg.TokenSecret),
		TTL:    cfg.TokenTTL(),
		Leeway: cfg.TokenLeeway(),
		Clock:  clock.Real{},
	})

	accounts := &service.AccountService{Repo: r, Keys: engine, Clock: clock.Real{}, Events: events}
	authSvc := &service.AuthService{Repo: r, Tokens: tok, Keys: engine, Accounts: accounts, Mail: mail, Clock: clock.Real{}, Events: events}
	projects := &service.ProjectService{Repo: r, Keys: engine, Accounts: accounts, Storage: store, Clock: clock.Real{}, Events: events}
	files := &service.FileService{Repo: r, Storage: store, Clock: clock.Real{}, Events: events}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Repo:     r,
		AuthMW:   &authmw.Middleware{Auth: authSvc, SecondFactorPath: httpserver.SecondFactorPath},
		Auth:     &httpserver.AuthHTTP{Svc: authSvc, Accounts: accounts},
		Users:    &httpserver.UsersHTTP{Accounts: accounts, Projects: projects},
		Projects: &httpserver.ProjectHTTP{Svc: projects},
		Files:    &httpserver.FileHTTP{Svc: files},
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server_start", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		logger.Warn("force_exit")
		os.Exit(1)
	}()

	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	mail.Wait()

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_error", "error", err)
		}
	}
	if prod != nil {
		if err := prod.Close(); err != nil {
			logger.Error("kafka_close_error", "error", err)
		}
	}
	logger.Info("shutdown_complete")
}
