package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/mailhaven/mailstore/internal/account"
	"github.com/mailhaven/mailstore/internal/api"
	"github.com/mailhaven/mailstore/internal/blob"
	"github.com/mailhaven/mailstore/internal/config"
	"github.com/mailhaven/mailstore/internal/ingest"
	"github.com/mailhaven/mailstore/internal/label"
	"github.com/mailhaven/mailstore/internal/logger"
	"github.com/mailhaven/mailstore/internal/mailbox"
	"github.com/mailhaven/mailstore/internal/message"
	"github.com/mailhaven/mailstore/internal/metrics"
	"github.com/mailhaven/mailstore/internal/quota"
	"github.com/mailhaven/mailstore/internal/repository"
	"github.com/mailhaven/mailstore/internal/search"
	"github.com/mailhaven/mailstore/internal/thread"
)

func main() {
	log := logger.New(logger.DefaultConfig())
	slog.SetDefault(log)

	cfg := config.Load()

	db, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("database connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	mailboxRepo := repository.NewMailboxRepo(db, log)
	messageRepo := repository.NewMessageRepo(db, log)
	labelRepo := repository.NewLabelRepo(db)

	tiers := quota.NewStaticTierLookup()
	ledger := quota.NewLedger(mailboxRepo, messageRepo, tiers)
	blobStore := blob.NewStore(&cfg.Blob, tiers, log)

	mailboxSvc := mailbox.NewService(mailboxRepo, messageRepo, blobStore, log)
	messageSvc := message.NewService(messageRepo, mailboxRepo, labelRepo, blobStore, ledger, cfg.Ingest.Domain, log)
	labelSvc := label.NewService(labelRepo, messageRepo, log)
	searchSvc := search.NewService(messageRepo)
	threads := thread.NewResolver(messageRepo)
	purger := account.NewPurger(mailboxRepo, messageRepo, labelRepo, blobStore, log)

	// The directory lives in the account system; until its client is wired
	// in, recipient resolution treats the local part as the account UUID.
	// TODO: replace with the directory gRPC client once it ships.
	resolver := ingest.NewResolver(ingest.UUIDDirectory{}, cfg.Ingest.Domain)
	pipeline := ingest.NewPipeline(resolver, mailboxSvc, messageRepo, blobStore, ledger, cfg.Ingest.SpamThreshold, cfg.Ingest.Domain, log)

	cleanup := blob.NewCleanupJob(blobStore, messageRepo, cfg.Cleanup, log)
	cleanup.Start()
	defer cleanup.Stop()

	validate := api.NewValidator()
	router := api.NewRouter(api.Handlers{
		Mailboxes: api.NewMailboxHandler(mailboxSvc, validate),
		Messages:  api.NewMessageHandler(messageSvc, threads, validate),
		Labels:    api.NewLabelHandler(labelSvc, validate),
		Search:    api.NewSearchHandler(searchSvc),
		Quota:     api.NewQuotaHandler(ledger),
		Ingest:    api.NewIngestHandler(pipeline, validate),
		Account:   api.NewAccountHandler(purger),
		Cleanup:   api.NewCleanupHandler(cleanup),
	}, db)

	dbStats := metrics.NewDBStatsCollector(db.DB)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", slog.String("error", err.Error()))
	}
}
