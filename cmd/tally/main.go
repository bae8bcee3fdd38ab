package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/logging"
	"github.com/dukerupert/tally/internal/server"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/sweep"
)

func main() {
	// Load .env if present without overwriting already-set variables.
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	logger := logging.Setup(os.Getenv("TALLY_LOG_LEVEL"), os.Getenv("TALLY_LOG_FORMAT"))

	port := os.Getenv("TALLY_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("TALLY_DB_PATH")
	if dbPath == "" {
		dbPath = "tally.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(db, logger)

	sweepInterval := time.Minute
	if v := os.Getenv("TALLY_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid TALLY_SWEEP_INTERVAL: %v", err)
		}
		sweepInterval = d
	}

	var retention time.Duration
	if v := os.Getenv("TALLY_LEDGER_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			log.Fatalf("invalid TALLY_LEDGER_RETENTION_DAYS: %q", v)
		}
		retention = time.Duration(days) * 24 * time.Hour
	}

	sweeper := sweep.New(store.NewTaskStore(db), ledger.NewService(db), sweepInterval, retention, logger.With("component", "sweep"))
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tally running", "addr", "http://localhost:"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
