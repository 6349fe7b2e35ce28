package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pretyflaco/BBTV2-sub010/internal/config"
	"github.com/pretyflaco/BBTV2-sub010/internal/handler"
	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
	"github.com/pretyflaco/BBTV2-sub010/internal/middleware"
	"github.com/pretyflaco/BBTV2-sub010/internal/repository"
	"github.com/pretyflaco/BBTV2-sub010/internal/service"
	"github.com/pretyflaco/BBTV2-sub010/internal/utils/email"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load .env if present
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env")
	}

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	railClient := rail.NewClient(cfg, logger)
	alerter := email.NewSender(cfg, logger)
	svc := service.NewService(repo, railClient, alerter, logger, cfg)
	h := handler.NewHandler(svc, cfg, logger)

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	// LNURL surfaces consumed by wallet apps
	r.HandleFunc("/lnurlw/{cardID}", h.WithdrawOffer).Methods("GET")
	r.HandleFunc("/lnurlw/{cardID}/cb", h.WithdrawCallback).Methods("GET")
	r.HandleFunc("/lnurlp/{cardID}", h.TopUpOffer).Methods("GET")
	r.HandleFunc("/lnurlp/{cardID}/cb", h.TopUpCallback).Methods("GET")
	// Payment confirmation signal from the rail
	r.HandleFunc("/hooks/rail", h.RailHook).Methods("POST")
	// Protected card-management routes
	authRouter := r.PathPrefix("/cards").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("", h.CreateCard).Methods("POST")
	authRouter.HandleFunc("", h.ListCards).Methods("GET")
	authRouter.HandleFunc("/resolve", h.ResolveCard).Methods("POST")
	authRouter.HandleFunc("/{cardID}", h.GetCard).Methods("GET")
	authRouter.HandleFunc("/{cardID}/status", h.SetCardStatus).Methods("PUT")
	authRouter.HandleFunc("/{cardID}/keys", h.CardKeys).Methods("GET")
	authRouter.HandleFunc("/{cardID}/transactions", h.CardTransactions).Methods("GET")

	// Reconciliation sweep for top-ups whose confirmation signal never arrived
	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		svc.SweepPendingTopUps(ctx)
	}); err != nil {
		logger.Fatalf("Failed to schedule sweep: %v", err)
	}
	c.Start()
	defer c.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
