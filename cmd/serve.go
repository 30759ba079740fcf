package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v82"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/config"
	"github.com/tonoapp/tono-server/credits"
	"github.com/tonoapp/tono-server/database"
	"github.com/tonoapp/tono-server/handlers"
	"github.com/tonoapp/tono-server/logger"
	middleware "github.com/tonoapp/tono-server/middlewares"
	"github.com/tonoapp/tono-server/oracle"
	"github.com/tonoapp/tono-server/routes"
	"github.com/tonoapp/tono-server/tonecache"
	"github.com/tonoapp/tono-server/utils"
	"github.com/tonoapp/tono-server/webhooks"
)

func newServeCmd() *cobra.Command {
	var logLevel, logFormat string

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(logLevel, logFormat)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
	return cmd
}

func runServe(logLevel, logFormat string) error {
	log, err := logger.Init(logLevel, logFormat)
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Info("database ready")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	stripe.Key = cfg.StripeKey

	clerkWebhook, err := svix.NewWebhook(cfg.ClerkWebhookSecret)
	if err != nil {
		return fmt.Errorf("invalid clerk webhook secret: %w", err)
	}

	ledger := credits.NewLedger(db, log)
	cache := tonecache.New(redisClient, cfg.ToneCacheTTL, log)
	oracleClient := oracle.New(cfg.OpenAIKey, cfg.OpenAIModel, log)

	auth := &middleware.Auth{JWTKey: []byte(cfg.ClerkJWTKey), Logger: log}

	toneHandler := &handlers.ToneHandler{
		DB:     db,
		Ledger: ledger,
		Cache:  cache,
		Oracle: oracleClient,
		Logger: log,
	}
	userHandler := &handlers.UserHandler{DB: db, Logger: log}
	stripeHandler := &handlers.Stripe{DB: db, Cfg: cfg, Logger: log}
	webhookHandler := &handlers.WebhookHandler{
		Dedupe:       webhooks.NewDedupe(db, log),
		Stripe:       webhooks.NewStripeProcessor(db, log, cfg.FreeGenerationsLimit, cfg.ProGenerationsLimit),
		Clerk:        webhooks.NewClerkProcessor(db, log, cfg.FreeGenerationsLimit),
		StripeSecret: cfg.StripeWebhookSecret,
		ClerkWebhook: clerkWebhook,
		Logger:       log,
	}
	healthHandler := &handlers.Health{DB: db, Redis: redisClient}

	mux := http.NewServeMux()
	routes.ToneRoutes(mux, toneHandler, auth)
	routes.UserRoutes(mux, userHandler, auth)
	routes.StripeRoutes(mux, stripeHandler, auth)
	routes.WebhookRoutes(mux, webhookHandler)
	mux.HandleFunc("GET /healthz", healthHandler.Check)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "This route does not exist")
	})

	handler := middleware.CORS(cfg.FrontendURL)(
		middleware.SetCommonHeaders(
			middleware.GlobalRateLimiter(redisClient)(mux),
		),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
