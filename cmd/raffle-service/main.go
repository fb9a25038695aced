package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-raffle/internal/allocation"
	"ms-raffle/internal/allocation/allocation_api"
	"ms-raffle/internal/auth"
	"ms-raffle/internal/competition"
	"ms-raffle/internal/competition/competition_api"
	competition_db "ms-raffle/internal/competition/db"
	"ms-raffle/internal/config"
	"ms-raffle/internal/database/migrations"
	"ms-raffle/internal/draw"
	"ms-raffle/internal/kafka"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/order"
	order_db "ms-raffle/internal/order/db"
	"ms-raffle/internal/order/order_api"
	reservationstore "ms-raffle/internal/reservation/redis"
	"ms-raffle/internal/sse"
	ticket_db "ms-raffle/internal/tickets/db"
	"ms-raffle/internal/tickets/ticket_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}

	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, logger *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.OIDCIssuer, err))
		}
		logger.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against issuer %s", cfg.OIDCIssuer))
		return verifier
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("CONFIG", "either OIDC_ISSUER or JWT_SECRET must be set")
	}
	logger.Info("AUTH", "Verifying bearer tokens with shared HMAC secret")
	return auth.NewHMACVerifier(cfg.JWTSecret)
}

func requestLogger(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.LogAPI(r.Method, r.URL.Path, fmt.Sprint(ww.Status()), time.Since(start).String())
		})
	}
}

type handlers struct {
	allocation   *allocation_api.Handler
	orders       *order_api.Handler
	competitions *competition_api.Handler
	tickets      *ticket_api.Handler
}

func newRouter(cfg *config.Config, verifier auth.Verifier, h handlers, logger *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Get("/competitions", h.competitions.List)
		r.Get("/competitions/{id}", h.competitions.Get)
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalMiddleware(verifier))
			r.Get("/competitions/{id}/status", h.allocation.GetStatus)
			r.Get("/competitions/{id}/stream", h.allocation.Stream)
		})
		logger.Info("ROUTER", "Public competition routes registered under /api/competitions")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, logger))

			r.Route("/competitions/{id}", func(r chi.Router) {
				r.Post("/reservations", h.allocation.Reserve)
				r.Delete("/reservations", h.allocation.Release)
				r.Post("/checkout", h.orders.Checkout)
				r.Get("/tickets/{number}/qr", h.tickets.GetReceiptQR)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.orders.ListMyOrders)
				r.Get("/{orderId}", h.orders.GetOrder)
				r.Post("/{orderId}/cancel", h.orders.CancelOrder)
			})
			logger.Info("ROUTER", "Reservation and order routes registered")

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin, logger))

				r.Post("/competitions", h.competitions.Create)
				r.Put("/competitions/{id}/status", h.competitions.UpdateStatus)
				r.Post("/competitions/{id}/draw", h.competitions.Draw)
				r.Post("/competitions/{id}/free-entries", h.allocation.GrantFreeEntry)
				r.Get("/competitions/{id}/entries", h.allocation.GetEntries)
				r.Get("/competitions/{id}/sales", h.tickets.GetSales)

				r.Get("/orders/reconciliation", h.orders.ReconciliationQueue)
				r.Post("/orders/{orderId}/processing", h.orders.MarkProcessing)
				r.Post("/orders/{orderId}/payment-succeeded", h.orders.ReplayPaymentSucceeded)
				r.Post("/orders/{orderId}/payment-failed", h.orders.ReplayPaymentFailed)
				r.Post("/orders/{orderId}/refund", h.orders.Refund)

				r.Post("/receipts/verify", h.tickets.VerifyReceipt)
			})
			logger.Info("ROUTER", "Admin routes registered under /api/admin")
		})
	})

	return r
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Raffle Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	migrator := migrations.NewRunner(bunDB, migrations.OptionsFromConfig(cfg.Database), logger)
	if err := migrator.RunMigrations(); err != nil {
		logger.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
	}
	defer migrator.Close()

	// --- Kafka ---
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, logger)
		defer producer.Close()
		logger.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		logger.Warn("KAFKA", "Kafka disabled, events stay in-process")
	}

	audit := kafka.NewAuditPublisher(producer, cfg.Kafka.Topics.ReservationEvents, logger, 0)
	emitter := sse.NewAvailabilityEmitter()
	audit.Subscribe(func(event models.ReservationEvent) {
		// the public stream carries availability, not who holds what
		event.UserID = ""
		event.OrderID = ""
		emitter.Emit(event)
	})
	go audit.Run(ctx)

	// --- Domain services ---
	tickets := &ticket_db.DB{Bun: bunDB}
	store := reservationstore.NewStore(redisClient, cfg.Redis.KeyPrefix, logger)
	competitions := competition.NewService(&competition_db.DB{Bun: bunDB}, tickets, draw.NewRandomDrawer(), logger)

	engine := allocation.NewEngine(tickets, store, competitions, audit, logger, allocation.OptionsFromConfig(cfg.Reservation))
	orderService := order.NewOrderService(&order_db.DB{Bun: bunDB}, store, engine, competitions, producer, cfg.Kafka.Topics, logger)

	sweeper := allocation.NewSweeper(tickets, store, audit, logger, cfg.Reservation.SweepInterval)
	go sweeper.Run(ctx)

	if err := store.EnableExpiryNotifications(ctx); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	}
	if err := store.SubscribeExpirations(ctx, sweeper.OnExpired); err != nil {
		logger.Warn("REDIS", fmt.Sprintf("Expiry notifications unavailable, relying on the sweep interval: %v", err))
	}

	if cfg.Kafka.Enabled {
		succeeded := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentSucceeded, cfg.Kafka.GroupID, logger)
		failed := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentFailed, cfg.Kafka.GroupID, logger)
		defer succeeded.Close()
		defer failed.Close()
		go succeeded.Run(ctx, orderService.PaymentSucceededHandler)
		go failed.Run(ctx, orderService.PaymentFailedHandler)
		logger.Info("KAFKA", "Payment signal consumers started")
	}

	// --- HTTP ---
	verifier := newVerifier(ctx, cfg.Auth, logger)
	router := newRouter(cfg, verifier, handlers{
		allocation:   allocation_api.NewHandler(engine, emitter, logger),
		orders:       order_api.NewHandler(orderService, logger),
		competitions: competition_api.NewHandler(competitions, logger),
		tickets:      ticket_api.NewHandler(tickets, cfg.Auth.QRSecretKey, logger),
	}, logger)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// WriteTimeout stays zero: it would cut the availability stream.
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Raffle Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Raffle Service shutdown complete")
	}
	cancel()
}
