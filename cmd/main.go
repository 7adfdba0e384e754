/**
 * @description
 * This is the main entry point for the donation-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Schedules the deposit reconciliation job.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/pawapay: Client for the PawaPay mobile-money API.
 * - pkg/authclient: Client for the auth-service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/nmdasso/donation-service/internal/api"
	"github.com/nmdasso/donation-service/internal/app"
	"github.com/nmdasso/donation-service/internal/config"
	"github.com/nmdasso/donation-service/internal/store"
	"github.com/nmdasso/donation-service/pkg/authclient"
	"github.com/nmdasso/donation-service/pkg/pawapay"
	"github.com/nmdasso/donation-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.PawaPayAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"pawapay api key must be configured\" env=PAWAPAY_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting donation-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Payment flows hold a connection only briefly around each write, so the
	// pool stays modest even under campaign spikes.
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish events.
	// This service only needs to publish, so we use a producer.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the PawaPay deposits API.
	pawapayClient := pawapay.NewClient(cfg.PawaPayAPIBaseURL, cfg.PawaPayAPIKey)

	// Initialize the client for the auth-service. Missing auth-service config
	// should not prevent donation-service from booting; member provisioning
	// for opt-in contributions will degrade.
	var provisioner app.Provisioner
	if strings.TrimSpace(cfg.AuthServiceURL) == "" || strings.TrimSpace(cfg.AuthServiceInternalAPIKey) == "" {
		log.Printf("level=warn component=bootstrap msg=\"auth-service client not configured; account provisioning disabled\" auth_service_url_set=%t auth_service_internal_key_set=%t",
			strings.TrimSpace(cfg.AuthServiceURL) != "",
			strings.TrimSpace(cfg.AuthServiceInternalAPIKey) != "",
		)
	} else {
		provisioner = authclient.NewClient(cfg.AuthServiceURL, cfg.AuthServiceInternalAPIKey)
	}

	var redisClient *redis.Client
	if cfg.PaymentRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the deposit status poller and the core application service.
	poller := app.NewStatusPoller(
		pawapayClient,
		time.Duration(cfg.PollIntervalMs)*time.Millisecond,
		cfg.PollMaxAttempts,
	)
	paymentService := app.NewService(repository, pawapayClient, poller, provisioner, producer)
	if redisClient != nil {
		paymentService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.PaymentRateLimitPerMinute,
		)
	}

	// Schedule the deposit reconciliation job. It sweeps attempts whose
	// outcome stayed ambiguous (timeouts, crashes mid-poll) and settles their
	// audit status.
	reconciler := app.NewReconciler(
		repository,
		pawapayClient,
		time.Duration(cfg.ReconcileGraceMinutes)*time.Minute,
		cfg.ReconcileBatchLimit,
	)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		reconciler.Run(ctx)
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid reconcile schedule\" schedule=%q err=%v", cfg.ReconcileSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("level=info component=bootstrap msg=\"reconciler scheduled\" schedule=%q grace_minutes=%d", cfg.ReconcileSchedule, cfg.ReconcileGraceMinutes)

	// Initialize the API handlers.
	paymentHandlers := api.NewPaymentHandlers(paymentService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.PaymentRoutes(paymentHandlers, cfg.JWKSURL))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
