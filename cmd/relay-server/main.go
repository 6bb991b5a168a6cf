// Package main provides the relay server executable with HTTP API and
// background delivery worker.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coregx/msgrelay"
	"github.com/coregx/msgrelay/adapters/kafka"
	"github.com/coregx/msgrelay/adapters/relica"
	"github.com/coregx/msgrelay/adapters/ws"
	"github.com/coregx/msgrelay/cmd/relay-server/internal/api"
	"github.com/coregx/msgrelay/cmd/relay-server/internal/config"
	"github.com/coregx/msgrelay/cmd/relay-server/internal/observability"
	"github.com/coregx/msgrelay/retry"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	log.Println("🚀 Starting Relay Server v0.1.0...")

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.Log.Level)
	logger := &observability.RelayLogger{}

	log.Printf("📝 Configuration loaded:")
	log.Printf("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Transport: %s", cfg.Transport.Kind)
	log.Printf("   Endpoints: %v", cfg.Relay.Endpoints)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	// Test connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	// Create stores using Relica adapters
	var stores *relica.Stores
	if cfg.Database.Prefix != "" {
		stores = relica.NewStoresWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		stores = relica.NewStores(db, cfg.Database.Driver)
	}
	log.Println("✅ Stores initialized (Relica adapters)")

	// Create notification service
	var notificationService msgrelay.NotificationService
	if cfg.Relay.EnableNotifications {
		notificationService = msgrelay.NewLoggingNotificationService(logger)
	} else {
		notificationService = &msgrelay.NoOpNotificationService{}
	}

	// Select transport provider
	var provider msgrelay.TransportProvider
	switch cfg.Transport.Kind {
	case "kafka":
		provider = kafka.NewProvider(
			kafka.WithTopics(cfg.Transport.KafkaOutbound, cfg.Transport.KafkaInbound),
			kafka.WithGroupID(cfg.Transport.KafkaGroupID),
		)
	default:
		provider = ws.NewProvider()
	}

	// Create connection pool with one endpoint per upstream address
	pool, err := msgrelay.NewConnectionPool(
		msgrelay.WithPoolLogger(logger),
		msgrelay.WithPoolNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	for i, addr := range cfg.Relay.Endpoints {
		endpoint, err := msgrelay.NewEndpoint(
			fmt.Sprintf("endpoint-%d", i+1), addr,
			msgrelay.WithEndpointTransport(provider),
			msgrelay.WithEndpointLogger(logger),
			msgrelay.WithEndpointNotifications(notificationService),
			msgrelay.WithHeartbeat(cfg.Relay.HeartbeatInterval, cfg.Relay.HeartbeatTimeout),
		)
		if err != nil {
			log.Fatalf("Failed to create endpoint for %s: %v", addr, err)
		}
		pool.AddEndpoint(endpoint)
	}
	log.Printf("✅ Connection pool created (%d endpoints)", len(cfg.Relay.Endpoints))

	// Create message queue
	strategy := retry.DefaultStrategy()
	strategy.MaxRetries = cfg.Relay.MaxRetries
	queue, err := msgrelay.NewMessageQueue(
		msgrelay.WithStores(stores.Messages, stores.DeadLetters),
		msgrelay.WithDelivery(pool),
		msgrelay.WithLogger(logger),
		msgrelay.WithRetryStrategy(strategy),
		msgrelay.WithCapacity(cfg.Relay.QueueCapacity),
		msgrelay.WithSendTimeout(cfg.Relay.SendTimeout),
		msgrelay.WithNotifications(notificationService),
	)
	if err != nil {
		log.Fatalf("Failed to create message queue: %v", err)
	}
	log.Println("✅ Message queue created")

	// Create client facade
	client, err := msgrelay.NewClient(
		msgrelay.WithClientPool(pool),
		msgrelay.WithClientQueue(queue),
		msgrelay.WithClientLogger(logger),
		msgrelay.WithClientHealthCheckInterval(cfg.Relay.HealthCheckInterval),
	)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	// Connect restores the persisted queue and starts delivery
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := client.Connect(connectCtx); err != nil {
		connectCancel()
		log.Fatalf("Failed to connect: %v", err)
	}
	connectCancel()
	log.Println("✅ Relay client connected")

	// Create API handler
	handler := api.NewHandler(client, logger)

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/messages", handler.HandleEnqueue)
	mux.HandleFunc("/api/v1/queue/stats", handler.HandleQueueStats)
	mux.HandleFunc("/api/v1/dead-letters", handler.HandleListDeadLetters)
	mux.HandleFunc("/api/v1/dead-letters/replay", handler.HandleReplayDeadLetters)
	mux.HandleFunc("/api/v1/health", handler.HandleHealth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🌐 HTTP server listening on %s", addr)
		log.Println("📡 API Endpoints:")
		log.Println("   POST   /api/v1/messages")
		log.Println("   GET    /api/v1/queue/stats")
		log.Println("   GET    /api/v1/dead-letters")
		log.Println("   POST   /api/v1/dead-letters/replay")
		log.Println("   GET    /api/v1/health")
		log.Println()
		log.Println("✅ Relay Server is ready!")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Printf("Client disconnect: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler, logger msgrelay.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s - %v", r.Method, r.URL.Path, time.Since(start))
	})
}
