// Package msgrelay provides a client-side reliable-delivery layer for
// real-time messaging over persistent connections, with automatic failover,
// retry logic, and Dead Letter Queue (DLQ) support.
//
// Works both as a library for embedding in your application AND as a
// standalone relay daemon with a REST API.
//
// # Features
//
//   - Reliable Message Delivery with guaranteed delivery and exponential backoff retry
//   - Exponential Backoff: 1s → 2s → 4s → 8s → 16s (capped at 30s)
//   - Dead Letter Queue (DLQ) automatically holds messages after exhausting retries
//   - Explicit DLQ replay that re-enters the original priority class
//   - Three-level priority queue (high/normal/low), FIFO within a class
//   - Connection pooling with latency-based selection and automatic failover
//   - Heartbeat keep-alive detecting silently dead connections
//   - Cancellable reconnection with exponential backoff and attempt cap
//   - Durable queue state: a restart resumes without loss or duplication
//   - Pluggable architecture: bring your own Transport, Store, Logger, Notification sink
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - WebSocket and Kafka transport adapters included
//   - Embedded Migrations for easy database setup
//   - Cloud Native: 12-factor app, ENV config
//
// # Quick Start
//
// First, apply the database migrations:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/msgrelay"
//	    relaydb "github.com/coregx/msgrelay/adapters/relica"
//	    _ "github.com/mattn/go-sqlite3"
//	)
//
//	db, _ := sql.Open("sqlite3", "relay.db")
//
// Use production-ready Relica store adapters:
//
//	stores := relaydb.NewStores(db, "sqlite3")
//
//	pool, _ := msgrelay.NewConnectionPool(
//	    msgrelay.WithPoolLogger(logger),
//	)
//
//	endpoint, _ := msgrelay.NewEndpoint("primary", "wss://relay.example.com/ws",
//	    msgrelay.WithEndpointTransport(ws.NewProvider()),
//	    msgrelay.WithEndpointLogger(logger),
//	)
//	pool.AddEndpoint(endpoint)
//
//	queue, _ := msgrelay.NewMessageQueue(
//	    msgrelay.WithStores(stores.Messages, stores.DeadLetters),
//	    msgrelay.WithDelivery(pool),
//	    msgrelay.WithLogger(logger),
//	)
//
//	client, _ := msgrelay.NewClient(
//	    msgrelay.WithClientPool(pool),
//	    msgrelay.WithClientQueue(queue),
//	    msgrelay.WithClientLogger(logger),
//	)
//
// Connect and submit traffic:
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	msg := model.NewMessage("chat.text", []byte(`{"body":"hello"}`))
//	err := client.Enqueue(ctx, msg, model.PriorityHigh)
//
// Receive inbound messages:
//
//	client.RegisterHandler("chat.text", func(ctx context.Context, msg model.Message) {
//	    log.Printf("received %s from %s", msg.ID, msg.Sender)
//	})
//
// # Architecture
//
// The library combines three tightly coupled subsystems:
//
//	┌─────────────────────────────────────┐
//	│            Client                   │
//	│  (Enqueue, RegisterHandler, stats)  │
//	└───────┬───────────────────┬─────────┘
//	        │                   │
//	┌───────▼────────┐  ┌───────▼─────────┐
//	│  MessageQueue  │→ │ ConnectionPool  │
//	│ (priorities,   │  │ (health checks, │
//	│  retry, DLQ)   │  │  failover)      │
//	└───────┬────────┘  └───────┬─────────┘
//	        │                   │
//	┌───────▼────────┐  ┌───────▼─────────┐
//	│ Store adapters │  │   Endpoints     │
//	│ (Relica/SQL,   │  │ (heartbeat,     │
//	│  memory)       │  │  reconnection)  │
//	└────────────────┘  └─────────────────┘
//
// Key principles:
//   - Domain models contain business logic (QueuedMessage.MarkFailed,
//     DeadLetter.Replay, etc.)
//   - Narrow store contracts abstract persistence (any engine can implement)
//   - Dependency Inversion via interfaces (Transport, Logger, Notification)
//   - Options Pattern for service configuration
//
// # Message Flow
//
//  1. ENQUEUE
//     Producer → Enqueue(message, priority)
//     → Persist to MessageStore
//     → Insert into priority queue
//
//  2. WORKER (Background)
//     MessageQueue → pop next ready message (strict priority, FIFO in class)
//     → Ask pool for best connection (lowest latency, connected)
//     → On Success: remove + un-persist
//     → On Failure: retry with exponential backoff
//     → After maxRetries failures: move to DLQ
//
//  3. DLQ (Dead Letter Queue)
//     Failed messages → Manual review
//     → RetryDeadLettered replays into the original priority class
//
// # Retry Strategy
//
// Failed deliveries are automatically retried with exponential backoff:
//
//	Attempt 1: +1 second
//	Attempt 2: +2 seconds
//	Attempt 3: +4 seconds
//	Attempt 4: +8 seconds
//	Attempt 5: +16 seconds (moves to DLQ after this)
//
// After exhausting its retry budget a message moves to the Dead Letter
// Queue for manual inspection and replay - it is never silently dropped.
//
// # Database Schema
//
// The Relica store adapters require 2 tables (created via embedded migrations):
//
//	relay_queue  - Active queue state with retry counters and sequencing
//	relay_dlq    - Dead-lettered messages with failure diagnostics
//
// Supports MySQL, PostgreSQL, and SQLite. Table prefix can be customized
// (default: "relay_").
//
// # Examples
//
// See the examples/ directory for complete working examples.
//
// For detailed documentation, see README.md and pkg.go.dev.
package msgrelay
