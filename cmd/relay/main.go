package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	redisbus "chat-relay/infrastructure/redis"
	"chat-relay/relay"
	"chat-relay/repositories"
	mongostore "chat-relay/repositories/mongo"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// stores is what the relay needs from the selected storage engine.
type stores struct {
	chats      repositories.IChatRepository
	messages   repositories.IMessageRepository
	transactor repositories.ITransactor
	// reconcile is true when posts are not written in a single transaction
	reconcile bool
	close     func()
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every defer (store closing, bus shutdown) runs before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Storage
	store, err := openStores(ctx, config, log)
	if err != nil {
		return err
	}
	defer store.close()
	service := services.NewConversationService(store.chats, store.messages, store.transactor, log).
		WithSettleWindow(config.SettleWindow)

	// 4. Delivery: local fanout, optionally spread across instances through Redis
	registry := runtime.NewRegistry()
	fanout := workers.NewEventFanout(log, registry, config.BufferSize, config.SinkTimeout)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(fanout, workers.NewHeartbeatWorker(log, registry, config.HeartbeatInterval))

	var bus contract.IBus = fanout
	if config.RedisAddr != "" {
		client, err := redisbus.NewClient(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		redisBus := redisbus.NewBus(client, config.RedisChannel, fanout, log)
		sup.Add(redisBus)
		bus = redisBus
		log.Info("Cross-instance delivery enabled", "redis", config.RedisAddr, "channel", config.RedisChannel)
	}
	if store.reconcile {
		sup.Add(workers.NewReconcilerWorker(log, store.chats, service, config.ReconcileInterval))
	}
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 5. HTTP & WebSocket server
	verifier := auth.NewTokenVerifier(config.SharedSecret)
	hub := relay.NewHub(service, verifier, registry, bus, log)
	server := relay.NewServer(hub, service, verifier, relay.SessionConfig{
		SendBufferSize: config.SendBufferSize,
		PingInterval:   config.PingInterval,
		WriteTimeout:   config.WriteTimeout,
		MaxMessageSize: config.MaxMessageSize,
	}, splitOrigins(config.AllowedOrigins), log)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Sessions end when the process is asked to stop
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay server", "address", address, "store", config.Store, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server did not stop in time", "error", err)
	}
	// The supervisor context derives from ctx, workers are already stopping
	<-supervisorDone
	log.Info("Program stopped cleanly")
	return nil
}

func openStores(ctx context.Context, config Config, log *slog.Logger) (stores, error) {
	switch config.Store {
	case "badger":
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return stores{}, fmt.Errorf("database opening failed: %w", err)
		}
		return stores{
			chats:      repositories.NewChatRepository(db, log, config.StoreMaxRetries),
			messages:   repositories.NewMessageRepository(db, log, config.StoreMaxRetries),
			transactor: repositories.NewTransactor(db, log, config.StoreMaxRetries),
			close: func() {
				log.Info("Closing BadgerDB...")
				_ = db.Close()
			},
		}, nil
	case "mongo":
		client, err := mongostore.NewClient(ctx, config.MongoURI)
		if err != nil {
			return stores{}, err
		}
		db := client.Database(mongoDatabase(config))
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return stores{}, err
		}
		transactor := mongostore.NewTransactor(client, config.MongoTransactions)
		if !transactor.Enabled() {
			log.Warn("MongoDB transactions disabled, counters are repaired by the reconciler",
				"interval", config.ReconcileInterval)
		}
		return stores{
			chats:      mongostore.NewChatRepository(db),
			messages:   mongostore.NewMessageRepository(db),
			transactor: transactor,
			reconcile:  !transactor.Enabled(),
			close: func() {
				log.Info("Disconnecting MongoDB...")
				_ = client.Disconnect(context.Background())
			},
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store %q, expected badger or mongo", config.Store)
	}
}

// mongoDatabase uses MONGO_DATABASE, or the database named in the connection string.
func mongoDatabase(config Config) string {
	if config.MongoDatabase != "" {
		return config.MongoDatabase
	}
	if u, err := url.Parse(config.MongoURI); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return "chat"
}

func splitOrigins(s string) []string {
	var origins []string
	for _, origin := range strings.Split(s, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
