/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the account ledger service: configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the SQLite store
  3. Wire engine, statement builder, client resolver, event dispatcher
  4. Configure the HTTP router
  5. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: ledger.db; ":memory:" works)
  -client-url  Base URL of the client identity service

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, drain in-flight requests
  (30s bound), stop the event dispatcher so enqueued initial deposits land,
  close the database.

SEE ALSO:
  - api/server.go: router configuration
  - ledger/engine.go: the engine being served
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sofka/account-ledger/api"
	"github.com/sofka/account-ledger/client"
	"github.com/sofka/account-ledger/ledger"
	"github.com/sofka/account-ledger/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	clientURL := flag.String("client-url", "http://localhost:8081", "client service base URL")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	resolver := client.NewResolver(*clientURL, log)
	engine := ledger.NewEngine(store, resolver, log)

	dispatcher := ledger.NewDispatcher(engine, log)
	engine.Events = dispatcher
	dispatcher.Start()
	defer dispatcher.Stop()

	statements := ledger.NewStatementBuilder(store, resolver, log)
	handler := api.NewHandler(engine, statements, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}
