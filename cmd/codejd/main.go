// codejd is the reference API server for codej's REST backend. It
// serves the programs endpoint over a local SQLite database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codej/codej/internal/apiserver"
)

func main() {
	port := flag.Int("port", 8787, "port to listen on")
	dbPath := flag.String("db", "codejd.db", "path to the SQLite database")
	flag.Parse()

	logger := log.New(os.Stderr, "[codejd] ", log.LstdFlags)

	db, err := apiserver.OpenDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      apiserver.NewServer(db, logger).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Println("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Printf("Serving /programs on :%d (db: %s)", *port, *dbPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
