package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/carebridge/referral-hub/internal/replicate"
)

// replicator copies one hub instance's data into another. A one-shot run
// does a full table sync; -follow keeps tailing the source's change log
// afterwards.
func main() {
	sourceDSN := flag.String("source", os.Getenv("SOURCE_DSN"), "Source Postgres DSN")
	targetDSN := flag.String("target", os.Getenv("TARGET_DSN"), "Target Postgres DSN")
	follow := flag.Bool("follow", false, "Keep tailing the source change log after the full sync")
	poll := flag.Duration("poll", 5*time.Second, "Change log poll interval in follow mode")
	batch := flag.Int("batch", 200, "Max changes applied per poll")
	flag.Parse()

	if *sourceDSN == "" || *targetDSN == "" {
		log.Fatal("both -source and -target DSNs are required")
	}

	source, err := sql.Open("postgres", *sourceDSN)
	if err != nil {
		log.Fatalf("source open: %v", err)
	}
	defer source.Close()

	target, err := sql.Open("postgres", *targetDSN)
	if err != nil {
		log.Fatalf("target open: %v", err)
	}
	defer target.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := source.PingContext(ctx); err != nil {
		log.Fatalf("source ping: %v", err)
	}
	if err := target.PingContext(ctx); err != nil {
		log.Fatalf("target ping: %v", err)
	}

	copier := &replicate.Copier{Source: source, Target: target}

	start := time.Now()
	if err := copier.FullSync(ctx); err != nil {
		log.Fatalf("full sync failed: %v", err)
	}
	log.Printf("full sync done in %v", time.Since(start))

	if !*follow {
		return
	}

	if err := copier.Follow(ctx, *poll, *batch); err != nil && err != context.Canceled {
		log.Fatalf("follow failed: %v", err)
	}
}
