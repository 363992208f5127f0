package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	mr "github.com/paulniziolek/mrjobs/pkg/mapreduce"
)

func main() {
	cfg := mr.DefaultWorkerConfig(os.Getenv("WORKER_ID"), os.Getenv("MASTER_URL"))
	if cfg.MasterURL == "" {
		cfg.MasterURL = "http://127.0.0.1:8000"
	}
	flag.StringVar(&cfg.ID, "id", cfg.ID, "worker id (random when empty)")
	flag.StringVar(&cfg.MasterURL, "master", cfg.MasterURL, "master base URL")
	flag.DurationVar(&cfg.Backoff, "backoff", cfg.Backoff, "pause between empty polls")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := mr.NewWorker(cfg, mr.NewClient(cfg.MasterURL), nil)
	log.Printf("worker %s polling %s", w.ID(), cfg.MasterURL)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker %s: %v", w.ID(), err)
	}
}
