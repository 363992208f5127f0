package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mr "github.com/paulniziolek/mrjobs/pkg/mapreduce"
	"github.com/paulniziolek/mrjobs/pkg/mapreduce/job"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	def := mr.DefaultConfig(envOr("MR_ROOT", "shared"))
	cfg := def

	addr := flag.String("addr", envOr("MR_ADDR", ":8000"), "listen address")
	flag.StringVar(&cfg.Root, "root", def.Root, "directory holding every job")
	flag.IntVar(&cfg.LinesPerSplit, "lines-per-split", def.LinesPerSplit, "lines per map split")
	flag.IntVar(&cfg.DefaultReducers, "reducers", def.DefaultReducers, "reducers for jobs that do not ask for a count")
	flag.DurationVar(&cfg.TaskLease, "lease", def.TaskLease, "how long a worker may hold a task")
	flag.DurationVar(&cfg.WorkerTTL, "worker-ttl", def.WorkerTTL, "forget workers silent for this long")
	flag.BoolVar(&cfg.Fairness, "fairness", def.Fairness, "spread tasks across registered workers in rounds")
	workers := flag.Int("workers", 0, "in-process workers to start")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mrmaster [flags] [usercode dataset-pattern]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	m, err := mr.MakeMaster(cfg)
	if err != nil {
		log.Fatalf("master: %v", err)
	}
	defer m.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for i := 0; i < *workers; i++ {
		w := mr.NewWorker(mr.WorkerConfig{ID: fmt.Sprintf("local-%d", i)}, m.Local(), nil)
		go w.Run(ctx)
	}

	if flag.NArg() == 2 {
		if err := runOnce(ctx, m, flag.Arg(0), flag.Arg(1)); err != nil {
			log.Fatalf("master: %v", err)
		}
		return
	}
	if flag.NArg() != 0 {
		flag.Usage()
		os.Exit(1)
	}

	srv := &http.Server{Addr: *addr, Handler: m.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("master listening on %s, root %s", *addr, cfg.Root)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("listen error:", err)
	}
}

// runOnce creates a single job and waits for it to finish.
func runOnce(ctx context.Context, m *mr.Master, code, dataset string) error {
	resp, err := m.CreateJob(mr.CreateJobRequest{UserCodePath: code, DatasetPath: dataset})
	if err != nil {
		return err
	}
	for {
		st, err := m.JobStatus(resp.JobID)
		if err != nil {
			return err
		}
		if st.Status == job.DonePhase {
			fmt.Println(st.FinalOutput)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
