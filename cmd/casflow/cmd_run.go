package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/casflow/pkg/casflow"
	"github.com/randalmurphal/casflow/pkg/casflow/annotators"
	"github.com/randalmurphal/casflow/pkg/casflow/cas"
	"github.com/randalmurphal/casflow/pkg/casflow/config"
	"github.com/randalmurphal/casflow/pkg/casflow/journal"
	"github.com/randalmurphal/casflow/pkg/casflow/observability"
	"github.com/randalmurphal/casflow/pkg/casflow/registry"
)

type runFlags struct {
	config      string
	journal     string
	runID       string
	parallel    int
	maxSteps    int
	failFast    bool
	metricsAddr string
}

// outputRecord is one emitted CAS, written as a JSON line.
type outputRecord struct {
	Root          string            `json:"root"`
	CAS           string            `json:"cas"`
	Parent        string            `json:"parent"`
	LastComponent string            `json:"last_component"`
	Text          string            `json:"text"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Process files through an aggregate",
		Long:  "Each file becomes a root CAS. Every CAS the aggregate outputs is\nprinted to stdout as one JSON line.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd, flags, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "", "Aggregate descriptor (YAML or JSON, required)")
	f.StringVar(&flags.journal, "journal", "", "SQLite journal path")
	f.StringVar(&flags.runID, "run-id", "", "Run identifier (default: random UUID)")
	f.IntVarP(&flags.parallel, "parallel", "p", 4, "Files processed concurrently")
	f.IntVar(&flags.maxSteps, "max-steps", 0, "Component calls allowed per file (default 10000)")
	f.BoolVar(&flags.failFast, "fail-fast", false, "Abandon the remaining CASes of a file at its first error")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runAggregate(cmd *cobra.Command, flags runFlags, files []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default()

	spec, err := config.LoadAggregate(flags.config)
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := annotators.Register(reg); err != nil {
		return err
	}
	agg, err := reg.Build(spec)
	if err != nil {
		return err
	}

	runID := flags.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	opts := []casflow.RunOption{
		casflow.WithRunID(runID),
		casflow.WithObservabilityLogger(logger),
	}
	if flags.maxSteps > 0 {
		opts = append(opts, casflow.WithMaxSteps(flags.maxSteps))
	}
	if flags.failFast {
		opts = append(opts, casflow.WithFailFast())
	}

	if flags.journal != "" {
		store, err := journal.NewSQLiteStore(flags.journal)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, casflow.WithJournal(store))
	}

	if flags.metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		metrics, err := observability.NewPrometheusMetrics(promReg)
		if err != nil {
			return err
		}
		stop, err := serveMetrics(flags.metricsAddr, promReg, logger)
		if err != nil {
			return err
		}
		defer stop()
		opts = append(opts, casflow.WithMetricsRecorder(metrics))
	}

	pool := agg.Pool()
	var mu sync.Mutex
	enc := json.NewEncoder(cmd.OutOrStdout())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(flags.parallel, 1))
	for _, path := range files {
		g.Go(func() error {
			text, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			doc := cas.NewDocument(path, string(text))

			emit := func(out casflow.Output) error {
				defer func() { _ = pool.Release(out.CAS) }()
				rec := outputRecord{
					Root:          path,
					CAS:           out.CAS.ID(),
					Parent:        out.Parent,
					LastComponent: out.LastComponent,
				}
				if d, ok := out.CAS.(*cas.Document); ok {
					rec.Text = d.Text()
					rec.Metadata = d.Metadata()
				}
				mu.Lock()
				defer mu.Unlock()
				return enc.Encode(rec)
			}

			callOpts := append(opts[:len(opts):len(opts)], casflow.WithEmitter(emit))
			res, err := agg.Process(casflow.NewContext(gctx), doc, callOpts...)
			if err != nil {
				return fmt.Errorf("process %s: %w", path, err)
			}
			logger.Info("file processed",
				"run_id", runID,
				"file", path,
				"spawned", res.Spawned,
				"dropped", res.Dropped,
				"steps", res.Steps,
			)
			return nil
		})
	}
	err = g.Wait()

	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d file(s)\n", runID, len(files))
	return err
}

// serveMetrics serves /metrics and /healthz on addr until stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return func() { _ = srv.Close() }, nil
}
