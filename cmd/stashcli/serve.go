package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/stash/pkg/config"
	"github.com/cuemby/stash/pkg/log"
	"github.com/cuemby/stash/pkg/metrics"
	"github.com/cuemby/stash/pkg/store/local"
	"github.com/cuemby/stash/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose /metrics and /healthz for a demo in-process store",
	Long: `Serve starts an HTTP listener that exposes Stash's Prometheus
collectors and health-check result for a local.Store instance. It is
meant for operators to verify their scrape and probe configuration
against real Stash output before wiring Stash into an application.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8090", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	opts := config.Default()
	st := local.New(30*time.Second, opts.Now, nil)
	rec := telemetry.New(opts, st)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := rec.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if result.Level != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec.TakeSnapshot())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	logger := log.WithComponent("stashcli.serve")
	logger.Info().Str("addr", addr).Msg("serving /metrics, /healthz, /stats")

	fmt.Printf("listening on %s (Ctrl-C to stop)\n", addr)
	return srv.ListenAndServe()
}
