package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/knowlode/knowlode/internal/observe"
	"github.com/knowlode/knowlode/internal/retrieval"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP query and metrics server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sys, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	shutdownProvider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "knowlode"})
	if err != nil {
		return fmt.Errorf("knowlode: init telemetry: %w", err)
	}
	metrics := observe.DefaultMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/query", queryHandler(sys))

	addr := sys.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: observe.Middleware(metrics)(mux)}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("knowlode: server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		return fmt.Errorf("knowlode: server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("knowlode: shutdown: %w", err)
	}
	return shutdownProvider(shutdownCtx)
}

type queryRequest struct {
	Query    string `json:"query"`
	TopK     int    `json:"top_k"`
	Strategy string `json:"strategy"`
}

type queryResponse struct {
	Results []retrieval.Result `json:"results"`
}

// queryHandler adapts the retrieval router to a plain JSON POST endpoint,
// the HTTP-surfaced counterpart of the query subcommand.
func queryHandler(sys *system) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.TopK <= 0 {
			req.TopK = 5
		}
		strategy := retrieval.Strategy(req.Strategy)
		if strategy == "" {
			strategy = retrieval.Strategy(sys.cfg.Retrieval.DefaultStrategy)
		}

		results, err := sys.memory.Router.Retrieve(r.Context(), req.Query, req.TopK, strategy, &retrieval.Context{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(queryResponse{Results: results})
	}
}
