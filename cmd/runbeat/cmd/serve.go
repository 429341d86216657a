package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/runbeat/runbeat/pkg/api"
	"github.com/runbeat/runbeat/pkg/config"
	"github.com/runbeat/runbeat/pkg/engine"
	"github.com/runbeat/runbeat/pkg/launcher"
	"github.com/runbeat/runbeat/pkg/logging"
	"github.com/runbeat/runbeat/pkg/metrics"
	"github.com/runbeat/runbeat/pkg/ratelimit"
	"github.com/runbeat/runbeat/pkg/shutdown"
	"github.com/runbeat/runbeat/pkg/store"
)

var listenAddr string

// serveCmd starts the engine with its HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job engine with its HTTP API",
	Long: `Start the engine as a long-running server. Jobs are submitted over the
HTTP API and survive restarts through the configured store.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	log := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)

	st, err := store.NewStore(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	exporter := metrics.NewExporter(st)
	eng, err := engine.New(st, launcher.New(log), cfg.RetryPolicy(), log, exporter)
	if err != nil {
		st.Close()
		return err
	}

	// Jobs left mid-flight by a previous process cannot be resumed safely
	recovered, err := eng.RecoverInterrupted()
	if err != nil {
		st.Close()
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		log.Warn("recovered interrupted jobs", map[string]interface{}{"count": recovered})
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimitRPS > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	}

	router := mux.NewRouter()
	api.NewHandler(eng, st, exporter, limiter, log).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	mgr := shutdown.New(30*time.Second, log)
	mgr.Register(shutdown.CloseResource(st, "store"))
	mgr.Register(func(ctx context.Context) error { return eng.Shutdown(ctx) })
	mgr.Register(shutdown.StopHTTPServer(srv, "api"))

	errChan := make(chan error, 1)
	go func() {
		log.Info("api listening", map[string]interface{}{"addr": cfg.Server.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	waitChan := make(chan struct{})
	go func() {
		mgr.Wait()
		close(waitChan)
	}()

	select {
	case err := <-errChan:
		mgr.Shutdown()
		return fmt.Errorf("api server failed: %w", err)
	case <-waitChan:
		return nil
	}
}
