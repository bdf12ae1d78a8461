package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/model"
	"github.com/sells-group/profile-dedupe/internal/monitoring"
	"github.com/sells-group/profile-dedupe/internal/reconcile"
	"github.com/sells-group/profile-dedupe/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports, metrics and dry-run previews over HTTP",
	Long:  "Read-only ops surface. Also runs a scheduled dry run that alerts when duplicate identities reappear.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRun(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := monitoring.NewMetrics(reg)
		if err != nil {
			return err
		}

		srvState := &server{
			ctrl:       env.Controller,
			reportsDir: cfg.Run.OutputDir,
			metrics:    metrics,
		}

		checker := monitoring.NewChecker(srvState.dryRun, monitoring.NewAlerter(cfg.Monitoring), nil,
			time.Duration(cfg.Server.DriftIntervalSecs)*time.Second)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvState.routes(reg, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// server is the state behind the HTTP routes.
type server struct {
	ctrl       *reconcile.Controller
	reportsDir string
	metrics    *monitoring.Metrics

	// runMu keeps previews and drift checks from overlapping.
	runMu sync.Mutex
}

func (s *server) routes(reg *prometheus.Registry, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/reports", s.listReports)
		r.Get("/reports/{name}", s.getReport)
		r.Post("/preview", s.preview)
	})
	return r
}

func (s *server) listReports(w http.ResponseWriter, _ *http.Request) {
	entries, err := report.List(s.reportsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Read(s.reportsDir, chi.URLParam(r, "name"))
	switch {
	case errors.Is(err, report.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusNotFound, err)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

type previewRequest struct {
	Handles []string `json:"handles"`
	Role    string   `json:"role"`
}

func (s *server) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid request body"))
			return
		}
	}
	sel := model.Selection{Mode: model.SelectAll}
	switch {
	case len(req.Handles) > 0 && req.Role != "":
		writeError(w, http.StatusBadRequest, eris.New("handles and role are mutually exclusive"))
		return
	case len(req.Handles) > 0:
		sel = model.Selection{Mode: model.SelectHandles, Handles: req.Handles}
	case req.Role != "":
		sel = model.Selection{Mode: model.SelectRole, Role: req.Role}
	}

	if !s.runMu.TryLock() {
		writeError(w, http.StatusConflict, eris.New("a run is already in progress"))
		return
	}
	defer s.runMu.Unlock()

	rep, err := s.run(r.Context(), sel)
	if rep == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// dryRun is the drift checker's run: the whole store, nothing written.
func (s *server) dryRun(ctx context.Context) (*model.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, model.Selection{Mode: model.SelectAll})
}

func (s *server) run(ctx context.Context, sel model.Selection) (*model.Report, error) {
	rep, err := s.ctrl.Run(ctx, reconcile.Options{DryRun: true, Selection: sel})
	if rep == nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Observe(monitoring.Collect(rep), false)
	}
	if _, werr := report.Write(s.reportsDir, rep); werr != nil {
		zap.L().Warn("preview report not written", zap.Error(werr))
	}
	return rep, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
