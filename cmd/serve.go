package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lifecycle-cli/internal/model"
	"github.com/sells-group/lifecycle-cli/internal/report"
	"github.com/sells-group/lifecycle-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lifecycle report HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := initEngine()
		if err != nil {
			return err
		}

		srv := newServer(st, initOrchestrator(st, engine))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server holds the HTTP surface. Generated report payloads are kept in
// memory per process; the store persists only metadata and filename.
type server struct {
	store    store.Store
	orch     *report.Orchestrator
	payloads sync.Map // reportID -> []byte
}

func newServer(st store.Store, orch *report.Orchestrator) *server {
	return &server{store: st, orch: orch}
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{jobID}/products", s.handleGetProducts)
		r.Post("/{jobID}/reports", s.handleGenerateReport)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.handleListReports)
		r.Get("/{reportID}", s.handleGetReport)
		r.Get("/{reportID}/events", s.handleReportEvents)
		r.Get("/{reportID}/download", s.handleDownloadReport)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerName string          `json:"customer_name"`
		Products     []model.Product `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Products) == 0 {
		writeError(w, http.StatusBadRequest, "products are required")
		return
	}
	for i := range req.Products {
		req.Products[i].Index = i
		if req.Products[i].Quantity <= 0 {
			req.Products[i].Quantity = 1
		}
	}

	job, err := s.store.CreateJob(r.Context(), req.CustomerName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}
	if err := s.store.AddProducts(r.Context(), job.ID, req.Products); err != nil {
		writeError(w, http.StatusInternalServerError, "add products failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":   job.ID,
		"products": len(req.Products),
	})
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *server) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.GetProducts(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get products failed")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var opts model.ReportOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}

	reportID := report.NewReportID()

	// The run outlives the request; progress is streamed via SSE.
	go func() {
		result, err := s.orch.GenerateReportWithID(context.Background(), reportID, jobID, opts)
		if err != nil {
			zap.L().Error("report generation failed",
				zap.String("report_id", reportID),
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			return
		}
		s.payloads.Store(reportID, result.Payload)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"report_id": reportID})
}

func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context(), store.ReportFilter{
		JobID:  r.URL.Query().Get("job_id"),
		Status: model.ReportStatus(r.URL.Query().Get("status")),
		Limit:  100,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list reports failed")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get report failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleReportEvents streams progress as server-sent events until the
// report reaches a terminal state or the client disconnects.
func (s *server) handleReportEvents(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	rep, err := s.store.GetReport(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get report failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := make(chan model.ProgressEvent, 16)
	handle := s.orch.Progress().Register(reportID, func(ev model.ProgressEvent) {
		select {
		case events <- ev:
		default:
		}
	})
	defer s.orch.Progress().UnregisterFunc(reportID, handle)

	// Current state first, so late subscribers see where the run is.
	writeEvent(w, model.ProgressEvent{
		ReportID:        reportID,
		Step:            string(rep.Status),
		PercentComplete: rep.Progress,
	})
	flusher.Flush()
	if rep.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			writeEvent(w, ev)
			flusher.Flush()
			if model.ReportStatus(ev.Step).Terminal() {
				return
			}
		}
	}
}

func (s *server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")

	rep, err := s.store.GetReport(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, store.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get report failed")
		return
	}

	payload, ok := s.payloads.Load(reportID)
	if !ok || rep.Filename == "" {
		writeError(w, http.StatusNotFound, "report file not available")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(payload.([]byte))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeEvent(w http.ResponseWriter, ev model.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
