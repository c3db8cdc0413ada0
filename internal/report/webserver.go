package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/httputil"
	"github.com/banshee-data/trajectory.report/internal/version"
)

// WebServer serves recorded trajectory runs: interactive chart pages for
// humans and a small JSON API for everything else.
type WebServer struct {
	address string
	db      *db.DB
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address string
	DB      *db.DB
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		db:      config.DB,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/runs/", ws.handleRunChart)
	mux.HandleFunc("/api/runs", ws.handleListRuns)
	mux.HandleFunc("/api/runs/", ws.handleRunAPI)

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "trajectory-report", "version": "%s", "timestamp": "%s"}`, version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleIndex renders the chart page for the most recent run.
func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	run, err := ws.db.LatestRun()
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "no runs recorded yet")
		return
	}
	if err != nil {
		log.Printf("Error fetching latest run: %v", err)
		httputil.InternalServerError(w, "failed to fetch latest run")
		return
	}

	ws.renderRunChart(w, run)
}

// handleRunChart renders the chart page for /runs/{id}.
func (ws *WebServer) handleRunChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		httputil.BadRequest(w, "missing run ID")
		return
	}

	run, err := ws.db.GetRun(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		log.Printf("Error fetching run %s: %v", runID, err)
		httputil.InternalServerError(w, "failed to fetch run")
		return
	}

	ws.renderRunChart(w, run)
}

// renderRunChart writes the chart HTML for a run, or a JSON error.
func (ws *WebServer) renderRunChart(w http.ResponseWriter, run *db.Run) {
	positions, err := ws.db.Positions(run.RunID)
	if err != nil {
		log.Printf("Error fetching positions for run %s: %v", run.RunID, err)
		httputil.InternalServerError(w, "failed to fetch positions")
		return
	}
	if len(positions) == 0 {
		httputil.NotFound(w, "run has no positions")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderHTML(w, run, positions); err != nil {
		log.Printf("Error rendering chart for run %s: %v", run.RunID, err)
	}
}

// handleListRuns returns recent runs as JSON.
// Query params:
//
//	limit (optional, default 50)
func (ws *WebServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = v
	}

	runs, err := ws.db.ListRuns(limit)
	if err != nil {
		log.Printf("Error listing runs: %v", err)
		httputil.InternalServerError(w, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}

	httputil.WriteJSONOK(w, runs)
}

// handleRunAPI dispatches /api/runs/{id} and /api/runs/{id}/positions.
func (ws *WebServer) handleRunAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		httputil.BadRequest(w, "missing run ID")
		return
	}
	runID := pathParts[0]

	run, err := ws.db.GetRun(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		log.Printf("Error fetching run %s: %v", runID, err)
		httputil.InternalServerError(w, "failed to fetch run")
		return
	}

	switch {
	case len(pathParts) == 1:
		httputil.WriteJSONOK(w, run)

	case len(pathParts) == 2 && pathParts[1] == "positions":
		positions, err := ws.db.Positions(runID)
		if err != nil {
			log.Printf("Error fetching positions for run %s: %v", runID, err)
			httputil.InternalServerError(w, "failed to fetch positions")
			return
		}
		if positions == nil {
			positions = []db.Position{}
		}
		httputil.WriteJSONOK(w, positions)

	default:
		httputil.NotFound(w, "not found")
	}
}

// Close immediately closes the underlying HTTP server.
func (ws *WebServer) Close() error {
	return ws.server.Close()
}
