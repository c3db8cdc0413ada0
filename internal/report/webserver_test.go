package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/testutil"
)

func setupTestServer(t *testing.T) (*WebServer, *db.DB) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "report_test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	server := NewWebServer(WebServerConfig{
		Address: ":0",
		DB:      database,
	})
	return server, database
}

// seedRun records a run with count positions and returns it.
func seedRun(t *testing.T, database *db.DB, dataset string, createdAt time.Time, count int) *db.Run {
	t.Helper()

	run := &db.Run{
		CreatedAt:      createdAt,
		Dataset:        dataset,
		SourceCSV:      "detections.csv",
		FramesTotal:    count,
		FramesUsed:     count,
		PatchRadius:    2,
		TopBias:        0.5,
		ReferenceTheta: 0.1,
	}

	positions := make([]db.Position, count)
	for i := 0; i < count; i++ {
		positions[i] = db.Position{
			FrameID: 10 + i,
			Forward: -20.0 + 5.0*float64(i),
			Lateral: 0.1 * float64(i),
			CameraX: 20.0 - 5.0*float64(i),
			CameraY: 1.0,
			CameraZ: 1.4,
		}
	}

	if err := database.RecordRun(run, positions); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	return run
}

func TestNewWebServer(t *testing.T) {
	server, database := setupTestServer(t)

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}
	if server.db != database {
		t.Error("WebServer db not set correctly")
	}
	if server.server == nil {
		t.Error("WebServer http.Server not initialised")
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	server, _ := setupTestServer(t)

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Health handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	expected := "application/json"
	if ctype := rr.Header().Get("Content-Type"); ctype != expected {
		t.Errorf("Health handler returned wrong content type: got %v want %v",
			ctype, expected)
	}

	body := rr.Body.String()

	if !strings.Contains(body, `"status": "ok"`) {
		t.Error("Response should contain status: ok (with spaces)")
	}

	if !strings.Contains(body, `"service": "trajectory-report"`) {
		t.Error("Response should contain service: trajectory-report (with spaces)")
	}
}

func TestWebServer_IndexNoRuns(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)

	if !strings.Contains(rr.Body.String(), "no runs recorded yet") {
		t.Errorf("Response should explain that no runs exist, got %q", rr.Body.String())
	}
}

func TestWebServer_IndexServesLatestRun(t *testing.T) {
	server, database := setupTestServer(t)

	base := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	seedRun(t, database, "older", base, 3)
	latest := seedRun(t, database, "newer", base.Add(time.Minute), 4)

	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	if ctype := rr.Header().Get("Content-Type"); !strings.Contains(ctype, "text/html") {
		t.Errorf("Index returned wrong content type: got %v want text/html", ctype)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "Ego Trajectory") {
		t.Error("Response should contain the chart title")
	}
	if !strings.Contains(body, latest.RunID) {
		t.Error("Response should reference the latest run ID")
	}
}

func TestWebServer_RunChart(t *testing.T) {
	server, database := setupTestServer(t)
	run := seedRun(t, database, "intersection-07", time.Now(), 3)

	t.Run("known run", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/runs/"+run.RunID))

		testutil.AssertStatusCode(t, rr.Code, http.StatusOK)
		if !strings.Contains(rr.Body.String(), run.RunID) {
			t.Error("Chart page should reference the run ID")
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/runs/no-such-run"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
	})

	t.Run("missing ID", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/runs/"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
	})
}

func TestWebServer_ListRuns(t *testing.T) {
	server, database := setupTestServer(t)

	base := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	seedRun(t, database, "first", base, 2)
	seedRun(t, database, "second", base.Add(time.Minute), 2)

	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	var runs []db.Run
	if err := json.NewDecoder(rr.Body).Decode(&runs); err != nil {
		t.Fatalf("failed to decode runs JSON: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Dataset != "second" || runs[1].Dataset != "first" {
		t.Errorf("runs out of order: got %q, %q", runs[0].Dataset, runs[1].Dataset)
	}

	t.Run("limit", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs?limit=1"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

		var limited []db.Run
		if err := json.NewDecoder(rr.Body).Decode(&limited); err != nil {
			t.Fatalf("failed to decode runs JSON: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 run with limit=1, got %d", len(limited))
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs?limit=zero"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusBadRequest)
	})
}

func TestWebServer_ListRunsEmpty(t *testing.T) {
	server, _ := setupTestServer(t)

	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs"))

	testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

	// Empty database yields an empty JSON array, not null
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %q", body)
	}
}

func TestWebServer_RunAPI(t *testing.T) {
	server, database := setupTestServer(t)
	run := seedRun(t, database, "intersection-07", time.Now(), 3)

	t.Run("run metadata", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs/"+run.RunID))

		testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

		var got db.Run
		if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode run JSON: %v", err)
		}
		if got.RunID != run.RunID {
			t.Errorf("RunID = %q, want %q", got.RunID, run.RunID)
		}
		if got.Dataset != run.Dataset {
			t.Errorf("Dataset = %q, want %q", got.Dataset, run.Dataset)
		}
	})

	t.Run("positions", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs/"+run.RunID+"/positions"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusOK)

		var positions []db.Position
		if err := json.NewDecoder(rr.Body).Decode(&positions); err != nil {
			t.Fatalf("failed to decode positions JSON: %v", err)
		}
		if len(positions) != 3 {
			t.Fatalf("expected 3 positions, got %d", len(positions))
		}
		for i, pos := range positions {
			if pos.Seq != i {
				t.Errorf("position %d: Seq = %d, want %d", i, pos.Seq, i)
			}
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs/no-such-run"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
	})

	t.Run("unknown subresource", func(t *testing.T) {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("GET", "/api/runs/"+run.RunID+"/bogus"))

		testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
	})
}

func TestWebServer_MethodNotAllowed(t *testing.T) {
	server, database := setupTestServer(t)
	run := seedRun(t, database, "intersection-07", time.Now(), 2)

	paths := []string{"/", "/runs/" + run.RunID, "/api/runs", "/api/runs/" + run.RunID}
	for _, path := range paths {
		rr := testutil.NewTestRecorder()
		server.setupRoutes().ServeHTTP(rr, testutil.NewTestRequest("POST", path))

		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s returned %d, want %d", path, rr.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestWebServer_StartStop(t *testing.T) {
	server, _ := setupTestServer(t)
	server.server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	// Give the listener a moment to come up, then shut down
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
