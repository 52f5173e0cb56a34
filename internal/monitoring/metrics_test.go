package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newBoardRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/v1/tasks", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tasks": []string{}})
	})
	r.PATCH("/api/v1/tasks/:id/move", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	r.GET("/api/v1/activity", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
	})
	return r
}

func resetGlobalMetrics() {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.RequestCount = 0
	globalMetrics.RequestDuration = 0
	globalMetrics.ActiveRequests = 0
	globalMetrics.ErrorCount = 0
	globalMetrics.StatusCodes = make(map[string]int64)
	globalMetrics.Endpoints = make(map[string]int64)
	globalMetrics.LastRequest = time.Time{}
	globalMetrics.totalDuration = 0
}

func resetGlobalHealthChecker() {
	globalHealthChecker.mu.Lock()
	defer globalHealthChecker.mu.Unlock()
	globalHealthChecker.checks = make(map[string]HealthCheck)
}

func TestMetricsMiddleware_CountsBoardRequests(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	metrics := GetMetrics()

	if metrics.RequestCount != 3 {
		t.Errorf("Expected RequestCount 3, got %d", metrics.RequestCount)
	}
	if metrics.ActiveRequests != 0 {
		t.Errorf("Expected no active requests after completion, got %d", metrics.ActiveRequests)
	}
	if metrics.ErrorCount != 0 {
		t.Errorf("Expected ErrorCount 0 for list requests, got %d", metrics.ErrorCount)
	}
	if metrics.StatusCodes["OK"] != 3 {
		t.Errorf("Expected 3 OK responses, got %d", metrics.StatusCodes["OK"])
	}
	if metrics.Endpoints["GET /api/v1/tasks"] != 3 {
		t.Errorf("Expected 3 hits on the task list endpoint, got %d", metrics.Endpoints["GET /api/v1/tasks"])
	}
	if metrics.LastRequest.IsZero() {
		t.Error("Expected LastRequest to be stamped")
	}
}

func TestMetricsMiddleware_RouteTemplateKeysEndpoint(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()

	for _, id := range []string{"task-1", "task-2"} {
		req, _ := http.NewRequest("PATCH", "/api/v1/tasks/"+id+"/move", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}

	metrics := GetMetrics()

	// Both moves land under the route template, not the concrete IDs.
	if metrics.Endpoints["PATCH /api/v1/tasks/:id/move"] != 2 {
		t.Errorf("Expected 2 hits on the move template, got %v", metrics.Endpoints)
	}
}

func TestMetricsMiddleware_UnroutedPathFallsBackToURL(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()

	req, _ := http.NewRequest("GET", "/no/such/route", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	metrics := GetMetrics()

	if metrics.Endpoints["GET /no/such/route"] != 1 {
		t.Errorf("Expected the raw path as endpoint key, got %v", metrics.Endpoints)
	}
	if metrics.StatusCodes["Not Found"] != 1 {
		t.Errorf("Expected 1 Not Found, got %d", metrics.StatusCodes["Not Found"])
	}
}

func TestMetricsMiddleware_ServerErrorsCounted(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()

	req, _ := http.NewRequest("GET", "/api/v1/activity", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	req2, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	metrics := GetMetrics()

	if metrics.ErrorCount != 1 {
		t.Errorf("Expected ErrorCount 1, got %d", metrics.ErrorCount)
	}
	if metrics.StatusCodes["Internal Server Error"] != 1 {
		t.Errorf("Expected 1 Internal Server Error, got %d", metrics.StatusCodes["Internal Server Error"])
	}
	if metrics.RequestCount != 2 {
		t.Errorf("Expected RequestCount 2, got %d", metrics.RequestCount)
	}
}

func TestGetMetrics_SnapshotIsDetached(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()

	req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	first := GetMetrics()
	first.Endpoints["GET /api/v1/tasks"] = 99
	first.StatusCodes["OK"] = 99

	second := GetMetrics()
	if second.Endpoints["GET /api/v1/tasks"] != 1 {
		t.Errorf("Expected snapshot mutation to leave the live counters at 1, got %d", second.Endpoints["GET /api/v1/tasks"])
	}
	if second.StatusCodes["OK"] != 1 {
		t.Errorf("Expected snapshot mutation to leave OK at 1, got %d", second.StatusCodes["OK"])
	}
}

func TestMetricsMiddleware_ConcurrentMoves(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				req, _ := http.NewRequest("PATCH", "/api/v1/tasks/task-7/move", nil)
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)
			}
		}()
	}
	wg.Wait()

	metrics := GetMetrics()

	if metrics.RequestCount != workers*perWorker {
		t.Errorf("Expected RequestCount %d, got %d", workers*perWorker, metrics.RequestCount)
	}
	if metrics.ActiveRequests != 0 {
		t.Errorf("Expected ActiveRequests 0 after all workers finished, got %d", metrics.ActiveRequests)
	}
	if metrics.Endpoints["PATCH /api/v1/tasks/:id/move"] != workers*perWorker {
		t.Errorf("Expected %d move hits, got %d", workers*perWorker, metrics.Endpoints["PATCH /api/v1/tasks/:id/move"])
	}
}

func TestGetSystemMetrics(t *testing.T) {
	sys := GetSystemMetrics()

	if sys.GoroutineCount <= 0 {
		t.Errorf("Expected a positive goroutine count, got %d", sys.GoroutineCount)
	}
	if sys.CPUCount <= 0 {
		t.Errorf("Expected a positive CPU count, got %d", sys.CPUCount)
	}
	if sys.GoVersion == "" {
		t.Error("Expected a Go version string")
	}
	if sys.Uptime < 0 {
		t.Errorf("Expected a non-negative uptime, got %v", sys.Uptime)
	}
}

func TestBToMb(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  uint64
	}{
		{"zero", 0, 0},
		{"below one megabyte", 512 * 1024, 0},
		{"exactly one megabyte", 1024 * 1024, 1},
		{"board snapshot sized", 42 * 1024 * 1024, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bToMb(tt.bytes); got != tt.want {
				t.Errorf("Expected %d MB for %d bytes, got %d", tt.want, tt.bytes, got)
			}
		})
	}
}

func TestRunHealthChecks_BoardDependencies(t *testing.T) {
	resetGlobalHealthChecker()

	RegisterHealthCheck("board-store", func(ctx context.Context) error {
		return nil
	})
	RegisterHealthCheck("event-bus", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	results := RunHealthChecks()

	if len(results) != 2 {
		t.Fatalf("Expected 2 check results, got %d", len(results))
	}

	store := results["board-store"]
	if store.Status != "healthy" {
		t.Errorf("Expected board-store healthy, got %q", store.Status)
	}
	if store.CheckedAt.IsZero() {
		t.Error("Expected board-store CheckedAt to be stamped")
	}

	bus := results["event-bus"]
	if bus.Status != "unhealthy" {
		t.Errorf("Expected event-bus unhealthy, got %q", bus.Status)
	}
	if bus.Message != "connection refused" {
		t.Errorf("Expected the check error as the message, got %q", bus.Message)
	}
}

func TestRunHealthChecks_ChecksSeeDeadline(t *testing.T) {
	resetGlobalHealthChecker()

	RegisterHealthCheck("board-store", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline on check context")
		}
		return nil
	})

	results := RunHealthChecks()
	if results["board-store"].Status != "healthy" {
		t.Errorf("Expected the check context to carry a deadline: %s", results["board-store"].Message)
	}
}

func TestRegisterHealthCheck_ReplacesByName(t *testing.T) {
	resetGlobalHealthChecker()

	RegisterHealthCheck("event-bus", func(ctx context.Context) error {
		return errors.New("old check")
	})
	RegisterHealthCheck("event-bus", func(ctx context.Context) error {
		return nil
	})

	results := RunHealthChecks()
	if len(results) != 1 {
		t.Fatalf("Expected 1 check after re-registering, got %d", len(results))
	}
	if results["event-bus"].Status != "healthy" {
		t.Errorf("Expected the replacement check to run, got %q", results["event-bus"].Status)
	}
}

func TestMetricsHandler(t *testing.T) {
	resetGlobalMetrics()
	router := newBoardRouter()
	router.GET("/metrics", MetricsHandler())

	req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	req2, _ := http.NewRequest("GET", "/metrics", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req2)

	if w2.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w2.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse metrics response: %v", err)
	}
	for _, key := range []string{"application", "system", "timestamp"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Expected %q in metrics response", key)
		}
	}

	var app MetricsSnapshot
	if err := json.Unmarshal(body["application"], &app); err != nil {
		t.Fatalf("Failed to parse application metrics: %v", err)
	}
	if app.RequestCount < 1 {
		t.Errorf("Expected at least one counted request, got %d", app.RequestCount)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checkErr   error
		wantCode   int
		wantStatus string
	}{
		{"store reachable", nil, http.StatusOK, "healthy"},
		{"store down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalHealthChecker()
			RegisterHealthCheck("board-store", func(ctx context.Context) error {
				return tt.checkErr
			})

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.GET("/health", HealthHandler())

			req, _ := http.NewRequest("GET", "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to parse health response: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("Expected status %q, got %v", tt.wantStatus, body["status"])
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		checkErr   error
		wantCode   int
		wantStatus string
	}{
		{"dependencies up", nil, http.StatusOK, "ready"},
		{"event bus down", errors.New("redis: connection pool timeout"), http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalHealthChecker()
			RegisterHealthCheck("event-bus", func(ctx context.Context) error {
				return tt.checkErr
			})

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.GET("/ready", ReadinessHandler())

			req, _ := http.NewRequest("GET", "/ready", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Failed to parse readiness response: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("Expected status %q, got %v", tt.wantStatus, body["status"])
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/live", LivenessHandler())

	req, _ := http.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse liveness response: %v", err)
	}
	if body["status"] != "alive" {
		t.Errorf("Expected status alive, got %v", body["status"])
	}
	if body["uptime"] == nil {
		t.Error("Expected an uptime in the liveness response")
	}
}

func BenchmarkMetricsMiddleware(b *testing.B) {
	resetGlobalMetrics()
	router := newBoardRouter()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req, _ := http.NewRequest("GET", "/api/v1/tasks", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

func BenchmarkGetMetrics(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GetMetrics()
	}
}
