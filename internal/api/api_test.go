package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/config"
	"github.com/ashgrove-quant/barforge/internal/ohlcv"
	"github.com/ashgrove-quant/barforge/internal/store"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	csvDir := t.TempDir()
	csvPath := filepath.Join(csvDir, "sample.csv")
	writeSyntheticCSV(t, csvPath, 400)

	storeDir := t.TempDir()
	mgr, err := store.NewManager(storeDir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	cfg := &config.Config{
		Storage: config.StorageConfig{AllowedCSVRoots: []string{csvDir}},
		Server:  config.ServerConfig{Host: "127.0.0.1", Port: 0, CORSAllowedOrigins: "*"},
	}

	registry := strategy.NewRegistry(zap.NewNop())
	loader := ohlcv.NewLoader([]string{csvDir})

	return NewServer(zap.NewNop(), cfg, mgr, registry, loader, nil), csvPath
}

func writeSyntheticCSV(t *testing.T, path string, n int) {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("time,open,high,low,close,volume\n")
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.1
		ts := int64(i) * 3600
		b.WriteString(formatRow(ts, price))
	}
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func formatRow(ts int64, price float64) string {
	return fmt.Sprintf("%d,%.2f,%.2f,%.2f,%.2f,1000\n", ts, price, price+0.5, price-0.5, price)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListStrategiesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/v1/strategies", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	strategies, _ := body["strategies"].([]any)
	if len(strategies) == 0 {
		t.Fatal("expected at least one registered strategy")
	}
}

func TestSubmitStudyRejectsPathOutsideAllowedRoots(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(studySubmission{StrategyID: "s04_stochrsi", CSVPath: "/etc/passwd"})
	req := httptest.NewRequest("POST", "/api/v1/studies", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestSubmitStudyRejectsUnknownStrategy(t *testing.T) {
	srv, csvPath := newTestServer(t)
	body, _ := json.Marshal(studySubmission{StrategyID: "does_not_exist", CSVPath: csvPath})
	req := httptest.NewRequest("POST", "/api/v1/studies", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestSubmitStudyRunsToCompletion(t *testing.T) {
	srv, csvPath := newTestServer(t)

	sub := studySubmission{
		StrategyID: "s04_stochrsi",
		CSVPath:    csvPath,
		WarmupBars: 20,
		Mode:       types.ModeOptuna,
		Optimize: types.OptimizationConfig{
			Objectives:       []string{"net_profit_pct"},
			PrimaryObjective: "net_profit_pct",
			Sampler:          types.SamplerRandom,
			BudgetMode:       types.BudgetTrials,
			BudgetTrialsCount: 3,
			NumWorkers:       2,
		},
	}
	body, _ := json.Marshal(sub)
	req := httptest.NewRequest("POST", "/api/v1/studies", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}

	var accepted map[string]any
	json.Unmarshal(rr.Body.Bytes(), &accepted)
	id, _ := accepted["id"].(string)
	if id == "" {
		t.Fatal("expected a study id in the response")
	}

	deadline := time.Now().Add(10 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		getReq := httptest.NewRequest("GET", "/api/v1/studies/"+id, nil)
		getRR := httptest.NewRecorder()
		srv.router.ServeHTTP(getRR, getReq)
		var snap map[string]any
		json.Unmarshal(getRR.Body.Bytes(), &snap)
		status, _ = snap["status"].(string)
		if status == "completed" || status == "failed" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status != "completed" {
		t.Fatalf("expected study to complete, got status=%q", status)
	}
}

func TestDeleteUnknownStudyHitsStorage(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest("DELETE", "/api/v1/studies/does-not-exist", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}
