package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthsentinel/sentinel/internal/alerts"
	"github.com/wealthsentinel/sentinel/internal/config"
	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/dedup"
	"github.com/wealthsentinel/sentinel/internal/doclog"
	"github.com/wealthsentinel/sentinel/internal/domain"
	"github.com/wealthsentinel/sentinel/internal/engine"
	"github.com/wealthsentinel/sentinel/internal/events"
	"github.com/wealthsentinel/sentinel/internal/marketdata"
	"github.com/wealthsentinel/sentinel/internal/notify"
	"github.com/wealthsentinel/sentinel/internal/portfolio"
	"github.com/wealthsentinel/sentinel/internal/rules"
	"github.com/wealthsentinel/sentinel/internal/stream"
	"github.com/wealthsentinel/sentinel/internal/workflow"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()
	dir := t.TempDir()

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "alerts.db"),
		Profile: database.ProfileLedger,
		Name:    "alerts",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledgerDB.Close() })

	snapDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshots",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapDB.Close() })

	alertRepo, err := alerts.NewRepository(ledgerDB)
	require.NoError(t, err)
	docLog, err := doclog.NewRepository(ledgerDB)
	require.NoError(t, err)
	snapRepo, err := portfolio.NewRepository(snapDB)
	require.NoError(t, err)
	provider, err := portfolio.NewProvider(snapRepo, log)
	require.NoError(t, err)

	registry := rules.NewRegistry(filepath.Join(dir, "missing-rules.json"), log)
	join := stream.New(60*time.Second, log)
	dd := dedup.New(15*time.Minute, log)
	stats := marketdata.NewStatsRegistry()
	ev := events.NewManager(log)

	sink := alerts.NewSink(alertRepo, notify.NewLogNotifier(log), ev, log)
	stages := workflow.NewStages(nil, 0.25, log)
	runner := workflow.NewRunner(stages, provider, sink, 2, log)
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)

	pipeline := engine.NewPipeline(join, registry, dd, runner, provider, stats, ev, log)

	return New(Config{
		Log:       log,
		Cfg:       &config.Config{},
		Pipeline:  pipeline,
		Join:      join,
		Alerts:    alertRepo,
		DocLog:    docLog,
		Rules:     registry,
		Portfolio: provider,
		Stats:     stats,
		Dedup:     dd,
		Events:    ev,
		LedgerDB:  ledgerDB,
		Port:      0,
		DevMode:   true,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestDocumentIngestEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/documents", map[string]string{
		"filename": "risk_assessment_q3.txt",
		"content":  "Risk Assessment\nRisk Rating: D\nTSLA exposure grew.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Document domain.DocumentFact `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.DocTypeRiskAssessment, resp.Document.DocType)
	assert.Contains(t, resp.Document.Symbols, "TSLA")

	t.Run("missing fields rejected", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/documents", map[string]string{"filename": "x.txt"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDocumentLogEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/documents", map[string]string{
		"filename": "compliance_policy.txt",
		"content":  "Compliance Policy\nInsider trading is prohibited.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/documents/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []struct {
			Filename string `json:"filename"`
			DocType  string `json:"doc_type"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "compliance_policy.txt", resp.Documents[0].Filename)
}

func TestTickEndpointDetectsVolatility(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/documents", map[string]string{
		"filename": "market_report.txt",
		"content":  "Market Report\nNVDA under pressure.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/market/ticks", map[string]interface{}{
		"symbol":     "NVDA",
		"price":      480.25,
		"change_pct": -18.0,
		"volume":     1500000,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Admitted int `json:"violations_admitted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Admitted)

	t.Run("malformed tick rejected", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/market/ticks", map[string]interface{}{"price": -5})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSnapshotEndpoints(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/portfolio/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/portfolio/snapshot", map[string]interface{}{
		"total_value": 1000000,
		"positions": map[string]interface{}{
			"AAPL": map[string]interface{}{
				"symbol":               "AAPL",
				"quantity":             500,
				"market_value":         90000,
				"percent_of_portfolio": 0.09,
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/portfolio/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")

	t.Run("invalid snapshot rejected", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/portfolio/snapshot", map[string]interface{}{
			"total_value": -1,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAlertEndpoints(t *testing.T) {
	s := testServer(t)

	alert := &domain.Alert{
		AlertID:      "alert-http-1",
		ViolationKey: "VOL_001:NVDA:VOLATILITY",
		RuleID:       "VOL_001",
		Severity:     domain.SeverityMedium,
		Symbol:       "NVDA",
		Status:       domain.AlertOpen,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.alerts.Save(alert))

	rec := doJSON(t, s, http.MethodGet, "/api/alerts/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alert-http-1")

	rec = doJSON(t, s, http.MethodGet, "/api/alerts/alert-http-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/alerts/alert-http-1/acknowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := s.alerts.Get("alert-http-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertAcknowledged, got.Status)

	rec = doJSON(t, s, http.MethodPost, "/api/alerts/alert-http-1/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("unknown alert 404s", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/alerts/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = doJSON(t, s, http.MethodPost, "/api/alerts/ghost/acknowledge", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRulesEndpoints(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/rules/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONC_001")

	rec = doJSON(t, s, http.MethodPost, "/api/rules/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Loaded int `json:"rules_loaded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Loaded)
}

func TestStreamStateEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/documents", map[string]string{
		"filename": "market_report.txt",
		"content":  "Market Report\nMSFT stable.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/stream/MSFT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "market_report.txt")
}

func TestSystemStatusEndpoint(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Contains(t, status, "uptime_seconds")
	assert.Contains(t, status, "dedup")
	assert.Equal(t, true, status["ledger_healthy"])
}

func TestMarketStatsEndpoint(t *testing.T) {
	s := testServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, s, http.MethodPost, "/api/market/ticks", map[string]interface{}{
			"symbol":     "AAPL",
			"price":      180.0 + float64(i),
			"change_pct": 0.5,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
		require.Equal(t, http.StatusAccepted, rec.Code, fmt.Sprintf("tick %d", i))
	}

	rec := doJSON(t, s, http.MethodGet, "/api/market/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL")
}
