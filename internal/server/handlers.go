package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wealthsentinel/sentinel/internal/alerts"
	"github.com/wealthsentinel/sentinel/internal/domain"
	"github.com/wealthsentinel/sentinel/internal/events"
	"github.com/wealthsentinel/sentinel/internal/marketdata"
)

const maxDocumentBytes = 4 << 20

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "compliance-monitor",
	})
}

type documentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// handleIngestDocument accepts one compliance document and runs it through
// the detection pipeline.
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Filename == "" || req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "filename and content are required")
		return
	}

	doc, admitted, err := s.pipeline.IngestDocument(r.Context(), req.Content, req.Filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.doclog != nil {
		if err := s.doclog.Append(doc, admitted); err != nil {
			s.log.Warn().Err(err).Str("document_id", doc.DocumentID).Msg("Failed to append processing log")
		}
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"document":            doc,
		"violations_admitted": admitted,
	})
}

// handleDocumentLog returns the most recent processing log entries.
func (s *Server) handleDocumentLog(w http.ResponseWriter, r *http.Request) {
	if s.doclog == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"documents": []interface{}{}})
		return
	}

	entries, err := s.doclog.Recent(50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"documents": entries})
}

// handleIngestTick accepts one market tick. Malformed ticks get a 400; the
// feed is expected to continue with the next tick.
func (s *Server) handleIngestTick(w http.ResponseWriter, r *http.Request) {
	var tick marketdata.RawTick
	if err := json.NewDecoder(r.Body).Decode(&tick); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid tick payload: "+err.Error())
		return
	}

	admitted, err := s.pipeline.IngestTick(r.Context(), tick)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"symbol":              tick.Symbol,
		"violations_admitted": admitted,
	})
}

func (s *Server) handleMarketStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": s.stats.All(),
	})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.portfolio.Current()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "no portfolio snapshot available")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUploadSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap domain.PortfolioSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid snapshot payload: "+err.Error())
		return
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}

	if err := s.portfolio.Update(&snap); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.events.Emit(events.SnapshotUpdated, "server", map[string]interface{}{
		"as_of":     snap.AsOf,
		"positions": len(snap.Positions),
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":     snap.AsOf,
		"positions": len(snap.Positions),
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := alerts.ListFilter{
		Status:   domain.AlertStatus(r.URL.Query().Get("status")),
		Symbol:   r.URL.Query().Get("symbol"),
		Severity: domain.Severity(r.URL.Query().Get("severity")),
		Limit:    100,
	}

	list, err := s.alerts.List(filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []*domain.Alert{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": list})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.alerts.Get(chi.URLParam(r, "alertID"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alert == nil {
		s.writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	s.writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.updateAlertStatus(w, r, domain.AlertAcknowledged)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	s.updateAlertStatus(w, r, domain.AlertResolved)
}

func (s *Server) updateAlertStatus(w http.ResponseWriter, r *http.Request, status domain.AlertStatus) {
	alertID := chi.URLParam(r, "alertID")
	if err := s.alerts.UpdateStatus(alertID, status); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alert_id": alertID,
		"status":   status,
	})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":     s.rules.Active(),
		"loaded_at": s.rules.LoadedAt(),
	})
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	count := s.rules.Reload()
	s.events.Emit(events.RulesReloaded, "server", map[string]interface{}{"count": count})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rules_loaded": count})
}

// handleStreamState exposes the join state for one symbol. Diagnostic.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	doc, market := s.join.Snapshot(symbol)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"document": doc,
		"market":   market,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
