package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleSystemStatus reports process and pipeline health for the dashboard.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		status["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = memStat.UsedPercent
		status["memory_used_mb"] = memStat.Used / 1024 / 1024
	}

	if s.ledgerDB != nil {
		if dbStats, err := s.ledgerDB.GetStats(); err == nil {
			status["ledger_db"] = map[string]interface{}{
				"size_bytes":     dbStats.SizeBytes,
				"wal_size_bytes": dbStats.WALSizeBytes,
			}
		}
		status["ledger_healthy"] = s.ledgerDB.QuickCheck(r.Context()) == nil
	}

	admitted, rejected, tracked := s.dedup.Stats()
	status["dedup"] = map[string]interface{}{
		"admitted":     admitted,
		"suppressed":   rejected,
		"tracked_keys": tracked,
	}

	if counts, err := s.alerts.CountByStatus(); err == nil {
		status["alerts"] = counts
	}

	if s.doclog != nil {
		if processed, err := s.doclog.Count(); err == nil {
			status["documents_processed"] = processed
		}
	}

	status["events"] = s.events.Counts()
	status["rules_loaded_at"] = s.rules.LoadedAt()

	s.writeJSON(w, http.StatusOK, status)
}
