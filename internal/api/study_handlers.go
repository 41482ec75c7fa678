package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/export"
	"github.com/ashgrove-quant/barforge/internal/store"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

// StudyState tracks one in-flight or completed study submission. It is
// the in-memory counterpart to the persisted studies row the run writes
// on completion.
type StudyState struct {
	mu      sync.RWMutex
	ID      string
	Mode    types.OptimizationMode
	Status  string // running, completed, failed, cancelled
	Started time.Time
	Error   string
	cancel  context.CancelFunc

	strategy      strategy.Strategy
	table         types.OHLCVTable
	tradeStartIdx int
	bestParams    types.Params
	csvName       string
}

// exportable reruns the study's crowned parameters over its dataset so
// the export handler can build a trades+summary bundle on demand,
// without keeping a full StrategyResult resident for every study.
func (s *StudyState) exportable() (types.StrategyResult, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Status != "completed" || s.strategy == nil {
		return types.StrategyResult{}, "", false
	}
	result, err := s.strategy.Run(s.table, s.bestParams, s.tradeStartIdx)
	if err != nil {
		return types.StrategyResult{}, "", false
	}
	return result, s.csvName, true
}

func (s *StudyState) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]any{
		"id":      s.ID,
		"mode":    string(s.Mode),
		"status":  s.Status,
		"started": s.Started.Unix(),
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return out
}

func (s *StudyState) setStatus(status string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	if err != nil {
		s.Error = err.Error()
	}
}

// studySubmission is the JSON body accepted by POST /api/v1/studies.
type studySubmission struct {
	StrategyID string `json:"strategy_id"`
	CSVPath    string `json:"csv_path"`
	WarmupBars int    `json:"warmup_bars"`
	Start      *int64 `json:"start"`
	End        *int64 `json:"end"`

	Mode types.OptimizationMode `json:"mode"` // "optuna" or "wfa"

	Payload  types.Params             `json:"payload"`
	Optimize types.OptimizationConfig `json:"optimization,omitempty"`
	WFA      types.WFAConfig          `json:"wfa,omitempty"`
}

func (s *Server) handleSubmitStudy(w http.ResponseWriter, r *http.Request) {
	var req studySubmission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.cfg.IsCSVRootAllowed(req.CSVPath) {
		writeError(w, http.StatusForbidden, "csv path is outside the allowed roots")
		return
	}
	strat, ok := s.registry.Create(req.StrategyID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown strategy_id")
		return
	}

	resolved, err := s.loader.Resolve(req.CSVPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	table, err := s.loader.Load(resolved)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := newStudyID()
	ctx, cancel := context.WithCancel(context.Background())
	state := &StudyState{ID: id, Mode: req.Mode, Status: "running", Started: time.Now(), cancel: cancel}

	s.mu.Lock()
	s.studies[id] = state
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.StudiesSubmittedTotal.WithLabelValues(string(req.Mode)).Inc()
	}

	go s.runStudy(ctx, state, strat, table, req)

	writeJSON(w, http.StatusAccepted, state.snapshot())
}

func (s *Server) handleListStudies(w http.ResponseWriter, r *http.Request) {
	db := s.manager.Active()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "no active database")
		return
	}
	studies, err := store.ListStudies(db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"studies": studies})
}

func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, running := s.studies[id]
	s.mu.RUnlock()
	if running {
		writeJSON(w, http.StatusOK, state.snapshot())
		return
	}

	writeError(w, http.StatusNotFound, "study not found")
}

// handleDeleteStudy cancels an in-flight run, or deletes a persisted
// study row once the engine's run lock is free (spec §7: a run lock
// gates DB mutations and deletions while any optimization is in flight).
func (s *Server) handleDeleteStudy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, known := s.studies[id]
	s.mu.RUnlock()
	if known {
		state.mu.RLock()
		running := state.Status == "running"
		state.mu.RUnlock()
		if running {
			state.cancel()
			state.setStatus("cancelled", nil)
			writeJSON(w, http.StatusOK, state.snapshot())
			return
		}
	}

	db := s.manager.Active()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "no active database")
		return
	}
	if !db.TryLock() {
		writeError(w, http.StatusConflict, "an optimization is currently in flight")
		return
	}
	defer db.Unlock()

	if err := store.DeleteStudy(db, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleExportStudy re-runs a study's best params over its original
// dataset and streams a trades+summary ZIP bundle. Re-running rather
// than reading persisted curves keeps the export path independent of
// which columns happen to be materialized in the trials table.
func (s *Server) handleExportStudy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.studies[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "study not found")
		return
	}
	result, csvName, ok := state.exportable()
	if !ok {
		writeError(w, http.StatusBadRequest, "study has no exportable result yet")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+id+".zip\"")
	if err := export.WriteBundle(w, csvName, result); err != nil {
		s.logger.Error("export bundle failed", zap.String("study_id", id), zap.Error(err))
	}
}
