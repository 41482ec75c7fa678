package api

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ashgrove-quant/barforge/internal/ohlcv"
	"github.com/ashgrove-quant/barforge/internal/optimize"
	"github.com/ashgrove-quant/barforge/internal/store"
	"github.com/ashgrove-quant/barforge/internal/strategy"
	"github.com/ashgrove-quant/barforge/internal/walkforward"
	"github.com/ashgrove-quant/barforge/pkg/types"
)

const progressTick = 2 * time.Second

func unixOrZero(ts *int64) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return time.Unix(*ts, 0).UTC()
}

// runStudy drives one submission end to end: warmup trim, the
// optuna-only or WFA run, a persisted studies row, and progress/
// completion events broadcast to every connected WebSocket client.
func (s *Server) runStudy(ctx context.Context, state *StudyState, strat strategy.Strategy, table types.OHLCVTable, req studySubmission) {
	trimmed, tradeStartIdx := ohlcv.PrepareDatasetWithWarmup(table, req.Start, req.End, req.WarmupBars)
	csvName := filepath.Base(req.CSVPath)

	stop := s.startProgressTicker(ctx, state.ID)
	defer stop()

	switch req.Mode {
	case types.ModeWFA:
		s.runWFA(ctx, state, strat, trimmed, tradeStartIdx, csvName, req)
	default:
		s.runOptuna(ctx, state, strat, trimmed, tradeStartIdx, csvName, req)
	}
}

func (s *Server) runOptuna(ctx context.Context, state *StudyState, strat strategy.Strategy, table types.OHLCVTable, tradeStartIdx int, csvName string, req studySubmission) {
	opt := optimize.NewOptimizer(s.logger)
	out, err := opt.Run(ctx, optimize.RunRequest{
		Strategy:      strat,
		Schema:        strat.ParamSchema(),
		Payload:       req.Payload,
		Table:         table,
		TradeStartIdx: tradeStartIdx,
		Config:        req.Optimize,
	})
	if err != nil {
		s.finishStudy(state, nil, err)
		return
	}

	db := s.manager.Active()
	var studyID string
	if db != nil {
		studyID, err = store.SaveOptunaStudy(db, store.SaveOptunaRequest{
			StrategyID:   strat.ID(),
			Config:       req.Optimize,
			ScoreConfig:  req.Optimize.ScoreConfig,
			CSVFilePath:  req.CSVPath,
			CSVFileName:  csvName,
			DatasetStart: unixOrZero(req.Start),
			DatasetEnd:   unixOrZero(req.End),
			WarmupBars:   req.WarmupBars,
			StartedAt:    state.Started,
		}, out)
		if err != nil {
			s.logger.Error("save optuna study failed", zap.Error(err))
		}
	}

	state.mu.Lock()
	state.strategy = strat
	state.table = table
	state.tradeStartIdx = tradeStartIdx
	state.bestParams = out.Summary.BestParams
	state.csvName = csvName
	state.mu.Unlock()

	s.finishStudy(state, map[string]any{"study_id": studyID, "summary": out.Summary}, nil)
}

func (s *Server) runWFA(ctx context.Context, state *StudyState, strat strategy.Strategy, table types.OHLCVTable, tradeStartIdx int, csvName string, req studySubmission) {
	engine := walkforward.NewEngine(s.logger)
	result, err := engine.Run(ctx, strat, table, req.WFA)
	if err != nil {
		s.finishStudy(state, nil, err)
		return
	}

	db := s.manager.Active()
	var studyID string
	if db != nil {
		studyID, err = store.SaveWFAStudy(db, store.SaveWFARequest{
			StrategyID:   strat.ID(),
			Config:       req.WFA,
			CSVFilePath:  req.CSVPath,
			CSVFileName:  csvName,
			DatasetStart: unixOrZero(req.Start),
			DatasetEnd:   unixOrZero(req.End),
			WarmupBars:   req.WarmupBars,
		}, result)
		if err != nil {
			s.logger.Error("save wfa study failed", zap.Error(err))
		}
	}

	if len(result.Windows) > 0 {
		last := result.Windows[len(result.Windows)-1]
		state.mu.Lock()
		state.strategy = strat
		state.table = table
		state.tradeStartIdx = tradeStartIdx
		state.bestParams = last.BestParams
		state.csvName = csvName
		state.mu.Unlock()
	}

	s.finishStudy(state, map[string]any{"study_id": studyID, "windows": len(result.Windows), "wfe": result.WFE}, nil)
}

func (s *Server) finishStudy(state *StudyState, payload map[string]any, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
		if s.metrics != nil {
			s.metrics.StudiesFailedTotal.WithLabelValues(string(state.Mode)).Inc()
		}
	}
	state.setStatus(status, err)

	event := map[string]any{"id": state.ID, "status": status}
	for k, v := range payload {
		event[k] = v
	}
	s.broadcast(&Message{
		ID:        newStudyID(),
		Type:      "event",
		Method:    "study:complete",
		Payload:   event,
		Timestamp: time.Now().UnixMilli(),
	})
}

// startProgressTicker periodically broadcasts a heartbeat event for a
// running study; the optimizer and WFA engine don't expose an internal
// progress channel, so elapsed wall-clock is the progress signal
// external subscribers get until the run completes or is cancelled.
func (s *Server) startProgressTicker(ctx context.Context, studyID string) func() {
	ticker := time.NewTicker(progressTick)
	done := make(chan struct{})
	started := time.Now()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				s.broadcast(&Message{
					ID:     newStudyID(),
					Type:   "event",
					Method: "study:progress",
					Payload: map[string]any{
						"id":             studyID,
						"elapsed_seconds": time.Since(started).Seconds(),
					},
					Timestamp: time.Now().UnixMilli(),
				})
			}
		}
	}()

	return func() { close(done) }
}
