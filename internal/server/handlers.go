package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dongwu-tools/tradebridge/internal/domain"
	"github.com/dongwu-tools/tradebridge/internal/queue"
)

// handleHealth reports process liveness without touching the GUI. The
// process probe runs outside the queue so health stays responsive while an
// automation task is in flight.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"target_gui_running": s.windows.TargetRunning(),
		"pending_tasks":      s.queue.Pending(),
		"uptime_seconds":     int(time.Since(s.startedAt).Seconds()),
	})
}

// runBalance scrapes the funds page through the queue.
func (s *Server) runBalance(ctx context.Context) (domain.BalanceSnapshot, error) {
	v, err := s.queue.Submit(ctx, queue.TaskBalance, s.cfg.Deadlines.Balance, func(ctx context.Context) (any, error) {
		return s.scraper.Scrape(ctx)
	})
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return v.(domain.BalanceSnapshot), nil
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runBalance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// runPositions produces a fresh holdings export and parses it.
func (s *Server) runPositions(ctx context.Context) ([]domain.HoldingRecord, error) {
	v, err := s.queue.Submit(ctx, queue.TaskPositions, s.cfg.Deadlines.Export, func(ctx context.Context) (any, error) {
		file, err := s.exports.Export(ctx, domain.ExportHoldings)
		if err != nil {
			return nil, err
		}
		return s.store.ParseHoldings(file.Path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.HoldingRecord), nil
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	records, err := s.runPositions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.HoldingRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"positions":   records,
		"captured_at": time.Now(),
	})
}

type exportRequest struct {
	Kind string `json:"kind"`
}

// runExport drives the Save-As flow for the kind and counts the rows in
// the produced file.
func (s *Server) runExport(ctx context.Context, kind domain.ExportKind) (domain.ExportFile, error) {
	v, err := s.queue.Submit(ctx, queue.TaskExport, s.cfg.Deadlines.Export, func(ctx context.Context) (any, error) {
		file, err := s.exports.Export(ctx, kind)
		if err != nil {
			return domain.ExportFile{}, err
		}
		if n, err := s.store.CountRecords(kind, file.Path); err == nil {
			file.Records = n
		}
		return file, nil
	})
	if err != nil {
		return domain.ExportFile{}, err
	}
	return v.(domain.ExportFile), nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "InvalidRequest", Detail: "invalid JSON body"})
		return
	}
	kind, ok := domain.ParseExportKind(req.Kind)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "InvalidRequest", Detail: "kind must be holdings, trades or orders"})
		return
	}
	file, err := s.runExport(r.Context(), kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

type tradeRequest struct {
	Side        string `json:"side"`
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"`
	AutoConfirm *bool  `json:"auto_confirm"`
}

// intent builds the TradeIntent, defaulting auto-confirm from config when
// the request leaves it unset.
func (s *Server) intent(req tradeRequest) (domain.TradeIntent, error) {
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		return domain.TradeIntent{}, domain.Errorf(domain.CodeInvalidTradeIntent, "side must be buy or sell, got %q", req.Side)
	}
	autoConfirm := s.cfg.AutoConfirmDefault
	if req.AutoConfirm != nil {
		autoConfirm = *req.AutoConfirm
	}
	intent := domain.TradeIntent{
		Side:        side,
		Symbol:      req.Symbol,
		Quantity:    req.Quantity,
		Price:       req.Price,
		AutoConfirm: autoConfirm,
	}
	return intent, intent.Validate()
}

// runTrade fills the order form through the queue. The intent is validated
// before enqueueing so a malformed request never occupies the worker.
func (s *Server) runTrade(ctx context.Context, intent domain.TradeIntent) (domain.TradeReceipt, error) {
	v, err := s.queue.Submit(ctx, queue.TaskTrade, s.cfg.Deadlines.Trade, func(ctx context.Context) (any, error) {
		return s.trader.Execute(ctx, intent)
	})
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	return v.(domain.TradeReceipt), nil
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "InvalidRequest", Detail: "invalid JSON body"})
		return
	}
	intent, err := s.intent(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	receipt, err := s.runTrade(r.Context(), intent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

// handleTasks returns recent task history, newest first.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []queue.TaskRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": records})
}
