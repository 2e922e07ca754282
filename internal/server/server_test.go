package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/dongwu-tools/tradebridge/internal/automation"
	"github.com/dongwu-tools/tradebridge/internal/config"
	"github.com/dongwu-tools/tradebridge/internal/exportstore"
	"github.com/dongwu-tools/tradebridge/internal/history"
	"github.com/dongwu-tools/tradebridge/internal/queue"
	"github.com/dongwu-tools/tradebridge/internal/server"
	mocks "github.com/dongwu-tools/tradebridge/internal/testing"
)

const testHoldingsCSV = "证券代码,证券名称,股票余额,可用余额,冻结数量,盈亏,市值,成本价,现价\n" +
	"600519,贵州茅台,200,200,0,670.00,336100.00,1676.15,1680.50\n" +
	"000001,平安银行,1000,800,200,-120.50,11500.00,11.62,11.50\n"

type stack struct {
	backend *mocks.MockBackend
	cfg     *config.Config
	ts      *httptest.Server
}

func newStack(t *testing.T, mutate func(cfg *config.Config)) *stack {
	t.Helper()
	log := zerolog.Nop()

	cfg := &config.Config{
		ListenAddr:             "127.0.0.1:0",
		TargetTitleSubstrings:  []string{"网上股票交易系统", "股票交易"},
		TargetProcessNames:     []string{"xiadan.exe"},
		ExportDir:              t.TempDir(),
		DataDir:                t.TempDir(),
		RetentionCutoffHour:    15,
		RetentionSweepInterval: 10 * time.Minute,
		QueueCapacity:          8,
		Deadlines: config.Deadlines{
			Balance: 5 * time.Second,
			Export:  5 * time.Second,
			Trade:   5 * time.Second,
		},
		LogLevel: "info",
	}
	if mutate != nil {
		mutate(cfg)
	}

	backend := mocks.NewMockBackend()
	backend.SetExportDir(cfg.ExportDir)
	backend.SetExportContent([]byte(testHoldingsCSV))

	delays := automation.DefaultDelays()
	delays.SaveDialogWait = 200 * time.Millisecond
	delays.ExportFileWait = 500 * time.Millisecond

	input := automation.NewInput(backend, delays, log)
	windows := automation.NewWindowController(backend, delays, cfg.TargetTitleSubstrings, cfg.TargetProcessNames, log)
	nav := automation.NewNavigator(input, windows, delays, log)
	store := exportstore.New(cfg.ExportDir, cfg.RetentionCutoffHour, log)
	exports := automation.NewExportOrchestrator(nav, input, windows, store, delays, log)
	scraper := automation.NewBalanceScraper(nav, windows, log)
	trader := automation.NewTradeExecutor(nav, input, log)

	hist, err := history.New(cfg.DataDir, log)
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	q := queue.NewManager(cfg.QueueCapacity, func(ctx context.Context) {
		automation.DismissDialogs(ctx, input)
	}, log)
	q.AddListener(hist)
	go q.Run()
	t.Cleanup(q.Stop)

	srv := server.New(server.Deps{
		Log:     log,
		Config:  cfg,
		Queue:   q,
		Windows: windows,
		Scraper: scraper,
		Exports: exports,
		Trader:  trader,
		Store:   store,
		History: hist,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{backend: backend, cfg: cfg, ts: ts}
}

func (s *stack) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(s.ts.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (s *stack) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.ts.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	s := newStack(t, nil)

	resp, body := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["target_gui_running"])
	assert.Equal(t, float64(0), body["pending_tasks"])
}

func TestHealthReportsGuiDown(t *testing.T) {
	s := newStack(t, nil)
	s.backend.SetProcessRunning(false)

	resp, body := s.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["target_gui_running"])
}

func TestBalance(t *testing.T) {
	s := newStack(t, nil)
	s.backend.SetChildTexts([]string{
		"资金余额", "100000.00",
		"冻结金额", "0.00",
		"可用金额", "45000.00",
		"股票市值", "55000.00",
	})

	resp, body := s.get(t, "/balance")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 45000.0, body["available_cash"])
	assert.Equal(t, 100000.0, body["total_assets"])
	assert.Equal(t, 55000.0, body["market_value"])
	assert.Equal(t, 0.0, body["frozen_amount"])
	assert.Equal(t, "scraped", body["source"])
}

func TestBalanceBadGatewayWhenGuiNotRunning(t *testing.T) {
	s := newStack(t, nil)
	s.backend.SetProcessRunning(false)

	resp, body := s.get(t, "/balance")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "TargetGuiNotRunning", body["error"])
	assert.NotEmpty(t, body["detail"])
}

func TestExport(t *testing.T) {
	s := newStack(t, nil)

	resp, body := s.post(t, "/export", map[string]any{"kind": "holdings"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "holdings", body["kind"])
	assert.Equal(t, float64(2), body["records"])
	path, _ := body["path"].(string)
	assert.True(t, strings.HasPrefix(path, s.cfg.ExportDir))
}

func TestExportRejectsUnknownKind(t *testing.T) {
	s := newStack(t, nil)

	resp, _ := s.post(t, "/export", map[string]any{"kind": "balances"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPositions(t *testing.T) {
	s := newStack(t, nil)

	resp, body := s.get(t, "/positions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	positions, ok := body["positions"].([]any)
	require.True(t, ok)
	require.Len(t, positions, 2)
	first := positions[0].(map[string]any)
	assert.Equal(t, "600519", first["symbol"])
	assert.Equal(t, 200.0, first["quantity"])
}

func TestTradeSubmits(t *testing.T) {
	s := newStack(t, nil)

	resp, body := s.post(t, "/trade", map[string]any{
		"side":     "buy",
		"symbol":   "600519",
		"quantity": 200,
		"price":    "1680.50",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TradeIntentSubmitted", body["status"])
	assert.Equal(t, false, body["auto_confirm"])

	assert.Equal(t, []string{"600519", "1680.5"}, s.backend.CommittedFields())
	// auto_confirm defaults off, so the form is never committed.
	events := s.backend.Events()
	for _, e := range events {
		assert.NotEqual(t, "key_down:enter", e)
	}
}

func TestTradeAutoConfirmOverride(t *testing.T) {
	s := newStack(t, nil)

	resp, body := s.post(t, "/trade", map[string]any{
		"side":         "sell",
		"symbol":       "000001",
		"quantity":     100,
		"price":        "11.50",
		"auto_confirm": true,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["auto_confirm"])

	found := false
	for _, e := range s.backend.Events() {
		if e == "key_down:enter" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTradeRejectsInvalidIntent(t *testing.T) {
	s := newStack(t, nil)

	resp, body := s.post(t, "/trade", map[string]any{
		"side":     "buy",
		"symbol":   "600519",
		"quantity": 150,
		"price":    "10.00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "InvalidTradeIntent", body["error"])
	assert.Empty(t, s.backend.Events(), "invalid intents must not reach the GUI")
}

func TestTasksHistory(t *testing.T) {
	s := newStack(t, nil)
	s.backend.SetChildTexts([]string{"资金余额", "100000.00", "可用金额", "45000.00"})

	resp, _ := s.get(t, "/balance")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.get(t, "/tasks")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	tasks, ok := body["tasks"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, tasks)
	first := tasks[0].(map[string]any)
	assert.Equal(t, "balance", first["kind"])
	assert.Equal(t, "succeeded", first["state"])
}

func TestOverloadedCarriesRetryAfter(t *testing.T) {
	s := newStack(t, func(cfg *config.Config) {
		cfg.QueueCapacity = 1
		cfg.Deadlines.Balance = time.Second
	})
	s.backend.SetChildTexts([]string{"资金余额", "100000.00", "可用金额", "45000.00"})
	// The in-flight task stalls on the settle wait until its deadline.
	s.backend.SetHangOnSleep("settle")

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			http.Get(s.ts.URL + "/balance")
			done <- struct{}{}
		}()
		// Wait until the request occupies the worker / the pending slot.
		require.Eventually(t, func() bool {
			_, body := s.get(t, "/health")
			pending, _ := body["pending_tasks"].(float64)
			return len(s.backend.Events()) > 0 && (i == 0 || pending >= 1)
		}, 2*time.Second, 10*time.Millisecond)
	}

	resp, body := s.get(t, "/balance")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Overloaded", body["error"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	<-done
	<-done
}

func TestGatewayTimeoutOnStalledGui(t *testing.T) {
	s := newStack(t, func(cfg *config.Config) {
		cfg.Deadlines.Balance = 150 * time.Millisecond
	})
	s.backend.SetHangOnSleep("settle")

	start := time.Now()
	resp, body := s.get(t, "/balance")
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, "DeadlineExceeded", body["error"])
	assert.Less(t, elapsed, 150*time.Millisecond+time.Second)

	// The failed task must leave the GUI clean: the last keys sent are the
	// two dialog-dismissing escapes.
	var keys []string
	for _, e := range s.backend.Events() {
		if strings.HasPrefix(e, "key_down:") {
			keys = append(keys, e)
		}
	}
	require.GreaterOrEqual(t, len(keys), 2)
	assert.Equal(t, []string{"key_down:esc", "key_down:esc"}, keys[len(keys)-2:])
}

func TestWebSocketBalanceOp(t *testing.T) {
	s := newStack(t, nil)
	s.backend.SetChildTexts([]string{
		"资金余额", "100000.00",
		"冻结金额", "0.00",
		"可用金额", "45000.00",
		"股票市值", "55000.00",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/local-trading"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "req-1", "type": "balance"}))

	var resp map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	assert.Equal(t, "req-1", resp["id"])
	assert.Equal(t, "balance", resp["type"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, 45000.0, result["available_cash"])
}

func TestWebSocketErrorFrame(t *testing.T) {
	s := newStack(t, nil)
	s.backend.SetProcessRunning(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/local-trading"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "req-3", "type": "balance"}))

	var resp map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, "req-3", resp["id"])
	assert.Equal(t, "TargetGuiNotRunning", resp["error"])
}

func TestWebSocketUnknownOp(t *testing.T) {
	s := newStack(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/local-trading"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "req-2", "type": "reboot"}))

	var resp map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	assert.Equal(t, "req-2", resp["id"])
	assert.Equal(t, "error", resp["type"])
	assert.NotEmpty(t, resp["error"])
}
