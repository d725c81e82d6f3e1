package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/boatwatch/internal/core/config"
)

// fakeNode answers the JSON-RPC calls the scanner makes against an empty chain.
func fakeNode(t *testing.T, height *atomic.Uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any
		switch req.Method {
		case "eth_blockNumber":
			result = "0x" + strconv.FormatUint(height.Load(), 16)
		case "eth_getLogs":
			result = []any{}
		default:
			result = "0x"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(nodeURL string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Ledger: config.LedgerConfig{
			BoatToken:   "0x5fbdb2315678afecb367f032d93f642f64180aa3",
			CallTimeout: time.Second,
			Providers:   []config.ProviderConfig{{Name: "fake", URL: nodeURL, Timeout: time.Second}},
		},
		Scanner: config.ScannerConfig{
			StartBlock:        10,
			ConfirmationDepth: 2,
			MaxBatchBlocks:    50,
			PollInterval:      10 * time.Millisecond,
			CommitTimeout:     time.Second,
			MaxStorageRetries: 3,
		},
		Roles: config.RolesConfig{CacheTTL: time.Minute},
	}
}

func TestOpenCore_MemoryMode(t *testing.T) {
	var height atomic.Uint64
	node := fakeNode(t, &height)

	core, err := OpenCore(context.Background(), testConfig(node.URL))
	require.NoError(t, err)
	defer func() { _ = core.Close() }()

	assert.Nil(t, core.Stores.DB)
	assert.Nil(t, core.Redis)
	assert.Nil(t, core.Rescan)

	c, err := core.Cursor.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), c.LastBlock)
}

func TestOpenCore_BadLedgerAddress(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Ledger.BoatToken = "not-an-address"

	_, err := OpenCore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestService_RunFollowsChain(t *testing.T) {
	var height atomic.Uint64
	height.Store(100)
	node := fakeNode(t, &height)

	cfg := testConfig(node.URL)
	core, err := OpenCore(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = core.Close() }()

	svc := NewService(Config{App: cfg}, core)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return svc.Status().Cursor == 98
	}, 5*time.Second, 10*time.Millisecond)

	height.Store(130)
	assert.Eventually(t, func() bool {
		return svc.Status().Cursor == 128
	}, 5*time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}
