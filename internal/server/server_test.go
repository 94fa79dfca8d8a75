package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gorilla/websocket"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/internal/app"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/internal/reflection"
	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
	"github.com/dyike/tradeflow/pkg/sqlite"
)

type fixedRole struct {
	name, reply string
	gate        chan struct{}
}

func (r fixedRole) Name() string  { return r.name }
func (r fixedRole) Label() string { return consts.DisplayNames[r.name] }

func (r fixedRole) Produce(ctx context.Context, _ *models.WorkflowState, _ []*schema.Message) (*schema.Message, error) {
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return schema.AssistantMessage(r.reply, nil), nil
}

type noTools struct{}

func (noTools) Execute(_ context.Context, name, _ string) (string, error) {
	return "", errors.New("no tool " + name)
}

// newTestServer serves a fake team. A non-nil gate holds the trader until it
// is closed.
func newTestServer(t *testing.T, gate chan struct{}) *httptest.Server {
	t.Helper()
	ts, _ := newServerWithConfig(t, gate)
	return ts
}

func newServerWithConfig(t *testing.T, gate chan struct{}) (*httptest.Server, *config.Manager) {
	t.Helper()
	roster := workflow.Roster{
		Analysts: func(_ context.Context, key string, _ bool) (agents.Role, workflow.ToolExecutor, error) {
			return fixedRole{name: consts.AnalystNodes[key], reply: key + " report"}, noTools{}, nil
		},
		Bull:            fixedRole{name: consts.BullResearcher, reply: "Demand is strong."},
		Bear:            fixedRole{name: consts.BearResearcher, reply: "Margins are peaking."},
		ResearchManager: fixedRole{name: consts.ResearchManager, reply: "Recommendation: SELL"},
		Trader:          fixedRole{name: consts.Trader, reply: "FINAL TRANSACTION PROPOSAL: **SELL**", gate: gate},
		Risky:           fixedRole{name: consts.RiskyAnalyst, reply: "Short it."},
		Safe:            fixedRole{name: consts.SafeAnalyst, reply: "Trim slowly."},
		Neutral:         fixedRole{name: consts.NeutralAnalyst, reply: "Reduce by half."},
		RiskJudge:       fixedRole{name: consts.RiskJudge, reply: "Recommendation: SELL"},
	}
	builder := func(_ context.Context, cfg config.Config, deps app.Deps) (*app.Engine, error) {
		reflector, err := reflection.NewEngine(nil, deps.Bank, deps.Log)
		if err != nil {
			return nil, err
		}
		return app.NewEngine(cfg, workflow.NewPipeline(roster, cfg.RunConfig(), deps.Log), reflector), nil
	}

	mgr, err := config.NewManager(config.WithConfigDir(t.TempDir()), config.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	store, err := storage.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	rt, err := app.NewRuntime(mgr, app.WithBuilder(builder), app.WithBank(memory.NewInMemoryBank()), app.WithStore(store))
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	srv := New(rt, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		_ = rt.Close()
		_ = store.Close()
	})
	return ts, mgr
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		env := Response{Data: out}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func startRun(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	var started map[string]string
	code := do(t, http.MethodPost, ts.URL+"/runs", StartRequest{
		Ticker:   "tsla",
		Date:     "2024-05-10",
		Analysts: []string{consts.AnalystNews},
	}, &started)
	if code != http.StatusAccepted || started["run_id"] == "" {
		t.Fatalf("start: %d %v", code, started)
	}
	if started["ticker"] != "TSLA" {
		t.Fatalf("ticker not normalized: %v", started)
	}
	return started["run_id"]
}

// readStream collects chunk frames until the result frame.
func readStream(t *testing.T, conn *websocket.Conn) ([]workflow.Chunk, Message) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var chunks []workflow.Chunk
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case MessageChunk:
			chunks = append(chunks, *msg.Chunk)
		case MessageResult:
			return chunks, msg
		default:
			t.Fatalf("unexpected frame %+v", msg)
		}
	}
}

func dial(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/runs/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamRunToCompletion(t *testing.T) {
	ts := newTestServer(t, nil)
	id := startRun(t, ts)

	chunks, result := readStream(t, dial(t, ts, id))
	if result.Status != string(models.StatusDone) || result.Action != string(models.ActionSell) {
		t.Fatalf("unexpected result %+v", result)
	}
	for i, c := range chunks {
		if c.Seq != i+1 {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
	}
	last := chunks[len(chunks)-1]
	if last.Node != consts.RiskJudge || last.Phase != workflow.PhasePortfolioJudge {
		t.Fatalf("last chunk should be the risk judge, got %s/%s", last.Phase, last.Node)
	}

	var run storage.RunRecord
	if code := do(t, http.MethodGet, ts.URL+"/runs/"+id, nil, &run); code != http.StatusOK || run.Status != models.StatusDone {
		t.Fatalf("get run: %d %+v", code, run)
	}
	var stored []storage.ChunkRecord
	if code := do(t, http.MethodGet, ts.URL+"/runs/"+id+"/chunks", nil, &stored); code != http.StatusOK || len(stored) != len(chunks) {
		t.Fatalf("expected %d stored chunks, got %d (%d)", len(chunks), len(stored), code)
	}

	// A finished run is replayed from the store.
	replayed, again := readStream(t, dial(t, ts, id))
	if len(replayed) != len(chunks) || again.Status != string(models.StatusDone) {
		t.Fatalf("replay mismatch: %d chunks, %+v", len(replayed), again)
	}
	if !strings.Contains(again.Decision, "SELL") {
		t.Fatalf("replay lost the decision: %+v", again)
	}

	var runs []storage.RunRecord
	if code := do(t, http.MethodGet, ts.URL+"/runs?limit=5", nil, &runs); code != http.StatusOK || len(runs) != 1 {
		t.Fatalf("list: %d %+v", code, runs)
	}

	var lessons []reflection.Lesson
	if code := do(t, http.MethodPost, ts.URL+"/runs/"+id+"/reflect", ReflectRequest{Returns: -0.03}, &lessons); code != http.StatusOK || len(lessons) != 5 {
		t.Fatalf("reflect: %d %+v", code, lessons)
	}
	var accepted map[string]string
	if code := do(t, http.MethodPost, ts.URL+"/runs/"+id+"/reflect", ReflectRequest{Returns: -0.03, Async: true}, &accepted); code != http.StatusAccepted || accepted["run_id"] != id {
		t.Fatalf("async reflect: %d %v", code, accepted)
	}
}

func TestCancelLiveRun(t *testing.T) {
	gate := make(chan struct{})
	ts := newTestServer(t, gate)
	id := startRun(t, ts)
	conn := dial(t, ts, id)

	if code := do(t, http.MethodPost, ts.URL+"/runs/"+id+"/cancel", nil, nil); code != http.StatusAccepted {
		t.Fatalf("cancel: %d", code)
	}
	close(gate)

	chunks, result := readStream(t, conn)
	if result.Status != string(models.StatusStopped) || result.Error != "" {
		t.Fatalf("expected a clean stop, got %+v", result)
	}
	for _, c := range chunks {
		if c.Phase == workflow.PhaseRiskDebate || c.Phase == workflow.PhasePortfolioJudge {
			t.Fatalf("no risk phase may run after cancel, got %s", c.Node)
		}
	}
}

func TestRequestErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := map[string]struct {
		method, path string
		body         any
		want         int
	}{
		"unknown run":      {http.MethodGet, "/runs/missing", nil, http.StatusNotFound},
		"unknown chunks":   {http.MethodGet, "/runs/missing/chunks", nil, http.StatusNotFound},
		"unknown stream":   {http.MethodGet, "/runs/missing/stream", nil, http.StatusNotFound},
		"cancel not live":  {http.MethodPost, "/runs/missing/cancel", nil, http.StatusNotFound},
		"missing ticker":   {http.MethodPost, "/runs", StartRequest{Date: "2024-05-10"}, http.StatusBadRequest},
		"bad date":         {http.MethodPost, "/runs", StartRequest{Ticker: "NVDA", Date: "05/10/2024"}, http.StatusBadRequest},
		"unknown analyst":  {http.MethodPost, "/runs", StartRequest{Ticker: "NVDA", Analysts: []string{"astrology"}}, http.StatusBadRequest},
		"negative rounds":  {http.MethodPost, "/runs", StartRequest{Ticker: "NVDA", MaxDebateRounds: ptr(-1)}, http.StatusBadRequest},
		"reflect no state": {http.MethodPost, "/runs/missing/reflect", ReflectRequest{Returns: 0.1}, http.StatusNotFound},
		"async no state":   {http.MethodPost, "/runs/missing/reflect", ReflectRequest{Returns: 0.1, Async: true}, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if code := do(t, tc.method, ts.URL+tc.path, tc.body, nil); code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, code)
			}
		})
	}
}

func TestConfigRedactsSecrets(t *testing.T) {
	ts, mgr := newServerWithConfig(t, nil)
	seed := mgr.Get()
	seed.LLMAPIKey = "sk-real"
	seed.FinnhubAPIKey = "fh-real"
	if err := mgr.Update(seed); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	var cfg config.Config
	if code := do(t, http.MethodGet, ts.URL+"/config", nil, &cfg); code != http.StatusOK {
		t.Fatalf("get config: %d", code)
	}
	if cfg.LLMAPIKey != config.Redacted || cfg.FinnhubAPIKey != config.Redacted || cfg.LongportAppSecret != "" {
		t.Fatalf("secrets not redacted: %+v", cfg)
	}

	// The redacted document goes back with one edit.
	cfg.MaxDebateRounds = 2
	if code := do(t, http.MethodPut, ts.URL+"/config", cfg, nil); code != http.StatusOK {
		t.Fatalf("put config: %d", code)
	}
	got := mgr.Get()
	if got.LLMAPIKey != "sk-real" || got.FinnhubAPIKey != "fh-real" {
		t.Fatalf("stored secrets overwritten: %q %q", got.LLMAPIKey, got.FinnhubAPIKey)
	}
	if got.MaxDebateRounds != 2 {
		t.Fatalf("edit not applied: %d", got.MaxDebateRounds)
	}

	// A partial body only touches the keys it names.
	if code := do(t, http.MethodPut, ts.URL+"/config", map[string]any{"llm_api_key": "sk-new", "max_risk_rounds": 3}, nil); code != http.StatusOK {
		t.Fatalf("patch config: %d", code)
	}
	got = mgr.Get()
	if got.LLMAPIKey != "sk-new" || got.MaxRiskDiscussRounds != 3 || got.MaxDebateRounds != 2 || got.FinnhubAPIKey != "fh-real" {
		t.Fatalf("unexpected merge %+v", got)
	}

	if code := do(t, http.MethodPut, ts.URL+"/config", map[string]any{"max_tool_iterations": 0}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid update: expected 400, got %d", code)
	}
}

func ptr[T any](v T) *T { return &v }
