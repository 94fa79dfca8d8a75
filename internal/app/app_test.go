package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/internal/reflection"
	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
	"github.com/dyike/tradeflow/pkg/sqlite"
)

var tradeDate = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

// fixedRole always answers with the same text.
type fixedRole struct {
	name, label, reply string
}

func (r fixedRole) Name() string  { return r.name }
func (r fixedRole) Label() string { return r.label }

func (r fixedRole) Produce(context.Context, *models.WorkflowState, []*schema.Message) (*schema.Message, error) {
	return schema.AssistantMessage(r.reply, nil), nil
}

type noTools struct{}

func (noTools) Execute(_ context.Context, name, _ string) (string, error) {
	return "", errors.New("no tool " + name)
}

func fakeRoster() workflow.Roster {
	return workflow.Roster{
		Analysts: func(_ context.Context, key string, _ bool) (agents.Role, workflow.ToolExecutor, error) {
			return fixedRole{consts.AnalystNodes[key], key, key + " report"}, noTools{}, nil
		},
		Bull:            fixedRole{consts.BullResearcher, "Bull Analyst", "Demand is strong."},
		Bear:            fixedRole{consts.BearResearcher, "Bear Analyst", "Margins are peaking."},
		ResearchManager: fixedRole{consts.ResearchManager, consts.Agent_ResearchManager, "Recommendation: BUY"},
		Trader:          fixedRole{consts.Trader, consts.Agent_Trader, "FINAL TRANSACTION PROPOSAL: **BUY**"},
		Risky:           fixedRole{consts.RiskyAnalyst, "Risky Analyst", "Go big."},
		Safe:            fixedRole{consts.SafeAnalyst, "Safe Analyst", "Stay small."},
		Neutral:         fixedRole{consts.NeutralAnalyst, "Neutral Analyst", "Meet halfway."},
		RiskJudge:       fixedRole{consts.RiskJudge, consts.Agent_PortfolioManager, "Recommendation: BUY"},
	}
}

// fakeBuilder fails for configs with five debate rounds.
func fakeBuilder(builds *int) EngineBuilder {
	return func(_ context.Context, cfg config.Config, deps Deps) (*Engine, error) {
		*builds++
		if cfg.MaxDebateRounds == 5 {
			return nil, errors.New("model unavailable")
		}
		reflector, err := reflection.NewEngine(nil, deps.Bank, deps.Log)
		if err != nil {
			return nil, err
		}
		return NewEngine(cfg, workflow.NewPipeline(fakeRoster(), cfg.RunConfig(), deps.Log), reflector), nil
	}
}

type notifications struct {
	mu     sync.Mutex
	topics []string
}

func (n *notifications) notify(topic, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
}

func (n *notifications) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.topics...)
}

func newRuntime(t *testing.T, builds *int, n *notifications) (*Runtime, *config.Manager) {
	t.Helper()
	mgr, err := config.NewManager(config.WithConfigDir(t.TempDir()), config.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	store, err := storage.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rt, err := NewRuntime(mgr,
		WithBuilder(fakeBuilder(builds)),
		WithNotifier(n.notify),
		WithBank(memory.NewInMemoryBank()),
		WithStore(store),
	)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt, mgr
}

func TestRuntimeReloadsOnConfigChange(t *testing.T) {
	var builds int
	n := &notifications{}
	rt, mgr := newRuntime(t, &builds, n)

	first := rt.Engine()
	if first == nil || builds != 1 {
		t.Fatalf("expected one initial build, got %d", builds)
	}

	cfg := mgr.Get()
	cfg.MaxDebateRounds = 2
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("update: %v", err)
	}
	second := rt.Engine()
	if second.Version <= first.Version || second.Config.MaxDebateRounds != 2 {
		t.Fatalf("engine not swapped: %+v", second)
	}

	cfg.MaxDebateRounds = 5
	if err := mgr.Update(cfg); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rt.Engine() != second {
		t.Fatalf("a failed build must keep the previous engine")
	}

	want := []string{TopicReloaded, TopicReloaded, TopicReloadFailed}
	got := n.list()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSessionRecordsRun(t *testing.T) {
	var builds int
	rt, _ := newRuntime(t, &builds, &notifications{})
	ctx := context.Background()

	rc := config.RunConfig{
		SelectedAnalysts:     []string{consts.AnalystMarket, consts.AnalystNews},
		MaxDebateRounds:      1,
		MaxRiskDiscussRounds: 1,
		MaxToolIterations:    3,
	}
	sess, err := rt.Start(ctx, " nvda ", tradeDate, &rc)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var seen int
	res, err := sess.Stream(func(workflow.Chunk) { seen++ })
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if res.Status != models.StatusDone || res.Action != models.ActionBuy {
		t.Fatalf("unexpected result %s %s %v", res.Status, res.Action, res.Err)
	}

	got, err := rt.Store().GetRun(ctx, sess.Run.ID)
	if err != nil || got.Ticker != "NVDA" || got.Status != models.StatusDone {
		t.Fatalf("unexpected stored run %+v %v", got, err)
	}
	chunks, err := rt.Store().Chunks(ctx, sess.Run.ID)
	if err != nil || len(chunks) != seen {
		t.Fatalf("expected %d stored chunks, got %d %v", seen, len(chunks), err)
	}

	if len(sess.Reports()) == 0 {
		t.Fatalf("expected report files")
	}
	for _, p := range sess.Reports() {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("report %s: %v", p, err)
		}
	}

	lessons, err := rt.Reflect(ctx, sess.Run.ID, 0.04)
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if len(lessons) != 5 {
		t.Fatalf("expected a lesson per learning role, got %d", len(lessons))
	}
	matches, err := rt.Bank().Partition(consts.MemoryTrader).QuerySimilar(ctx, res.State.Situation(), 1)
	if err != nil || len(matches) != 1 {
		t.Fatalf("trader memory not written: %v %v", matches, err)
	}

	done, err := rt.ReflectAsync(ctx, sess.Run.ID, -0.02)
	if err != nil {
		t.Fatalf("reflect async: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("background reflection did not finish")
	}
	matches, err = rt.Bank().Partition(consts.MemoryTrader).QuerySimilar(ctx, res.State.Situation(), 5)
	if err != nil || len(matches) != 2 {
		t.Fatalf("expected a second trader lesson, got %v %v", matches, err)
	}
}

func TestStartRequiresTicker(t *testing.T) {
	var builds int
	rt, _ := newRuntime(t, &builds, &notifications{})
	if _, err := rt.Start(context.Background(), "  ", tradeDate, nil); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestReflectUnknownRun(t *testing.T) {
	var builds int
	rt, _ := newRuntime(t, &builds, &notifications{})
	if _, err := rt.Reflect(context.Background(), "missing", 0.1); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := rt.ReflectAsync(context.Background(), "missing", 0.1); !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
