package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/dataflows"
)

type fakeMarket struct {
	bars  []*dataflows.MarketData
	err   error
	calls int
}

func (f *fakeMarket) History(ctx context.Context, symbol string, start, end time.Time) ([]*dataflows.MarketData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*dataflows.MarketData
	for _, b := range f.bars {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func risingBars(from time.Time, n int) []*dataflows.MarketData {
	bars := make([]*dataflows.MarketData, n)
	for i := range bars {
		p := decimal.NewFromInt(int64(100 + i))
		bars[i] = &dataflows.MarketData{
			Symbol: "NVDA", Date: from.AddDate(0, 0, i),
			Open: p, High: p, Low: p, Close: p, AdjClose: p, Volume: 1000,
		}
	}
	return bars
}

type fakeSocial struct {
	posts []*dataflows.RedditPost
	subs  []string
}

func (f *fakeSocial) Search(ctx context.Context, params dataflows.RedditSearchParams) ([]*dataflows.RedditPost, error) {
	f.subs = append(f.subs, params.Subreddit)
	var out []*dataflows.RedditPost
	for _, p := range f.posts {
		if p.Subreddit == params.Subreddit {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeInsider struct{}

func (fakeInsider) InsiderSentiment(ctx context.Context, symbol string, from, to time.Time) ([]*dataflows.InsiderSentiment, error) {
	return []*dataflows.InsiderSentiment{{Symbol: symbol, Year: 2024, Month: 5, Change: -1200, MSPR: decimal.RequireFromString("-12.5")}}, nil
}

func (fakeInsider) InsiderTransactions(ctx context.Context, symbol string, from, to time.Time) ([]*dataflows.InsiderTransaction, error) {
	return nil, dataflows.ErrFinnhubNotConfigured
}

func testRegistry(market MarketSource, social SocialSource) *Registry {
	p := Providers{Market: market, Social: social, Insider: fakeInsider{}}
	return NewRegistry(p, p)
}

func TestMarketDataTool(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ts, err := testRegistry(&fakeMarket{bars: risingBars(start, 10)}, &fakeSocial{}).For(context.Background(), consts.AnalystMarket, false)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	out, err := ts.Execute(context.Background(), ToolMarketData, `{"symbol":"NVDA","start_date":"2024-05-02","end_date":"2024-05-04"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "2024-05-02,101.00") || !strings.Contains(out, "2024-05-04,103.00") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "2024-05-05") {
		t.Fatalf("bar outside the range leaked:\n%s", out)
	}
}

func TestIndicatorToolFetchesWarmupHistory(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	market := &fakeMarket{bars: risingBars(start, 400)}
	ts, err := testRegistry(market, &fakeSocial{}).For(context.Background(), consts.AnalystMarket, true)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	out, err := ts.Execute(context.Background(), ToolName(ToolStockIndicators, true),
		`{"symbol":"NVDA","indicator":"close_50_sma","curr_date":"2024-01-20","look_back_days":5}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.Contains(out, "NaN") {
		t.Fatalf("warmup history missing, got NaN values:\n%s", out)
	}
	if !strings.Contains(out, "2024-01-20:") || !strings.Contains(out, "50 SMA") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestIndicatorToolRejectsUnknownIndicator(t *testing.T) {
	ts, _ := testRegistry(&fakeMarket{}, &fakeSocial{}).For(context.Background(), consts.AnalystMarket, false)
	_, err := ts.Execute(context.Background(), ToolStockIndicators, `{"symbol":"NVDA","indicator":"ichimoku","curr_date":"2024-01-20"}`)
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected unsupported indicator error, got %v", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	ts, _ := testRegistry(&fakeMarket{}, &fakeSocial{}).For(context.Background(), consts.AnalystMarket, false)
	_, err := ts.Execute(context.Background(), "get_weather", `{}`)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	// Online names are not callable from the offline set.
	_, err = ts.Execute(context.Background(), ToolName(ToolMarketData, true), `{}`)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool for online name, got %v", err)
	}
}

func TestRegistryToolNames(t *testing.T) {
	r := testRegistry(&fakeMarket{}, &fakeSocial{})
	cases := map[string][]string{
		consts.AnalystMarket:       {ToolMarketData, ToolStockIndicators},
		consts.AnalystSocial:       {ToolRedditStock},
		consts.AnalystNews:         {ToolGoogleNews, ToolFinnhubNews, ToolGlobalNews},
		consts.AnalystFundamentals: {ToolInsiderSentiment, ToolInsiderTransactions},
	}
	for analyst, want := range cases {
		for _, online := range []bool{false, true} {
			ts, err := r.For(context.Background(), analyst, online)
			if err != nil {
				t.Fatalf("%s: %v", analyst, err)
			}
			if ts.Len() != len(want) {
				t.Fatalf("%s online=%t: got %d tools, want %d", analyst, online, ts.Len(), len(want))
			}
			for i, info := range ts.Infos() {
				if info.Name != ToolName(want[i], online) {
					t.Fatalf("%s online=%t: tool %d is %s", analyst, online, i, info.Name)
				}
			}
		}
	}

	if _, err := r.For(context.Background(), "astrology", false); err == nil {
		t.Fatalf("expected error for unknown analyst")
	}
}

func TestRegistryCachesToolsets(t *testing.T) {
	r := testRegistry(&fakeMarket{}, &fakeSocial{})
	a, _ := r.For(context.Background(), consts.AnalystNews, true)
	b, _ := r.For(context.Background(), consts.AnalystNews, true)
	c, _ := r.For(context.Background(), consts.AnalystNews, false)
	if a != b {
		t.Fatalf("expected cached toolset")
	}
	if a == c {
		t.Fatalf("online and offline toolsets must differ")
	}
}

func TestRedditStockToolFiltersWindow(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	social := &fakeSocial{posts: []*dataflows.RedditPost{
		{Title: "NVDA earnings beat", Subreddit: "stocks", Score: 420, CreatedAt: now.AddDate(0, 0, -1)},
		{Title: "NVDA from last year", Subreddit: "investing", Score: 9, CreatedAt: now.AddDate(-1, 0, 0)},
	}}
	ts, _ := testRegistry(&fakeMarket{}, social).For(context.Background(), consts.AnalystSocial, false)

	out, err := ts.Execute(context.Background(), ToolRedditStock, `{"ticker":"nvda","curr_date":"2024-05-10"}`)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "NVDA earnings beat") {
		t.Fatalf("recent post missing:\n%s", out)
	}
	if strings.Contains(out, "last year") {
		t.Fatalf("stale post included:\n%s", out)
	}
	if len(social.subs) != len(stockSubreddits) {
		t.Fatalf("searched %v", social.subs)
	}
}

func TestInsiderTools(t *testing.T) {
	ts, _ := testRegistry(&fakeMarket{}, &fakeSocial{}).For(context.Background(), consts.AnalystFundamentals, false)

	out, err := ts.Execute(context.Background(), ToolInsiderSentiment, `{"ticker":"NVDA","curr_date":"2024-06-01"}`)
	if err != nil {
		t.Fatalf("sentiment: %v", err)
	}
	if !strings.Contains(out, "2024-05") || !strings.Contains(out, "-12.5000") {
		t.Fatalf("unexpected sentiment output:\n%s", out)
	}

	_, err = ts.Execute(context.Background(), ToolInsiderTransactions, `{"ticker":"NVDA","curr_date":"2024-06-01"}`)
	if err == nil || !strings.Contains(err.Error(), dataflows.ErrFinnhubNotConfigured.Error()) {
		t.Fatalf("expected source error to surface, got %v", err)
	}
}

func TestFallbackMarket(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	primary := &fakeMarket{err: errors.New("quota")}
	secondary := &fakeMarket{bars: risingBars(start, 3)}
	fm := &fallbackMarket{primary: primary, secondary: secondary}

	bars, err := fm.History(context.Background(), "NVDA", start, start.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(bars) != 3 || primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("bars=%d primary=%d secondary=%d", len(bars), primary.calls, secondary.calls)
	}
}
