package dataflows

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/dyike/tradeflow/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.FinnhubAPIKey = "test-key"
	return cfg
}

func bars(closes ...float64) []*MarketData {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*MarketData, 0, len(closes))
	for i, c := range closes {
		v := decimal.NewFromFloat(c)
		out = append(out, &MarketData{
			Symbol: "TEST",
			Date:   start.AddDate(0, 0, i),
			Open:   v, High: v.Add(decimal.NewFromInt(1)), Low: v.Sub(decimal.NewFromInt(1)), Close: v,
			Volume: 1000,
		})
	}
	return out
}

func TestSMAAndEMA(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	got := sma(xs, 3)
	if !math.IsNaN(got[1]) || got[2] != 2 || got[4] != 4 {
		t.Fatalf("unexpected sma %v", got)
	}
	e := ema(xs, 3)
	if e[2] != 2 || e[3] != 3 || e[4] != 4 {
		t.Fatalf("unexpected ema %v", e)
	}
}

func TestRSIAllGainsIs100(t *testing.T) {
	xs := make([]float64, 20)
	for i := range xs {
		xs[i] = float64(i + 1)
	}
	got := rsi(xs, 14)
	if got[19] != 100 {
		t.Fatalf("expected RSI 100 on a monotonic rise, got %v", got[19])
	}
}

func TestCalculateIndicatorWindow(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	data := bars(closes...)
	start := data[55].Date
	end := data[59].Date

	vals, err := CalculateIndicator(data, "close_50_sma", start, end)
	if err != nil {
		t.Fatalf("CalculateIndicator: %v", err)
	}
	if len(vals) != 5 {
		t.Fatalf("expected 5 values in window, got %d", len(vals))
	}
	for _, v := range vals {
		if v.Value != 100 {
			t.Fatalf("flat series sma should be 100, got %v", v.Value)
		}
	}

	if _, err := CalculateIndicator(data, "astrology", start, end); err == nil || !strings.Contains(err.Error(), "rsi") {
		t.Fatalf("expected unsupported indicator error listing choices, got %v", err)
	}
}

func TestFetchOfflineUsesCacheOnly(t *testing.T) {
	dir := t.TempDir()
	cm := NewCacheManager(dir, time.Millisecond, true)
	ctx := context.Background()

	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"fresh"}, nil
	}

	if _, err := fetch(ctx, cm, true, "src", "m", "k", load); !errors.Is(err, ErrNotCached) {
		t.Fatalf("expected ErrNotCached, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("offline fetch must not call the loader")
	}

	if _, err := fetch(ctx, cm, false, "src", "m", "k", load); err != nil {
		t.Fatalf("online fetch: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := fetch(ctx, cm, true, "src", "m", "k", load)
	if err != nil || len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("offline fetch should serve expired cache, got %v %v", got, err)
	}
	if calls != 1 {
		t.Fatalf("expected a single loader call, got %d", calls)
	}
}

func TestFinnhubInsiderSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/insider-sentiment" || r.URL.Query().Get("token") != "test-key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"symbol":"AAPL","year":2024,"month":3,"change":1200,"mspr":12.5}]}`))
	}))
	defer srv.Close()

	fc := NewFinnhubClient(testConfig(t), false)
	fc.SetBaseURL(srv.URL)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := fc.InsiderSentiment(context.Background(), "aapl", from, from.AddDate(0, 3, 0))
	if err != nil {
		t.Fatalf("InsiderSentiment: %v", err)
	}
	if len(got) != 1 || got[0].Change != 1200 || !got[0].MSPR.Equal(decimal.NewFromFloat(12.5)) {
		t.Fatalf("unexpected sentiment %+v", got)
	}
}

func TestFinnhubRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.FinnhubAPIKey = ""
	fc := NewFinnhubClient(cfg, false)
	_, err := fc.CompanyNews(context.Background(), "AAPL", time.Now().AddDate(0, 0, -7), time.Now())
	if !errors.Is(err, ErrFinnhubNotConfigured) {
		t.Fatalf("expected ErrFinnhubNotConfigured, got %v", err)
	}
}

func TestParseGoogleNewsHTML(t *testing.T) {
	html := `<html><body>
<article><h3>Nvidia beats estimates</h3><a href="./articles/abc">x</a><div data-n-tid="1">Reuters</div><time>2 hours ago</time><span>Shares rose</span></article>
<article><a href="/skip">no title</a></article>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	ns := NewNewsScraperClient(testConfig(t), false)
	got := ns.parseGoogleNewsHTML(doc, "NVDA", now)
	if len(got) != 1 {
		t.Fatalf("expected 1 article, got %d", len(got))
	}
	a := got[0]
	if a.Title != "Nvidia beats estimates" || a.Source != "Reuters" || a.URL != "https://news.google.com/articles/abc" {
		t.Fatalf("unexpected article %+v", a)
	}
	if !a.PublishedAt.Equal(now.Add(-2 * time.Hour)) {
		t.Fatalf("unexpected time %v", a.PublishedAt)
	}
}

func TestRedditSearchSkipsStickied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/stocks/search.json" || r.URL.Query().Get("q") != "TSLA" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"children":[
{"data":{"id":"1","title":"Mod post","stickied":true}},
{"data":{"id":"2","title":"TSLA to the moon","score":420,"num_comments":69,"permalink":"/r/stocks/2","created_utc":1715342400}}]}}`))
	}))
	defer srv.Close()

	rc := NewRedditClient(testConfig(t), false)
	rc.SetBaseURL(srv.URL)
	got, err := rc.Search(context.Background(), RedditSearchParams{Query: "TSLA", Subreddit: "stocks"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" || got[0].Score != 420 {
		t.Fatalf("unexpected posts %+v", got)
	}
}
