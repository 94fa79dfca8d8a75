package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dyike/tradeflow/consts"
)

// Tool names. Live variants carry the _online suffix so a transcript shows
// which data path was taken.
const (
	ToolMarketData          = "get_market_data"
	ToolStockIndicators     = "get_stockstats_indicators_report"
	ToolRedditStock         = "get_reddit_stock_info"
	ToolGoogleNews          = "get_google_news"
	ToolFinnhubNews         = "get_finnhub_news"
	ToolGlobalNews          = "get_reddit_news"
	ToolInsiderSentiment    = "get_finnhub_company_insider_sentiment"
	ToolInsiderTransactions = "get_finnhub_company_insider_transactions"

	onlineSuffix = "_online"
)

// ToolName returns the registered name of a tool in the given mode.
func ToolName(base string, online bool) string {
	if online {
		return base + onlineSuffix
	}
	return base
}

// Registry hands out the toolset of each analyst, keyed by analyst and
// mode. Toolsets are built once and reused across runs.
type Registry struct {
	online  Providers
	offline Providers

	mu    sync.Mutex
	cache map[string]*Toolset
}

func NewRegistry(online, offline Providers) *Registry {
	return &Registry{online: online, offline: offline, cache: make(map[string]*Toolset)}
}

// For returns the toolset for an analyst key (market, social, news,
// fundamentals).
func (r *Registry) For(ctx context.Context, analyst string, online bool) (*Toolset, error) {
	key := fmt.Sprintf("%s/%t", analyst, online)
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, ok := r.cache[key]; ok {
		return ts, nil
	}

	p := r.offline
	if online {
		p = r.online
	}
	name := func(base string) string { return ToolName(base, online) }

	var list []tool.InvokableTool
	switch analyst {
	case consts.AnalystMarket:
		list = []tool.InvokableTool{
			NewMarketDataTool(name(ToolMarketData), p.Market),
			NewStockIndicatorTool(name(ToolStockIndicators), p.Market),
		}
	case consts.AnalystSocial:
		list = []tool.InvokableTool{
			NewRedditStockTool(name(ToolRedditStock), p.Social),
		}
	case consts.AnalystNews:
		list = []tool.InvokableTool{
			NewGoogleNewsTool(name(ToolGoogleNews), p.News),
			NewCompanyNewsTool(name(ToolFinnhubNews), p.CompanyNews),
			NewGlobalNewsTool(name(ToolGlobalNews), p.Social),
		}
	case consts.AnalystFundamentals:
		list = []tool.InvokableTool{
			NewInsiderSentimentTool(name(ToolInsiderSentiment), p.Insider),
			NewInsiderTransactionsTool(name(ToolInsiderTransactions), p.Insider),
		}
	default:
		return nil, fmt.Errorf("no tools for analyst %q", analyst)
	}

	ts, err := NewToolset(ctx, list...)
	if err != nil {
		return nil, err
	}
	r.cache[key] = ts
	return ts, nil
}
