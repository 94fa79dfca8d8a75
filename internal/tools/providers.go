package tools

import (
	"context"
	"time"

	"github.com/dyike/tradeflow/internal/dataflows"
)

// The interfaces below are what tools read from. dataflows clients satisfy
// them; tests substitute fixtures.

type MarketSource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]*dataflows.MarketData, error)
}

type NewsSource interface {
	GoogleNews(ctx context.Context, params dataflows.GoogleNewsParams) ([]*dataflows.NewsArticle, error)
}

type CompanyNewsSource interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]*dataflows.NewsArticle, error)
}

type SocialSource interface {
	Search(ctx context.Context, params dataflows.RedditSearchParams) ([]*dataflows.RedditPost, error)
}

type InsiderSource interface {
	InsiderSentiment(ctx context.Context, symbol string, from, to time.Time) ([]*dataflows.InsiderSentiment, error)
	InsiderTransactions(ctx context.Context, symbol string, from, to time.Time) ([]*dataflows.InsiderTransaction, error)
}

// Providers is one set of data backends, either live or offline.
type Providers struct {
	Market      MarketSource
	News        NewsSource
	CompanyNews CompanyNewsSource
	Social      SocialSource
	Insider     InsiderSource
}

// ProvidersFrom wires dataflows clients. Longport candles take precedence
// over Yahoo when configured.
func ProvidersFrom(src *dataflows.Sources) Providers {
	var market MarketSource = src.Yahoo
	if src.Longport != nil {
		market = &fallbackMarket{primary: longportHistory{src.Longport}, secondary: src.Yahoo}
	}
	return Providers{
		Market:      market,
		News:        src.News,
		CompanyNews: src.Finnhub,
		Social:      src.Reddit,
		Insider:     src.Finnhub,
	}
}

// longportHistory adapts count-based candles to a date window.
type longportHistory struct {
	c *dataflows.LongportClient
}

func (l longportHistory) History(ctx context.Context, symbol string, start, end time.Time) ([]*dataflows.MarketData, error) {
	days := int(time.Since(start).Hours()/24) + 1
	bars, err := l.c.Candles(ctx, symbol, min(days, 1000))
	if err != nil {
		return nil, err
	}
	out := bars[:0:0]
	for _, b := range bars {
		if !b.Date.Before(start) && !b.Date.After(end.AddDate(0, 0, 1)) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fallbackMarket struct {
	primary, secondary MarketSource
}

func (f *fallbackMarket) History(ctx context.Context, symbol string, start, end time.Time) ([]*dataflows.MarketData, error) {
	bars, err := f.primary.History(ctx, symbol, start, end)
	if err == nil && len(bars) > 0 {
		return bars, nil
	}
	return f.secondary.History(ctx, symbol, start, end)
}
