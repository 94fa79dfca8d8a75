package dataflows

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/tradeflow/config"
)

// ErrLongportNotConfigured is returned when no Longport credentials are set.
var ErrLongportNotConfigured = errors.New("longport credentials not configured")

type LongportClient struct {
	quoteCtx *quote.QuoteContext
	cache    *CacheManager
	offline  bool
}

// NewLongportClient connects a quote context. Offline clients never dial
// and serve cached candles only.
func NewLongportClient(cfg *config.Config, offline bool) (*LongportClient, error) {
	c := &LongportClient{
		cache:   NewCacheManager(filepath.Join(cfg.DataCacheDir, "longport"), time.Hour, cfg.CacheEnabled),
		offline: offline,
	}
	if offline {
		return c, nil
	}
	if cfg.LongportAppKey == "" || cfg.LongportAppSecret == "" || cfg.LongportAccessToken == "" {
		return nil, ErrLongportNotConfigured
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, fmt.Errorf("longport config: %w", err)
	}
	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, fmt.Errorf("longport quote context: %w", err)
	}
	c.quoteCtx = quoteContext
	return c, nil
}

// Candles returns the last count daily candles in ascending date order.
func (lpc *LongportClient) Candles(ctx context.Context, symbol string, count int) ([]*MarketData, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	cacheKey := map[string]any{"symbol": symbol, "count": count}

	return fetch(ctx, lpc.cache, lpc.offline, "longport", "candles", cacheKey, func() ([]*MarketData, error) {
		if lpc.quoteCtx == nil {
			return nil, permanent(errors.New("quote context is nil"))
		}
		sticks, err := lpc.quoteCtx.Candlesticks(ctx, longportSymbol(symbol), quote.PeriodDay, int32(count), quote.AdjustTypeNo)
		if err != nil {
			return nil, fmt.Errorf("longport candlesticks %s: %w", symbol, err)
		}
		out := make([]*MarketData, 0, len(sticks))
		for _, stick := range sticks {
			open, _ := stick.Open.Float64()
			high, _ := stick.High.Float64()
			low, _ := stick.Low.Float64()
			closePrice, _ := stick.Close.Float64()
			out = append(out, &MarketData{
				Symbol:   symbol,
				Date:     time.Unix(stick.Timestamp, 0).UTC(),
				Open:     decimal.NewFromFloat(open),
				High:     decimal.NewFromFloat(high),
				Low:      decimal.NewFromFloat(low),
				Close:    decimal.NewFromFloat(closePrice),
				AdjClose: decimal.NewFromFloat(closePrice),
				Volume:   stick.Volume,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
		return out, nil
	})
}

// longportSymbol appends the US market suffix when none is given.
func longportSymbol(symbol string) string {
	for _, r := range symbol {
		if r == '.' {
			return symbol
		}
	}
	return symbol + ".US"
}
