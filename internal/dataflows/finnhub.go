package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dyike/tradeflow/config"
)

var ErrFinnhubNotConfigured = errors.New("finnhub API key not configured")

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client  *resty.Client
	cache   *CacheManager
	apiKey  string
	offline bool
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(cfg *config.Config, offline bool) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL("https://finnhub.io/api/v1")
	client.SetTimeout(30 * time.Second)

	return &FinnhubClient{
		client:  client,
		cache:   NewCacheManager(filepath.Join(cfg.DataCacheDir, "finnhub"), 6*time.Hour, cfg.CacheEnabled),
		apiKey:  cfg.FinnhubAPIKey,
		offline: offline,
	}
}

// SetBaseURL points the client at another host; tests use it.
func (fc *FinnhubClient) SetBaseURL(u string) {
	fc.client.SetBaseURL(u)
}

type finnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

type finnhubInsiderTransaction struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Share            int64   `json:"share"`
	Change           int64   `json:"change"`
	FilingDate       string  `json:"filingDate"`
	TransactionDate  string  `json:"transactionDate"`
	TransactionCode  string  `json:"transactionCode"`
	TransactionPrice float64 `json:"transactionPrice"`
}

type finnhubInsiderSentiment struct {
	Symbol string  `json:"symbol"`
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Change int64   `json:"change"`
	MSPR   float64 `json:"mspr"`
}

func (fc *FinnhubClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	if fc.apiKey == "" {
		return permanent(ErrFinnhubNotConfigured)
	}
	q := map[string]string{"token": fc.apiKey}
	for k, v := range params {
		q[k] = v
	}
	resp, err := fc.client.R().SetContext(ctx).SetQueryParams(q).Get(path)
	if err != nil {
		return fmt.Errorf("finnhub %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		err := fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return permanent(err)
		}
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return permanent(fmt.Errorf("parse %s response: %w", path, err))
	}
	return nil
}

func dateRange(symbol string, from, to time.Time) map[string]string {
	return map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}
}

// CompanyNews gets news articles for a specific company
func (fc *FinnhubClient) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]*NewsArticle, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	params := dateRange(symbol, from, to)

	return fetch(ctx, fc.cache, fc.offline, "finnhub", "company_news", params, func() ([]*NewsArticle, error) {
		var raw []finnhubNews
		if err := fc.get(ctx, "/company-news", params, &raw); err != nil {
			return nil, err
		}
		result := make([]*NewsArticle, 0, len(raw))
		for _, news := range raw {
			result = append(result, &NewsArticle{
				Title:       news.Headline,
				Content:     news.Summary,
				URL:         news.URL,
				Source:      news.Source,
				PublishedAt: time.Unix(news.DateTime, 0).UTC(),
				Keywords:    []string{symbol},
				Metadata: map[string]string{
					"category": news.Category,
					"related":  news.Related,
					"id":       strconv.FormatInt(news.ID, 10),
				},
			})
		}
		return result, nil
	})
}

// InsiderTransactions gets insider trading data for a company
func (fc *FinnhubClient) InsiderTransactions(ctx context.Context, symbol string, from, to time.Time) ([]*InsiderTransaction, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	params := dateRange(symbol, from, to)

	return fetch(ctx, fc.cache, fc.offline, "finnhub", "insider_transactions", params, func() ([]*InsiderTransaction, error) {
		var raw struct {
			Data []finnhubInsiderTransaction `json:"data"`
		}
		if err := fc.get(ctx, "/stock/insider-transactions", params, &raw); err != nil {
			return nil, err
		}
		result := make([]*InsiderTransaction, 0, len(raw.Data))
		for _, trans := range raw.Data {
			filingDate, _ := ParseDateString(trans.FilingDate)
			transactionDate, _ := ParseDateString(trans.TransactionDate)
			result = append(result, &InsiderTransaction{
				Symbol:           trans.Symbol,
				PersonName:       trans.Name,
				Share:            trans.Share,
				Change:           trans.Change,
				FilingDate:       filingDate,
				TransactionDate:  transactionDate,
				TransactionCode:  trans.TransactionCode,
				TransactionPrice: decimal.NewFromFloat(trans.TransactionPrice),
			})
		}
		return result, nil
	})
}

// InsiderSentiment gets monthly insider sentiment for a company
func (fc *FinnhubClient) InsiderSentiment(ctx context.Context, symbol string, from, to time.Time) ([]*InsiderSentiment, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	params := dateRange(symbol, from, to)

	return fetch(ctx, fc.cache, fc.offline, "finnhub", "insider_sentiment", params, func() ([]*InsiderSentiment, error) {
		var raw struct {
			Data []finnhubInsiderSentiment `json:"data"`
		}
		if err := fc.get(ctx, "/stock/insider-sentiment", params, &raw); err != nil {
			return nil, err
		}
		result := make([]*InsiderSentiment, 0, len(raw.Data))
		for _, s := range raw.Data {
			result = append(result, &InsiderSentiment{
				Symbol: s.Symbol,
				Year:   s.Year,
				Month:  s.Month,
				Change: s.Change,
				MSPR:   decimal.NewFromFloat(s.MSPR),
			})
		}
		return result, nil
	})
}
