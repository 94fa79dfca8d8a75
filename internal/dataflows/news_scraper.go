package dataflows

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/dyike/tradeflow/config"
)

const googleNewsURL = "https://news.google.com/search"

// NewsScraperClient handles news scraping operations
type NewsScraperClient struct {
	client  *resty.Client
	cache   *CacheManager
	baseURL string
	offline bool
}

// NewNewsScraperClient creates a new news scraper client
func NewNewsScraperClient(cfg *config.Config, offline bool) *NewsScraperClient {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; TradeFlow/1.0)")

	return &NewsScraperClient{
		client:  client,
		cache:   NewCacheManager(filepath.Join(cfg.DataCacheDir, "news_scraper"), 2*time.Hour, cfg.CacheEnabled),
		baseURL: googleNewsURL,
		offline: offline,
	}
}

// SetBaseURL points the scraper at another search endpoint; tests use it.
func (ns *NewsScraperClient) SetBaseURL(u string) {
	ns.baseURL = u
}

// GoogleNewsParams represents parameters for Google News search
type GoogleNewsParams struct {
	Query      string    `json:"query"`
	Language   string    `json:"language"`
	Country    string    `json:"country"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	MaxResults int       `json:"max_results"`
}

// GoogleNews scrapes Google News for articles
func (ns *NewsScraperClient) GoogleNews(ctx context.Context, params GoogleNewsParams) ([]*NewsArticle, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if params.Language == "" {
		params.Language = "en"
	}
	if params.Country == "" {
		params.Country = "US"
	}
	if params.MaxResults <= 0 {
		params.MaxResults = 20
	}

	return fetch(ctx, ns.cache, ns.offline, "google_news", "search", params, func() ([]*NewsArticle, error) {
		resp, err := ns.client.R().SetContext(ctx).Get(ns.buildGoogleNewsURL(params))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch Google News: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("HTTP error %d when fetching Google News", resp.StatusCode())
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
		if err != nil {
			return nil, permanent(fmt.Errorf("failed to parse HTML: %w", err))
		}
		result := ns.parseGoogleNewsHTML(doc, params.Query, time.Now())
		if len(result) > params.MaxResults {
			result = result[:params.MaxResults]
		}
		return result, nil
	})
}

func (ns *NewsScraperClient) buildGoogleNewsURL(params GoogleNewsParams) string {
	query := params.Query
	if !params.StartDate.IsZero() && !params.EndDate.IsZero() {
		query += fmt.Sprintf(" after:%s before:%s",
			params.StartDate.Format("2006-01-02"),
			params.EndDate.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s?q=%s&hl=%s&gl=%s&ceid=%s:%s",
		ns.baseURL, url.QueryEscape(query), params.Language, params.Country, params.Country, params.Language)
}

func (ns *NewsScraperClient) parseGoogleNewsHTML(doc *goquery.Document, query string, now time.Time) []*NewsArticle {
	var articles []*NewsArticle

	doc.Find("article").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").Text())
		if title == "" {
			title = strings.TrimSpace(s.Find("h4").Text())
		}
		if title == "" {
			return
		}

		href, exists := s.Find("a").First().Attr("href")
		if !exists {
			return
		}

		source := strings.TrimSpace(s.Find("div[data-n-tid]").Text())
		if source == "" {
			source = "Google News"
		}

		timeText := strings.TrimSpace(s.Find("time").Text())
		publishedAt := parseRelativeTime(timeText, now)
		if dt, ok := s.Find("time").Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				publishedAt = t
			}
		}

		articles = append(articles, &NewsArticle{
			Title:       title,
			Content:     strings.TrimSpace(s.Find("span").Last().Text()),
			URL:         cleanGoogleNewsURL(href),
			Source:      source,
			PublishedAt: publishedAt,
			Keywords:    []string{query},
			Metadata: map[string]string{
				"scraper":   "google_news",
				"time_text": timeText,
			},
		})
	})

	return articles
}

// cleanGoogleNewsURL removes Google News redirect wrapper
func cleanGoogleNewsURL(googleURL string) string {
	if _, after, ok := strings.Cut(googleURL, "url="); ok {
		if decoded, err := url.QueryUnescape(after); err == nil {
			return decoded
		}
	}
	if strings.HasPrefix(googleURL, "./") {
		return "https://news.google.com" + googleURL[1:]
	}
	if strings.HasPrefix(googleURL, "/") {
		return "https://news.google.com" + googleURL
	}
	return googleURL
}

var relativeTime = regexp.MustCompile(`(\d+)\s*(minute|hour|day|week)s?\s*ago`)

// parseRelativeTime converts relative time strings to actual time
func parseRelativeTime(timeText string, now time.Time) time.Time {
	timeText = strings.ToLower(strings.TrimSpace(timeText))
	if timeText == "just now" {
		return now
	}
	if timeText == "yesterday" {
		return now.Add(-24 * time.Hour)
	}

	m := relativeTime.FindStringSubmatch(timeText)
	if len(m) == 3 {
		n, _ := strconv.Atoi(m[1])
		unit := map[string]time.Duration{
			"minute": time.Minute,
			"hour":   time.Hour,
			"day":    24 * time.Hour,
			"week":   7 * 24 * time.Hour,
		}[m[2]]
		return now.Add(-time.Duration(n) * unit)
	}

	// unparseable, assume recent
	return now.Add(-1 * time.Hour)
}
