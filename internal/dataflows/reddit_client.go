package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/tradeflow/config"
)

// RedditClient handles Reddit API operations
type RedditClient struct {
	client  *resty.Client
	cache   *CacheManager
	offline bool
}

// NewRedditClient creates a new Reddit client
func NewRedditClient(cfg *config.Config, offline bool) *RedditClient {
	client := resty.New()
	client.SetBaseURL("https://www.reddit.com")
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", cfg.RedditUserAgent)

	return &RedditClient{
		client:  client,
		cache:   NewCacheManager(filepath.Join(cfg.DataCacheDir, "reddit"), time.Hour, cfg.CacheEnabled),
		offline: offline,
	}
}

// SetBaseURL points the client at another host; tests use it.
func (rc *RedditClient) SetBaseURL(u string) {
	rc.client.SetBaseURL(u)
}

// RedditSearchParams represents parameters for Reddit search
type RedditSearchParams struct {
	Query     string `json:"query"`
	Subreddit string `json:"subreddit"`
	Sort      string `json:"sort"` // relevance, hot, top, new, comments
	Time      string `json:"time"` // hour, day, week, month, year, all
	Limit     int    `json:"limit"`
}

type redditResponse struct {
	Data struct {
		Children []struct {
			Data redditPostData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPostData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Subreddit   string  `json:"subreddit"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
}

// Search finds posts matching a query, restricted to a subreddit when one
// is given.
func (rc *RedditClient) Search(ctx context.Context, params RedditSearchParams) ([]*RedditPost, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if params.Sort == "" {
		params.Sort = "relevance"
	}
	if params.Time == "" {
		params.Time = "week"
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 25
	}

	return fetch(ctx, rc.cache, rc.offline, "reddit", "search", params, func() ([]*RedditPost, error) {
		path := "/search.json"
		q := map[string]string{
			"q":     params.Query,
			"sort":  params.Sort,
			"t":     params.Time,
			"limit": fmt.Sprint(params.Limit),
		}
		if params.Subreddit != "" {
			path = fmt.Sprintf("/r/%s/search.json", params.Subreddit)
			q["restrict_sr"] = "1"
		}

		resp, err := rc.client.R().SetContext(ctx).SetQueryParams(q).Get(path)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch Reddit posts: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("HTTP error %d when fetching Reddit posts", resp.StatusCode())
		}

		var raw redditResponse
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return nil, permanent(fmt.Errorf("failed to parse Reddit JSON: %w", err))
		}

		posts := make([]*RedditPost, 0, len(raw.Data.Children))
		for _, child := range raw.Data.Children {
			d := child.Data
			if d.Stickied {
				continue
			}
			posts = append(posts, &RedditPost{
				ID:        d.ID,
				Title:     d.Title,
				Content:   d.Selftext,
				URL:       "https://www.reddit.com" + d.Permalink,
				Subreddit: d.Subreddit,
				Author:    d.Author,
				Score:     d.Score,
				Comments:  d.NumComments,
				CreatedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
			})
		}
		return posts, nil
	})
}
