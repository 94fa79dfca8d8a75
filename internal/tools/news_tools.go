package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/tradeflow/internal/dataflows"
	"github.com/dyike/tradeflow/models"
)

func formatArticles(header string, articles []*dataflows.NewsArticle) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	for _, a := range articles {
		fmt.Fprintf(&b, "### %s (source: %s, %s)\n", a.Title, a.Source, a.PublishedAt.Format("2006-01-02"))
		if a.Content != "" {
			b.WriteString(a.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// NewGoogleNewsTool searches Google News for a query over a trailing window.
func NewGoogleNewsTool(name string, src NewsSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name: name,
			Desc: "Retrieve the latest news from Google News based on a query and date range",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query":          param("Query to search with", schema.String, true),
				"curr_date":      param("Current date in yyyy-mm-dd format", schema.String, true),
				"look_back_days": param("How many days to look back, default 7", schema.Integer, false),
			}),
		},
		func(ctx context.Context, in models.NewsQueryInput) (string, error) {
			start, end, err := window(in.CurrDate, in.LookBackDays, 7)
			if err != nil {
				return "", err
			}
			articles, err := src.GoogleNews(ctx, dataflows.GoogleNewsParams{
				Query:     in.Query,
				StartDate: start,
				EndDate:   end,
			})
			if err != nil {
				return "", fmt.Errorf("google news: %w", err)
			}
			if len(articles) == 0 {
				return fmt.Sprintf("No Google News results for %q", in.Query), nil
			}
			return formatArticles(fmt.Sprintf("## %s Google News, from %s to %s:",
				in.Query, start.Format("2006-01-02"), in.CurrDate), articles), nil
		},
	)
}

// NewCompanyNewsTool returns Finnhub company news for a ticker.
func NewCompanyNewsTool(name string, src CompanyNewsSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name:        name,
			Desc:        "Retrieve the latest news about a given stock from Finnhub within a date range",
			ParamsOneOf: tickerWindowParams(),
		},
		func(ctx context.Context, in models.TickerWindowInput) (string, error) {
			start, end, err := window(in.CurrDate, in.LookBackDays, 7)
			if err != nil {
				return "", err
			}
			articles, err := src.CompanyNews(ctx, in.Ticker, start, end)
			if err != nil {
				return "", fmt.Errorf("finnhub news: %w", err)
			}
			if len(articles) == 0 {
				return fmt.Sprintf("No Finnhub news for %s", in.Ticker), nil
			}
			return formatArticles(fmt.Sprintf("## %s News, from %s to %s:",
				strings.ToUpper(in.Ticker), start.Format("2006-01-02"), in.CurrDate), articles), nil
		},
	)
}

// NewGlobalNewsTool surfaces macro news from Reddit's news communities.
func NewGlobalNewsTool(name string, src SocialSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name: name,
			Desc: "Retrieve global macroeconomic and world news relevant to trading",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"curr_date": param("Current date in yyyy-mm-dd format", schema.String, true),
			}),
		},
		func(ctx context.Context, in models.GlobalNewsInput) (string, error) {
			if _, err := parseDate(in.CurrDate); err != nil {
				return "", err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "## Global News as of %s:\n\n", in.CurrDate)
			found := 0
			for _, sub := range []string{"worldnews", "economics", "finance"} {
				posts, err := src.Search(ctx, dataflows.RedditSearchParams{Query: "market", Subreddit: sub, Sort: "top", Limit: 10})
				if err != nil {
					continue
				}
				for _, p := range posts {
					fmt.Fprintf(&b, "### %s (r/%s, score %d)\n%s\n\n", p.Title, p.Subreddit, p.Score, p.Content)
					found++
				}
			}
			if found == 0 {
				return "No global news available", nil
			}
			return b.String(), nil
		},
	)
}

func tickerWindowParams() *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"ticker":         param("Ticker symbol of the company", schema.String, true),
		"curr_date":      param("Current date in yyyy-mm-dd format", schema.String, true),
		"look_back_days": param("How many days to look back", schema.Integer, false),
	})
}
