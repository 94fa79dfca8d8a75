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

var stockSubreddits = []string{"stocks", "wallstreetbets", "investing"}

// NewRedditStockTool collects recent discussion of a ticker.
func NewRedditStockTool(name string, src SocialSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name:        name,
			Desc:        "Retrieve the latest Reddit discussion and sentiment about a given stock",
			ParamsOneOf: tickerWindowParams(),
		},
		func(ctx context.Context, in models.TickerWindowInput) (string, error) {
			start, _, err := window(in.CurrDate, in.LookBackDays, 7)
			if err != nil {
				return "", err
			}
			ticker := strings.ToUpper(strings.TrimSpace(in.Ticker))
			if ticker == "" {
				return "", fmt.Errorf("ticker parameter is required")
			}

			var b strings.Builder
			fmt.Fprintf(&b, "## %s Reddit posts since %s:\n\n", ticker, start.Format("2006-01-02"))
			var lastErr error
			found := 0
			for _, sub := range stockSubreddits {
				posts, err := src.Search(ctx, dataflows.RedditSearchParams{Query: ticker, Subreddit: sub, Sort: "new"})
				if err != nil {
					lastErr = err
					continue
				}
				for _, p := range posts {
					if p.CreatedAt.Before(start) {
						continue
					}
					fmt.Fprintf(&b, "### %s (r/%s, %d upvotes, %d comments)\n", p.Title, p.Subreddit, p.Score, p.Comments)
					if c := strings.TrimSpace(p.Content); c != "" {
						b.WriteString(truncate(c, 500))
						b.WriteString("\n")
					}
					b.WriteString("\n")
					found++
				}
			}
			if found == 0 {
				if lastErr != nil {
					return "", fmt.Errorf("reddit: %w", lastErr)
				}
				return fmt.Sprintf("No Reddit posts about %s in the window", ticker), nil
			}
			return b.String(), nil
		},
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
