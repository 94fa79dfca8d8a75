package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/tradeflow/models"
)

// NewInsiderSentimentTool reports Finnhub monthly share purchase ratios.
func NewInsiderSentimentTool(name string, src InsiderSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name:        name,
			Desc:        "Retrieve insider sentiment information about a company (monthly share purchase ratio and net change) over a trailing window",
			ParamsOneOf: tickerWindowParams(),
		},
		func(ctx context.Context, in models.TickerWindowInput) (string, error) {
			start, end, err := window(in.CurrDate, in.LookBackDays, 30)
			if err != nil {
				return "", err
			}
			rows, err := src.InsiderSentiment(ctx, in.Ticker, start, end)
			if err != nil {
				return "", fmt.Errorf("insider sentiment: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Sprintf("No insider sentiment data for %s", in.Ticker), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "## %s Insider Sentiment Data for %s to %s:\n\n",
				strings.ToUpper(in.Ticker), start.Format("2006-01-02"), in.CurrDate)
			for _, r := range rows {
				fmt.Fprintf(&b, "### %d-%02d:\nChange: %d\nMonthly Share Purchase Ratio: %s\n\n",
					r.Year, r.Month, r.Change, r.MSPR.StringFixed(4))
			}
			b.WriteString("The change field refers to the net buying/selling from all insiders' transactions. ")
			b.WriteString("The mspr field refers to monthly share purchase ratio.")
			return b.String(), nil
		},
	)
}

// NewInsiderTransactionsTool lists Finnhub insider filings.
func NewInsiderTransactionsTool(name string, src InsiderSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name:        name,
			Desc:        "Retrieve insider transaction information about a company over a trailing window",
			ParamsOneOf: tickerWindowParams(),
		},
		func(ctx context.Context, in models.TickerWindowInput) (string, error) {
			start, end, err := window(in.CurrDate, in.LookBackDays, 30)
			if err != nil {
				return "", err
			}
			rows, err := src.InsiderTransactions(ctx, in.Ticker, start, end)
			if err != nil {
				return "", fmt.Errorf("insider transactions: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Sprintf("No insider transactions for %s", in.Ticker), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "## %s insider transactions from %s to %s:\n\n",
				strings.ToUpper(in.Ticker), start.Format("2006-01-02"), in.CurrDate)
			for _, r := range rows {
				fmt.Fprintf(&b, "### Filing Date: %s, %s:\nChange: %d\nShares: %d\nTransaction Price: %s\nTransaction Code: %s\n\n",
					r.FilingDate.Format("2006-01-02"), r.PersonName, r.Change, r.Share,
					r.TransactionPrice.StringFixed(2), r.TransactionCode)
			}
			b.WriteString("The change field reflects the variation in share count; a negative number indicates a reduction in holdings. ")
			b.WriteString("The transaction price is the per-share price of the trade.")
			return b.String(), nil
		},
	)
}
