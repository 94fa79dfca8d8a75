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

// indicatorWarmup is extra history fetched so long windows have values.
const indicatorWarmup = 250

// NewMarketDataTool returns daily OHLCV bars for a date range.
func NewMarketDataTool(name string, src MarketSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name: name,
			Desc: "Retrieve the stock price data (open, high, low, close, volume) for a given ticker symbol and date range",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol":     param("Ticker symbol of the company, e.g. AAPL, TSM", schema.String, true),
				"start_date": param("Start date in yyyy-mm-dd format", schema.String, true),
				"end_date":   param("End date in yyyy-mm-dd format", schema.String, true),
			}),
		},
		func(ctx context.Context, in models.MarketDataInput) (string, error) {
			if in.Symbol == "" {
				return "", fmt.Errorf("symbol parameter is required")
			}
			start, err := parseDate(in.StartDate)
			if err != nil {
				return "", err
			}
			end, err := parseDate(in.EndDate)
			if err != nil {
				return "", err
			}
			bars, err := src.History(ctx, in.Symbol, start, end)
			if err != nil {
				return "", fmt.Errorf("failed to get market data: %w", err)
			}
			if len(bars) == 0 {
				return fmt.Sprintf("No market data found for %s between %s and %s", in.Symbol, in.StartDate, in.EndDate), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "## Stock data for %s from %s to %s\n\n", strings.ToUpper(in.Symbol), in.StartDate, in.EndDate)
			b.WriteString("Date,Open,High,Low,Close,Adj Close,Volume\n")
			for _, bar := range bars {
				fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s,%d\n", bar.Day(),
					bar.Open.StringFixed(2), bar.High.StringFixed(2), bar.Low.StringFixed(2),
					bar.Close.StringFixed(2), bar.AdjClose.StringFixed(2), bar.Volume)
			}
			return b.String(), nil
		},
	)
}

// NewStockIndicatorTool computes one technical indicator over a trailing
// window.
func NewStockIndicatorTool(name string, src MarketSource) tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name: name,
			Desc: "Get a technical indicator report for a stock over a trailing window. Supported indicators: " +
				strings.Join(dataflows.SupportedIndicators(), ", "),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol":         param("Ticker symbol of the company", schema.String, true),
				"indicator":      param("Technical indicator to get the analysis and report of", schema.String, true),
				"curr_date":      param("The current trading date you are trading on, yyyy-mm-dd", schema.String, true),
				"look_back_days": param("How many days to look back, default 30", schema.Integer, false),
			}),
		},
		func(ctx context.Context, in models.StockIndicatorInput) (string, error) {
			if _, ok := dataflows.IndicatorDescriptions[in.Indicator]; !ok {
				return "", fmt.Errorf("indicator %s is not supported. Please choose from: %s",
					in.Indicator, strings.Join(dataflows.SupportedIndicators(), ", "))
			}
			start, end, err := window(in.CurrDate, in.LookBackDays, 30)
			if err != nil {
				return "", err
			}

			bars, err := src.History(ctx, in.Symbol, start.AddDate(0, 0, -indicatorWarmup), end)
			if err != nil {
				return "", fmt.Errorf("failed to get market data: %w", err)
			}
			if len(bars) == 0 {
				return "", fmt.Errorf("no market data available for symbol %s", in.Symbol)
			}

			values, err := dataflows.CalculateIndicator(bars, in.Indicator, start, end)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "## %s values from %s to %s:\n\n", in.Indicator, start.Format("2006-01-02"), in.CurrDate)
			for _, v := range values {
				fmt.Fprintf(&b, "%s: %.4f\n", v.Date, v.Value)
			}
			b.WriteString("\n\n")
			b.WriteString(dataflows.IndicatorDescriptions[in.Indicator])
			return b.String(), nil
		},
	)
}
