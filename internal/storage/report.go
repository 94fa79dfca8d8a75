package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dyike/tradeflow/models"
)

// section is one markdown file of the report directory.
type section struct {
	file  string
	title string
	text  func(s *models.WorkflowState) string
}

var sections = []section{
	{"market_report.md", "Market Analysis", reportText(models.ReportMarket)},
	{"sentiment_report.md", "Social Sentiment", reportText(models.ReportSentiment)},
	{"news_report.md", "News Analysis", reportText(models.ReportNews)},
	{"fundamentals_report.md", "Fundamentals Analysis", reportText(models.ReportFundamentals)},
	{"investment_plan.md", "Research Team Decision", func(s *models.WorkflowState) string {
		return models.Deref(s.InvestmentPlan)
	}},
	{"trader_investment_plan.md", "Trading Team Plan", func(s *models.WorkflowState) string {
		return models.Deref(s.TraderPlan)
	}},
	{"final_trade_decision.md", "Portfolio Management Decision", func(s *models.WorkflowState) string {
		return models.Deref(s.FinalDecision)
	}},
}

func reportText(key models.ReportKey) func(s *models.WorkflowState) string {
	return func(s *models.WorkflowState) string {
		r, _ := s.Report(key)
		return r
	}
}

// ReportDir is where the sections of a run are written:
// <results>/<ticker>/<date>/reports.
func ReportDir(resultsDir string, s *models.WorkflowState) string {
	return filepath.Join(resultsDir, s.Ticker, s.Date(), "reports")
}

// WriteReports writes one markdown file per populated section and returns
// the written paths. Absent sections are skipped.
func WriteReports(resultsDir string, s *models.WorkflowState) ([]string, error) {
	dir := ReportDir(resultsDir, s)
	var written []string
	for _, sec := range sections {
		text := strings.TrimSpace(sec.text(s))
		if text == "" {
			continue
		}
		content := fmt.Sprintf("# %s: %s (%s)\n\n%s\n", sec.title, s.Ticker, s.Date(), text)
		path, err := writeMarkdown(dir, sec.file, content)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeMarkdown(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file %s: %w", path, err)
	}
	return path, nil
}
