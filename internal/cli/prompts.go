package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/tradeflow/consts"
)

// ResearchDepth picks the debate round limits in one choice.
type ResearchDepth string

const (
	ShallowResearch ResearchDepth = "shallow"
	MediumResearch  ResearchDepth = "medium"
	DeepResearch    ResearchDepth = "deep"
)

// Rounds is the number of rounds for both debates.
func (d ResearchDepth) Rounds() int {
	switch d {
	case ShallowResearch:
		return 1
	case DeepResearch:
		return 5
	default:
		return 3
	}
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.-]+$`)

func validateTicker(val string) error {
	str := strings.TrimSpace(strings.ToUpper(val))
	if len(str) == 0 {
		return fmt.Errorf("ticker symbol cannot be empty")
	}
	if len(str) > 10 {
		return fmt.Errorf("ticker symbol too long (max 10 characters)")
	}
	if !tickerPattern.MatchString(str) {
		return fmt.Errorf("invalid ticker format (use letters, numbers, dots, and hyphens only)")
	}
	return nil
}

// parseAnalysisDate accepts YYYY-MM-DD within five years before now and no
// later than tomorrow. An empty string means today.
func parseAnalysisDate(val string, now time.Time) (time.Time, error) {
	str := strings.TrimSpace(val)
	if str == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(time.DateOnly, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	if date.After(now.AddDate(0, 0, 1)) {
		return time.Time{}, fmt.Errorf("analysis date cannot be more than 1 day in the future")
	}
	if date.Before(now.AddDate(-5, 0, 0)) {
		return time.Time{}, fmt.Errorf("analysis date cannot be more than 5 years in the past")
	}
	return date, nil
}

// parseAnalysts maps a comma separated list to analyst keys, accepting
// display names as well.
func parseAnalysts(val string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(val, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if key == "" {
			continue
		}
		if _, ok := consts.AnalystNodes[key]; !ok {
			found := false
			for _, k := range consts.AllAnalysts {
				if strings.EqualFold(consts.DisplayNames[consts.AnalystNodes[k]], key) {
					key, found = k, true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("unknown analyst %q (choose from %s)", part, strings.Join(consts.AllAnalysts, ", "))
			}
		}
		out = append(out, key)
	}
	return out, nil
}

// PromptForTicker prompts the user to enter a stock ticker symbol
func PromptForTicker() (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the stock ticker symbol (e.g., AAPL, MSFT, GOOGL):",
		Help:    "Please enter a valid stock ticker symbol for analysis",
	}
	err := survey.AskOne(prompt, &ticker, survey.WithValidator(func(val interface{}) error {
		return validateTicker(val.(string))
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToUpper(ticker)), nil
}

// PromptForAnalysisDate prompts the user to enter an analysis date
func PromptForAnalysisDate() (time.Time, error) {
	var dateStr string
	prompt := &survey.Input{
		Message: "Enter the analysis date (YYYY-MM-DD):",
		Help:    "Format: YYYY-MM-DD (e.g., 2024-01-15). Leave empty for today's date.",
		Default: time.Now().Format(time.DateOnly),
	}
	err := survey.AskOne(prompt, &dateStr, survey.WithValidator(func(val interface{}) error {
		_, err := parseAnalysisDate(val.(string), time.Now())
		return err
	}))
	if err != nil {
		return time.Time{}, err
	}
	return parseAnalysisDate(dateStr, time.Now())
}

// PromptForAnalysts prompts the user to select analyst team members
func PromptForAnalysts(defaults []string) ([]string, error) {
	options := make([]string, len(consts.AllAnalysts))
	for i, k := range consts.AllAnalysts {
		options[i] = consts.DisplayNames[consts.AnalystNodes[k]]
	}
	var preselected []string
	for _, k := range defaults {
		preselected = append(preselected, consts.DisplayNames[consts.AnalystNodes[k]])
	}

	var selected []string
	prompt := &survey.MultiSelect{
		Message: "Select analyst team members:",
		Options: options,
		Help:    "Use space to select, enter to confirm.",
		Default: preselected,
	}
	err := survey.AskOne(prompt, &selected, survey.WithValidator(survey.MinItems(1)))
	if err != nil {
		return nil, err
	}
	return parseAnalysts(strings.Join(selected, ","))
}

// PromptForResearchDepth prompts the user to select research depth
func PromptForResearchDepth() (ResearchDepth, error) {
	options := []string{
		fmt.Sprintf("Shallow (%d round) - Quick analysis", ShallowResearch.Rounds()),
		fmt.Sprintf("Medium (%d rounds) - Balanced analysis", MediumResearch.Rounds()),
		fmt.Sprintf("Deep (%d rounds) - Comprehensive analysis", DeepResearch.Rounds()),
	}
	var selected string
	prompt := &survey.Select{
		Message: "Select research depth:",
		Options: options,
		Help:    "More rounds give more thorough debates but take longer.",
		Default: options[0],
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	switch {
	case strings.HasPrefix(selected, "Shallow"):
		return ShallowResearch, nil
	case strings.HasPrefix(selected, "Deep"):
		return DeepResearch, nil
	default:
		return MediumResearch, nil
	}
}

// PromptForConfirmation prompts the user to confirm their selections
func PromptForConfirmation(summary string) (bool, error) {
	fmt.Println(summary)
	var confirmed bool
	prompt := &survey.Confirm{
		Message: "Proceed with this analysis configuration?",
		Default: true,
	}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}
