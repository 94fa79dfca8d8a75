package processing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dyike/tradeflow/models"
)

var keywords = map[string]models.Action{
	"buy":        models.ActionBuy,
	"buys":       models.ActionBuy,
	"buying":     models.ActionBuy,
	"purchase":   models.ActionBuy,
	"accumulate": models.ActionBuy,
	"sell":       models.ActionSell,
	"sells":      models.ActionSell,
	"selling":    models.ActionSell,
	"divest":     models.ActionSell,
	"hold":       models.ActionHold,
	"holds":      models.ActionHold,
	"holding":    models.ActionHold,
}

var (
	// A marker followed by one word, emphasis allowed: "Recommendation: **SELL**".
	markerRe   = regexp.MustCompile(`(?i)\b(final transaction proposal|recommendation|decision|action|verdict)\s*[:\-]\s*[*_\s]*([a-z]+)`)
	sentenceRe = regexp.MustCompile(`[.!?\n]+`)
	wordRe     = regexp.MustCompile(`[a-z]+`)

	// "short" alone is usually a horizon ("short term"), so only phrases
	// that open a short position count as a sell.
	shortRe = regexp.MustCompile(`\b(?:go|going|initiate|open|opening) short\b|\bshort (?:the|this|these|it)\b`)

	// Prices may carry thousands separators: "$1,050.25".
	entryRe    = regexp.MustCompile(`(?i)\bentry(?:\s+price)?\b[^0-9$\n]{0,20}\$?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	stopRe     = regexp.MustCompile(`(?i)\bstop[\s-]?loss\b[^0-9$\n]{0,20}\$?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	targetRe   = regexp.MustCompile(`(?i)\b(?:target(?:\s+price)?|take[\s-]?profit)\b[^0-9$\n]{0,20}\$?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	positionRe = regexp.MustCompile(`(?i)\bposition(?:\s+size)?\b[^0-9\n]{0,20}(\d+(?:\.\d+)?)\s*%`)
)

// ExtractAction maps decision text to an action. Explicit markers win,
// earliest first; otherwise the first sentence naming exactly one action;
// otherwise Unknown. Ambiguous phrasing such as "hold off on buying" names
// two actions and is skipped.
func ExtractAction(text string) models.Action {
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		word := strings.ToLower(m[2])
		if word == "short" {
			return models.ActionSell
		}
		if a, ok := keywords[word]; ok {
			return a
		}
	}
	for _, sentence := range sentenceRe.Split(strings.ToLower(text), -1) {
		if a, ok := sentenceAction(sentence); ok {
			return a
		}
	}
	return models.ActionUnknown
}

func sentenceAction(sentence string) (models.Action, bool) {
	var found models.Action
	if shortRe.MatchString(sentence) {
		found = models.ActionSell
	}
	for _, w := range wordRe.FindAllString(sentence, -1) {
		a, ok := keywords[w]
		if !ok {
			continue
		}
		if found != "" && found != a {
			return "", false
		}
		found = a
	}
	return found, found != ""
}

// TradingSignal is the action plus whatever price levels the text states.
// Absent levels are zero.
type TradingSignal struct {
	Action       models.Action   `json:"action"`
	Reasoning    string          `json:"reasoning"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	TakeProfit   decimal.Decimal `json:"take_profit"`
	PositionSize decimal.Decimal `json:"position_size"` // fraction of the portfolio
}

// ExtractSignal parses a decision text.
func ExtractSignal(text string) TradingSignal {
	action := ExtractAction(text)
	pos := extractLevel(positionRe, text)
	if !pos.IsZero() {
		pos = pos.Div(decimal.NewFromInt(100))
	}
	return TradingSignal{
		Action:       action,
		Reasoning:    extractReasoning(text, action),
		EntryPrice:   extractLevel(entryRe, text),
		StopLoss:     extractLevel(stopRe, text),
		TakeProfit:   extractLevel(targetRe, text),
		PositionSize: pos,
	}
}

func extractLevel(re *regexp.Regexp, text string) decimal.Decimal {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// extractReasoning keeps up to three sentences that name the action.
func extractReasoning(text string, action models.Action) string {
	var picked []string
	for _, sentence := range sentenceRe.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < 10 {
			continue
		}
		for _, w := range wordRe.FindAllString(strings.ToLower(sentence), -1) {
			if keywords[w] == action {
				picked = append(picked, sentence)
				break
			}
		}
		if len(picked) == 3 {
			break
		}
	}
	return strings.Join(picked, ". ")
}

// ProcessSignal summarises a finished run. Price levels come from the final
// decision, falling back to the trader plan.
func ProcessSignal(state *models.WorkflowState) *models.TradingDecision {
	final := models.Deref(state.FinalDecision)
	sig := ExtractSignal(final)
	plan := ExtractSignal(models.Deref(state.TraderPlan))

	pick := func(a, b decimal.Decimal) float64 {
		if a.IsZero() {
			return b.InexactFloat64()
		}
		return a.InexactFloat64()
	}
	return &models.TradingDecision{
		Symbol:       state.Ticker,
		Date:         state.Date(),
		Action:       sig.Action,
		Reasoning:    sig.Reasoning,
		EntryPrice:   pick(sig.EntryPrice, plan.EntryPrice),
		StopLoss:     pick(sig.StopLoss, plan.StopLoss),
		TakeProfit:   pick(sig.TakeProfit, plan.TakeProfit),
		PositionSize: pick(sig.PositionSize, plan.PositionSize),
	}
}
