package processing

import (
	"testing"
	"time"

	"github.com/dyike/tradeflow/models"
)

func TestExtractAction(t *testing.T) {
	cases := []struct {
		name string
		text string
		want models.Action
	}{
		{"final proposal", "Momentum is fading.\nFINAL TRANSACTION PROPOSAL: **SELL**", models.ActionSell},
		{"lowercase marker", "recommendation: buy", models.ActionBuy},
		{"emphasis", "Verdict: __Hold__ until earnings", models.ActionHold},
		{"earliest marker wins", "Decision: HOLD. Later analysts said Recommendation: SELL", models.ActionHold},
		{"marker beats sentence", "We could buy more. Action: Sell", models.ActionSell},
		{"non keyword marker skipped", "Decision-making was hard. Recommendation: BUY", models.ActionBuy},
		{"first unambiguous sentence", "The outlook is mixed. We should accumulate on dips.", models.ActionBuy},
		{"ambiguous sentence skipped", "Hold off on buying. Divest the position.", models.ActionSell},
		{"synonym", "Consider a purchase below the 50 day average", models.ActionBuy},
		{"case insensitive", "SHORT the stock", models.ActionSell},
		{"go short", "Momentum has rolled over, so go short into the print.", models.ActionSell},
		{"short marker", "Recommendation: short", models.ActionSell},
		{"short horizon", "We recommend holding the position over the short term.", models.ActionHold},
		{"short-term volatility", "Buy on weakness; short-term volatility is expected.", models.ActionBuy},
		{"maintain is not hold", "Maintain a tight stop below support and sell into strength.", models.ActionSell},
		{"wait is not hold", "Wait for the pullback, then buy.", models.ActionBuy},
		{"no keyword", "The company reported earnings in line with guidance.", models.ActionUnknown},
		{"only ambiguous", "Sell now or hold forever", models.ActionUnknown},
		{"empty", "", models.ActionUnknown},
		{"substring is not a keyword", "The buyer shortage persists, holdings unchanged", models.ActionUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractAction(tc.text); got != tc.want {
				t.Fatalf("ExtractAction(%q) = %s, want %s", tc.text, got, tc.want)
			}
			// Same input, same answer.
			if again := ExtractAction(tc.text); again != tc.want {
				t.Fatalf("non deterministic result %s", again)
			}
		})
	}
}

func TestExtractSignalLevels(t *testing.T) {
	text := "Recommendation: BUY. Entry price $912.50, stop-loss at 860 and target price of $1,050. Position size 5% of the portfolio."
	sig := ExtractSignal(text)
	if sig.Action != models.ActionBuy {
		t.Fatalf("action %s", sig.Action)
	}
	if sig.EntryPrice.String() != "912.5" {
		t.Fatalf("entry %s", sig.EntryPrice)
	}
	if sig.StopLoss.String() != "860" {
		t.Fatalf("stop %s", sig.StopLoss)
	}
	if sig.TakeProfit.String() != "1050" {
		t.Fatalf("target %s", sig.TakeProfit)
	}
	if sig.PositionSize.String() != "0.05" {
		t.Fatalf("position %s", sig.PositionSize)
	}
	if sig.Reasoning == "" {
		t.Fatalf("expected reasoning")
	}
}

func TestProcessSignalFallsBackToTraderPlan(t *testing.T) {
	s := models.NewWorkflowState("NVDA", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), 0, 0)
	s.TraderPlan = models.Text("Enter at entry price 900 with a stop loss of 850. FINAL TRANSACTION PROPOSAL: **BUY**")
	s.FinalDecision = models.Text("Recommendation: BUY with a target of 1000")

	d := ProcessSignal(s)
	if d.Symbol != "NVDA" || d.Date != "2024-05-10" || d.Action != models.ActionBuy {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.EntryPrice != 900 || d.StopLoss != 850 || d.TakeProfit != 1000 {
		t.Fatalf("unexpected levels %+v", d)
	}
}
