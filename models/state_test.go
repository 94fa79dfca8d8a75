package models

import (
	"errors"
	"testing"
	"time"

	"github.com/dyike/tradeflow/consts"
)

func TestDebateTurnOrderAndRounds(t *testing.T) {
	d := NewDebateState(2, consts.SpeakerBull, consts.SpeakerBear)

	order := []string{consts.SpeakerBull, consts.SpeakerBear, consts.SpeakerBull, consts.SpeakerBear}
	for i, speaker := range order {
		if got := d.NextSpeaker(); got != speaker {
			t.Fatalf("turn %d: expected %s, got %s", i, speaker, got)
		}
		if err := d.Apply(&DebateUpdate{Speaker: speaker, Entry: "arg"}); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	if d.RoundCount != 2 {
		t.Fatalf("expected 2 rounds, got %d", d.RoundCount)
	}
	if d.NextSpeaker() != "" {
		t.Fatalf("no speaker expected after the last round")
	}
	if len(d.Histories[consts.SpeakerBull]) != 2 || len(d.Combined) != 4 {
		t.Fatalf("unexpected histories: %+v", d)
	}
}

func TestDebateRejectsOutOfTurn(t *testing.T) {
	d := NewDebateState(1, consts.SpeakerRisky, consts.SpeakerSafe, consts.SpeakerNeutral)
	err := d.Apply(&DebateUpdate{Speaker: consts.SpeakerSafe, Entry: "x"})
	if !errors.Is(err, ErrUnexpectedSpeaker) {
		t.Fatalf("expected ErrUnexpectedSpeaker, got %v", err)
	}
	if len(d.Combined) != 0 {
		t.Fatalf("rejected update must not be recorded")
	}
}

func TestDebateJudgeRules(t *testing.T) {
	d := NewDebateState(1, consts.SpeakerBull, consts.SpeakerBear)
	if err := d.Apply(&DebateUpdate{JudgeDecision: Text("early")}); !errors.Is(err, ErrJudgePremature) {
		t.Fatalf("expected ErrJudgePremature, got %v", err)
	}

	_ = d.Apply(&DebateUpdate{Speaker: consts.SpeakerBull, Entry: "a"})
	_ = d.Apply(&DebateUpdate{Speaker: consts.SpeakerBear, Entry: "b"})
	if err := d.Apply(&DebateUpdate{JudgeDecision: Text("BUY")}); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if !d.Judged() || *d.JudgeDecision != "BUY" {
		t.Fatalf("judge decision not recorded")
	}
	if err := d.Apply(&DebateUpdate{Speaker: consts.SpeakerBull, Entry: "late"}); !errors.Is(err, ErrDebateClosed) {
		t.Fatalf("expected ErrDebateClosed, got %v", err)
	}
}

func TestDebateZeroRoundsJudgesImmediately(t *testing.T) {
	d := NewDebateState(0, consts.SpeakerBull, consts.SpeakerBear)
	if d.NextSpeaker() != "" {
		t.Fatalf("zero rounds should have no speaker")
	}
	if err := d.Apply(&DebateUpdate{JudgeDecision: Text("HOLD")}); err != nil {
		t.Fatalf("judge with zero rounds: %v", err)
	}
}

func TestWorkflowStateReplayMatches(t *testing.T) {
	date := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	deltas := []Delta{
		{Reports: map[ReportKey]string{ReportMarket: "uptrend"}},
		{Reports: map[ReportKey]string{ReportNews: "earnings beat"}},
		{InvestmentDebate: &DebateUpdate{Speaker: consts.SpeakerBull, Entry: "Bull Analyst: buy"}},
		{InvestmentDebate: &DebateUpdate{Speaker: consts.SpeakerBear, Entry: "Bear Analyst: sell"}},
		{InvestmentDebate: &DebateUpdate{JudgeDecision: Text("plan")}, InvestmentPlan: Text("plan")},
		{TraderPlan: Text("FINAL TRANSACTION PROPOSAL: **BUY**")},
	}

	live := NewWorkflowState("NVDA", date, 1, 1)
	for i, d := range deltas {
		if err := live.Apply(d); err != nil {
			t.Fatalf("delta %d: %v", i, err)
		}
	}

	replayed := NewWorkflowState("NVDA", date, 1, 1)
	for _, d := range deltas {
		_ = replayed.Apply(d)
	}

	if replayed.Situation() != live.Situation() || Deref(replayed.TraderPlan) != Deref(live.TraderPlan) {
		t.Fatalf("replay diverged")
	}
	if live.Situation() != "uptrend\n\nearnings beat" {
		t.Fatalf("unexpected situation %q", live.Situation())
	}
	if Deref(live.InvestmentPlan) != Deref(live.InvestmentDebate.JudgeDecision) {
		t.Fatalf("investment plan must equal judge decision")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewWorkflowState("AAPL", time.Now(), 1, 1)
	_ = s.Apply(Delta{Reports: map[ReportKey]string{ReportMarket: "m"}})
	snap := s.Snapshot()

	_ = s.Apply(Delta{Reports: map[ReportKey]string{ReportMarket: "changed"}})
	_ = s.Apply(Delta{InvestmentDebate: &DebateUpdate{Speaker: consts.SpeakerBull, Entry: "x"}})

	if r, _ := snap.Report(ReportMarket); r != "m" {
		t.Fatalf("snapshot report mutated: %q", r)
	}
	if len(snap.InvestmentDebate.Combined) != 0 {
		t.Fatalf("snapshot debate mutated")
	}
}

func TestDeltaFieldsAndOutside(t *testing.T) {
	d := Delta{
		Reports:    map[ReportKey]string{ReportSentiment: "s"},
		TraderPlan: Text("p"),
	}
	fields := d.Fields()
	if len(fields) != 2 || fields[0] != FieldSentimentReport || fields[1] != FieldTraderPlan {
		t.Fatalf("unexpected fields %v", fields)
	}
	allowed := NewFieldSet(FieldSentimentReport)
	out := allowed.Outside(d)
	if len(out) != 1 || out[0] != FieldTraderPlan {
		t.Fatalf("unexpected outside set %v", out)
	}
	if !(Delta{}).Empty() {
		t.Fatalf("zero delta should be empty")
	}
}
