package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"cbt-companion/internal/config"
	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

type fakeJudge struct {
	judgment pkg.RiskJudgment
	err      error
	calls    int
}

func (f *fakeJudge) JudgeRisk(ctx context.Context, message string, triggers []string, history []pkg.Turn) (pkg.RiskJudgment, error) {
	f.calls++
	return f.judgment, f.err
}

func newTestClassifier(t *testing.T, judge RiskJudge) *RiskClassifier {
	t.Helper()
	rules, err := config.LoadSafetyRules("")
	if err != nil {
		t.Fatalf("load safety rules: %v", err)
	}
	c, err := NewRiskClassifier(rules, judge, time.Second, logger.NewNop())
	if err != nil {
		t.Fatalf("new risk classifier: %v", err)
	}
	return c
}

func TestClassifyShortMessageSkipsJudge(t *testing.T) {
	judge := &fakeJudge{}
	c := newTestClassifier(t, judge)

	got := c.Classify(context.Background(), "ok thanks", nil)

	if got.Level != pkg.RiskNone {
		t.Errorf("level = %q, want none", got.Level)
	}
	if judge.calls != 0 {
		t.Errorf("judge called %d times for a short benign message", judge.calls)
	}
}

func TestClassifyKeywordOnlyLowRisk(t *testing.T) {
	judge := &fakeJudge{}
	c := newTestClassifier(t, judge)

	// Medium keyword but the message is too short to escalate.
	got := c.Classify(context.Background(), "I feel hopeless", nil)

	if got.Level != pkg.RiskLow {
		t.Fatalf("level = %q, want low", got.Level)
	}
	if got.Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4", got.Confidence)
	}
	if got.ShouldEscalate || got.ShouldEndSession {
		t.Errorf("low keyword-only assessment must not escalate or end session")
	}
	if judge.calls != 0 {
		t.Errorf("judge called %d times, want 0", judge.calls)
	}
	if !reflect.DeepEqual(got.Triggers, []string{"hopeless"}) {
		t.Errorf("triggers = %v, want [hopeless] without severity tags", got.Triggers)
	}
}

func TestClassifyJudgeConfirmsHigh(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{
		Tier:      "HIGH",
		Reasoning: "explicit intent",
		Triggers:  []string{"kill myself"},
	}}
	c := newTestClassifier(t, judge)

	got := c.Classify(context.Background(), "I want to kill myself", nil)

	if got.Level != pkg.RiskHigh {
		t.Fatalf("level = %q, want high", got.Level)
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got.Confidence)
	}
	if !got.ShouldEscalate || !got.ShouldEndSession {
		t.Errorf("high risk must escalate and end the session, got escalate=%v end=%v",
			got.ShouldEscalate, got.ShouldEndSession)
	}
	if judge.calls != 1 {
		t.Errorf("judge called %d times, want 1", judge.calls)
	}
}

func TestClassifyJudgeDowngradesToLow(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{
		Tier:      "LOW",
		Reasoning: "quoting song lyrics",
	}}
	c := newTestClassifier(t, judge)

	got := c.Classify(context.Background(), `the song goes "I want to die" but honestly I love it`, nil)

	if got.Level != pkg.RiskLow {
		t.Fatalf("level = %q, want low after judge downgrade", got.Level)
	}
	if got.ShouldEscalate || got.ShouldEndSession {
		t.Errorf("judge-confirmed low must not escalate or end session")
	}
}

func TestClassifyFailSafeOnJudgeError(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantLevel   pkg.RiskLevel
		wantEnd     bool
	}{
		{
			name:      "high keyword assumes high",
			message:   "I want to kill myself",
			wantLevel: pkg.RiskHigh,
			wantEnd:   true,
		},
		{
			name:      "medium keyword in substantial message assumes medium",
			message:   "Everything feels hopeless and I honestly do not know how much longer I can keep doing this",
			wantLevel: pkg.RiskMedium,
			wantEnd:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fakeJudge{err: errors.New("model unavailable")}
			c := newTestClassifier(t, judge)

			got := c.Classify(context.Background(), tt.message, nil)

			if got.Level != tt.wantLevel {
				t.Fatalf("level = %q, want %q", got.Level, tt.wantLevel)
			}
			if !got.ShouldEscalate {
				t.Errorf("fail-safe assessment must always escalate")
			}
			if got.ShouldEndSession != tt.wantEnd {
				t.Errorf("ShouldEndSession = %v, want %v", got.ShouldEndSession, tt.wantEnd)
			}
			if got.Confidence != 0.6 {
				t.Errorf("confidence = %v, want 0.6", got.Confidence)
			}
		})
	}
}

func TestClassifyFailSafeOnUnrecognizedTier(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{Tier: "maybe?"}}
	c := newTestClassifier(t, judge)

	got := c.Classify(context.Background(), "I want to kill myself", nil)

	if got.Level != pkg.RiskHigh {
		t.Errorf("level = %q, want high when the judge output is unusable", got.Level)
	}
	if !got.ShouldEndSession {
		t.Errorf("unusable judge output with a high keyword must end the session")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{Tier: "MEDIUM", Reasoning: "distress without intent"}}
	c := newTestClassifier(t, judge)

	msg := "I feel so worthless lately, nothing I do seems to matter at all anymore"
	first := c.Classify(context.Background(), msg, nil)
	second := c.Classify(context.Background(), msg, nil)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different assessments:\n%+v\n%+v", first, second)
	}
}

func TestClassifyHighKeywordIgnoresLengthGate(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{Tier: "HIGH"}}
	c := newTestClassifier(t, judge)

	// Shorter than the no-keyword short-message cutoff, but the high keyword
	// must still reach the judge.
	got := c.Classify(context.Background(), "suicide", nil)

	if judge.calls != 1 {
		t.Fatalf("judge called %d times, want 1", judge.calls)
	}
	if got.Level != pkg.RiskHigh {
		t.Errorf("level = %q, want high", got.Level)
	}
}
