package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cbt-companion/internal/config"
	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

type fakeGenerator struct {
	gen              pkg.Generation
	err              error
	calls            int
	lastInstructions string
}

func (f *fakeGenerator) Generate(ctx context.Context, instructions string, history []pkg.Turn, userMessage string) (pkg.Generation, error) {
	f.calls++
	f.lastInstructions = instructions
	if f.err != nil {
		return pkg.Generation{}, f.err
	}
	return f.gen, nil
}

func newTestPipeline(t *testing.T, judge RiskJudge, gen Generator) *Pipeline {
	t.Helper()
	rules, err := config.LoadSafetyRules("")
	if err != nil {
		t.Fatalf("load safety rules: %v", err)
	}
	log := logger.NewNop()
	classifier, err := NewRiskClassifier(rules, judge, time.Second, log)
	if err != nil {
		t.Fatalf("new risk classifier: %v", err)
	}
	assessor, err := NewDistressAssessor(rules)
	if err != nil {
		t.Fatalf("new distress assessor: %v", err)
	}
	crisis := NewCrisisProtocol()
	return NewPipeline(
		classifier,
		assessor,
		NewGroundingCatalog(),
		crisis,
		NewConversationPolicy(crisis, log),
		gen,
		time.Second,
		log,
	)
}

func TestHandleMessageCrisisShortCircuit(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{Tier: "HIGH", Reasoning: "explicit intent"}}
	gen := &fakeGenerator{}
	p := newTestPipeline(t, judge, gen)
	state := pkg.NewConversationState("s1", "US")

	result, err := p.HandleMessage(context.Background(), "I want to kill myself", state, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !result.ShouldEndSession {
		t.Errorf("crisis turn must end the session")
	}
	if result.Decision.Mode != pkg.ModeCrisisProtocol {
		t.Errorf("mode = %q, want crisis_protocol", result.Decision.Mode)
	}
	if !strings.Contains(result.Response, "988") {
		t.Errorf("US crisis response missing 988 lifeline")
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on the crisis path, want 0", gen.calls)
	}
	if len(state.History) != 2 {
		t.Errorf("history length = %d, want 2 after the crisis turn", len(state.History))
	}
	if state.DistressLevel != pkg.DistressCrisis {
		t.Errorf("state distress = %q, want crisis", state.DistressLevel)
	}
	if result.Distress.Level != pkg.DistressCrisis {
		t.Errorf("distress record level = %q, want crisis", result.Distress.Level)
	}
	if !result.Distress.RequiresGrounding {
		t.Errorf("crisis-level distress record must carry RequiresGrounding")
	}
	if len(result.Distress.SignalsDetected) == 0 {
		t.Errorf("crisis distress record should carry the risk triggers as signals")
	}
}

func TestHandleMessageCrisisLocalization(t *testing.T) {
	judge := &fakeJudge{judgment: pkg.RiskJudgment{Tier: "HIGH"}}
	p := newTestPipeline(t, judge, &fakeGenerator{})
	state := pkg.NewConversationState("s1", "UK")

	result, err := p.HandleMessage(context.Background(), "I want to end my life", state, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(result.Response, "Samaritans") {
		t.Errorf("UK crisis response missing Samaritans")
	}
	if strings.Contains(result.Response, "988") {
		t.Errorf("UK crisis response must not carry the US lifeline")
	}
}

func TestHandleMessageGroundingPath(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, &fakeJudge{}, gen)
	state := pkg.NewConversationState("s1", "US")

	result, err := p.HandleMessage(context.Background(), "I think I'm having a panic attack right now", state, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !result.GroundingOffered {
		t.Fatalf("crisis-level distress must offer grounding")
	}
	if result.GroundingTechnique != TechniqueBreathing {
		t.Errorf("technique = %q, want breathing", result.GroundingTechnique)
	}
	if result.Decision.Mode != pkg.ModeGrounding {
		t.Errorf("mode = %q, want grounding", result.Decision.Mode)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on the grounding path, want 0", gen.calls)
	}
	if state.GroundingCount != 1 {
		t.Errorf("grounding count = %d, want 1", state.GroundingCount)
	}
	if len(state.History) != 2 {
		t.Errorf("history length = %d, want 2", len(state.History))
	}
}

func TestHandleMessageNormalTurn(t *testing.T) {
	gen := &fakeGenerator{gen: pkg.Generation{Content: "Let's look at that thought together.", Model: "test-model", TokensUsed: 42}}
	p := newTestPipeline(t, &fakeJudge{}, gen)
	state := pkg.NewConversationState("s1", "US")
	state.PatientName = "Sam"

	result, err := p.HandleMessage(context.Background(), "I'd like to do a thought record about work", state, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if result.Response != "Let's look at that thought together." {
		t.Errorf("response = %q", result.Response)
	}
	if result.Decision.Mode != pkg.ModeCBTSkill || result.Decision.Technique != TechniqueCognitiveRestructuring {
		t.Errorf("decision = %+v, want cbt_skill/cognitive_restructuring", result.Decision)
	}
	if result.ModelUsed != "test-model" || result.TokensUsed != 42 {
		t.Errorf("model/tokens = %q/%d", result.ModelUsed, result.TokensUsed)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
	if !strings.Contains(gen.lastInstructions, "Sam") {
		t.Errorf("adaptive prompt missing patient name")
	}
	if len(state.History) != 2 {
		t.Errorf("history length = %d, want 2", len(state.History))
	}
}

func TestHandleMessageGenerationFailureLeavesStateUntouched(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("upstream timeout")}
	p := newTestPipeline(t, &fakeJudge{}, gen)
	state := pkg.NewConversationState("s1", "US")
	state.History = turns(2)
	state.DistressLevel = pkg.DistressMild

	_, err := p.HandleMessage(context.Background(), "can we talk about my week and what happened", state, nil)
	if err == nil {
		t.Fatalf("expected an error when generation fails")
	}

	if len(state.History) != 4 {
		t.Errorf("history mutated on a failed turn: length = %d, want 4", len(state.History))
	}
	if state.DistressLevel != pkg.DistressMild {
		t.Errorf("distress level mutated on a failed turn: %q", state.DistressLevel)
	}
	if state.GroundingCount != 0 || state.DisclaimerShownCount != 0 {
		t.Errorf("counters mutated on a failed turn")
	}
}

func TestHandleMessagePrependsDisclaimer(t *testing.T) {
	gen := &fakeGenerator{gen: pkg.Generation{Content: "Nice work today."}}
	p := newTestPipeline(t, &fakeJudge{}, gen)
	state := pkg.NewConversationState("s1", "US")
	state.History = turns(19) // the incoming message is turn 20

	result, err := p.HandleMessage(context.Background(), "thanks, that exercise made sense to me", state, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !result.DisclaimerShown {
		t.Fatalf("turn 20 must carry the periodic reminder")
	}
	if result.DisclaimerType != pkg.DisclaimerPeriodicReminder {
		t.Errorf("disclaimer type = %q", result.DisclaimerType)
	}
	if !strings.HasSuffix(result.Response, "Nice work today.") {
		t.Errorf("disclaimer must be prepended before the generated reply")
	}
	if !strings.Contains(result.Response, "---") {
		t.Errorf("disclaimer separator missing")
	}
	if state.DisclaimerShownCount != 1 {
		t.Errorf("DisclaimerShownCount = %d, want 1", state.DisclaimerShownCount)
	}
	if state.LastDisclaimerAt == nil {
		t.Errorf("LastDisclaimerAt not recorded")
	}
}

func TestHandleMessageModerateGroundingSuppressedAfterUse(t *testing.T) {
	gen := &fakeGenerator{gen: pkg.Generation{Content: "Let's unpack that."}}
	p := newTestPipeline(t, &fakeJudge{}, gen)
	state := pkg.NewConversationState("s1", "US")
	state.GroundingCount = 1

	result, err := p.HandleMessage(context.Background(), "I'm anxious and really stressed about everything", state, nil)
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if result.GroundingOffered {
		t.Errorf("moderate distress after prior grounding must not offer again")
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
}
