package core

import (
	"strings"
	"testing"
	"time"

	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

func newTestPolicy() *ConversationPolicy {
	return NewConversationPolicy(NewCrisisProtocol(), logger.NewNop())
}

func TestDecideCueRouting(t *testing.T) {
	p := newTestPolicy()

	tests := []struct {
		name          string
		message       string
		distress      pkg.DistressLevel
		wantMode      pkg.ResponseMode
		wantTechnique string
	}{
		{"thought record request", "can we do a thought record", pkg.DistressMild, pkg.ModeCBTSkill, TechniqueCognitiveRestructuring},
		{"challenge request", "I want to challenge this belief", pkg.DistressModerate, pkg.ModeCBTSkill, TechniqueCognitiveRestructuring},
		{"activity request", "maybe I should plan an activity", pkg.DistressMild, pkg.ModeCBTSkill, TechniqueBehavioralActivation},
		{"exposure request", "I'm ready to try exposure", pkg.DistressMild, pkg.ModeCBTSkill, TechniqueExposure},
		{"situation narration", "something happened this morning", pkg.DistressModerate, pkg.ModeClarification, TechniqueSituationExploration},
		{"calm and vague", "hello again", pkg.DistressNone, pkg.ModeCollaborativeMenu, ""},
		{"mild and vague", "not sure where to start", pkg.DistressMild, pkg.ModeCollaborativeMenu, ""},
		{"distressed and vague", "everything is just a lot", pkg.DistressModerate, pkg.ModeClarification, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := pkg.NewConversationState("s1", "US")
			got := p.Decide(tt.message, state, pkg.DistressAssessment{Level: tt.distress}, nil)
			if got.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", got.Mode, tt.wantMode)
			}
			if got.Technique != tt.wantTechnique {
				t.Errorf("technique = %q, want %q", got.Technique, tt.wantTechnique)
			}
		})
	}
}

func TestDecideContraindicatedExposureRedirects(t *testing.T) {
	p := newTestPolicy()
	state := pkg.NewConversationState("s1", "US")
	brief := &pkg.TherapistBrief{Contraindications: []string{"exposure"}}

	got := p.Decide("I want to face my fear of driving", state, pkg.DistressAssessment{Level: pkg.DistressMild}, brief)

	if got.Mode != pkg.ModeGentleRedirect {
		t.Errorf("mode = %q, want gentle_redirect when exposure is contraindicated", got.Mode)
	}
	if got.Technique != "" {
		t.Errorf("redirect must not carry a technique, got %q", got.Technique)
	}
}

func TestBuildAdaptivePromptLocalizesResources(t *testing.T) {
	p := newTestPolicy()

	usState := pkg.NewConversationState("s1", "US")
	usPrompt := p.BuildAdaptivePrompt(nil, usState, pkg.DistressMild, pkg.ConversationDecision{Mode: pkg.ModeClarification})
	if !strings.Contains(usPrompt, "988") {
		t.Errorf("US prompt missing 988 lifeline")
	}

	ukState := pkg.NewConversationState("s2", "UK")
	ukPrompt := p.BuildAdaptivePrompt(nil, ukState, pkg.DistressMild, pkg.ConversationDecision{Mode: pkg.ModeClarification})
	if !strings.Contains(ukPrompt, "Samaritans") {
		t.Errorf("UK prompt missing Samaritans")
	}
	if strings.Contains(ukPrompt, "988") {
		t.Errorf("UK prompt must not carry US resources")
	}
}

func TestBuildAdaptivePromptIncludesBrief(t *testing.T) {
	p := newTestPolicy()
	state := pkg.NewConversationState("s1", "US")
	brief := &pkg.TherapistBrief{
		CaseFormulation:   "Health anxiety maintained by checking behaviors.",
		TreatmentGoals:    []string{"Reduce reassurance seeking"},
		Contraindications: []string{"Do not discuss symptom details at length"},
		Language: pkg.TherapistLanguage{
			CopingStatements: []string{"Feelings are not facts."},
		},
		Sensitivities: pkg.ClinicalSensitivities{Pacing: "slow"},
	}

	prompt := p.BuildAdaptivePrompt(brief, state, pkg.DistressModerate, pkg.ConversationDecision{
		Mode: pkg.ModeCBTSkill, Technique: TechniqueCognitiveRestructuring,
	})

	for _, want := range []string{
		"Health anxiety maintained by checking behaviors.",
		"Reduce reassurance seeking",
		"Do not discuss symptom details at length",
		"Feelings are not facts.",
		"cognitive_restructuring",
		"**DO NOT:**",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.HasPrefix(prompt, BasePrompt) {
		t.Errorf("prompt must start with the base instruction block")
	}
	if !strings.Contains(prompt, "REMEMBER") {
		t.Errorf("prompt missing closing reminders")
	}
}

func turns(n int) []pkg.Turn {
	out := make([]pkg.Turn, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out,
			pkg.Turn{Role: pkg.RolePatient, Content: "message"},
			pkg.Turn{Role: pkg.RoleAssistant, Content: "reply"},
		)
	}
	return out
}

func TestShouldShowDisclaimerCadence(t *testing.T) {
	p := newTestPolicy()
	now := time.Now()
	recent := now.Add(-5 * time.Minute)
	stale := now.Add(-30 * time.Minute)

	tests := []struct {
		name           string
		completedTurns int
		lastShownAt    *time.Time
		shownCount     int
		want           pkg.DisclaimerType
	}{
		{"first turn", 0, nil, 0, ""},
		{"turn 19", 18, nil, 0, ""},
		{"turn 20", 19, nil, 0, pkg.DisclaimerPeriodicReminder},
		{"turn 20 recently shown", 19, &recent, 1, ""},
		{"turn 20 stale shown", 19, &stale, 1, pkg.DisclaimerPeriodicReminder},
		{"turn 40", 39, &stale, 1, pkg.DisclaimerPeriodicReminder},
		{"turn 32 referral", 31, nil, 0, pkg.DisclaimerTherapyReferral},
		{"turn 32 referral exhausted", 31, nil, 2, ""},
		{"turn 25 off cadence", 24, nil, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := pkg.NewConversationState("s1", "US")
			state.History = turns(tt.completedTurns)
			state.LastDisclaimerAt = tt.lastShownAt
			state.DisclaimerShownCount = tt.shownCount

			got := p.ShouldShowDisclaimer(state, now)
			if got != tt.want {
				t.Errorf("disclaimer = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildAdaptivePromptTurnCountMatchesCadence(t *testing.T) {
	p := newTestPolicy()

	fresh := pkg.NewConversationState("s1", "US")
	prompt := p.BuildAdaptivePrompt(nil, fresh, pkg.DistressNone, pkg.ConversationDecision{Mode: pkg.ModeClarification})
	if !strings.Contains(prompt, "**Messages This Session:** 1") {
		t.Errorf("fresh session prompt must count the in-flight turn as turn 1")
	}

	// The turn number rendered into the prompt and the disclaimer cadence
	// must agree: the 20th patient message shows turn 20 and is the turn
	// that carries the periodic reminder.
	state := pkg.NewConversationState("s2", "US")
	state.History = turns(19)
	prompt = p.BuildAdaptivePrompt(nil, state, pkg.DistressMild, pkg.ConversationDecision{Mode: pkg.ModeClarification})
	if !strings.Contains(prompt, "**Messages This Session:** 20") {
		t.Errorf("prompt turn count disagrees with the disclaimer convention")
	}
	if got := p.ShouldShowDisclaimer(state, time.Now()); got != pkg.DisclaimerPeriodicReminder {
		t.Errorf("disclaimer = %q, want periodic reminder on the same turn the prompt renders as 20", got)
	}
}

func TestDisclaimerText(t *testing.T) {
	p := newTestPolicy()

	for _, dt := range []pkg.DisclaimerType{
		pkg.DisclaimerPeriodicReminder,
		pkg.DisclaimerTherapyReferral,
		pkg.DisclaimerCrisisBoundary,
	} {
		if p.DisclaimerText(dt) == "" {
			t.Errorf("no text for disclaimer type %q", dt)
		}
	}
	if got := p.DisclaimerText("nonsense"); got != "" {
		t.Errorf("unknown disclaimer type must resolve to empty text, got %q", got)
	}
}
