package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

// CBT technique names used by the decision tree.
const (
	TechniqueCognitiveRestructuring = "cognitive_restructuring"
	TechniqueBehavioralActivation   = "behavioral_activation"
	TechniqueExposure               = "exposure"
	TechniqueSituationExploration   = "situation_exploration"
)

// Disclaimer cadence thresholds.
const (
	disclaimerTurnInterval = 20
	disclaimerCooldown     = 10 * time.Minute
	referralTurnThreshold  = 30
	referralMaxShown       = 2
)

// Cue word lists for the response-mode decision tree.
var (
	restructuringCues = []string{"thought record", "challenge", "evidence"}
	activationCues    = []string{"activity", "do something", "action"}
	exposureCues      = []string{"exposure", "face", "confront"}
	situationCues     = []string{"happened", "today", "this morning", "just now", "triggered"}
)

// ConversationPolicy decides the response mode for a turn and assembles the
// instruction set handed to the generation capability. It is applied only
// when risk is not high and grounding was not offered this turn.
type ConversationPolicy struct {
	crisis *CrisisProtocol
	log    *logger.Logger
}

func NewConversationPolicy(crisis *CrisisProtocol, log *logger.Logger) *ConversationPolicy {
	return &ConversationPolicy{crisis: crisis, log: log}
}

// Decide evaluates the ordered rule list; the first matching rule wins.
func (p *ConversationPolicy) Decide(message string, state *pkg.ConversationState, distress pkg.DistressAssessment, brief *pkg.TherapistBrief) pkg.ConversationDecision {
	lower := strings.ToLower(message)

	if containsAny(lower, restructuringCues) {
		return pkg.ConversationDecision{
			Mode:      pkg.ModeCBTSkill,
			Technique: TechniqueCognitiveRestructuring,
			Reasoning: "Patient requesting cognitive restructuring",
		}
	}

	if containsAny(lower, activationCues) {
		return pkg.ConversationDecision{
			Mode:      pkg.ModeCBTSkill,
			Technique: TechniqueBehavioralActivation,
			Reasoning: "Patient interested in behavioral activation",
		}
	}

	if containsAny(lower, exposureCues) {
		if brief != nil && contains(brief.Contraindications, TechniqueExposure) {
			return pkg.ConversationDecision{
				Mode:      pkg.ModeGentleRedirect,
				Reasoning: "Exposure contraindicated by therapist brief",
			}
		}
		return pkg.ConversationDecision{
			Mode:      pkg.ModeCBTSkill,
			Technique: TechniqueExposure,
			Reasoning: "Patient exploring exposure work",
		}
	}

	if containsAny(lower, situationCues) {
		return pkg.ConversationDecision{
			Mode:      pkg.ModeClarification,
			Technique: TechniqueSituationExploration,
			Reasoning: "Patient describing triggering event - explore before choosing skill",
		}
	}

	if distress.Level == pkg.DistressNone || distress.Level == pkg.DistressMild {
		return pkg.ConversationDecision{
			Mode:      pkg.ModeCollaborativeMenu,
			Reasoning: "Low distress - offer collaborative skill selection",
		}
	}

	return pkg.ConversationDecision{
		Mode:      pkg.ModeClarification,
		Reasoning: "Unclear request - gentle exploration needed",
	}
}

// BuildAdaptivePrompt concatenates the base instruction block, the therapist
// brief section, the current patient state (including country-localized
// crisis resources so generation can never substitute the wrong country's
// numbers), the mode-specific instructions, and the closing reminders.
func (p *ConversationPolicy) BuildAdaptivePrompt(brief *pkg.TherapistBrief, state *pkg.ConversationState, distress pkg.DistressLevel, decision pkg.ConversationDecision) string {
	var b strings.Builder
	b.WriteString(BasePrompt)
	b.WriteString("\n\n")

	if brief != nil {
		b.WriteString(formatBriefSection(brief))
	}

	resources := p.crisis.Resources(state.CountryCode)
	emergency := p.crisis.EmergencyNumber(state.CountryCode)

	patientName := state.PatientName
	if patientName == "" {
		patientName = "the patient"
	}
	country := normalizeCountry(state.CountryCode)
	goal := state.SessionGoal
	if goal == "" {
		goal = "Not specified"
	}

	fmt.Fprintf(&b, `---

CURRENT PATIENT STATE:

**Distress Level:** %s
**Patient Name:** %s
**Patient Country:** %s
**Session Goal:** %s
**Messages This Session:** %d
**Grounding Used:** %d times

**IMPORTANT - Use these EXACT crisis resources for this patient's country:**
%s
Emergency Number: %s

When mentioning crisis resources or emergency numbers, ALWAYS use the resources listed above, NOT generic US numbers.
`, distress, patientName, country, goal, turnCount(state), state.GroundingCount, resources, emergency)

	b.WriteString(p.modeInstructions(decision))
	b.WriteString("\n")
	b.WriteString(ClosingReminders)
	return b.String()
}

func (p *ConversationPolicy) modeInstructions(decision pkg.ConversationDecision) string {
	switch decision.Mode {
	case pkg.ModeGrounding:
		return groundingModeInstructions
	case pkg.ModeCBTSkill:
		return fmt.Sprintf(`
**CURRENT MODE: CBT SKILL - %s**
The patient is ready for active CBT work. Use the technique: %s.
Stay aligned with the therapist's preferred approach.`, decision.Technique, decision.Technique)
	case pkg.ModeCollaborativeMenu:
		return collaborativeMenuModeInstructions
	case pkg.ModeGentleRedirect:
		return gentleRedirectModeInstructions
	case pkg.ModeClarification:
		return clarificationModeInstructions
	default:
		p.log.Warn("unknown response mode, using clarification instructions", "mode", decision.Mode)
		return clarificationModeInstructions
	}
}

func formatBriefSection(brief *pkg.TherapistBrief) string {
	var b strings.Builder
	b.WriteString("THERAPIST_BRIEF:\n\n")

	if brief.CaseFormulation != "" {
		fmt.Fprintf(&b, "**Case Formulation:**\n%s\n\n", brief.CaseFormulation)
	}
	if len(brief.PresentingProblems) > 0 {
		fmt.Fprintf(&b, "**Presenting Problems:** %s\n\n", strings.Join(brief.PresentingProblems, ", "))
	}
	if len(brief.TreatmentGoals) > 0 {
		b.WriteString("**Treatment Goals:**\n")
		for _, g := range brief.TreatmentGoals {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}
	if brief.Stage != "" {
		fmt.Fprintf(&b, "**Therapy Stage:** %s\n\n", brief.Stage)
	}

	if enabled := enabledTechniques(brief.PreferredTechniques); len(enabled) > 0 {
		fmt.Fprintf(&b, "**Preferred Techniques:** %s\n\n", strings.Join(enabled, ", "))
	}

	s := brief.Sensitivities
	if s.TraumaHistory != "" || s.Pacing != "" || len(s.TopicsToAvoid) > 0 {
		b.WriteString("**Clinical Sensitivities:**\n")
		if s.TraumaHistory != "" {
			fmt.Fprintf(&b, "- Trauma History: %s\n", s.TraumaHistory)
		}
		if s.Pacing != "" {
			fmt.Fprintf(&b, "- Pacing: %s\n", s.Pacing)
		}
		if len(s.TopicsToAvoid) > 0 {
			fmt.Fprintf(&b, "- Topics to Avoid: %s\n", strings.Join(s.TopicsToAvoid, ", "))
		}
		b.WriteString("\n")
	}

	lang := brief.Language
	if len(lang.Metaphors) > 0 || len(lang.CopingStatements) > 0 {
		b.WriteString("**Therapist's Language (use these with patient):**\n")
		if len(lang.Metaphors) > 0 {
			fmt.Fprintf(&b, "- Metaphors: %s\n", strings.Join(lang.Metaphors, ", "))
		}
		if len(lang.CopingStatements) > 0 {
			fmt.Fprintf(&b, "- Coping Statements: %s\n", strings.Join(lang.CopingStatements, ", "))
		}
		b.WriteString("\n")
	}

	if len(brief.Contraindications) > 0 {
		b.WriteString("**DO NOT:**\n")
		for _, item := range brief.Contraindications {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func enabledTechniques(techniques map[string]bool) []string {
	var out []string
	for name, enabled := range techniques {
		if enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// turnCount is the session's turn number including the in-flight turn. Both
// policy methods run before the turn is appended to history, so the prompt's
// state block and the disclaimer cadence share this convention.
func turnCount(state *pkg.ConversationState) int {
	return len(state.History)/2 + 1
}

// ShouldShowDisclaimer returns the disclaimer type due this turn, or empty
// when none applies. At most one disclaimer is shown per turn.
func (p *ConversationPolicy) ShouldShowDisclaimer(state *pkg.ConversationState, now time.Time) pkg.DisclaimerType {
	turn := turnCount(state)

	if turn%disclaimerTurnInterval == 0 {
		if state.LastDisclaimerAt != nil && now.Sub(*state.LastDisclaimerAt) < disclaimerCooldown {
			return ""
		}
		return pkg.DisclaimerPeriodicReminder
	}

	if turn > referralTurnThreshold && state.DisclaimerShownCount < referralMaxShown {
		return pkg.DisclaimerTherapyReferral
	}

	return ""
}

// DisclaimerText resolves a disclaimer type to its message text. Unknown
// types are a programmer error; they resolve to no disclaimer with a logged
// warning rather than a crash.
func (p *ConversationPolicy) DisclaimerText(t pkg.DisclaimerType) string {
	switch t {
	case pkg.DisclaimerPeriodicReminder:
		return periodicReminderText
	case pkg.DisclaimerTherapyReferral:
		return therapyReferralText
	case pkg.DisclaimerCrisisBoundary:
		return crisisBoundaryText
	default:
		p.log.Warn("unknown disclaimer type", "type", t)
		return ""
	}
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
