package core

import (
	"fmt"
	"regexp"

	"cbt-companion/internal/config"
	"cbt-companion/pkg"
)

// Trend and tier thresholds for the distress assessor.
const (
	trendHistoryWindow   = 10
	trendPatientMessages = 5
	trendMinMessages     = 3
	multiSignalThreshold = 2
	groundingSuppressAt  = 2
	pacingSlow           = "slow"
)

// DistressAssessor evaluates how activated the patient is from message
// content and recent history. It is a pure function of its inputs.
type DistressAssessor struct {
	crisis   []*regexp.Regexp
	severe   []*regexp.Regexp
	moderate []*regexp.Regexp
	mild     []*regexp.Regexp
}

// NewDistressAssessor compiles the four pattern tiers from the safety rules.
func NewDistressAssessor(rules *config.SafetyRules) (*DistressAssessor, error) {
	compileTier := func(name string, patterns []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("%s pattern %q: %w", name, p, err)
			}
			out = append(out, re)
		}
		return out, nil
	}

	crisis, err := compileTier("crisis", rules.DistressSignals.Crisis)
	if err != nil {
		return nil, err
	}
	severe, err := compileTier("severe", rules.DistressSignals.Severe)
	if err != nil {
		return nil, err
	}
	moderate, err := compileTier("moderate", rules.DistressSignals.Moderate)
	if err != nil {
		return nil, err
	}
	mild, err := compileTier("mild", rules.DistressSignals.Mild)
	if err != nil {
		return nil, err
	}
	return &DistressAssessor{crisis: crisis, severe: severe, moderate: moderate, mild: mild}, nil
}

type signalMatch struct {
	text       string
	start, end int
}

func matchSignals(patterns []*regexp.Regexp, text string) []signalMatch {
	var out []signalMatch
	for _, re := range patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			out = append(out, signalMatch{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
		}
	}
	return out
}

func signalTexts(matches []signalMatch) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.text)
	}
	return out
}

// Assess determines the distress level of a message. Tiers are checked
// crisis > severe > moderate > mild; the first tier with a match decides,
// except that a moderate hit fully contained in a mild-tier qualifier phrase
// ("a bit worried") counts as mild, not moderate.
func (a *DistressAssessor) Assess(message string, recentHistory []pkg.Turn, brief *pkg.TherapistBrief) pkg.DistressAssessment {
	if crisisMatches := matchSignals(a.crisis, message); len(crisisMatches) > 0 {
		return pkg.DistressAssessment{
			Level:              pkg.DistressCrisis,
			Reasoning:          "Crisis-level distress indicators detected (panic, dissociation, overwhelming fear)",
			SignalsDetected:    signalTexts(crisisMatches),
			RequiresGrounding:  true,
			SuggestedTechnique: TechniqueBreathing,
		}
	}

	if severeMatches := matchSignals(a.severe, message); len(severeMatches) > 0 {
		technique := TechniqueBreathing
		reasoning := "Severe distress indicators present"
		if len(severeMatches) >= multiSignalThreshold || a.escalationTrend(recentHistory) {
			technique = TechniqueSensory
			reasoning = "Multiple severe distress indicators detected"
		}
		return pkg.DistressAssessment{
			Level:              pkg.DistressSevere,
			Reasoning:          reasoning,
			SignalsDetected:    signalTexts(severeMatches),
			RequiresGrounding:  true,
			SuggestedTechnique: technique,
		}
	}

	mildMatches := matchSignals(a.mild, message)
	moderateMatches := dropContained(matchSignals(a.moderate, message), mildMatches)

	if len(moderateMatches) > 0 {
		if brief != nil && brief.Sensitivities.Pacing == pacingSlow {
			return pkg.DistressAssessment{
				Level:              pkg.DistressModerate,
				Reasoning:          "Moderate distress detected; patient requires gentle pacing",
				SignalsDetected:    signalTexts(moderateMatches),
				RequiresGrounding:  true,
				SuggestedTechnique: TechniqueBodyScan,
			}
		}
		multi := len(moderateMatches) >= multiSignalThreshold
		out := pkg.DistressAssessment{
			Level:             pkg.DistressModerate,
			Reasoning:         "Moderate distress detected",
			SignalsDetected:   signalTexts(moderateMatches),
			RequiresGrounding: multi,
		}
		if multi {
			out.SuggestedTechnique = TechniqueBreathing
		}
		return out
	}

	if len(mildMatches) > 0 {
		return pkg.DistressAssessment{
			Level:           pkg.DistressMild,
			Reasoning:       "Mild distress indicators present",
			SignalsDetected: signalTexts(mildMatches),
		}
	}

	return pkg.DistressAssessment{
		Level:           pkg.DistressNone,
		Reasoning:       "No significant distress indicators detected",
		SignalsDetected: []string{},
	}
}

// dropContained removes matches whose span lies entirely inside one of the
// container spans.
func dropContained(matches, containers []signalMatch) []signalMatch {
	if len(containers) == 0 {
		return matches
	}
	out := matches[:0]
	for _, m := range matches {
		contained := false
		for _, c := range containers {
			if m.start >= c.start && m.end <= c.end {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, m)
		}
	}
	return out
}

// escalationTrend reports whether patient messages show increasing distress.
// It scores the most recent patient messages by weighted signal count and
// compares the newest against the oldest in the window. A monotonicity
// heuristic only: it shifts severe-tier technique routing and never
// downgrades anything.
func (a *DistressAssessor) escalationTrend(history []pkg.Turn) bool {
	if len(history) < trendMinMessages {
		return false
	}

	window := lastTurns(history, trendHistoryWindow)
	var patient []string
	for _, t := range window {
		if t.Role == pkg.RolePatient {
			patient = append(patient, t.Content)
		}
	}
	if len(patient) > trendPatientMessages {
		patient = patient[len(patient)-trendPatientMessages:]
	}
	if len(patient) < trendMinMessages {
		return false
	}

	scores := make([]int, len(patient))
	for i, msg := range patient {
		scores[i] = len(matchSignals(a.crisis, msg))*3 +
			len(matchSignals(a.severe, msg))*2 +
			len(matchSignals(a.moderate, msg))
	}
	return scores[len(scores)-1] > scores[0]
}

// ShouldOfferGrounding decides whether to interrupt the conversation with a
// grounding offer, given how often grounding was already used this session.
// Repeated grounding at moderate distress is suppressed: if two exercises
// have not helped, a different approach is needed.
func (a *DistressAssessor) ShouldOfferGrounding(assessment pkg.DistressAssessment, groundingCountThisSession int) (bool, string) {
	switch assessment.Level {
	case pkg.DistressCrisis:
		return true, crisisGroundingOffer
	case pkg.DistressSevere:
		if groundingCountThisSession == 0 {
			return true, severeFirstGroundingOffer
		}
		return true, severeRepeatGroundingOffer
	case pkg.DistressModerate:
		if assessment.RequiresGrounding && groundingCountThisSession == 0 {
			return true, moderateGroundingOffer
		}
		return false, ""
	default:
		return false, ""
	}
}
