package core

import (
	"fmt"
	"strings"

	"cbt-companion/pkg"
)

// FlowStep is the current node of the structured skills flow.
type FlowStep string

const (
	StepConsent              FlowStep = "consent"
	StepIntake               FlowStep = "intake"
	StepMenu                 FlowStep = "menu"
	StepThoughtRecord        FlowStep = "thought_record"
	StepBehavioralActivation FlowStep = "behavioral_activation"
	StepExposure             FlowStep = "exposure"
	StepCoping               FlowStep = "coping"
	StepLearn                FlowStep = "learn"
	StepEnded                FlowStep = "ended"
)

// FlowState is the mutable state of one structured-flow session. The flow
// engine owns transitions; callers persist it between turns.
type FlowState struct {
	Step        FlowStep          `json:"step"`
	SkillStep   string            `json:"skill_step,omitempty"`
	IntakeStep  int               `json:"intake_step,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	SessionGoal string            `json:"session_goal,omitempty"`
}

// NewFlowState starts a flow at the consent gate.
func NewFlowState() *FlowState {
	return &FlowState{Step: StepConsent, Data: map[string]string{}}
}

// FlowResult is the outcome of advancing the flow by one message.
type FlowResult struct {
	Response   string
	Completion *pkg.SkillCompletion // non-nil when a skill just finished
	Ended      bool
}

// Ordered step lists per skill. Transition is always to the next entry; the
// last entry completes the skill and returns to the menu.
var (
	thoughtRecordSteps = []string{
		"situation", "automatic_thought", "emotions",
		"evidence_for", "evidence_against", "alternative_thought", "rerate",
	}
	activationSteps = []string{"identify", "break_down", "schedule", "if_then", "confirm"}
	exposureSteps   = []string{"check_suitability", "build_hierarchy", "select_target", "prediction", "debrief"}
)

var traumaCues = []string{"trauma", "ptsd", "abuse", "assault"}

// StructuredFlow is the deterministic consent/intake/menu/skill step machine.
// It performs no I/O; completed skills come back as records for the caller to
// persist.
type StructuredFlow struct{}

func NewStructuredFlow() *StructuredFlow { return &StructuredFlow{} }

// Start returns the opening consent message for a fresh flow.
func (f *StructuredFlow) Start(countryCode string) string {
	return consentMessage
}

// Advance processes one user message against the current flow state.
// recentCompletions backs the progress-review menu option.
func (f *StructuredFlow) Advance(state *FlowState, sessionID, message string, recentCompletions []pkg.SkillCompletion) FlowResult {
	if state.Data == nil {
		state.Data = map[string]string{}
	}

	switch state.Step {
	case StepConsent:
		return f.advanceConsent(state, message)
	case StepIntake:
		return f.advanceIntake(state, message)
	case StepMenu:
		return f.advanceMenu(state, message, recentCompletions)
	case StepThoughtRecord:
		return f.advanceSkill(state, sessionID, message, "thought_record", thoughtRecordSteps, thoughtRecordPrompts, f.thoughtRecordSummary)
	case StepBehavioralActivation:
		return f.advanceSkill(state, sessionID, message, "behavioral_activation", activationSteps, activationPrompts, f.activationSummary)
	case StepExposure:
		return f.advanceExposure(state, sessionID, message)
	case StepCoping:
		return f.advanceCoping(state, sessionID, message)
	case StepLearn:
		return f.advanceLearn(state, message)
	case StepEnded:
		return FlowResult{Response: "This session has ended. Start a new session whenever you're ready.", Ended: true}
	default:
		state.Step = StepMenu
		return FlowResult{Response: "I'm not sure what to do here. Let's go back to the main menu.\n\n" + menuMessage}
	}
}

func (f *StructuredFlow) advanceConsent(state *FlowState, message string) FlowResult {
	lower := strings.ToLower(strings.TrimSpace(message))

	// Decline phrases are checked first so "I don't agree" is not mistaken
	// for agreement on the "agree" substring.
	if containsAny(lower, []string{"disagree", "don't agree", "do not agree"}) || lower == "no" {
		state.Step = StepEnded
		return FlowResult{
			Response: "I understand. This tool isn't right for everyone. If you need support, please contact a licensed therapist or crisis line. Take care!",
			Ended:    true,
		}
	}
	if containsAny(lower, []string{"yes", "agree", "i do", "understand", "ok", "sure"}) {
		state.Step = StepIntake
		state.IntakeStep = 0
		return FlowResult{Response: intakeQuestions[0]}
	}
	return FlowResult{Response: "Please respond with 'Yes' if you understand and agree, or 'No' if you don't wish to continue."}
}

var intakeQuestions = []string{
	"What would you like to work on today? (e.g., anxious thoughts, low motivation, a specific worry)",
	"How do you prefer I communicate - brief and direct, or more detailed explanations?",
	"Which country are you in? This helps me share the right support resources if needed.",
}

func (f *StructuredFlow) advanceIntake(state *FlowState, message string) FlowResult {
	switch state.IntakeStep {
	case 0:
		state.SessionGoal = message
		state.Data["session_goal"] = message
	case 1:
		state.Data["communication_style"] = message
	case 2:
		state.Data["country"] = message
	}

	state.IntakeStep++
	if state.IntakeStep < len(intakeQuestions) {
		return FlowResult{Response: intakeQuestions[state.IntakeStep]}
	}

	state.Step = StepMenu
	return FlowResult{Response: fmt.Sprintf("Great! I'm here to help you work on: %s\n\n%s", state.SessionGoal, menuMessage)}
}

func (f *StructuredFlow) advanceMenu(state *FlowState, message string, recent []pkg.SkillCompletion) FlowResult {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, []string{"thought", "record", "thinking", "1"}):
		state.Step = StepThoughtRecord
		state.SkillStep = thoughtRecordSteps[0]
		state.Data = map[string]string{}
		return FlowResult{Response: thoughtRecordPrompts[state.SkillStep]}

	case containsAny(lower, []string{"behavior", "activation", "activity", "2"}):
		state.Step = StepBehavioralActivation
		state.SkillStep = activationSteps[0]
		state.Data = map[string]string{}
		return FlowResult{Response: activationPrompts[state.SkillStep]}

	case containsAny(lower, []string{"exposure", "fear", "anxiety", "3"}):
		state.Step = StepExposure
		state.SkillStep = exposureSteps[0]
		state.Data = map[string]string{}
		return FlowResult{Response: exposurePrompts[state.SkillStep]}

	case containsAny(lower, []string{"coping", "grounding", "breathing", "4"}):
		state.Step = StepCoping
		state.SkillStep = "select"
		return FlowResult{Response: copingMenuMessage}

	case containsAny(lower, []string{"learn", "education", "5"}):
		state.Step = StepLearn
		state.SkillStep = "select"
		return FlowResult{Response: learnMenuMessage}

	case containsAny(lower, []string{"review", "progress", "6"}):
		return FlowResult{Response: formatProgress(recent)}

	default:
		return FlowResult{Response: "I didn't quite catch that. " + menuMessage}
	}
}

// advanceSkill walks a linear skill through its ordered steps, returning a
// completion record after the final step.
func (f *StructuredFlow) advanceSkill(state *FlowState, sessionID, message, skill string, steps []string, prompts map[string]string, summarize func(map[string]string) string) FlowResult {
	state.Data[state.SkillStep] = message

	idx := stepIndex(steps, state.SkillStep)
	if idx < 0 {
		state.Step = StepMenu
		state.SkillStep = ""
		return FlowResult{Response: "Something went off track. Let's go back to the main menu.\n\n" + menuMessage}
	}

	if idx < len(steps)-1 {
		state.SkillStep = steps[idx+1]
		return FlowResult{Response: prompts[state.SkillStep]}
	}

	completion := &pkg.SkillCompletion{
		SessionID: sessionID,
		Skill:     skill,
		Data:      copyData(state.Data),
	}
	response := summarize(state.Data) + "\n\n" + menuMessage

	state.Step = StepMenu
	state.SkillStep = ""
	state.Data = map[string]string{}
	return FlowResult{Response: response, Completion: completion}
}

func (f *StructuredFlow) advanceExposure(state *FlowState, sessionID, message string) FlowResult {
	// Trauma work needs a trained clinician; redirect before any exposure
	// material is collected.
	if state.SkillStep == exposureSteps[0] && containsAny(strings.ToLower(message), traumaCues) {
		state.Step = StepMenu
		state.SkillStep = ""
		state.Data = map[string]string{}
		return FlowResult{Response: "I appreciate you sharing that. Exposure work for trauma requires specialized trauma-focused therapy with a trained clinician. Please discuss this with your therapist.\n\nFor now, I can help with other CBT skills. " + menuMessage}
	}
	return f.advanceSkill(state, sessionID, message, "exposure", exposureSteps, exposurePrompts, f.exposureSummary)
}

func (f *StructuredFlow) advanceCoping(state *FlowState, sessionID, message string) FlowResult {
	switch state.SkillStep {
	case "select":
		lower := strings.ToLower(message)
		var technique string
		switch {
		case strings.Contains(lower, "1") || strings.Contains(lower, "breath"):
			technique = "breathing"
		case strings.Contains(lower, "2") || strings.Contains(lower, "ground"):
			technique = "grounding"
		case strings.Contains(lower, "3") || strings.Contains(lower, "muscle") || strings.Contains(lower, "relax"):
			technique = "muscle_relaxation"
		case strings.Contains(lower, "4") || strings.Contains(lower, "urge") || strings.Contains(lower, "surf"):
			technique = "urge_surfing"
		default:
			return FlowResult{Response: "Please choose 1, 2, 3, or 4."}
		}
		state.Data["coping_technique"] = technique
		state.SkillStep = "guided"
		return FlowResult{Response: copingInstructions[technique]}

	case "guided":
		state.SkillStep = "feedback"
		return FlowResult{Response: "How do you feel now (0-10, where 10 is best)?\n\nOr if you'd like, we can try another coping skill."}

	case "feedback":
		completion := &pkg.SkillCompletion{
			SessionID: sessionID,
			Skill:     "coping",
			Data: map[string]string{
				"technique": state.Data["coping_technique"],
				"feedback":  message,
			},
		}
		state.Step = StepMenu
		state.SkillStep = ""
		state.Data = map[string]string{}
		return FlowResult{Response: "Thanks for trying that coping skill!\n\n" + menuMessage, Completion: completion}

	default:
		state.SkillStep = "select"
		return FlowResult{Response: copingMenuMessage}
	}
}

func (f *StructuredFlow) advanceLearn(state *FlowState, message string) FlowResult {
	lower := strings.ToLower(message)

	var topic string
	for _, entry := range learnTopics {
		if containsAny(lower, entry.cues) {
			topic = entry.id
			break
		}
	}
	if topic == "" {
		return FlowResult{Response: "Please choose 1-5 or name a topic."}
	}

	state.Step = StepMenu
	state.SkillStep = ""
	return FlowResult{Response: learnCards[topic] + "\n\nWant to learn about another topic, or try a CBT skill?\n\n" + menuMessage}
}

func (f *StructuredFlow) thoughtRecordSummary(data map[string]string) string {
	return fmt.Sprintf(`**Thought Record Complete!**

**Situation:** %s
**Automatic Thought:** %s
**Alternative Thought:** %s
**Emotions After:** %s

Notice how examining the evidence shifted the thought. Bring this record to your next therapy session.`,
		orNA(data["situation"]), orNA(data["automatic_thought"]),
		orNA(data["alternative_thought"]), orNA(data["rerate"]))
}

func (f *StructuredFlow) activationSummary(data map[string]string) string {
	return fmt.Sprintf(`**Activity Planned!**

**Activity:** %s
**When:** %s
**If-Then Plan:** %s

I'll check in with you after your scheduled time. You've got this!`,
		orNA(data["identify"]), orNA(data["schedule"]), orNA(data["if_then"]))
}

func (f *StructuredFlow) exposureSummary(data map[string]string) string {
	return fmt.Sprintf(`**Exposure Complete!**

You faced your fear and gathered real data. That takes courage!

**Prediction:** %s
**What actually happened:** %s

Notice any difference? This is how we learn our fears are often bigger than reality.`,
		orNA(data["prediction"]), orNA(data["debrief"]))
}

func formatProgress(recent []pkg.SkillCompletion) string {
	if len(recent) == 0 {
		return "You haven't completed any skills yet in this session. Let's get started!\n\n" + menuMessage
	}
	var b strings.Builder
	b.WriteString("**Your Recent Progress**\n\n")
	for _, c := range recent {
		fmt.Fprintf(&b, "- %s - %s\n", strings.ReplaceAll(c.Skill, "_", " "), c.CompletedAt.Format("2006-01-02"))
	}
	b.WriteString("\nGreat work!\n\n")
	b.WriteString(menuMessage)
	return b.String()
}

func stepIndex(steps []string, step string) int {
	for i, s := range steps {
		if s == step {
			return i
		}
	}
	return -1
}

func copyData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
