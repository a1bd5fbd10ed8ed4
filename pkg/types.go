package pkg

import "time"

// RiskLevel is the outcome of the safety classifier for a single message.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DistressLevel describes how activated the patient currently is.
type DistressLevel string

const (
	DistressNone     DistressLevel = "none"
	DistressMild     DistressLevel = "mild"
	DistressModerate DistressLevel = "moderate"
	DistressSevere   DistressLevel = "severe"
	DistressCrisis   DistressLevel = "crisis"
)

// ResponseMode is the kind of reply the policy selected for a turn.
type ResponseMode string

const (
	ModeGrounding         ResponseMode = "grounding"
	ModeCBTSkill          ResponseMode = "cbt_skill"
	ModeClarification     ResponseMode = "clarification"
	ModeCollaborativeMenu ResponseMode = "collaborative_menu"
	ModeGentleRedirect    ResponseMode = "gentle_redirect"
	ModeCrisisProtocol    ResponseMode = "crisis_protocol"
)

// DisclaimerType identifies a boundary reminder shown to the patient.
type DisclaimerType string

const (
	DisclaimerPeriodicReminder DisclaimerType = "periodic_reminder"
	DisclaimerTherapyReferral  DisclaimerType = "therapy_referral"
	DisclaimerCrisisBoundary   DisclaimerType = "crisis_boundary"
)

// TherapyStage is where the patient is in their treatment.
type TherapyStage string

const (
	StageEarly  TherapyStage = "early"
	StageMiddle TherapyStage = "middle"
	StageLate   TherapyStage = "late"
)

// Role describes who authored a conversation turn.
type Role string

const (
	RolePatient   Role = "patient"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the running conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RiskAssessment is produced fresh each turn by the risk classifier.
// Invariants: ShouldEndSession implies Level == high; Level == high implies
// ShouldEscalate.
type RiskAssessment struct {
	Level            RiskLevel `json:"level"`
	Reasoning        string    `json:"reasoning"`
	Triggers         []string  `json:"triggers"`
	Confidence       float64   `json:"confidence"`
	ShouldEscalate   bool      `json:"should_escalate"`
	ShouldEndSession bool      `json:"should_end_session"`
}

// RiskJudgment is the structured output of the secondary text classifier.
type RiskJudgment struct {
	Tier      string   `json:"risk_level"`
	Reasoning string   `json:"reasoning"`
	Triggers  []string `json:"triggers"`
}

// DistressAssessment is the distress assessor's view of a single message.
// Invariant: Level == crisis implies RequiresGrounding.
type DistressAssessment struct {
	Level              DistressLevel `json:"level"`
	Reasoning          string        `json:"reasoning"`
	SignalsDetected    []string      `json:"signals_detected"`
	RequiresGrounding  bool          `json:"requires_grounding"`
	SuggestedTechnique string        `json:"suggested_technique,omitempty"`
}

// ConversationDecision records which response mode was chosen for a turn.
type ConversationDecision struct {
	Mode      ResponseMode `json:"mode"`
	Technique string       `json:"technique,omitempty"`
	Reasoning string       `json:"reasoning"`
}

// GroundingExercise is a static catalog entry.
type GroundingExercise struct {
	ID                       string `json:"id"`
	DisplayName              string `json:"display_name"`
	EstimatedDurationSeconds int    `json:"estimated_duration_seconds"`
	Instructions             string `json:"instructions"`
	FollowUpPrompt           string `json:"follow_up_prompt"`
}

// ClinicalSensitivities holds patient-care constraints from the therapist.
type ClinicalSensitivities struct {
	TraumaHistory string   `json:"trauma_history,omitempty"`
	Pacing        string   `json:"pacing,omitempty"` // slow, moderate, fast
	TopicsToAvoid []string `json:"topics_to_avoid,omitempty"`
}

// TherapistLanguage carries the therapist's own wording for this patient.
type TherapistLanguage struct {
	Metaphors        []string          `json:"metaphors,omitempty"`
	CopingStatements []string          `json:"coping_statements,omitempty"`
	PreferredTerms   map[string]string `json:"preferred_terms,omitempty"`
}

// TherapistBrief is the per-patient treatment brief supplied by the caller.
// It is immutable for the duration of a turn.
type TherapistBrief struct {
	CaseFormulation     string                `json:"case_formulation,omitempty"`
	PresentingProblems  []string              `json:"presenting_problems,omitempty"`
	TreatmentGoals      []string              `json:"treatment_goals,omitempty"`
	Stage               TherapyStage          `json:"therapy_stage,omitempty"`
	PreferredTechniques map[string]bool       `json:"preferred_techniques,omitempty"`
	Sensitivities       ClinicalSensitivities `json:"sensitivities,omitempty"`
	Language            TherapistLanguage     `json:"therapist_language,omitempty"`
	Contraindications   []string              `json:"contraindications,omitempty"`
}

// ConversationState is the mutable per-session state owned by the caller and
// passed by reference into the pipeline each turn. The pipeline mutates it
// only after a terminal response for the turn has been computed.
type ConversationState struct {
	SessionID            string
	PatientName          string
	CountryCode          string
	SessionGoal          string
	History              []Turn
	DistressLevel        DistressLevel
	GroundingCount       int
	DisclaimerShownCount int
	LastDisclaimerAt     *time.Time
}

// NewConversationState returns session state at its session-start values.
func NewConversationState(sessionID, countryCode string) *ConversationState {
	return &ConversationState{
		SessionID:     sessionID,
		CountryCode:   countryCode,
		DistressLevel: DistressNone,
	}
}

// Generation is the output of the external text-generation capability.
type Generation struct {
	Content    string
	Model      string
	TokensUsed int
}

// TurnResult is the fully populated outcome of one pipeline turn. Every field
// is set on every path, including the crisis short-circuit, so the caller can
// persist a complete audit trail.
type TurnResult struct {
	Response           string               `json:"response"`
	Risk               RiskAssessment       `json:"risk_assessment"`
	Distress           DistressAssessment   `json:"distress_assessment"`
	Decision           ConversationDecision `json:"conversation_decision"`
	DisclaimerShown    bool                 `json:"disclaimer_shown"`
	DisclaimerType     DisclaimerType       `json:"disclaimer_type,omitempty"`
	ShouldEndSession   bool                 `json:"should_end_session"`
	GroundingOffered   bool                 `json:"grounding_offered,omitempty"`
	GroundingTechnique string               `json:"grounding_technique,omitempty"`
	ModelUsed          string               `json:"model_used,omitempty"`
	TokensUsed         int                  `json:"tokens_used,omitempty"`
}

// SessionStatus tracks the lifecycle of a persisted session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
	SessionFlagged    SessionStatus = "flagged"
)

// Session is a persisted patient session.
type Session struct {
	ID          string        `json:"id"`
	PatientID   string        `json:"patient_id"`
	CountryCode string        `json:"country_code"`
	SessionGoal string        `json:"session_goal,omitempty"`
	Status      SessionStatus `json:"status"`
	RiskLevel   RiskLevel     `json:"risk_level"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
}

// Message is a persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	RiskLevel RiskLevel `json:"risk_level,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RiskEvent is recorded whenever a turn's risk assessment escalates.
type RiskEvent struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	Level             RiskLevel `json:"level"`
	Triggers          []string  `json:"triggers"`
	Reasoning         string    `json:"reasoning"`
	Confidence        float64   `json:"confidence"`
	TherapistReviewed bool      `json:"therapist_reviewed"`
	CreatedAt         time.Time `json:"created_at"`
}

// SkillCompletion records a finished legacy skill flow.
type SkillCompletion struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Skill       string            `json:"skill"`
	Data        map[string]string `json:"data"`
	CompletedAt time.Time         `json:"completed_at"`
}
