package core

import (
	"context"
	"fmt"
	"time"

	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

// Generator is the external text-generation capability.
type Generator interface {
	Generate(ctx context.Context, instructions string, history []pkg.Turn, userMessage string) (pkg.Generation, error)
}

// Pipeline runs the full per-turn decision sequence: risk classification,
// crisis short-circuit, distress assessment, grounding gate, policy decision,
// generation, disclaimer injection. HandleMessage is the only entry point.
type Pipeline struct {
	risk       *RiskClassifier
	distress   *DistressAssessor
	catalog    *GroundingCatalog
	crisis     *CrisisProtocol
	policy     *ConversationPolicy
	generator  Generator
	log        *logger.Logger
	genTimeout time.Duration

	now func() time.Time
}

func NewPipeline(
	risk *RiskClassifier,
	distress *DistressAssessor,
	catalog *GroundingCatalog,
	crisis *CrisisProtocol,
	policy *ConversationPolicy,
	generator Generator,
	genTimeout time.Duration,
	log *logger.Logger,
) *Pipeline {
	if genTimeout <= 0 {
		genTimeout = 60 * time.Second
	}
	return &Pipeline{
		risk:       risk,
		distress:   distress,
		catalog:    catalog,
		crisis:     crisis,
		policy:     policy,
		generator:  generator,
		log:        log,
		genTimeout: genTimeout,
		now:        time.Now,
	}
}

// HandleMessage processes one patient message and returns a fully populated
// TurnResult. State is mutated only after the terminal response for the turn
// is known; on error the state is untouched and the turn can be retried.
func (p *Pipeline) HandleMessage(ctx context.Context, message string, state *pkg.ConversationState, brief *pkg.TherapistBrief) (*pkg.TurnResult, error) {
	risk := p.risk.Classify(ctx, message, state.History)

	// High risk short-circuits everything else: fixed crisis response,
	// session over. Policy and generation never see this turn.
	if risk.Level == pkg.RiskHigh {
		text, _, _ := p.crisis.BuildCrisisResponse(state.CountryCode)
		p.log.Warn("crisis protocol activated",
			"session_id", state.SessionID,
			"triggers", risk.Triggers,
			"confidence", risk.Confidence,
		)
		result := &pkg.TurnResult{
			Response: text,
			Risk:     risk,
			// Synthesized audit record: crisis-level distress always
			// carries the grounding requirement, even though the crisis
			// path supersedes the grounding offer itself.
			Distress: pkg.DistressAssessment{
				Level:             pkg.DistressCrisis,
				Reasoning:         "Crisis protocol activated by risk assessment",
				SignalsDetected:   risk.Triggers,
				RequiresGrounding: true,
			},
			Decision: pkg.ConversationDecision{
				Mode:      pkg.ModeCrisisProtocol,
				Reasoning: "High risk detected - crisis protocol is mandatory",
			},
			ShouldEndSession: true,
		}
		p.commitTurn(state, message, result.Response)
		state.DistressLevel = pkg.DistressCrisis
		return result, nil
	}

	distress := p.distress.Assess(message, state.History, brief)

	if offer, offerText := p.distress.ShouldOfferGrounding(distress, state.GroundingCount); offer {
		exercise := p.catalog.GetExercise(distress.SuggestedTechnique, brief)
		result := &pkg.TurnResult{
			Response: offerText + "\n\n" + exercise.Instructions,
			Risk:     risk,
			Distress: distress,
			Decision: pkg.ConversationDecision{
				Mode:      pkg.ModeGrounding,
				Technique: exercise.ID,
				Reasoning: "Distress level warrants grounding before other work",
			},
			ShouldEndSession:   risk.ShouldEndSession,
			GroundingOffered:   true,
			GroundingTechnique: exercise.ID,
		}
		p.commitTurn(state, message, result.Response)
		state.DistressLevel = distress.Level
		state.GroundingCount++
		return result, nil
	}

	decision := p.policy.Decide(message, state, distress, brief)
	instructions := p.policy.BuildAdaptivePrompt(brief, state, distress.Level, decision)

	gctx, cancel := context.WithTimeout(ctx, p.genTimeout)
	defer cancel()
	gen, err := p.generator.Generate(gctx, instructions, state.History, message)
	if err != nil {
		// Unlike classification there is no safe canned reply here; the
		// caller retries and the state stays exactly as it was.
		return nil, fmt.Errorf("generate response: %w", err)
	}

	result := &pkg.TurnResult{
		Response:         gen.Content,
		Risk:             risk,
		Distress:         distress,
		Decision:         decision,
		ShouldEndSession: risk.ShouldEndSession,
		ModelUsed:        gen.Model,
		TokensUsed:       gen.TokensUsed,
	}

	now := p.now()
	if dtype := p.policy.ShouldShowDisclaimer(state, now); dtype != "" {
		if text := p.policy.DisclaimerText(dtype); text != "" {
			result.Response = text + "\n\n---\n\n" + result.Response
			result.DisclaimerShown = true
			result.DisclaimerType = dtype
			state.DisclaimerShownCount++
			state.LastDisclaimerAt = &now
		}
	}

	p.commitTurn(state, message, result.Response)
	state.DistressLevel = distress.Level
	return result, nil
}

// commitTurn appends the patient message and the companion reply to the
// session history. Called exactly once per successful turn, after the
// terminal response is known.
func (p *Pipeline) commitTurn(state *pkg.ConversationState, patientMessage, response string) {
	state.History = append(state.History,
		pkg.Turn{Role: pkg.RolePatient, Content: patientMessage},
		pkg.Turn{Role: pkg.RoleAssistant, Content: response},
	)
}
