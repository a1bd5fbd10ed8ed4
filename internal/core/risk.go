package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cbt-companion/internal/config"
	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

// RiskJudge is the secondary text-classification capability used when the
// keyword pre-filter alone cannot decide.
type RiskJudge interface {
	JudgeRisk(ctx context.Context, message string, triggers []string, history []pkg.Turn) (pkg.RiskJudgment, error)
}

// Thresholds for the keyword pre-filter. Messages below shortMessageLen with
// no keyword hits are never sent to the secondary classifier, which bounds
// classifier call volume.
const (
	shortMessageLen     = 20
	substantialMsgLen   = 50
	riskContextTurns    = 5
	keywordOnlyConf     = 0.4
	judgeConfirmedConf  = 0.9
	fallbackConf        = 0.6
	highTriggerPrefix   = "HIGH:"
	mediumTriggerPrefix = "MEDIUM:"
)

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// RiskClassifier detects self-harm/crisis risk with a keyword pre-filter and
// an escalation path through the secondary judge. On judge failure it falls
// back to over-escalation; that bias is a hard safety invariant.
type RiskClassifier struct {
	high    []keywordPattern
	medium  []keywordPattern
	judge   RiskJudge
	timeout time.Duration
	log     *logger.Logger
}

// NewRiskClassifier compiles the keyword lists from the safety rules.
func NewRiskClassifier(rules *config.SafetyRules, judge RiskJudge, timeout time.Duration, log *logger.Logger) (*RiskClassifier, error) {
	high, err := compileKeywords(rules.RiskKeywords.High)
	if err != nil {
		return nil, fmt.Errorf("high-severity keywords: %w", err)
	}
	medium, err := compileKeywords(rules.RiskKeywords.Medium)
	if err != nil {
		return nil, fmt.Errorf("medium-severity keywords: %w", err)
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RiskClassifier{
		high:    high,
		medium:  medium,
		judge:   judge,
		timeout: timeout,
		log:     log,
	}, nil
}

func compileKeywords(keywords []string) ([]keywordPattern, error) {
	out := make([]keywordPattern, 0, len(keywords))
	for _, kw := range keywords {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		out = append(out, keywordPattern{keyword: kw, re: re})
	}
	return out, nil
}

// Classify assesses a single patient message. It never returns an error:
// classifier failures are absorbed into the fail-safe assessment.
func (c *RiskClassifier) Classify(ctx context.Context, message string, recentHistory []pkg.Turn) pkg.RiskAssessment {
	triggers := c.checkKeywords(message)
	trimmed := strings.TrimSpace(message)

	// Short conversational replies with no keyword hits are not classified
	// further.
	if len(triggers) == 0 && len(trimmed) < shortMessageLen {
		return pkg.RiskAssessment{
			Level:     pkg.RiskNone,
			Reasoning: "Short conversational message",
			Triggers:  []string{},
		}
	}

	hasHigh := hasPrefixedTrigger(triggers, highTriggerPrefix)
	hasMedium := hasPrefixedTrigger(triggers, mediumTriggerPrefix)
	substantial := len(trimmed) > substantialMsgLen

	if hasHigh || (hasMedium && substantial) {
		return c.judgeWithFallback(ctx, message, triggers, recentHistory, hasHigh)
	}

	if len(triggers) > 0 {
		return pkg.RiskAssessment{
			Level:      pkg.RiskLow,
			Reasoning:  "Keywords detected but context insufficient for escalation",
			Triggers:   stripTriggerTags(triggers),
			Confidence: keywordOnlyConf,
		}
	}

	return pkg.RiskAssessment{
		Level:     pkg.RiskNone,
		Reasoning: "No risk indicators detected",
		Triggers:  []string{},
	}
}

func (c *RiskClassifier) judgeWithFallback(ctx context.Context, message string, triggers []string, history []pkg.Turn, hasHigh bool) pkg.RiskAssessment {
	jctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	judgment, err := c.judge.JudgeRisk(jctx, message, triggers, lastTurns(history, riskContextTurns))
	if err != nil {
		return c.fallback(triggers, hasHigh, err)
	}

	var level pkg.RiskLevel
	switch strings.ToLower(strings.TrimSpace(judgment.Tier)) {
	case "low":
		level = pkg.RiskLow
	case "medium":
		level = pkg.RiskMedium
	case "high":
		level = pkg.RiskHigh
	default:
		return c.fallback(triggers, hasHigh, fmt.Errorf("unrecognized risk tier %q", judgment.Tier))
	}

	judged := judgment.Triggers
	if len(judged) == 0 {
		judged = triggers
	}
	return pkg.RiskAssessment{
		Level:            level,
		Reasoning:        judgment.Reasoning,
		Triggers:         judged,
		Confidence:       judgeConfirmedConf,
		ShouldEscalate:   level == pkg.RiskMedium || level == pkg.RiskHigh,
		ShouldEndSession: level == pkg.RiskHigh,
	}
}

// fallback is the fail-safe path: with a high-severity keyword present the
// result is high risk with session termination, otherwise medium with
// escalation. This bias toward over-escalation on failure must never be
// relaxed.
func (c *RiskClassifier) fallback(triggers []string, hasHigh bool, cause error) pkg.RiskAssessment {
	c.log.Error("risk classifier unavailable, using keyword fallback",
		"error", cause,
		"triggers", triggers,
		"assumed_high", hasHigh,
	)
	level := pkg.RiskMedium
	if hasHigh {
		level = pkg.RiskHigh
	}
	return pkg.RiskAssessment{
		Level:            level,
		Reasoning:        "Fallback detection: classifier analysis failed, using keyword-based assessment",
		Triggers:         triggers,
		Confidence:       fallbackConf,
		ShouldEscalate:   true,
		ShouldEndSession: hasHigh,
	}
}

func (c *RiskClassifier) checkKeywords(message string) []string {
	var detected []string
	for _, p := range c.high {
		if p.re.MatchString(message) {
			detected = append(detected, highTriggerPrefix+p.keyword)
		}
	}
	for _, p := range c.medium {
		if p.re.MatchString(message) {
			detected = append(detected, mediumTriggerPrefix+p.keyword)
		}
	}
	return detected
}

func hasPrefixedTrigger(triggers []string, prefix string) bool {
	for _, t := range triggers {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func stripTriggerTags(triggers []string) []string {
	out := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if i := strings.IndexByte(t, ':'); i >= 0 {
			out = append(out, t[i+1:])
		} else {
			out = append(out, t)
		}
	}
	return out
}

func lastTurns(history []pkg.Turn, n int) []pkg.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
