// Package workflow turns admitted violation events into finalized compliance
// alerts. Each instance runs six sequential stages over an immutable input:
// analyze, assess impact, recommend, draft email, decide escalation, finalize.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/clients/textgen"
	"github.com/wealthsentinel/sentinel/internal/domain"
)

// Instance carries the state of one running workflow. The violation event and
// the portfolio snapshot are captured at creation and never refreshed; a
// snapshot upload mid-flight does not change what this instance sees.
type Instance struct {
	Event    domain.ViolationEvent
	Snapshot *domain.PortfolioSnapshot
	Alert    *domain.Alert

	steps []string
}

// NewInstance captures the violation and the current snapshot for one run.
func NewInstance(event domain.ViolationEvent, snapshot *domain.PortfolioSnapshot) *Instance {
	return &Instance{
		Event:    event,
		Snapshot: snapshot,
		Alert: &domain.Alert{
			AlertID:      uuid.NewString(),
			ViolationKey: event.ViolationKey,
			RuleID:       event.RuleID,
			Severity:     event.Severity,
			Symbol:       event.Symbol,
			Status:       domain.AlertOpen,
			CreatedAt:    time.Now().UTC(),
		},
	}
}

func (in *Instance) step(format string, args ...interface{}) {
	in.steps = append(in.steps, fmt.Sprintf(format, args...))
}

// Stages holds the stage implementations with their collaborators. Stage
// methods mutate only the instance they are given.
type Stages struct {
	textgen            *textgen.Client
	escalationOverride float64
	log                zerolog.Logger
}

func NewStages(tg *textgen.Client, escalationOverride float64, log zerolog.Logger) *Stages {
	return &Stages{
		textgen:            tg,
		escalationOverride: escalationOverride,
		log:                log.With().Str("component", "workflow_stages").Logger(),
	}
}

// Analyze produces the human-readable explanation of the violation. When the
// text generator is unavailable the template analysis is used instead; the
// workflow degrades, it does not abort.
func (s *Stages) Analyze(ctx context.Context, in *Instance) {
	template := templateAnalysis(in.Event)

	if s.textgen != nil && s.textgen.Enabled() {
		prompt := fmt.Sprintf("Rule %s (%s, severity %s) fired for %s: %s",
			in.Event.RuleID, in.Event.Category, in.Event.Severity, in.Event.Symbol, in.Event.Message)
		if text, err := s.textgen.Generate(ctx, textgen.PurposeAnalysis, prompt); err == nil {
			in.Alert.Analysis = text
			in.step("analyzed violation %s via text generation", in.Event.EventID)
			return
		} else {
			s.log.Warn().Err(err).Str("event_id", in.Event.EventID).Msg("Analysis generation failed, using template")
		}
	}

	in.Alert.Analysis = template
	in.step("analyzed violation %s via template", in.Event.EventID)
}

// AssessImpact computes portfolio exposure from the captured snapshot. With
// no snapshot the impact is recorded as unknown rather than zero.
func (s *Stages) AssessImpact(in *Instance) {
	if in.Snapshot == nil {
		in.Alert.PortfolioImpact = domain.Impact{Known: false}
		in.step("impact unknown: no portfolio snapshot captured")
		return
	}

	pct, value := in.Snapshot.Exposure(in.Event.Symbol)
	affected := 0
	if _, held := in.Snapshot.Positions[in.Event.Symbol]; held {
		affected = 1
	}

	// Risk-category violations concern the aggregate high-risk band, not
	// just the triggering symbol.
	if in.Event.Category == "RISK" {
		pct = in.Snapshot.HighRiskExposure()
		value = pct * in.Snapshot.TotalValue
		affected = 0
		for _, pos := range in.Snapshot.Positions {
			if domain.RiskRating(pos.RiskRating).IsHighRisk() || pos.Symbol == in.Event.Symbol {
				affected++
			}
		}
	}

	in.Alert.PortfolioImpact = domain.Impact{
		Known:             true,
		ExposurePercent:   pct,
		ExposureValue:     value,
		AffectedPositions: affected,
		TotalValue:        in.Snapshot.TotalValue,
	}
	in.step("assessed impact: %.2f%% exposure (%d positions)", pct*100, affected)
}

// Recommend derives remediation actions from the category, severity and
// computed exposure. Text generation augments but never replaces the
// deterministic baseline recommendation.
func (s *Stages) Recommend(ctx context.Context, in *Instance) {
	recs := templateRecommendations(in.Event, in.Alert.PortfolioImpact)

	if s.textgen != nil && s.textgen.Enabled() {
		prompt := fmt.Sprintf("Violation: %s. Current exposure: %.2f%%. Suggest remediation steps.",
			in.Event.Message, in.Alert.PortfolioImpact.ExposurePercent*100)
		if text, err := s.textgen.Generate(ctx, textgen.PurposeRecommendation, prompt); err == nil {
			for _, line := range strings.Split(text, "\n") {
				line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
				if line != "" {
					recs = append(recs, line)
				}
			}
		} else {
			s.log.Warn().Err(err).Str("event_id", in.Event.EventID).Msg("Recommendation generation failed, using templates only")
		}
	}

	in.Alert.Recommendations = recs
	in.step("generated %d recommendations", len(recs))
}

// DraftEmail builds the notification email body. Severity HIGH and CRITICAL
// get the urgent subject treatment downstream; the draft notes it inline.
func (s *Stages) DraftEmail(ctx context.Context, in *Instance) {
	if s.textgen != nil && s.textgen.Enabled() {
		prompt := fmt.Sprintf("Violation: %s. Analysis: %s. Recommendations: %s",
			in.Event.Message, in.Alert.Analysis, strings.Join(in.Alert.Recommendations, "; "))
		if text, err := s.textgen.Generate(ctx, textgen.PurposeEmailDraft, prompt); err == nil {
			in.Alert.EmailDraft = text
			in.step("drafted notification email via text generation")
			return
		} else {
			s.log.Warn().Err(err).Str("event_id", in.Event.EventID).Msg("Email draft generation failed, using template")
		}
	}

	in.Alert.EmailDraft = templateEmail(in.Event, in.Alert)
	in.step("drafted notification email via template")
}

// DecideEscalation marks the alert escalated when severity is HIGH or
// CRITICAL, or when known exposure exceeds the configured override fraction.
func (s *Stages) DecideEscalation(in *Instance) {
	severe := in.Event.Severity.Rank() >= domain.SeverityHigh.Rank()
	exposureBreach := in.Alert.PortfolioImpact.Known &&
		in.Alert.PortfolioImpact.ExposurePercent > s.escalationOverride

	in.Alert.Escalated = severe || exposureBreach

	switch {
	case severe && exposureBreach:
		in.step("escalated: severity %s and exposure %.2f%% above override", in.Event.Severity, in.Alert.PortfolioImpact.ExposurePercent*100)
	case severe:
		in.step("escalated: severity %s", in.Event.Severity)
	case exposureBreach:
		in.step("escalated: exposure %.2f%% above %.2f%% override", in.Alert.PortfolioImpact.ExposurePercent*100, s.escalationOverride*100)
	default:
		in.step("not escalated")
	}
}

// Finalize stamps the reasoning trail onto the alert. Persistence and
// notification belong to the sink, which the runner invokes exactly once per
// instance.
func (s *Stages) Finalize(in *Instance) *domain.Alert {
	in.step("finalized alert %s", in.Alert.AlertID)
	in.Alert.ReasoningSteps = append([]string(nil), in.steps...)
	return in.Alert
}

func templateAnalysis(event domain.ViolationEvent) string {
	return fmt.Sprintf("Rule %s (%s) flagged %s with severity %s. %s",
		event.RuleID, event.Category, event.Symbol, event.Severity, event.Message)
}

func templateRecommendations(event domain.ViolationEvent, impact domain.Impact) []string {
	var recs []string

	switch event.Category {
	case "CONCENTRATION":
		if impact.Known {
			recs = append(recs, fmt.Sprintf("Reduce %s position from %.2f%% to at or below the concentration limit",
				event.Symbol, impact.ExposurePercent*100))
		} else {
			recs = append(recs, fmt.Sprintf("Review %s position size against the concentration limit", event.Symbol))
		}
	case "RISK":
		if impact.Known {
			recs = append(recs, fmt.Sprintf("Reduce aggregate high-risk exposure from %.2f%% to within policy limits",
				impact.ExposurePercent*100))
		} else {
			recs = append(recs, "Review aggregate exposure to high-risk rated holdings")
		}
		recs = append(recs, fmt.Sprintf("Reassess the risk rating basis for %s", event.Symbol))
	case "VOLATILITY":
		recs = append(recs, fmt.Sprintf("Review %s price movement and consider hedging or position review", event.Symbol))
	case "REGULATORY":
		recs = append(recs, fmt.Sprintf("Route the flagged filing for %s to legal review", event.Symbol))
	default:
		recs = append(recs, fmt.Sprintf("Review compliance posture for %s", event.Symbol))
	}

	if event.Severity == domain.SeverityCritical {
		recs = append(recs, "Notify the chief compliance officer immediately")
	}
	return recs
}

func templateEmail(event domain.ViolationEvent, alert *domain.Alert) string {
	var b strings.Builder
	b.WriteString("Dear Compliance Team,\n\n")
	fmt.Fprintf(&b, "A %s severity compliance violation was detected at %s.\n\n",
		event.Severity, event.DetectedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Rule: %s (%s)\nSymbol: %s\n\n", event.RuleID, event.RuleName, event.Symbol)
	fmt.Fprintf(&b, "Analysis:\n%s\n\n", alert.Analysis)
	if len(alert.Recommendations) > 0 {
		b.WriteString("Recommended actions:\n")
		for _, rec := range alert.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}
	b.WriteString("This alert was generated automatically by the compliance monitor.\n")
	return b.String()
}
