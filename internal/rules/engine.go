// Package rules loads compliance rule sets and evaluates them against
// enriched records and portfolio state.
package rules

import (
	"fmt"
	"math"
	"sort"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// Rule categories understood by the evaluator. The category selects the
// predicate; applies_to scoping selects which records a rule sees at all.
const (
	CategoryConcentration = "CONCENTRATION"
	CategoryRisk          = "RISK"
	CategoryVolatility    = "VOLATILITY"
	CategoryRegulatory    = "REGULATORY"
)

// Scope tags derived from enriched records.
const (
	ScopeMarketData = "MARKET_DATA"
	ScopePortfolio  = "PORTFOLIO"
)

// SkippedRule records a rule that could not be evaluated for lack of data.
// Skips are an explicit outcome, not an error: the stream degrades rather
// than failing silently.
type SkippedRule struct {
	RuleID string `json:"rule_id"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Result carries everything one evaluation produced.
type Result struct {
	Violations []domain.ViolationEvent
	Skipped    []SkippedRule
}

// regulatedDocTypes are the filing types regulatory keyword rules apply to.
var regulatedDocTypes = map[domain.DocType]bool{
	domain.DocTypeSECFiling:        true,
	domain.DocTypeCompliancePolicy: true,
}

// Evaluate runs every active, in-scope rule against one enriched record and
// the portfolio snapshot. It is pure and deterministic: the same
// (record, snapshot, rules) triple always yields the same result, which makes
// replay and deterministic testing safe.
func Evaluate(record domain.EnrichedRecord, snapshot *domain.PortfolioSnapshot, ruleSet []domain.ComplianceRule) Result {
	var res Result

	tags := ScopeTags(record, snapshot)

	// Rules evaluate in rule ID order so emission order is stable.
	ordered := make([]domain.ComplianceRule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RuleID < ordered[j].RuleID })

	for _, rule := range ordered {
		if !rule.Active || !rule.AppliesToScope(tags) {
			continue
		}

		switch rule.Category {
		case CategoryConcentration:
			evaluateConcentration(rule, record, snapshot, &res)
		case CategoryRisk:
			evaluateHighRisk(rule, record, snapshot, &res)
		case CategoryVolatility:
			evaluateVolatility(rule, record, &res)
		case CategoryRegulatory:
			evaluateRegulatory(rule, record, &res)
		}
	}

	return res
}

// ScopeTags derives the scope tags a record carries, from its document type,
// market side, and portfolio membership.
func ScopeTags(record domain.EnrichedRecord, snapshot *domain.PortfolioSnapshot) []string {
	var tags []string

	if record.Document != nil {
		switch record.Document.DocType {
		case domain.DocTypePortfolioReport:
			tags = append(tags, ScopePortfolio)
		default:
			tags = append(tags, string(record.Document.DocType))
		}
	}
	if record.Market != nil {
		tags = append(tags, ScopeMarketData)
	}
	if snapshot != nil {
		if _, ok := snapshot.Positions[record.Symbol]; ok {
			tags = append(tags, ScopePortfolio)
		}
	}

	return tags
}

func evaluateConcentration(rule domain.ComplianceRule, record domain.EnrichedRecord, snapshot *domain.PortfolioSnapshot, res *Result) {
	if snapshot == nil {
		res.Skipped = append(res.Skipped, SkippedRule{
			RuleID: rule.RuleID, Symbol: record.Symbol,
			Reason: "no portfolio snapshot available",
		})
		return
	}

	pct, _ := snapshot.Exposure(record.Symbol)
	if pct > rule.Threshold {
		msg := fmt.Sprintf("%s holds %.2f%% of portfolio, above the %.2f%% concentration limit",
			record.Symbol, pct*100, rule.Threshold*100)
		res.Violations = append(res.Violations,
			domain.NewViolationEvent(rule, record.Symbol, msg, &record, record.JoinedAt))
	}
}

// evaluateHighRisk fires when the record's document rates the symbol D or E
// and the aggregate exposure to D/E-rated symbols breaches the threshold. The
// triggering document's rating counts toward the aggregate even when the
// snapshot has not yet recorded it on the position.
func evaluateHighRisk(rule domain.ComplianceRule, record domain.EnrichedRecord, snapshot *domain.PortfolioSnapshot, res *Result) {
	if record.Document == nil || !record.Document.RiskRating.IsHighRisk() {
		return
	}
	if snapshot == nil {
		res.Skipped = append(res.Skipped, SkippedRule{
			RuleID: rule.RuleID, Symbol: record.Symbol,
			Reason: "no portfolio snapshot available",
		})
		return
	}

	aggregate := 0.0
	for _, pos := range snapshot.Positions {
		rated := domain.RiskRating(pos.RiskRating).IsHighRisk()
		if pos.Symbol == record.Symbol {
			rated = true
		}
		if rated {
			aggregate += pos.PercentOfPortfolio
		}
	}

	if aggregate > rule.Threshold {
		msg := fmt.Sprintf("%s rated %s; high-risk holdings now %.2f%% of portfolio, above the %.2f%% limit",
			record.Symbol, record.Document.RiskRating, aggregate*100, rule.Threshold*100)
		res.Violations = append(res.Violations,
			domain.NewViolationEvent(rule, record.Symbol, msg, &record, record.JoinedAt))
	}
}

func evaluateVolatility(rule domain.ComplianceRule, record domain.EnrichedRecord, res *Result) {
	if record.Market == nil {
		res.Skipped = append(res.Skipped, SkippedRule{
			RuleID: rule.RuleID, Symbol: record.Symbol,
			Reason: "no current market data for symbol",
		})
		return
	}

	if math.Abs(record.Market.PercentChange) > rule.Threshold {
		msg := fmt.Sprintf("%s moved %.2f%% in one session, beyond the %.2f%% volatility threshold",
			record.Symbol, record.Market.PercentChange*100, rule.Threshold*100)
		res.Violations = append(res.Violations,
			domain.NewViolationEvent(rule, record.Symbol, msg, &record, record.JoinedAt))
	}
}

func evaluateRegulatory(rule domain.ComplianceRule, record domain.EnrichedRecord, res *Result) {
	doc := record.Document
	if doc == nil || !regulatedDocTypes[doc.DocType] {
		return
	}

	for _, want := range rule.Keywords {
		for _, have := range doc.Keywords {
			if want == have {
				msg := fmt.Sprintf("regulated filing %s contains flagged term %q", doc.Filename, want)
				res.Violations = append(res.Violations,
					domain.NewViolationEvent(rule, record.Symbol, msg, &record, record.JoinedAt))
				return
			}
		}
	}
}
