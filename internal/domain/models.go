// Package domain provides core domain models and types for compliance monitoring.
package domain

import "time"

// DocType classifies a compliance document.
type DocType string

const (
	DocTypeRiskAssessment   DocType = "RISK_ASSESSMENT"
	DocTypeSECFiling        DocType = "SEC_FILING"
	DocTypePortfolioReport  DocType = "PORTFOLIO_REPORT"
	DocTypeCompliancePolicy DocType = "COMPLIANCE_POLICY"
	DocTypeMarketReport     DocType = "MARKET_REPORT"
	DocTypeOther            DocType = "OTHER"
)

// RiskRating is an ordinal document risk rating, A (lowest) through E (highest).
// Empty string means no rating was found in the document.
type RiskRating string

const (
	RiskA RiskRating = "A"
	RiskB RiskRating = "B"
	RiskC RiskRating = "C"
	RiskD RiskRating = "D"
	RiskE RiskRating = "E"
)

// IsHighRisk reports whether the rating falls in the D/E band that the
// high-risk-asset rules care about.
func (r RiskRating) IsHighRisk() bool {
	return r == RiskD || r == RiskE
}

// Severity grades rules, violations and alerts.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns an ordinal for severity comparisons. Unknown severities rank
// below LOW so malformed rule configs never accidentally escalate.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// DocumentFact is the structured result of extracting one compliance document.
// Facts are immutable; re-uploading a file produces a new fact that supersedes
// the previous one under the same filename-derived key.
type DocumentFact struct {
	DocumentID string     `json:"document_id"`
	Filename   string     `json:"filename"`
	DocType    DocType    `json:"doc_type"`
	RiskRating RiskRating `json:"risk_rating,omitempty"`
	Symbols    []string   `json:"mentioned_symbols"`
	Keywords   []string   `json:"keywords"`
	// Dates parsed out of the document body, when present.
	EffectiveDate string    `json:"effective_date,omitempty"`
	FilingDate    string    `json:"filing_date,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// HasSymbol reports whether the fact mentions the given ticker.
func (d *DocumentFact) HasSymbol(symbol string) bool {
	for _, s := range d.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// MarketFact is one normalized market data observation for a symbol.
// Each new tick replaces the previous value for that symbol.
type MarketFact struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PercentChange float64   `json:"percent_change"`
	Volume        int64     `json:"volume"`
	Sector        string    `json:"sector,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// IsFresh reports whether the fact is recent enough to be treated as current
// market data for join purposes.
func (m *MarketFact) IsFresh(now time.Time, window time.Duration) bool {
	return now.Sub(m.ObservedAt) <= window
}

// EnrichedRecord joins the latest document fact and market fact for one symbol.
// Either side may be nil when the counterpart has not arrived or has expired.
type EnrichedRecord struct {
	Symbol   string        `json:"symbol"`
	Document *DocumentFact `json:"document,omitempty"`
	Market   *MarketFact   `json:"market,omitempty"`
	JoinedAt time.Time     `json:"joined_at"`
}

// ComplianceRule is one configured compliance check. Rules are reloaded as a
// whole set; evaluation always works on the snapshot taken at entry.
type ComplianceRule struct {
	RuleID      string   `json:"rule_id" yaml:"rule_id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Category    string   `json:"category" yaml:"category"`
	Threshold   float64  `json:"threshold" yaml:"threshold"`
	AppliesTo   []string `json:"applies_to" yaml:"applies_to"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Active      bool     `json:"active" yaml:"active"`
}

// AppliesToScope reports whether any of the rule's scope tags intersects the
// given record scope tags.
func (r *ComplianceRule) AppliesToScope(tags []string) bool {
	for _, want := range r.AppliesTo {
		for _, have := range tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Position is one holding inside a portfolio snapshot.
type Position struct {
	Symbol             string  `json:"symbol" msgpack:"symbol"`
	Quantity           float64 `json:"quantity" msgpack:"quantity"`
	MarketValue        float64 `json:"market_value" msgpack:"market_value"`
	PercentOfPortfolio float64 `json:"percent_of_portfolio" msgpack:"percent_of_portfolio"`
	RiskRating         string  `json:"risk_rating,omitempty" msgpack:"risk_rating"`
}

// PortfolioSnapshot is a read-only view of the portfolio at a point in time.
// Exactly one snapshot is "current"; workflow instances capture it once and
// never observe mid-flight updates.
type PortfolioSnapshot struct {
	AsOf       time.Time           `json:"as_of" msgpack:"as_of"`
	TotalValue float64             `json:"total_value" msgpack:"total_value"`
	Positions  map[string]Position `json:"positions" msgpack:"positions"`
}

// Exposure returns the percent of portfolio and absolute value held in the
// given symbol. Zero values when the symbol is not held.
func (p *PortfolioSnapshot) Exposure(symbol string) (percent float64, value float64) {
	if p == nil {
		return 0, 0
	}
	pos, ok := p.Positions[symbol]
	if !ok {
		return 0, 0
	}
	return pos.PercentOfPortfolio, pos.MarketValue
}

// HighRiskExposure returns the aggregate percent of portfolio across all
// positions carrying a D or E risk rating.
func (p *PortfolioSnapshot) HighRiskExposure() float64 {
	if p == nil {
		return 0
	}
	total := 0.0
	for _, pos := range p.Positions {
		if RiskRating(pos.RiskRating).IsHighRisk() {
			total += pos.PercentOfPortfolio
		}
	}
	return total
}

// AlertStatus tracks operator handling of an alert.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "OPEN"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// Alert is the finalized output of one workflow instance. The detection
// pipeline never mutates an alert after creation; only operator actions
// (acknowledge/resolve) do.
type Alert struct {
	AlertID         string      `json:"alert_id"`
	ViolationKey    string      `json:"violation_key"`
	RuleID          string      `json:"rule_id"`
	Severity        Severity    `json:"severity"`
	Symbol          string      `json:"symbol"`
	Analysis        string      `json:"analysis_text"`
	PortfolioImpact Impact      `json:"portfolio_impact"`
	Recommendations []string    `json:"recommended_actions"`
	EmailDraft      string      `json:"email_draft"`
	Escalated       bool        `json:"escalated"`
	Status          AlertStatus `json:"status"`
	ReasoningSteps  []string    `json:"reasoning_steps,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Impact describes the computed portfolio exposure behind an alert.
type Impact struct {
	Known             bool    `json:"known"`
	ExposurePercent   float64 `json:"exposure_percent"`
	ExposureValue     float64 `json:"exposure_value"`
	AffectedPositions int     `json:"affected_positions"`
	TotalValue        float64 `json:"total_value"`
}
