package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// DefaultRules is the built-in minimal rule set used when no rules file
// exists or the configured one is malformed. Fail closed, never crash.
func DefaultRules() []domain.ComplianceRule {
	return []domain.ComplianceRule{
		{
			RuleID:      "CONC_001",
			Name:        "Portfolio Concentration Limit",
			Description: "No single position should exceed 10% of portfolio",
			Severity:    domain.SeverityHigh,
			Category:    CategoryConcentration,
			Threshold:   0.10,
			AppliesTo:   []string{ScopePortfolio},
			Active:      true,
		},
		{
			RuleID:      "RISK_001",
			Name:        "High Risk Asset Limit",
			Description: "Assets with risk rating D or E cannot exceed 20% of portfolio",
			Severity:    domain.SeverityCritical,
			Category:    CategoryRisk,
			Threshold:   0.20,
			AppliesTo:   []string{string(domain.DocTypeRiskAssessment)},
			Active:      true,
		},
		{
			RuleID:      "VOL_001",
			Name:        "Volatility Threshold",
			Description: "Alert if any holding shows >15% daily price change",
			Severity:    domain.SeverityMedium,
			Category:    CategoryVolatility,
			Threshold:   0.15,
			AppliesTo:   []string{ScopeMarketData},
			Active:      true,
		},
	}
}

// Load reads the rule set from a JSON or YAML file. Any failure to read or
// parse the file falls back to the built-in defaults with a logged warning;
// individually malformed rules are skipped and the rest kept.
func Load(path string, log zerolog.Logger) []domain.ComplianceRule {
	log = log.With().Str("component", "rules_loader").Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Rules file unavailable, using default rules")
		return DefaultRules()
	}

	var parsed []domain.ComplianceRule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &parsed)
	default:
		err = json.Unmarshal(data, &parsed)
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Rules file malformed, using default rules")
		return DefaultRules()
	}

	valid := make([]domain.ComplianceRule, 0, len(parsed))
	for i, rule := range parsed {
		if err := validateRule(rule); err != nil {
			log.Warn().Err(err).Int("index", i).Str("rule_id", rule.RuleID).Msg("Skipping malformed rule")
			continue
		}
		valid = append(valid, rule)
	}

	if len(valid) == 0 {
		log.Warn().Str("path", path).Msg("Rules file contained no valid rules, using default rules")
		return DefaultRules()
	}

	log.Info().Int("count", len(valid)).Str("path", path).Msg("Loaded compliance rules")
	return valid
}

func validateRule(rule domain.ComplianceRule) error {
	if rule.RuleID == "" {
		return fmt.Errorf("rule has no rule_id")
	}
	if rule.Severity.Rank() == 0 {
		return fmt.Errorf("rule %s has unknown severity %q", rule.RuleID, rule.Severity)
	}
	switch rule.Category {
	case CategoryConcentration, CategoryRisk, CategoryVolatility, CategoryRegulatory:
	default:
		return fmt.Errorf("rule %s has unknown category %q", rule.RuleID, rule.Category)
	}
	if rule.Threshold < 0 {
		return fmt.Errorf("rule %s has negative threshold", rule.RuleID)
	}
	if len(rule.AppliesTo) == 0 {
		return fmt.Errorf("rule %s has empty applies_to", rule.RuleID)
	}
	return nil
}
