package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

func TestClassifyDocType(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		text     string
		want     domain.DocType
	}{
		{"portfolio by filename", "q3_portfolio_holdings.pdf", "", domain.DocTypePortfolioReport},
		{"sec filing 10-K", "acme_10-k_2025.pdf", "", domain.DocTypeSECFiling},
		{"sec filing 10-Q", "acme_10-Q.txt", "", domain.DocTypeSECFiling},
		{"compliance policy", "compliance_policy_v2.docx", "", domain.DocTypeCompliancePolicy},
		{"risk by filename", "risk_review.txt", "", domain.DocTypeRiskAssessment},
		{"risk by body", "notes.txt", "Quarterly risk assessment for growth holdings", domain.DocTypeRiskAssessment},
		{"market report", "market_report_august.pdf", "", domain.DocTypeMarketReport},
		{"fallback", "meeting_notes.txt", "nothing notable", domain.DocTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDocType(tt.text, tt.filename))
		})
	}
}

func TestRiskRating(t *testing.T) {
	assert.Equal(t, domain.RiskD, RiskRating("Summary: risk rating: D for this asset"))
	assert.Equal(t, domain.RiskE, RiskRating("RISK LEVEL: e"))
	assert.Equal(t, domain.RiskRating(""), RiskRating("no rating mentioned"))
	assert.Equal(t, domain.RiskRating(""), RiskRating("risk rating: X"))
}

func TestSymbols(t *testing.T) {
	text := "TSLA and NVDA dropped today. THE position in TSLA is large. AAPL held steady."

	symbols := Symbols(text)

	assert.Equal(t, []string{"AAPL", "NVDA", "TSLA"}, symbols)
}

func TestSymbols_ExcludesNoiseWords(t *testing.T) {
	symbols := Symbols("THE SEC AND FOR ALL filed against LLC INC")
	assert.Empty(t, symbols)
}

func TestSymbols_Deterministic(t *testing.T) {
	text := "ZZZ AAA MMM BBB"
	assert.Equal(t, Symbols(text), Symbols(text))
	assert.Equal(t, []string{"AAA", "BBB", "MMM", "ZZZ"}, Symbols(text))
}

func TestKeywords(t *testing.T) {
	text := "This disclosure covers the concentration limit breach and SEC audit."

	keywords := Keywords(text)

	assert.Contains(t, keywords, "disclosure")
	assert.Contains(t, keywords, "concentration limit")
	assert.Contains(t, keywords, "sec")
	assert.Contains(t, keywords, "audit")
	assert.NotContains(t, keywords, "fiduciary")
}

func TestDocumentID_StableByFilename(t *testing.T) {
	id1 := DocumentID("risk_review.txt")
	id2 := DocumentID("risk_review.txt")
	other := DocumentID("risk_review_v2.txt")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, other)
}

func TestDocument(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	text := "Risk assessment for TSLA. risk rating: D. Effective date: 08/01/2026. Concentration limit applies."

	fact := Document(text, "tsla_risk_assessment.txt", now)

	require.Equal(t, domain.DocTypeRiskAssessment, fact.DocType)
	assert.Equal(t, domain.RiskD, fact.RiskRating)
	assert.Contains(t, fact.Symbols, "TSLA")
	assert.Contains(t, fact.Keywords, "concentration limit")
	assert.Equal(t, "08/01/2026", fact.EffectiveDate)
	assert.Equal(t, now, fact.ObservedAt)

	t.Run("identical input yields identical fact", func(t *testing.T) {
		again := Document(text, "tsla_risk_assessment.txt", now)
		assert.Equal(t, fact, again)
	})
}
