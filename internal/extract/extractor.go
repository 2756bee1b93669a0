// Package extract turns raw document text into structured document facts.
// All functions are pure: same text and filename always produce the same fact.
package extract

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/wealthsentinel/sentinel/internal/domain"
)

// maxSymbols caps how many distinct tickers one document can contribute.
const maxSymbols = 20

var (
	tickerPattern = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

	riskRatingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`risk rating[:\s]+([a-eA-E])\b`),
		regexp.MustCompile(`risk level[:\s]+([a-eA-E])\b`),
	}

	datePattern = `[:\s]+(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`

	effectiveDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`effective date` + datePattern),
		regexp.MustCompile(`effective` + datePattern),
	}
	filingDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`filing date` + datePattern),
		regexp.MustCompile(`filed` + datePattern),
	}
)

// complianceKeywords are the regulatory terms worth flagging in a document.
var complianceKeywords = []string{
	"regulation", "compliance", "violation", "sec", "finra",
	"audit", "disclosure", "fiduciary", "suitability",
	"risk limit", "exposure limit", "concentration limit",
}

// excludedWords are common uppercase English words that look like tickers.
var excludedWords = map[string]bool{
	"THE": true, "AND": true, "FOR": true, "ARE": true, "BUT": true,
	"NOT": true, "YOU": true, "ALL": true, "CAN": true, "HER": true,
	"WAS": true, "ONE": true, "OUR": true, "OUT": true, "DAY": true,
	"GET": true, "SEC": true, "LLC": true, "INC": true, "USD": true,
}

// Document produces a DocumentFact from raw document text and its filename.
// observedAt is passed in rather than read from the clock so re-processing a
// document during replay yields an identical fact.
func Document(text, filename string, observedAt time.Time) domain.DocumentFact {
	return domain.DocumentFact{
		DocumentID:    DocumentID(filename),
		Filename:      filename,
		DocType:       ClassifyDocType(text, filename),
		RiskRating:    RiskRating(text),
		Symbols:       Symbols(text),
		Keywords:      Keywords(text),
		EffectiveDate: firstMatch(effectiveDatePatterns, text),
		FilingDate:    firstMatch(filingDatePatterns, text),
		ObservedAt:    observedAt,
	}
}

// DocumentID derives the stable document key from the filename. Re-uploading
// a file with the same name produces the same ID, superseding the old fact.
func DocumentID(filename string) string {
	sum := sha256.Sum256([]byte(filename))
	return fmt.Sprintf("doc-%x", sum[:8])
}

// ClassifyDocType determines the document type from filename and body text.
func ClassifyDocType(text, filename string) domain.DocType {
	filenameLower := strings.ToLower(filename)
	head := text
	if len(head) > 1000 {
		head = head[:1000]
	}
	headLower := strings.ToLower(head)

	switch {
	case strings.Contains(filenameLower, "portfolio") || strings.Contains(filenameLower, "holdings"):
		return domain.DocTypePortfolioReport
	case strings.Contains(filenameLower, "10-k") || strings.Contains(filenameLower, "10-q"):
		return domain.DocTypeSECFiling
	case strings.Contains(filenameLower, "compliance") || strings.Contains(filenameLower, "policy"):
		return domain.DocTypeCompliancePolicy
	case strings.Contains(filenameLower, "risk") || strings.Contains(headLower, "risk assessment"):
		return domain.DocTypeRiskAssessment
	case strings.Contains(filenameLower, "market") && strings.Contains(filenameLower, "report"):
		return domain.DocTypeMarketReport
	default:
		return domain.DocTypeOther
	}
}

// RiskRating extracts an A-E risk rating from the document body, or the empty
// rating when none is stated.
func RiskRating(text string) domain.RiskRating {
	lower := strings.ToLower(text)
	for _, p := range riskRatingPatterns {
		if m := p.FindStringSubmatch(lower); m != nil {
			return domain.RiskRating(strings.ToUpper(m[1]))
		}
	}
	return ""
}

// Symbols extracts mentioned ticker symbols, deduplicated and sorted, capped
// at maxSymbols. Sorting keeps extraction deterministic for replay.
func Symbols(text string) []string {
	seen := make(map[string]bool)
	for _, candidate := range tickerPattern.FindAllString(text, -1) {
		if excludedWords[candidate] || len(candidate) < 2 {
			continue
		}
		seen[candidate] = true
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	if len(symbols) > maxSymbols {
		symbols = symbols[:maxSymbols]
	}
	return symbols
}

// Keywords returns the compliance keywords present in the document body.
func Keywords(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range complianceKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if m := p.FindStringSubmatch(lower); m != nil {
			return m[1]
		}
	}
	return ""
}
