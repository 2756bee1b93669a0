// Package engine wires the detection pipeline: extraction and normalization
// feed the streaming join, joined records are evaluated against the active
// rule set, admitted violations start alert workflows.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/dedup"
	"github.com/wealthsentinel/sentinel/internal/domain"
	"github.com/wealthsentinel/sentinel/internal/events"
	"github.com/wealthsentinel/sentinel/internal/extract"
	"github.com/wealthsentinel/sentinel/internal/marketdata"
	"github.com/wealthsentinel/sentinel/internal/rules"
	"github.com/wealthsentinel/sentinel/internal/stream"
)

// Submitter accepts admitted violations for workflow processing.
type Submitter interface {
	Submit(ctx context.Context, event domain.ViolationEvent) error
}

// SnapshotSource provides the current portfolio snapshot for evaluation.
type SnapshotSource interface {
	Current() *domain.PortfolioSnapshot
}

// Pipeline is the document/market ingestion front of the detection engine.
type Pipeline struct {
	join      *stream.Engine
	registry  *rules.Registry
	dedup     *dedup.Deduplicator
	workflows Submitter
	snapshots SnapshotSource
	stats     *marketdata.StatsRegistry
	events    *events.Manager
	log       zerolog.Logger
}

func NewPipeline(
	join *stream.Engine,
	registry *rules.Registry,
	dd *dedup.Deduplicator,
	workflows Submitter,
	snapshots SnapshotSource,
	stats *marketdata.StatsRegistry,
	ev *events.Manager,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		join:      join,
		registry:  registry,
		dedup:     dd,
		workflows: workflows,
		snapshots: snapshots,
		stats:     stats,
		events:    ev,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// IngestDocument extracts facts from one document and runs the resulting
// joined records through detection. Returns the extracted fact and how many
// violations were admitted to workflows.
func (p *Pipeline) IngestDocument(ctx context.Context, text, filename string) (domain.DocumentFact, int, error) {
	doc := extract.Document(text, filename, time.Now().UTC())

	p.log.Info().
		Str("document_id", doc.DocumentID).
		Str("filename", doc.Filename).
		Str("doc_type", string(doc.DocType)).
		Str("risk_rating", string(doc.RiskRating)).
		Int("symbols", len(doc.Symbols)).
		Msg("Document processed")

	p.events.Emit(events.DocumentIngested, "pipeline", map[string]interface{}{
		"document_id": doc.DocumentID,
		"doc_type":    string(doc.DocType),
		"symbols":     doc.Symbols,
	})

	records := p.join.IngestDocument(doc)
	admitted, err := p.detect(ctx, records)
	return doc, admitted, err
}

// IngestTick normalizes one market tick and runs the resulting joined record
// through detection. Malformed ticks are dropped with an error; the stream
// continues.
func (p *Pipeline) IngestTick(ctx context.Context, tick marketdata.RawTick) (int, error) {
	fact, err := marketdata.Normalize(tick)
	if err != nil {
		p.log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("Dropping malformed market tick")
		return 0, err
	}

	// Stats track percent points, matching the wire representation.
	p.stats.Record(fact.Symbol, fact.Price, fact.PercentChange*100)

	p.events.Emit(events.MarketTickApplied, "pipeline", map[string]interface{}{
		"symbol": fact.Symbol,
		"price":  fact.Price,
	})

	records := p.join.IngestMarket(fact)
	return p.detect(ctx, records)
}

// detect evaluates records against the active rule set and submits admitted
// violations. Suppressed repeats and skipped rules are logged, not raised.
func (p *Pipeline) detect(ctx context.Context, records []domain.EnrichedRecord) (int, error) {
	snapshot := p.snapshots.Current()
	ruleSet := p.registry.Active()

	admitted := 0
	for _, record := range records {
		p.events.Emit(events.RecordJoined, "pipeline", map[string]interface{}{
			"symbol":     record.Symbol,
			"has_market": record.Market != nil,
		})

		res := rules.Evaluate(record, snapshot, ruleSet)

		for _, skip := range res.Skipped {
			p.log.Debug().
				Str("rule_id", skip.RuleID).
				Str("symbol", skip.Symbol).
				Str("reason", skip.Reason).
				Msg("Rule skipped")
		}

		for _, violation := range res.Violations {
			if !p.dedup.Admit(violation.ViolationKey) {
				p.events.Emit(events.ViolationSuppressed, "pipeline", map[string]interface{}{
					"violation_key": violation.ViolationKey,
				})
				continue
			}

			p.events.Emit(events.ViolationDetected, "pipeline", map[string]interface{}{
				"event_id":      violation.EventID,
				"violation_key": violation.ViolationKey,
				"severity":      string(violation.Severity),
			})

			if err := p.workflows.Submit(ctx, violation); err != nil {
				return admitted, err
			}
			admitted++
		}
	}
	return admitted, nil
}
