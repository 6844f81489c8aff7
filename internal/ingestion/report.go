package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/alerts"
	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

// State is the position of an item in the ingestion state machine:
// scraped -> skipped | deduped -> structured -> embedded -> stored, or failed.
type State string

const (
	StateScraped    State = "scraped"
	StateSkipped    State = "skipped"
	StateDeduped    State = "deduped"
	StateStructured State = "structured"
	StateEmbedded   State = "embedded"
	StateStored     State = "stored"
	StateFailed     State = "failed"
)

// Source hands scraped items to the pipeline.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.ScrapedItem, error)
}

// AlertOutcome is what happened on the alerting side of a stored item.
type AlertOutcome struct {
	alerts.Report
	MatchFailed bool
}

// ItemResult is the terminal state of one item.
type ItemResult struct {
	Title     string
	State     State
	PostingID string
	// Degraded is set when structuring fell back to the scraped fields.
	Degraded bool
	Reason   string
	Err      error
	Alerts   AlertOutcome
}

// Report summarises one run.
type Report struct {
	Items        []ItemResult
	Stored       int
	Skipped      int
	Failed       int
	Degraded     int
	NewIDs       []string
	Alerts       alerts.Report
	MatchErrors  int
	SourceErrors int
	Duration     time.Duration
}

func newReport(items []ItemResult, took time.Duration) Report {
	r := Report{Items: items, Duration: took}
	for _, it := range items {
		switch it.State {
		case StateStored:
			r.Stored++
			r.NewIDs = append(r.NewIDs, it.PostingID)
			if it.Degraded {
				r.Degraded++
			}
		case StateSkipped:
			r.Skipped++
		default:
			r.Failed++
		}

		r.Alerts.Add(it.Alerts.Report)
		if it.Alerts.MatchFailed {
			r.MatchErrors++
		}
	}
	return r
}

// Fields renders the counters for a log line.
func (r Report) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("items", len(r.Items)),
		zap.Int("stored", r.Stored),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
		zap.Int("degraded", r.Degraded),
		zap.Int("alerts_sent", r.Alerts.Sent),
		zap.Int("alerts_skipped", r.Alerts.Skipped),
		zap.Int("alerts_failed", r.Alerts.Failed),
		zap.Int("match_errors", r.MatchErrors),
		zap.Int("source_errors", r.SourceErrors),
		zap.Duration("took", r.Duration),
	}
}
