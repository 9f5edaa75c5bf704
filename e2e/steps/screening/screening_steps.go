package screening

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cucumber/godog"

	"screener/internal/decision"
	"screener/internal/domain"
	"screener/internal/snapshot"
	dErrors "screener/pkg/domain-errors"
	"screener/pkg/platform/audit"
)

// TestContext is the part of the scenario state these steps drive.
type TestContext interface {
	SetThresholds(t decision.Thresholds)
	InstallSnapshot(doc snapshot.Document) error
	Screen(ctx context.Context, raw string) error
	LastDecision() *domain.Decision
	LastError() error
	AuditEvents(ctx context.Context) ([]audit.Event, error)
}

// RegisterSteps registers screening step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &screeningSteps{tc: tc}

	ctx.Step(`^decision thresholds block ([\d.]+) escalate ([\d.]+) cluster margin ([\d.]+) size (\d+)$`, steps.thresholds)
	ctx.Step(`^a reference snapshot version (\d+) with entries:$`, steps.snapshotWithEntries)
	ctx.Step(`^the snapshot is replaced by version (\d+) with entries:$`, steps.snapshotWithEntries)
	ctx.Step(`^no reference snapshot is loaded$`, steps.noSnapshot)

	ctx.Step(`^I screen "([^"]*)"$`, steps.screen)

	ctx.Step(`^the action is "([^"]*)"$`, steps.actionIs)
	ctx.Step(`^the rule fired is "([^"]*)"$`, steps.ruleIs)
	ctx.Step(`^the top candidate is "([^"]*)"$`, steps.topCandidateIs)
	ctx.Step(`^the matched entries are "([^"]*)"$`, steps.matchedEntriesAre)
	ctx.Step(`^no candidates are matched$`, steps.noCandidates)
	ctx.Step(`^the decision records snapshot version (\d+)$`, steps.snapshotVersionIs)
	ctx.Step(`^screening fails with "([^"]*)"$`, steps.failsWith)
	ctx.Step(`^a "([^"]*)" audit event records "([^"]*)"$`, steps.auditEventRecords)
	ctx.Step(`^no audit events are recorded$`, steps.noAuditEvents)
}

type screeningSteps struct {
	tc TestContext
}

func (s *screeningSteps) thresholds(block, escalate, margin float64, size int) error {
	s.tc.SetThresholds(decision.Thresholds{Block: block, Escalate: escalate, ClusterMargin: margin, ClusterSize: size})
	return nil
}

// snapshotWithEntries reads a table of id, source and names, with aliases
// separated by semicolons.
func (s *screeningSteps) snapshotWithEntries(version int, table *godog.Table) error {
	doc := snapshot.Document{Version: uint64(version)}
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) != 3 {
			return fmt.Errorf("row %d: want id, source and names", i)
		}
		var names []string
		for _, n := range strings.Split(row.Cells[2].Value, ";") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		doc.Entries = append(doc.Entries, snapshot.RawEntry{
			ID:     row.Cells[0].Value,
			Source: row.Cells[1].Value,
			Names:  names,
		})
	}
	return s.tc.InstallSnapshot(doc)
}

func (s *screeningSteps) noSnapshot() error {
	return nil
}

func (s *screeningSteps) screen(ctx context.Context, raw string) error {
	return s.tc.Screen(ctx, raw)
}

func (s *screeningSteps) decision() (*domain.Decision, error) {
	if err := s.tc.LastError(); err != nil {
		return nil, fmt.Errorf("screening failed: %w", err)
	}
	d := s.tc.LastDecision()
	if d == nil {
		return nil, fmt.Errorf("no decision recorded")
	}
	return d, nil
}

func (s *screeningSteps) actionIs(want string) error {
	d, err := s.decision()
	if err != nil {
		return err
	}
	if string(d.Action) != want {
		return fmt.Errorf("expected action %s, got %s (%s)", want, d.Action, d.Rationale)
	}
	return nil
}

func (s *screeningSteps) ruleIs(want string) error {
	d, err := s.decision()
	if err != nil {
		return err
	}
	if d.RuleFired != want {
		return fmt.Errorf("expected rule %s, got %s", want, d.RuleFired)
	}
	return nil
}

func (s *screeningSteps) topCandidateIs(want string) error {
	d, err := s.decision()
	if err != nil {
		return err
	}
	if len(d.MatchedCandidates) == 0 || d.MatchedCandidates[0].EntryID != want {
		return fmt.Errorf("expected top candidate %s, got %v", want, d.EntryIDs())
	}
	return nil
}

func (s *screeningSteps) matchedEntriesAre(list string) error {
	d, err := s.decision()
	if err != nil {
		return err
	}
	var want []string
	for _, id := range strings.Split(list, ",") {
		want = append(want, strings.TrimSpace(id))
	}
	if got := d.EntryIDs(); !slices.Equal(got, want) {
		return fmt.Errorf("expected entries %v, got %v", want, got)
	}
	return nil
}

func (s *screeningSteps) noCandidates() error {
	d, err := s.decision()
	if err != nil {
		return err
	}
	if len(d.MatchedCandidates) != 0 {
		return fmt.Errorf("expected no candidates, got %v", d.EntryIDs())
	}
	return nil
}

func (s *screeningSteps) snapshotVersionIs(version int) error {
	d, err := s.decision()
	if err != nil {
		return err
	}
	if d.SnapshotVersion != uint64(version) {
		return fmt.Errorf("expected snapshot version %d, got %d", version, d.SnapshotVersion)
	}
	return nil
}

func (s *screeningSteps) failsWith(code string) error {
	err := s.tc.LastError()
	if err == nil {
		return fmt.Errorf("expected %s error, got decision %v", code, s.tc.LastDecision())
	}
	if !dErrors.HasCode(err, dErrors.Code(code)) {
		return fmt.Errorf("expected %s error, got %v", code, err)
	}
	return nil
}

func (s *screeningSteps) auditEventRecords(ctx context.Context, action, outcome string) error {
	events, err := s.tc.AuditEvents(ctx)
	if err != nil {
		return err
	}
	for _, e := range events {
		if e.Action == action && e.Decision == outcome {
			return nil
		}
	}
	return fmt.Errorf("no %s event recording %s among %d events", action, outcome, len(events))
}

func (s *screeningSteps) noAuditEvents(ctx context.Context) error {
	events, err := s.tc.AuditEvents(ctx)
	if err != nil {
		return err
	}
	if len(events) != 0 {
		return fmt.Errorf("expected no audit events, got %d", len(events))
	}
	return nil
}
