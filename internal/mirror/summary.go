package mirror

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/processor"
	"github.com/temirov/reposync/internal/reposync"
)

const (
	summaryLogMessageConstant        = "Run summary"
	summaryRepositoryMessageConstant = "Repository incomplete"
	summaryTeamMessageConstant       = "Team assignment summary"

	summaryTitleConstant           = "Sync summary"
	summaryTotalsTemplateConstant  = "considered: %d  synced: %d  newly migrated: %d  partial: %d  failed: %d  skipped: %d\n"
	summarySkippedTemplateConstant = "  skipped %s/%s: %s"
	summaryProjectTemplateConstant = "  project %s failed: %s"
	summaryIncompleteTemplate      = "  %s/%s %s"
	summaryFailedTagsTemplate      = " tags[%s]"
	summaryFailedBranchesTemplate  = " branches[%s]"
	summaryErrorTemplate           = " error: %s"
	summaryTeamTemplateConstant    = "  team %s: %d assigned, %d failed\n"
	summaryListSeparatorConstant   = ","
	summaryLineTerminatorConstant  = "\n"
	summaryColorTitleConstant      = "99"
	summaryColorFailureConstant    = "204"
	summaryColorSkippedConstant    = "244"

	consideredFieldConstant     = "considered"
	syncedFieldConstant         = "synced"
	newlyMigratedFieldConstant  = "newly_migrated"
	partialFieldConstant        = "partial"
	failedFieldConstant         = "failed"
	skippedFieldConstant        = "skipped"
	failedTagsFieldConstant     = "failed_tags"
	failedBranchesFieldConstant = "failed_branches"
	outcomeFieldConstant        = "outcome"
	errorFieldConstant          = "error"
	teamFieldConstant           = "team"
	successCountFieldConstant   = "success"
	failureCountFieldConstant   = "failure"
)

var (
	summaryTitleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(summaryColorTitleConstant)).Bold(true)
	summaryFailureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(summaryColorFailureConstant))
	summarySkippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(summaryColorSkippedConstant))
)

// SkippedEntry records a repository left out of a run.
type SkippedEntry struct {
	ProjectKey string
	Name       string
	Reason     string
}

// ProjectFailure records a project that could not be listed.
type ProjectFailure struct {
	ProjectKey string
	Message    string
}

// RepositoryEntry pairs a repository report with its project.
type RepositoryEntry struct {
	ProjectKey string
	Report     reposync.RepositoryReport
}

// RunSummary accumulates the results of a run. A nil *RunSummary discards every record.
type RunSummary struct {
	Considered      int
	Skipped         []SkippedEntry
	ProjectFailures []ProjectFailure
	Repositories    []RepositoryEntry
	TeamAssignments map[string]reposync.AssignmentCounts
}

// NewRunSummary returns an empty summary.
func NewRunSummary() *RunSummary {
	return &RunSummary{TeamAssignments: map[string]reposync.AssignmentCounts{}}
}

// RecordConsidered adds resolved repositories to the considered total.
func (summary *RunSummary) RecordConsidered(count int) {
	if summary == nil {
		return
	}
	summary.Considered += count
}

// RecordSkipped stores repositories that were excluded before syncing.
func (summary *RunSummary) RecordSkipped(projectKey string, skipped []processor.SkippedRepository) {
	if summary == nil {
		return
	}
	for _, skippedRepository := range skipped {
		summary.Skipped = append(summary.Skipped, SkippedEntry{ProjectKey: projectKey, Name: skippedRepository.Name, Reason: skippedRepository.Reason})
	}
}

// RecordProjectFailure stores a project whose repositories could not be listed.
func (summary *RunSummary) RecordProjectFailure(projectKey string, err error) {
	if summary == nil || err == nil {
		return
	}
	summary.ProjectFailures = append(summary.ProjectFailures, ProjectFailure{ProjectKey: projectKey, Message: err.Error()})
}

// RecordSync stores per-repository reports and team assignment counts.
func (summary *RunSummary) RecordSync(projectKey string, report reposync.Report) {
	if summary == nil {
		return
	}
	for _, repositoryReport := range report.Repositories {
		summary.Repositories = append(summary.Repositories, RepositoryEntry{ProjectKey: projectKey, Report: repositoryReport})
	}
	summary.RecordTeamAssignments(report.TeamAssignments)
}

// RecordTeamAssignments merges per-team counts.
func (summary *RunSummary) RecordTeamAssignments(counts map[string]reposync.AssignmentCounts) {
	if summary == nil {
		return
	}
	if summary.TeamAssignments == nil {
		summary.TeamAssignments = map[string]reposync.AssignmentCounts{}
	}
	for teamName, teamCounts := range counts {
		existing := summary.TeamAssignments[teamName]
		existing.Success += teamCounts.Success
		existing.Failure += teamCounts.Failure
		summary.TeamAssignments[teamName] = existing
	}
}

// SummaryTotals are the headline counts of a run.
type SummaryTotals struct {
	Considered    int
	Synced        int
	NewlyMigrated int
	Partial       int
	Failed        int
	Skipped       int
}

// Totals computes headline counts from the recorded reports.
func (summary *RunSummary) Totals() SummaryTotals {
	if summary == nil {
		return SummaryTotals{}
	}
	totals := SummaryTotals{Considered: summary.Considered, Skipped: len(summary.Skipped)}
	for _, entry := range summary.Repositories {
		switch entry.Report.Outcome {
		case reposync.OutcomeFailed:
			totals.Failed++
			continue
		case reposync.OutcomePartial:
			totals.Partial++
		}
		totals.Synced++
		if entry.Report.IsNewMigration {
			totals.NewlyMigrated++
		}
	}
	return totals
}

// Log writes the summary as structured log entries.
func (summary *RunSummary) Log(logger *zap.Logger) {
	if summary == nil || logger == nil {
		return
	}
	totals := summary.Totals()
	logger.Info(summaryLogMessageConstant,
		zap.Int(consideredFieldConstant, totals.Considered),
		zap.Int(syncedFieldConstant, totals.Synced),
		zap.Int(newlyMigratedFieldConstant, totals.NewlyMigrated),
		zap.Int(partialFieldConstant, totals.Partial),
		zap.Int(failedFieldConstant, totals.Failed),
		zap.Int(skippedFieldConstant, totals.Skipped),
	)
	for _, entry := range summary.incompleteRepositories() {
		logger.Warn(summaryRepositoryMessageConstant,
			zap.String(projectKeyFieldConstant, entry.ProjectKey),
			zap.String(repositoryFieldConstant, entry.Report.Name),
			zap.String(outcomeFieldConstant, entry.Report.Outcome),
			zap.Strings(failedTagsFieldConstant, entry.Report.Refs.Tags.Failed),
			zap.Strings(failedBranchesFieldConstant, entry.Report.Refs.Branches.Failed),
			zap.String(errorFieldConstant, entry.Report.Error),
		)
	}
	for _, teamName := range summary.teamNames() {
		counts := summary.TeamAssignments[teamName]
		logger.Info(summaryTeamMessageConstant,
			zap.String(teamFieldConstant, teamName),
			zap.Int(successCountFieldConstant, counts.Success),
			zap.Int(failureCountFieldConstant, counts.Failure),
		)
	}
}

// Render writes a human readable summary.
func (summary *RunSummary) Render(writer io.Writer) error {
	if summary == nil || writer == nil {
		return nil
	}
	totals := summary.Totals()
	var builder strings.Builder
	builder.WriteString(summaryTitleStyle.Render(summaryTitleConstant))
	builder.WriteString(summaryLineTerminatorConstant)
	builder.WriteString(fmt.Sprintf(summaryTotalsTemplateConstant, totals.Considered, totals.Synced, totals.NewlyMigrated, totals.Partial, totals.Failed, totals.Skipped))

	for _, failure := range summary.ProjectFailures {
		builder.WriteString(summaryFailureStyle.Render(fmt.Sprintf(summaryProjectTemplateConstant, failure.ProjectKey, failure.Message)))
		builder.WriteString(summaryLineTerminatorConstant)
	}
	for _, skipped := range summary.Skipped {
		builder.WriteString(summarySkippedStyle.Render(fmt.Sprintf(summarySkippedTemplateConstant, skipped.ProjectKey, skipped.Name, skipped.Reason)))
		builder.WriteString(summaryLineTerminatorConstant)
	}
	for _, entry := range summary.incompleteRepositories() {
		line := fmt.Sprintf(summaryIncompleteTemplate, entry.ProjectKey, entry.Report.Name, entry.Report.Outcome)
		if len(entry.Report.Refs.Tags.Failed) > 0 {
			line += fmt.Sprintf(summaryFailedTagsTemplate, strings.Join(entry.Report.Refs.Tags.Failed, summaryListSeparatorConstant))
		}
		if len(entry.Report.Refs.Branches.Failed) > 0 {
			line += fmt.Sprintf(summaryFailedBranchesTemplate, strings.Join(entry.Report.Refs.Branches.Failed, summaryListSeparatorConstant))
		}
		if len(entry.Report.Error) > 0 {
			line += fmt.Sprintf(summaryErrorTemplate, entry.Report.Error)
		}
		builder.WriteString(summaryFailureStyle.Render(line))
		builder.WriteString(summaryLineTerminatorConstant)
	}
	for _, teamName := range summary.teamNames() {
		counts := summary.TeamAssignments[teamName]
		builder.WriteString(fmt.Sprintf(summaryTeamTemplateConstant, teamName, counts.Success, counts.Failure))
	}

	_, writeError := io.WriteString(writer, builder.String())
	return writeError
}

func (summary *RunSummary) incompleteRepositories() []RepositoryEntry {
	incomplete := make([]RepositoryEntry, 0)
	for _, entry := range summary.Repositories {
		if entry.Report.Outcome == reposync.OutcomePartial || entry.Report.Outcome == reposync.OutcomeFailed {
			incomplete = append(incomplete, entry)
		}
	}
	return incomplete
}

func (summary *RunSummary) teamNames() []string {
	names := make([]string, 0, len(summary.TeamAssignments))
	for teamName := range summary.TeamAssignments {
		names = append(names, teamName)
	}
	sort.Strings(names)
	return names
}
