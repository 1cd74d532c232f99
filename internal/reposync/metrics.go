package reposync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/temirov/reposync/internal/execshell"
)

const (
	metricsNamespaceConstant = "reposync"

	// Repository outcomes.
	OutcomeSynced  = "synced"
	OutcomeCreated = "created"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"

	// Ref kinds.
	RefKindTag    = "tag"
	RefKindBranch = "branch"

	outcomeSuccessConstant = "success"
	outcomeFailureConstant = "failure"
)

// Metrics records run counters. A nil *Metrics discards every observation.
type Metrics struct {
	registry            *prometheus.Registry
	repositoryCount     *prometheus.CounterVec
	refPushCount        *prometheus.CounterVec
	teamAssignmentCount *prometheus.CounterVec
	gitCommandCount     *prometheus.CounterVec
	lastRunTimestamp    prometheus.Gauge
}

// NewMetrics registers the run metrics on a private registry.
// Available metrics are...
//   - reposync_repositories_total - (tags: outcome)
//   - reposync_ref_pushes_total - (tags: kind, outcome)
//   - reposync_team_assignments_total - (tags: outcome)
//   - reposync_git_commands_total - (tags: subcommand, outcome)
//   - reposync_last_run_timestamp_seconds
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		repositoryCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "repositories_total",
			Help:      "Count of repositories processed by outcome",
		}, []string{"outcome"}),
		refPushCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "ref_pushes_total",
			Help:      "Count of tag and branch pushes",
		}, []string{
			// tag or branch
			"kind",
			"outcome",
		}),
		teamAssignmentCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "team_assignments_total",
			Help:      "Count of team permission grants",
		}, []string{"outcome"}),
		gitCommandCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "git_commands_total",
			Help:      "Count of git invocations",
		}, []string{"subcommand", "outcome"}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespaceConstant,
			Name:      "last_run_timestamp_seconds",
			Help:      "Timestamp of the last completed run",
		}),
	}
}

// Registry exposes the underlying registry.
func (metrics *Metrics) Registry() *prometheus.Registry {
	if metrics == nil {
		return nil
	}
	return metrics.registry
}

// WriteTextfile marks the run complete and writes all metrics in the node exporter textfile format.
func (metrics *Metrics) WriteTextfile(filePath string) error {
	if metrics == nil {
		return nil
	}
	metrics.lastRunTimestamp.SetToCurrentTime()
	return prometheus.WriteToTextfile(filePath, metrics.registry)
}

func (metrics *Metrics) recordRepository(outcome string) {
	if metrics == nil {
		return
	}
	metrics.repositoryCount.WithLabelValues(outcome).Inc()
}

func (metrics *Metrics) recordRefPush(kind string, succeeded bool) {
	if metrics == nil {
		return
	}
	metrics.refPushCount.WithLabelValues(kind, outcomeLabel(succeeded)).Inc()
}

func (metrics *Metrics) recordTeamAssignment(succeeded bool) {
	if metrics == nil {
		return
	}
	metrics.teamAssignmentCount.WithLabelValues(outcomeLabel(succeeded)).Inc()
}

// CommandStarted implements execshell.CommandEventObserver.
func (metrics *Metrics) CommandStarted(execshell.ShellCommand) {}

// CommandCompleted implements execshell.CommandEventObserver.
func (metrics *Metrics) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if metrics == nil {
		return
	}
	metrics.gitCommandCount.WithLabelValues(subcommandLabel(command), outcomeLabel(result.ExitCode == 0)).Inc()
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (metrics *Metrics) CommandExecutionFailed(command execshell.ShellCommand, _ error) {
	if metrics == nil {
		return
	}
	metrics.gitCommandCount.WithLabelValues(subcommandLabel(command), outcomeFailureConstant).Inc()
}

func subcommandLabel(command execshell.ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return string(command.Name)
	}
	return command.Details.Arguments[0]
}

func outcomeLabel(succeeded bool) string {
	if succeeded {
		return outcomeSuccessConstant
	}
	return outcomeFailureConstant
}
