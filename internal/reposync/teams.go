package reposync

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/githubapi"
)

const (
	teamForgeNotConfiguredMessageConstant    = "team forge not configured"
	organizationNotConfiguredMessageConstant = "team organization not configured"

	teamLookupFailedMessageConstant      = "Unable to resolve team"
	teamAssignmentFailedMessageConstant  = "Team assignment failed"
	teamAssignedMessageConstant          = "Repository assigned to team"
	teamAssignmentSummaryMessageConstant = "Team assignment completed"

	teamFieldConstant         = "team"
	statusCodeFieldConstant   = "status_code"
	successCountFieldConstant = "success"
	failureCountFieldConstant = "failure"
)

// Sentinel errors returned by NewTeamAssigner.
var (
	ErrTeamForgeNotConfigured    = errors.New(teamForgeNotConfiguredMessageConstant)
	ErrOrganizationNotConfigured = errors.New(organizationNotConfiguredMessageConstant)
)

// TeamForge resolves teams and grants repository permissions at the destination.
type TeamForge interface {
	GetTeamBySlug(executionContext context.Context, organization string, slug string) (githubapi.Team, error)
	AddRepositoryToTeam(executionContext context.Context, team githubapi.Team, owner string, repository string, permission string) error
}

// AssignmentCounts tallies permission grants for one team.
type AssignmentCounts struct {
	Success int
	Failure int
}

// TeamAssigner grants teams admin permission on destination repositories.
type TeamAssigner struct {
	logger       *zap.Logger
	forge        TeamForge
	organization string
	metrics      *Metrics
}

// NewTeamAssigner constructs a TeamAssigner for the organization. metrics may be nil.
func NewTeamAssigner(logger *zap.Logger, forge TeamForge, organization string, metrics *Metrics) (*TeamAssigner, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if forge == nil {
		return nil, ErrTeamForgeNotConfigured
	}
	if len(organization) == 0 {
		return nil, ErrOrganizationNotConfigured
	}
	return &TeamAssigner{logger: logger, forge: forge, organization: organization, metrics: metrics}, nil
}

// Assign grants every team admin permission on its destination repositories. The grant is a full
// replace, so repeating it for an existing assignment succeeds again. A team that cannot be resolved
// records zero assignments and the remaining teams are still processed.
func (assigner *TeamAssigner) Assign(executionContext context.Context, teamRepositories map[string][]string) (map[string]AssignmentCounts, error) {
	teamNames := make([]string, 0, len(teamRepositories))
	for teamName := range teamRepositories {
		teamNames = append(teamNames, teamName)
	}
	sort.Strings(teamNames)

	assignmentCounts := make(map[string]AssignmentCounts, len(teamNames))
	for _, teamName := range teamNames {
		if contextError := executionContext.Err(); contextError != nil {
			return assignmentCounts, contextError
		}

		teamLogger := assigner.logger.With(zap.String(teamFieldConstant, teamName))
		counts := AssignmentCounts{}
		team, lookupError := assigner.forge.GetTeamBySlug(executionContext, assigner.organization, teamName)
		if lookupError != nil {
			teamLogger.Error(teamLookupFailedMessageConstant, statusCodeField(lookupError), zap.Error(lookupError))
			assignmentCounts[teamName] = counts
			continue
		}

		for _, repositoryName := range uniqueStrings(teamRepositories[teamName]) {
			assignError := assigner.forge.AddRepositoryToTeam(executionContext, team, assigner.organization, repositoryName, githubapi.PermissionAdmin)
			assigner.metrics.recordTeamAssignment(assignError == nil)
			if assignError != nil {
				if errors.Is(assignError, context.Canceled) || errors.Is(assignError, context.DeadlineExceeded) {
					assignmentCounts[teamName] = counts
					return assignmentCounts, assignError
				}
				counts.Failure++
				teamLogger.Error(teamAssignmentFailedMessageConstant,
					zap.String(repositoryFieldConstant, repositoryName),
					statusCodeField(assignError),
					zap.Error(assignError),
				)
				continue
			}
			counts.Success++
			teamLogger.Debug(teamAssignedMessageConstant, zap.String(repositoryFieldConstant, repositoryName))
		}

		assignmentCounts[teamName] = counts
		teamLogger.Info(teamAssignmentSummaryMessageConstant, zap.Int(successCountFieldConstant, counts.Success), zap.Int(failureCountFieldConstant, counts.Failure))
	}
	return assignmentCounts, nil
}

func statusCodeField(err error) zap.Field {
	statusCode, available := githubapi.StatusCode(err)
	if !available {
		return zap.Skip()
	}
	return zap.Int(statusCodeFieldConstant, statusCode)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if _, duplicate := seen[value]; duplicate {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}
