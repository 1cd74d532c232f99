package mirror

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/reposync"
)

const (
	sessionPrompterMissingMessageConstant = "interactive prompter not configured"
	sessionServiceMissingMessageConstant  = "interactive service not configured"
	sessionCancelledMessageConstant       = "Sync cancelled by operator"
	sessionNoSelectionMessageConstant     = "No repositories selected"
	sessionNoTeamsMessageConstant         = "No teams selected"
	sessionDestinationMessageConstant     = "Push destination selected"
	pushToOrganizationFieldConstant       = "push_to_organization"
)

// Sentinel errors returned by NewSession.
var (
	ErrPrompterNotConfigured = errors.New(sessionPrompterMissingMessageConstant)
	ErrServiceNotConfigured  = errors.New(sessionServiceMissingMessageConstant)
)

// Session walks an operator through one project sync.
type Session struct {
	logger   *zap.Logger
	service  *Service
	prompter Prompter
}

// NewSession binds a service to a prompter.
func NewSession(logger *zap.Logger, service *Service, prompter Prompter) (*Session, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if service == nil {
		return nil, ErrServiceNotConfigured
	}
	if prompter == nil {
		return nil, ErrPrompterNotConfigured
	}
	return &Session{logger: logger, service: service, prompter: prompter}, nil
}

// Run asks for a destination, a project and its repositories, syncs them after confirmation,
// and finally offers team assignment for the repositories migrated by this run.
func (session *Session) Run(executionContext context.Context, summary *RunSummary) error {
	pushToOrganization, destinationError := session.prompter.SelectDestination(executionContext)
	if destinationError != nil {
		return destinationError
	}
	session.logger.Debug(sessionDestinationMessageConstant, zap.Bool(pushToOrganizationFieldConstant, pushToOrganization))
	if checkError := session.service.CheckDestination(executionContext, pushToOrganization); checkError != nil {
		return checkError
	}

	projects, projectsError := session.service.ListProjects(executionContext)
	if projectsError != nil {
		return projectsError
	}
	projectKey, projectError := session.prompter.SelectProject(executionContext, projects)
	if projectError != nil {
		return projectError
	}
	if checkError := session.service.CheckSource(executionContext, projectKey); checkError != nil {
		return checkError
	}

	repositoryNames, listError := session.service.ListRepositories(executionContext, projectKey)
	if listError != nil {
		return listError
	}
	selectedNames, selectionError := session.prompter.SelectRepositories(executionContext, repositoryNames)
	if selectionError != nil {
		return selectionError
	}
	if len(selectedNames) == 0 {
		session.logger.Info(sessionNoSelectionMessageConstant, zap.String(projectKeyFieldConstant, projectKey))
		return nil
	}

	result, processError := session.service.ProcessSelection(executionContext, projectKey, selectedNames, pushToOrganization, summary)
	if processError != nil {
		return processError
	}

	confirmed, confirmError := session.prompter.ConfirmSync(executionContext, len(result.Repositories), result.NewCount)
	if confirmError != nil {
		return confirmError
	}
	if !confirmed {
		session.logger.Info(sessionCancelledMessageConstant, zap.String(projectKeyFieldConstant, projectKey))
		return nil
	}

	report, syncError := session.service.SyncSelection(executionContext, projectKey, result.Repositories, pushToOrganization, summary)
	if syncError != nil {
		return syncError
	}
	if !pushToOrganization {
		return nil
	}

	migratedNames := newlyMigratedDestinations(report)
	if len(migratedNames) == 0 {
		return nil
	}
	return session.assignTeams(executionContext, migratedNames, summary)
}

func (session *Session) assignTeams(executionContext context.Context, migratedNames []string, summary *RunSummary) error {
	teamSlugs, teamsError := session.service.ListTeams(executionContext)
	if teamsError != nil {
		return teamsError
	}
	selectedTeams, selectionError := session.prompter.SelectTeams(executionContext, teamSlugs)
	if selectionError != nil {
		return selectionError
	}
	if len(selectedTeams) == 0 {
		session.logger.Info(sessionNoTeamsMessageConstant)
		return nil
	}

	teamRepositories := make(map[string][]string, len(selectedTeams))
	for _, teamSlug := range selectedTeams {
		chosenRepositories, chooseError := session.prompter.SelectTeamRepositories(executionContext, teamSlug, migratedNames)
		if chooseError != nil {
			return chooseError
		}
		if len(chosenRepositories) > 0 {
			teamRepositories[teamSlug] = chosenRepositories
		}
	}
	return session.service.AssignTeams(executionContext, teamRepositories, summary)
}

func newlyMigratedDestinations(report reposync.Report) []string {
	names := make([]string, 0)
	for _, repositoryReport := range report.Repositories {
		if repositoryReport.IsNewMigration && repositoryReport.Outcome != reposync.OutcomeFailed {
			names = append(names, repositoryReport.DestinationName)
		}
	}
	return names
}
