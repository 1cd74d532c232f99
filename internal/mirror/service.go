package mirror

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/credentials"
	"github.com/temirov/reposync/internal/githubapi"
	"github.com/temirov/reposync/internal/gitref"
	"github.com/temirov/reposync/internal/processor"
	"github.com/temirov/reposync/internal/reposync"
	"github.com/temirov/reposync/internal/resolver"
	"github.com/temirov/reposync/internal/syncconfig"
)

const (
	loggerMissingMessageConstant      = "mirror logger not configured"
	sourceMissingMessageConstant      = "source forge not configured"
	destinationMissingMessageConstant = "destination forge not configured"
	driverMissingMessageConstant      = "git driver not configured"
	credentialCheckTemplateConstant   = "credential check failed: %w"
	syncErrorTemplateConstant         = "sync of project %s failed: %w"

	listRepositoriesFailedMessageConstant = "Unable to list source repositories"
	listTeamsFailedMessageConstant        = "Unable to list destination teams"
	teamsLoadedMessageConstant            = "Destination teams loaded"
	blockedRepositoryMessageConstant      = "Repository skipped because new migrations are blocked"
	projectStartedMessageConstant         = "Synchronizing project"
	noRepositoriesMessageConstant         = "No repositories to synchronize"

	projectKeyFieldConstant = "project_key"
	repositoryFieldConstant = "repository"
	countFieldConstant      = "count"

	blockedReasonConstant = "new migrations blocked"
)

// Sentinel errors returned by NewService.
var (
	ErrLoggerNotConfigured      = errors.New(loggerMissingMessageConstant)
	ErrSourceNotConfigured      = errors.New(sourceMissingMessageConstant)
	ErrDestinationNotConfigured = errors.New(destinationMissingMessageConstant)
	ErrDriverNotConfigured      = errors.New(driverMissingMessageConstant)
)

// SourceForge captures the Bitbucket operations used by a run.
type SourceForge interface {
	ListProjects(executionContext context.Context) ([]bitbucket.Project, error)
	ListRepositories(executionContext context.Context, projectKey string) ([]string, error)
	GetRepository(executionContext context.Context, projectKey string, repositoryName string) (bitbucket.RepositoryMetadata, error)
	CheckProjectAccess(executionContext context.Context, projectKey string) error
}

// DestinationForge captures the GitHub operations used by a run.
type DestinationForge interface {
	GetRepository(executionContext context.Context, owner string, name string) (githubapi.RepositoryState, error)
	CreateRepository(executionContext context.Context, organization string, name string, description *string) (string, error)
	ListTeams(executionContext context.Context, organization string) ([]githubapi.Team, error)
	GetTeamBySlug(executionContext context.Context, organization string, slug string) (githubapi.Team, error)
	AddRepositoryToTeam(executionContext context.Context, team githubapi.Team, owner string, repository string, permission string) error
	AuthenticatedUser(executionContext context.Context) (string, error)
	IsOrganizationMember(executionContext context.Context, organization string, account string) (bool, error)
	CheckPersonalRepositoryAccess(executionContext context.Context, account string) error
}

// ServiceDependencies enumerates collaborators for the run pipeline.
type ServiceDependencies struct {
	Logger      *zap.Logger
	Source      SourceForge
	Destination DestinationForge
	GitDriver   gitref.Driver
	Metrics     *reposync.Metrics
}

// RunSettings carries the resolved configuration of a run. SyncDirectory is absolute.
type RunSettings struct {
	TargetOrganization string
	RepositoryPrefix   string
	MasterBranchPrefix string
	SyncDirectory      string
	Credentials        reposync.Credentials
}

// AutoOptions selects the push destination and migration policy of an auto run.
type AutoOptions struct {
	PushToOrganization bool
	BlockNewMigrations bool
}

// Service executes mirror runs.
type Service struct {
	logger       *zap.Logger
	source       SourceForge
	destination  DestinationForge
	checker      *credentials.Checker
	resolver     *resolver.Resolver
	processor    *processor.Processor
	orchestrator *reposync.Orchestrator
	teamAssigner *reposync.TeamAssigner
	settings     RunSettings
}

// NewService wires the pipeline stages from dependencies and settings.
func NewService(dependencies ServiceDependencies, settings RunSettings) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.Source == nil {
		return nil, ErrSourceNotConfigured
	}
	if dependencies.Destination == nil {
		return nil, ErrDestinationNotConfigured
	}
	if dependencies.GitDriver == nil {
		return nil, ErrDriverNotConfigured
	}
	logger := dependencies.Logger

	checker, checkerError := credentials.NewChecker(logger, dependencies.Source, dependencies.Destination)
	if checkerError != nil {
		return nil, checkerError
	}

	repositoryResolver, resolverError := resolver.NewResolver(logger)
	if resolverError != nil {
		return nil, resolverError
	}

	processorSettings := processor.Settings{
		TargetOrganization: settings.TargetOrganization,
		DestinationAccount: settings.Credentials.DestinationAccount,
		RepositoryPrefix:   settings.RepositoryPrefix,
	}
	repositoryProcessor, processorError := processor.NewProcessor(logger, dependencies.Source, dependencies.Destination, processorSettings)
	if processorError != nil {
		return nil, processorError
	}

	synchronizer, synchronizerError := reposync.NewRefSynchronizer(logger, dependencies.GitDriver, settings.MasterBranchPrefix, dependencies.Metrics)
	if synchronizerError != nil {
		return nil, synchronizerError
	}

	var teamAssigner *reposync.TeamAssigner
	if len(settings.TargetOrganization) > 0 {
		assigner, assignerError := reposync.NewTeamAssigner(logger, dependencies.Destination, settings.TargetOrganization, dependencies.Metrics)
		if assignerError != nil {
			return nil, assignerError
		}
		teamAssigner = assigner
	}

	orchestratorSettings := reposync.Settings{
		SyncDirectory:      settings.SyncDirectory,
		TargetOrganization: settings.TargetOrganization,
		RepositoryPrefix:   settings.RepositoryPrefix,
	}
	orchestrator, orchestratorError := reposync.NewOrchestrator(logger, dependencies.GitDriver, dependencies.Destination, synchronizer, teamAssigner, orchestratorSettings, dependencies.Metrics)
	if orchestratorError != nil {
		return nil, orchestratorError
	}

	return &Service{
		logger:       logger,
		source:       dependencies.Source,
		destination:  dependencies.Destination,
		checker:      checker,
		resolver:     repositoryResolver,
		processor:    repositoryProcessor,
		orchestrator: orchestrator,
		teamAssigner: teamAssigner,
		settings:     settings,
	}, nil
}

// CheckDestination verifies destination credentials for the selected push mode.
func (service *Service) CheckDestination(executionContext context.Context, pushToOrganization bool) error {
	if checkError := service.checker.CheckDestination(executionContext, pushToOrganization, service.settings.TargetOrganization, service.settings.Credentials.DestinationAccount); checkError != nil {
		return fmt.Errorf(credentialCheckTemplateConstant, checkError)
	}
	return nil
}

// CheckSource verifies source credentials for a project.
func (service *Service) CheckSource(executionContext context.Context, projectKey string) error {
	if checkError := service.checker.CheckSource(executionContext, projectKey); checkError != nil {
		return fmt.Errorf(credentialCheckTemplateConstant, checkError)
	}
	return nil
}

// RunAuto mirrors every project of the include tree. Credential failures abort the run before the
// affected project is touched; everything else degrades per repository and lands in the summary.
func (service *Service) RunAuto(executionContext context.Context, options AutoOptions, trees syncconfig.Trees, summary *RunSummary) error {
	if checkError := service.CheckDestination(executionContext, options.PushToOrganization); checkError != nil {
		return checkError
	}

	teamExists := service.teamExistenceChecker(executionContext, options.PushToOrganization)

	for _, projectKey := range trees.Include.ProjectKeys() {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		if checkError := service.CheckSource(executionContext, projectKey); checkError != nil {
			return checkError
		}

		projectLogger := service.logger.With(zap.String(projectKeyFieldConstant, projectKey))
		projectLogger.Info(projectStartedMessageConstant)

		sourceRepositoryNames, listError := service.source.ListRepositories(executionContext, projectKey)
		if listError != nil {
			if isContextError(listError) {
				return listError
			}
			projectLogger.Error(listRepositoriesFailedMessageConstant, zap.Error(listError))
			summary.RecordProjectFailure(projectKey, listError)
			continue
		}

		resolvedRepositories := service.resolver.Resolve(projectKey, sourceRepositoryNames, trees.Include, trees.Exclude, teamExists)
		if syncError := service.syncResolved(executionContext, projectKey, resolvedRepositories, options, summary); syncError != nil {
			return fmt.Errorf(syncErrorTemplateConstant, projectKey, syncError)
		}
	}
	return nil
}

// SyncSelection mirrors explicitly chosen repositories of one project. The repositories carry no
// team annotations, so team assignment is left to AssignTeams.
func (service *Service) SyncSelection(executionContext context.Context, projectKey string, processedRepositories []processor.ProcessedRepository, pushToOrganization bool, summary *RunSummary) (reposync.Report, error) {
	report, syncError := service.orchestrator.Sync(executionContext, pushToOrganization, processedRepositories, service.settings.Credentials)
	summary.RecordSync(projectKey, report)
	return report, syncError
}

// ProcessSelection classifies explicitly chosen repositories of one project.
func (service *Service) ProcessSelection(executionContext context.Context, projectKey string, repositoryNames []string, pushToOrganization bool, summary *RunSummary) (processor.Result, error) {
	resolvedRepositories := make([]resolver.ResolvedRepository, 0, len(repositoryNames))
	for _, repositoryName := range repositoryNames {
		resolvedRepositories = append(resolvedRepositories, resolver.ResolvedRepository{Name: repositoryName, Teams: []string{}})
	}
	summary.RecordConsidered(len(resolvedRepositories))

	result, processError := service.processor.Process(executionContext, projectKey, resolvedRepositories, pushToOrganization)
	summary.RecordSkipped(projectKey, result.Skipped)
	return result, processError
}

// AssignTeams grants teams admin permission on destination repositories.
func (service *Service) AssignTeams(executionContext context.Context, teamRepositories map[string][]string, summary *RunSummary) error {
	if service.teamAssigner == nil || len(teamRepositories) == 0 {
		return nil
	}
	counts, assignError := service.teamAssigner.Assign(executionContext, teamRepositories)
	summary.RecordTeamAssignments(counts)
	return assignError
}

// ListProjects returns the source projects visible to the token.
func (service *Service) ListProjects(executionContext context.Context) ([]bitbucket.Project, error) {
	return service.source.ListProjects(executionContext)
}

// ListRepositories returns the repository names of a source project.
func (service *Service) ListRepositories(executionContext context.Context, projectKey string) ([]string, error) {
	return service.source.ListRepositories(executionContext, projectKey)
}

// ListTeams returns the slugs of the target organization's teams.
func (service *Service) ListTeams(executionContext context.Context) ([]string, error) {
	teams, listError := service.destination.ListTeams(executionContext, service.settings.TargetOrganization)
	if listError != nil {
		return nil, listError
	}
	slugs := make([]string, 0, len(teams))
	for _, team := range teams {
		slugs = append(slugs, team.Slug)
	}
	return slugs, nil
}

// DestinationName returns the prefixed destination name of a source repository.
func (service *Service) DestinationName(repositoryName string) string {
	return service.settings.RepositoryPrefix + repositoryName
}

func (service *Service) syncResolved(executionContext context.Context, projectKey string, resolvedRepositories []resolver.ResolvedRepository, options AutoOptions, summary *RunSummary) error {
	summary.RecordConsidered(len(resolvedRepositories))
	if len(resolvedRepositories) == 0 {
		service.logger.Info(noRepositoriesMessageConstant, zap.String(projectKeyFieldConstant, projectKey))
		return nil
	}

	result, processError := service.processor.Process(executionContext, projectKey, resolvedRepositories, options.PushToOrganization)
	summary.RecordSkipped(projectKey, result.Skipped)
	if processError != nil {
		return processError
	}

	repositories := result.Repositories
	if options.BlockNewMigrations {
		repositories = service.filterBlocked(projectKey, repositories, summary)
	}
	if len(repositories) == 0 {
		service.logger.Info(noRepositoriesMessageConstant, zap.String(projectKeyFieldConstant, projectKey))
		return nil
	}

	report, syncError := service.orchestrator.Sync(executionContext, options.PushToOrganization, repositories, service.settings.Credentials)
	summary.RecordSync(projectKey, report)
	return syncError
}

func (service *Service) filterBlocked(projectKey string, repositories []processor.ProcessedRepository, summary *RunSummary) []processor.ProcessedRepository {
	allowed := make([]processor.ProcessedRepository, 0, len(repositories))
	blocked := make([]processor.SkippedRepository, 0)
	for _, repository := range repositories {
		if repository.HasDestination() {
			allowed = append(allowed, repository)
			continue
		}
		service.logger.Info(blockedRepositoryMessageConstant, zap.String(projectKeyFieldConstant, projectKey), zap.String(repositoryFieldConstant, repository.Name))
		blocked = append(blocked, processor.SkippedRepository{Name: repository.Name, Reason: blockedReasonConstant})
	}
	summary.RecordSkipped(projectKey, blocked)
	return allowed
}

// teamExistenceChecker lists the organization's teams once per run. In personal mode every team is
// accepted because teams are never assigned there.
func (service *Service) teamExistenceChecker(executionContext context.Context, pushToOrganization bool) resolver.TeamExistenceChecker {
	if !pushToOrganization {
		return nil
	}
	teamSlugs, listError := service.ListTeams(executionContext)
	if listError != nil {
		service.logger.Error(listTeamsFailedMessageConstant, zap.Error(listError))
		return func(string) bool { return false }
	}
	knownTeams := make(map[string]struct{}, len(teamSlugs))
	for _, slug := range teamSlugs {
		knownTeams[slug] = struct{}{}
	}
	service.logger.Debug(teamsLoadedMessageConstant, zap.Int(countFieldConstant, len(knownTeams)))
	return func(teamName string) bool {
		_, known := knownTeams[teamName]
		return known
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
