package reposync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/gitref"
	"github.com/temirov/reposync/internal/processor"
)

const (
	destinationNotConfiguredMessageConstant  = "destination forge not configured"
	synchronizerNotConfiguredMessageConstant = "ref synchronizer not configured"
	syncDirectoryRequiredMessageConstant     = "sync directory must be an absolute path"
	emptyCloneURLMessageConstant             = "destination returned an empty clone url"
	syncDirectoryErrorTemplateConstant       = "unable to prepare sync directory %s: %w"

	destinationCreationFailedMessageConstant = "Unable to create destination repository"
	destinationCreatedMessageConstant        = "Destination repository created"
	cloneFailedMessageConstant               = "Unable to clone source repository"
	cloneCleanupFailedMessageConstant        = "Unable to remove partial clone"
	cloneCreatedMessageConstant              = "Source repository cloned"
	tagSyncFailedMessageConstant             = "Tag synchronization aborted"
	branchSyncFailedMessageConstant          = "Branch synchronization aborted"
	repositorySyncedMessageConstant          = "Repository synchronized"
	teamAssignmentSkippedMessageConstant     = "Team assignment skipped for repository without destination"
	failedRepositoryTeamsMessageConstant     = "Team assignment skipped for repository that failed to sync"
	emptyDestinationMessageConstant          = "Destination repository created but left empty; later runs treat it as existing and do not seed the default branch"

	repositoryFieldConstant            = "repository"
	destinationRepositoryFieldConstant = "destination_repository"
	newMigrationFieldConstant          = "new_migration"
	pathFieldConstant                  = "path"
)

// Sentinel errors returned by NewOrchestrator.
var (
	ErrDestinationNotConfigured  = errors.New(destinationNotConfiguredMessageConstant)
	ErrSynchronizerNotConfigured = errors.New(synchronizerNotConfiguredMessageConstant)
	ErrSyncDirectoryNotAbsolute  = errors.New(syncDirectoryRequiredMessageConstant)
	errEmptyDestinationCloneURL  = errors.New(emptyCloneURLMessageConstant)
)

// RepositoryCreator creates destination repositories. An empty organization targets the authenticated user.
type RepositoryCreator interface {
	CreateRepository(executionContext context.Context, organization string, name string, description *string) (string, error)
}

// Settings configures the orchestrator.
type Settings struct {
	SyncDirectory      string
	TargetOrganization string
	RepositoryPrefix   string
}

// Credentials carries account and token pairs for one run.
type Credentials struct {
	SourceAccount      string
	SourceToken        string
	DestinationAccount string
	DestinationToken   string
}

// RepositoryReport describes what happened to one repository.
type RepositoryReport struct {
	Name            string
	DestinationName string
	Outcome         string
	IsNewMigration  bool
	Refs            SyncOutcome
	Error           string
}

// Report is the outcome of one Sync call.
type Report struct {
	Repositories    []RepositoryReport
	TeamAssignments map[string]AssignmentCounts
}

// Orchestrator drives the per-repository mirror workflow.
type Orchestrator struct {
	logger       *zap.Logger
	driver       gitref.Driver
	creator      RepositoryCreator
	synchronizer *RefSynchronizer
	teamAssigner *TeamAssigner
	settings     Settings
	metrics      *Metrics
}

// NewOrchestrator constructs an Orchestrator. teamAssigner may be nil when teams are never assigned,
// and metrics may be nil.
func NewOrchestrator(logger *zap.Logger, driver gitref.Driver, creator RepositoryCreator, synchronizer *RefSynchronizer, teamAssigner *TeamAssigner, settings Settings, metrics *Metrics) (*Orchestrator, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if driver == nil {
		return nil, ErrDriverNotConfigured
	}
	if creator == nil {
		return nil, ErrDestinationNotConfigured
	}
	if synchronizer == nil {
		return nil, ErrSynchronizerNotConfigured
	}
	if !filepath.IsAbs(settings.SyncDirectory) {
		return nil, ErrSyncDirectoryNotAbsolute
	}
	return &Orchestrator{
		logger:       logger,
		driver:       driver,
		creator:      creator,
		synchronizer: synchronizer,
		teamAssigner: teamAssigner,
		settings:     settings,
		metrics:      metrics,
	}, nil
}

// Sync mirrors every repository in order. Per-repository failures are logged and reported;
// only context cancellation and an unusable sync directory are returned as errors.
// Repositories without a destination link are created before their refs are pushed.
func (orchestrator *Orchestrator) Sync(executionContext context.Context, pushToOrganization bool, repositories []processor.ProcessedRepository, credentials Credentials) (Report, error) {
	report := Report{Repositories: make([]RepositoryReport, 0, len(repositories)), TeamAssignments: map[string]AssignmentCounts{}}
	if mkdirError := os.MkdirAll(orchestrator.settings.SyncDirectory, 0o755); mkdirError != nil {
		return report, fmt.Errorf(syncDirectoryErrorTemplateConstant, orchestrator.settings.SyncDirectory, mkdirError)
	}

	teamRepositories := make(map[string][]string)
	for repositoryIndex := range repositories {
		if contextError := executionContext.Err(); contextError != nil {
			return report, contextError
		}

		repository := &repositories[repositoryIndex]
		repositoryReport, syncError := orchestrator.syncRepository(executionContext, pushToOrganization, repository, credentials)
		report.Repositories = append(report.Repositories, repositoryReport)
		orchestrator.metrics.recordRepository(repositoryReport.Outcome)
		if syncError != nil {
			return report, syncError
		}

		if !pushToOrganization || len(repository.Teams) == 0 {
			continue
		}
		if repositoryReport.Outcome == OutcomeFailed {
			orchestrator.logger.Warn(failedRepositoryTeamsMessageConstant, zap.String(repositoryFieldConstant, repository.Name))
			continue
		}
		if !repository.HasDestination() {
			orchestrator.logger.Warn(teamAssignmentSkippedMessageConstant, zap.String(repositoryFieldConstant, repository.Name))
			continue
		}
		for _, teamName := range repository.Teams {
			teamRepositories[teamName] = append(teamRepositories[teamName], repositoryReport.DestinationName)
		}
	}

	if len(teamRepositories) == 0 || orchestrator.teamAssigner == nil {
		return report, nil
	}
	assignmentCounts, assignError := orchestrator.teamAssigner.Assign(executionContext, teamRepositories)
	report.TeamAssignments = assignmentCounts
	return report, assignError
}

func (orchestrator *Orchestrator) syncRepository(executionContext context.Context, pushToOrganization bool, repository *processor.ProcessedRepository, credentials Credentials) (RepositoryReport, error) {
	destinationName := orchestrator.settings.RepositoryPrefix + repository.Name
	repositoryLogger := orchestrator.logger.With(
		zap.String(repositoryFieldConstant, repository.Name),
		zap.String(destinationRepositoryFieldConstant, destinationName),
	)
	repositoryReport := RepositoryReport{Name: repository.Name, DestinationName: destinationName, Outcome: OutcomeFailed}

	if repository.HasDestination() {
		repository.IsNewMigration = false
	} else {
		organization := ""
		if pushToOrganization {
			organization = orchestrator.settings.TargetOrganization
		}
		cloneURL, createError := orchestrator.creator.CreateRepository(executionContext, organization, destinationName, SanitizeDescription(repository.Description))
		if createError == nil && len(cloneURL) == 0 {
			createError = errEmptyDestinationCloneURL
		}
		if createError != nil {
			if isContextError(createError) {
				return repositoryReport, createError
			}
			repositoryLogger.Error(destinationCreationFailedMessageConstant, statusCodeField(createError), zap.Error(createError))
			repositoryReport.Error = createError.Error()
			return repositoryReport, nil
		}
		repository.DestinationLink = cloneURL
		repository.IsNewMigration = true
		repositoryLogger.Info(destinationCreatedMessageConstant)
	}
	repositoryReport.IsNewMigration = repository.IsNewMigration

	target := RefTarget{
		RepositoryPath: filepath.Join(orchestrator.settings.SyncDirectory, repository.Name),
		Source:         gitref.Remote{URL: repository.SourceLink, Username: credentials.SourceAccount, Token: credentials.SourceToken},
		Destination:    gitref.Remote{URL: repository.DestinationLink, Username: credentials.DestinationAccount, Token: credentials.DestinationToken},
	}

	if cloneError := orchestrator.ensureClone(executionContext, repositoryLogger, target); cloneError != nil {
		if isContextError(cloneError) {
			return repositoryReport, cloneError
		}
		if repository.IsNewMigration {
			repositoryLogger.Warn(emptyDestinationMessageConstant)
		}
		repositoryReport.Error = cloneError.Error()
		return repositoryReport, nil
	}

	syncLogger := repositoryLogger.With(zap.Bool(newMigrationFieldConstant, repository.IsNewMigration))
	synchronizer := orchestrator.synchronizer.withLogger(syncLogger)
	syncErrors := make([]error, 0, 2)

	tagOutcome, tagError := synchronizer.SyncTags(executionContext, target)
	if tagError != nil {
		if isContextError(tagError) {
			return repositoryReport, tagError
		}
		syncLogger.Error(tagSyncFailedMessageConstant, zap.Error(tagError))
		syncErrors = append(syncErrors, tagError)
	}

	branchOutcome, branchError := synchronizer.SyncBranches(executionContext, target, repository.IsNewMigration)
	if branchError != nil {
		if isContextError(branchError) {
			return repositoryReport, branchError
		}
		syncLogger.Error(branchSyncFailedMessageConstant, zap.Error(branchError))
		syncErrors = append(syncErrors, branchError)
	}

	repositoryReport.Refs = SyncOutcome{Tags: tagOutcome, Branches: branchOutcome}
	repositoryReport.Outcome = repositoryOutcome(repository.IsNewMigration, tagError == nil && branchError == nil && tagOutcome.AllOK && branchOutcome.AllOK)
	if len(syncErrors) > 0 {
		repositoryReport.Error = errors.Join(syncErrors...).Error()
	}
	syncLogger.Info(repositorySyncedMessageConstant,
		zap.Strings(failedTagsFieldConstant, tagOutcome.Failed),
		zap.Strings(failedBranchesFieldConstant, branchOutcome.Failed),
	)
	return repositoryReport, nil
}

// ensureClone creates the local clone when it does not exist yet. A failed clone is removed so the
// next run starts over.
func (orchestrator *Orchestrator) ensureClone(executionContext context.Context, repositoryLogger *zap.Logger, target RefTarget) error {
	if _, statError := os.Stat(target.RepositoryPath); statError == nil {
		return nil
	} else if !errors.Is(statError, os.ErrNotExist) {
		repositoryLogger.Error(cloneFailedMessageConstant, zap.String(pathFieldConstant, target.RepositoryPath), zap.Error(statError))
		return statError
	}

	cloneError := orchestrator.driver.Clone(executionContext, target.RepositoryPath, target.Source)
	if cloneError == nil {
		repositoryLogger.Info(cloneCreatedMessageConstant, zap.String(pathFieldConstant, target.RepositoryPath))
		return nil
	}

	if !isContextError(cloneError) {
		repositoryLogger.Error(cloneFailedMessageConstant, zap.String(pathFieldConstant, target.RepositoryPath), zap.Error(cloneError))
	}
	if removeError := os.RemoveAll(target.RepositoryPath); removeError != nil {
		repositoryLogger.Warn(cloneCleanupFailedMessageConstant, zap.String(pathFieldConstant, target.RepositoryPath), zap.Error(removeError))
	}
	return cloneError
}

func repositoryOutcome(newMigration bool, allRefsSynced bool) string {
	switch {
	case !allRefsSynced:
		return OutcomePartial
	case newMigration:
		return OutcomeCreated
	default:
		return OutcomeSynced
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
