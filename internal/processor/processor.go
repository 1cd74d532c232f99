package processor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/githubapi"
	"github.com/temirov/reposync/internal/gitrepo"
	"github.com/temirov/reposync/internal/resolver"
)

const (
	loggerNotConfiguredMessageConstant      = "processor logger not configured"
	sourceNotConfiguredMessageConstant      = "processor source forge not configured"
	destinationNotConfiguredMessageConstant = "processor destination forge not configured"
	namespaceNotConfiguredMessageConstant   = "processor destination namespace not configured"

	sourceRepositoryMissingMessageConstant      = "Source repository not found"
	sourceLookupFailedMessageConstant           = "Unable to fetch source repository metadata"
	sourceCloneLinkMissingMessageConstant       = "Source repository has no http clone link"
	destinationLookupFailedMessageConstant      = "Unable to check destination repository"
	destinationRepositoryFoundMessageConstant   = "Destination repository exists"
	destinationRepositoryMissingMessageConstant = "Destination repository does not exist"
	processingCompletedMessageConstant          = "Processed repositories for project"

	projectKeyFieldConstant            = "project_key"
	repositoryFieldConstant            = "repository"
	destinationRepositoryFieldConstant = "destination_repository"
	namespaceFieldConstant             = "namespace"
	statusCodeFieldConstant            = "status_code"
	totalFieldConstant                 = "total"
	newCountFieldConstant              = "new_count"
	skippedFieldConstant               = "skipped"
)

// Sentinel errors returned by NewProcessor.
var (
	ErrLoggerNotConfigured      = errors.New(loggerNotConfiguredMessageConstant)
	ErrSourceNotConfigured      = errors.New(sourceNotConfiguredMessageConstant)
	ErrDestinationNotConfigured = errors.New(destinationNotConfiguredMessageConstant)
	ErrNamespaceNotConfigured   = errors.New(namespaceNotConfiguredMessageConstant)
)

// SourceForge fetches source repository metadata.
type SourceForge interface {
	GetRepository(executionContext context.Context, projectKey string, repositoryName string) (bitbucket.RepositoryMetadata, error)
}

// DestinationForge checks destination repository existence.
type DestinationForge interface {
	GetRepository(executionContext context.Context, owner string, name string) (githubapi.RepositoryState, error)
}

// Settings configures destination naming.
type Settings struct {
	TargetOrganization string
	DestinationAccount string
	RepositoryPrefix   string
}

// Namespace returns the destination owner for the selected push mode.
func (settings Settings) Namespace(pushToOrganization bool) string {
	if pushToOrganization {
		return settings.TargetOrganization
	}
	return settings.DestinationAccount
}

// DestinationName returns the prefixed destination repository name.
func (settings Settings) DestinationName(repositoryName string) string {
	return settings.RepositoryPrefix + repositoryName
}

// ProcessedRepository is a resolved repository enriched with forge state.
// DestinationLink is empty while the repository does not exist at the destination.
type ProcessedRepository struct {
	Name            string
	Teams           []string
	Description     *string
	SourceLink      string
	DestinationLink string
	IsNewMigration  bool
}

// HasDestination reports whether the destination repository is known to exist.
func (repository ProcessedRepository) HasDestination() bool {
	return len(repository.DestinationLink) > 0
}

// SkippedRepository records a repository dropped during processing.
type SkippedRepository struct {
	Name   string
	Reason string
}

// Result is the outcome of processing one project.
type Result struct {
	Repositories []ProcessedRepository
	Total        int
	NewCount     int
	Skipped      []SkippedRepository
}

// Processor classifies resolved repositories as new or existing at the destination.
type Processor struct {
	logger      *zap.Logger
	source      SourceForge
	destination DestinationForge
	settings    Settings
}

// NewProcessor constructs a Processor.
func NewProcessor(logger *zap.Logger, source SourceForge, destination DestinationForge, settings Settings) (*Processor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if source == nil {
		return nil, ErrSourceNotConfigured
	}
	if destination == nil {
		return nil, ErrDestinationNotConfigured
	}
	return &Processor{logger: logger, source: source, destination: destination, settings: settings}, nil
}

// Process fetches source metadata and checks the destination for every resolved repository.
// Lookup failures skip the affected repository. Only context cancellation is returned as an error.
func (processor *Processor) Process(executionContext context.Context, projectKey string, resolvedRepositories []resolver.ResolvedRepository, pushToOrganization bool) (Result, error) {
	namespace := processor.settings.Namespace(pushToOrganization)
	if len(namespace) == 0 {
		return Result{}, ErrNamespaceNotConfigured
	}

	projectLogger := processor.logger.With(zap.String(projectKeyFieldConstant, projectKey), zap.String(namespaceFieldConstant, namespace))
	result := Result{Repositories: make([]ProcessedRepository, 0, len(resolvedRepositories)), Skipped: make([]SkippedRepository, 0)}

	for _, resolvedRepository := range resolvedRepositories {
		if contextError := executionContext.Err(); contextError != nil {
			return result, contextError
		}

		repositoryLogger := projectLogger.With(zap.String(repositoryFieldConstant, resolvedRepository.Name))
		processedRepository, skipReason, processError := processor.processRepository(executionContext, repositoryLogger, projectKey, namespace, resolvedRepository)
		if processError != nil {
			return result, processError
		}
		if len(skipReason) > 0 {
			result.Skipped = append(result.Skipped, SkippedRepository{Name: resolvedRepository.Name, Reason: skipReason})
			continue
		}

		if !processedRepository.HasDestination() {
			result.NewCount++
		}
		result.Repositories = append(result.Repositories, processedRepository)
	}

	result.Total = len(result.Repositories)
	projectLogger.Info(processingCompletedMessageConstant,
		zap.Int(totalFieldConstant, result.Total),
		zap.Int(newCountFieldConstant, result.NewCount),
		zap.Int(skippedFieldConstant, len(result.Skipped)),
	)
	return result, nil
}

func (processor *Processor) processRepository(executionContext context.Context, repositoryLogger *zap.Logger, projectKey string, namespace string, resolvedRepository resolver.ResolvedRepository) (ProcessedRepository, string, error) {
	metadata, metadataError := processor.source.GetRepository(executionContext, projectKey, resolvedRepository.Name)
	if metadataError != nil {
		if isContextError(metadataError) {
			return ProcessedRepository{}, "", metadataError
		}
		if bitbucket.IsNotFound(metadataError) {
			repositoryLogger.Error(sourceRepositoryMissingMessageConstant)
			return ProcessedRepository{}, sourceRepositoryMissingMessageConstant, nil
		}
		repositoryLogger.Error(sourceLookupFailedMessageConstant, statusField(metadataError, bitbucket.StatusCode), zap.Error(metadataError))
		return ProcessedRepository{}, sourceLookupFailedMessageConstant, nil
	}

	sourceLink, linkError := gitrepo.SelectHTTPCloneLink(metadata.CloneLinks)
	if linkError != nil {
		repositoryLogger.Error(sourceCloneLinkMissingMessageConstant, zap.Error(linkError))
		return ProcessedRepository{}, sourceCloneLinkMissingMessageConstant, nil
	}

	destinationName := processor.settings.DestinationName(resolvedRepository.Name)
	destinationLogger := repositoryLogger.With(zap.String(destinationRepositoryFieldConstant, destinationName))
	destinationState, destinationError := processor.destination.GetRepository(executionContext, namespace, destinationName)
	if destinationError != nil {
		if isContextError(destinationError) {
			return ProcessedRepository{}, "", destinationError
		}
		destinationLogger.Error(destinationLookupFailedMessageConstant, statusField(destinationError, githubapi.StatusCode), zap.Error(destinationError))
		return ProcessedRepository{}, destinationLookupFailedMessageConstant, nil
	}

	processedRepository := ProcessedRepository{
		Name:        resolvedRepository.Name,
		Teams:       append([]string(nil), resolvedRepository.Teams...),
		Description: metadata.Description,
		SourceLink:  sourceLink,
	}
	if destinationState.Exists {
		processedRepository.DestinationLink = destinationState.CloneURL
		destinationLogger.Debug(destinationRepositoryFoundMessageConstant)
	} else {
		destinationLogger.Info(destinationRepositoryMissingMessageConstant)
	}
	return processedRepository, "", nil
}

func statusField(err error, extract func(error) (int, bool)) zap.Field {
	statusCode, available := extract(err)
	if !available {
		return zap.Skip()
	}
	return zap.Int(statusCodeFieldConstant, statusCode)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
