package processor_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/githubapi"
	"github.com/temirov/reposync/internal/gitrepo"
	"github.com/temirov/reposync/internal/processor"
	"github.com/temirov/reposync/internal/resolver"
)

type stubSourceForge struct {
	metadata map[string]bitbucket.RepositoryMetadata
	failures map[string]error
}

func (forge stubSourceForge) GetRepository(_ context.Context, _ string, repositoryName string) (bitbucket.RepositoryMetadata, error) {
	if failure, failed := forge.failures[repositoryName]; failed {
		return bitbucket.RepositoryMetadata{}, failure
	}
	return forge.metadata[repositoryName], nil
}

type stubDestinationForge struct {
	states          map[string]githubapi.RepositoryState
	failures        map[string]error
	requestedOwners []string
	requestedNames  []string
}

func (forge *stubDestinationForge) GetRepository(_ context.Context, owner string, name string) (githubapi.RepositoryState, error) {
	forge.requestedOwners = append(forge.requestedOwners, owner)
	forge.requestedNames = append(forge.requestedNames, name)
	if failure, failed := forge.failures[name]; failed {
		return githubapi.RepositoryState{}, failure
	}
	return forge.states[name], nil
}

func sourceMetadata(name string) bitbucket.RepositoryMetadata {
	description := name + " description"
	return bitbucket.RepositoryMetadata{
		Name:        name,
		Description: &description,
		CloneLinks: []gitrepo.CloneLink{
			{Name: "ssh", Href: "ssh://git@bitbucket.example:7999/abc/" + name + ".git"},
			{Name: "http", Href: "https://bitbucket.example/scm/abc/" + name + ".git"},
		},
	}
}

func TestNewProcessorValidatesDependencies(testInstance *testing.T) {
	logger := zap.NewNop()
	source := stubSourceForge{}
	destination := &stubDestinationForge{}

	_, loggerError := processor.NewProcessor(nil, source, destination, processor.Settings{})
	require.ErrorIs(testInstance, loggerError, processor.ErrLoggerNotConfigured)
	_, sourceError := processor.NewProcessor(logger, nil, destination, processor.Settings{})
	require.ErrorIs(testInstance, sourceError, processor.ErrSourceNotConfigured)
	_, destinationError := processor.NewProcessor(logger, source, nil, processor.Settings{})
	require.ErrorIs(testInstance, destinationError, processor.ErrDestinationNotConfigured)

	processorInstance, constructionError := processor.NewProcessor(logger, source, destination, processor.Settings{TargetOrganization: "acme"})
	require.NoError(testInstance, constructionError)
	_, namespaceError := processorInstance.Process(context.Background(), "ABC", nil, false)
	require.ErrorIs(testInstance, namespaceError, processor.ErrNamespaceNotConfigured)
}

func TestProcessClassifiesRepositories(testInstance *testing.T) {
	source := stubSourceForge{
		metadata: map[string]bitbucket.RepositoryMetadata{
			"existing":  sourceMetadata("existing"),
			"fresh":     sourceMetadata("fresh"),
			"forbidden": sourceMetadata("forbidden"),
			"ssh-only":  {Name: "ssh-only", CloneLinks: []gitrepo.CloneLink{{Name: "ssh", Href: "ssh://git@bitbucket.example/abc/ssh-only.git"}}},
		},
		failures: map[string]error{
			"gone":   bitbucket.ResponseStatusError{Operation: "GetRepository", StatusCode: http.StatusNotFound},
			"broken": bitbucket.ResponseStatusError{Operation: "GetRepository", StatusCode: http.StatusInternalServerError},
		},
	}
	destination := &stubDestinationForge{
		states: map[string]githubapi.RepositoryState{
			"mig-existing": {Exists: true, CloneURL: "https://github.example/acme/mig-existing.git"},
		},
		failures: map[string]error{
			"mig-forbidden": githubapi.ResponseStatusError{Operation: "GetRepository", StatusCode: http.StatusForbidden},
		},
	}

	core, observedLogs := observer.New(zapcore.DebugLevel)
	settings := processor.Settings{TargetOrganization: "acme", DestinationAccount: "mirror-bot", RepositoryPrefix: "mig-"}
	processorInstance, constructionError := processor.NewProcessor(zap.New(core), source, destination, settings)
	require.NoError(testInstance, constructionError)

	resolved := []resolver.ResolvedRepository{
		{Name: "existing", Teams: []string{"core"}},
		{Name: "fresh"},
		{Name: "gone"},
		{Name: "broken"},
		{Name: "forbidden"},
		{Name: "ssh-only"},
	}

	result, processError := processorInstance.Process(context.Background(), "ABC", resolved, true)
	require.NoError(testInstance, processError)

	require.Equal(testInstance, 2, result.Total)
	require.Equal(testInstance, 1, result.NewCount)
	require.Len(testInstance, result.Repositories, 2)

	existingRepository := result.Repositories[0]
	require.Equal(testInstance, "existing", existingRepository.Name)
	require.Equal(testInstance, []string{"core"}, existingRepository.Teams)
	require.Equal(testInstance, "https://bitbucket.example/scm/abc/existing.git", existingRepository.SourceLink)
	require.Equal(testInstance, "https://github.example/acme/mig-existing.git", existingRepository.DestinationLink)
	require.True(testInstance, existingRepository.HasDestination())
	require.False(testInstance, existingRepository.IsNewMigration)
	require.Equal(testInstance, "existing description", *existingRepository.Description)

	freshRepository := result.Repositories[1]
	require.Equal(testInstance, "fresh", freshRepository.Name)
	require.False(testInstance, freshRepository.HasDestination())
	require.False(testInstance, freshRepository.IsNewMigration)

	skippedNames := make([]string, 0, len(result.Skipped))
	for _, skipped := range result.Skipped {
		skippedNames = append(skippedNames, skipped.Name)
	}
	require.Equal(testInstance, []string{"gone", "broken", "forbidden", "ssh-only"}, skippedNames)

	require.Equal(testInstance, []string{"mig-existing", "mig-fresh", "mig-forbidden"}, destination.requestedNames)
	for _, owner := range destination.requestedOwners {
		require.Equal(testInstance, "acme", owner)
	}

	statusEntries := observedLogs.FilterField(zap.Int("status_code", http.StatusForbidden)).All()
	require.Len(testInstance, statusEntries, 1)
	require.Equal(testInstance, "mig-forbidden", statusEntries[0].ContextMap()["destination_repository"])
}

func TestProcessUsesPersonalNamespace(testInstance *testing.T) {
	source := stubSourceForge{metadata: map[string]bitbucket.RepositoryMetadata{"repo1": sourceMetadata("repo1")}}
	destination := &stubDestinationForge{}
	settings := processor.Settings{TargetOrganization: "acme", DestinationAccount: "mirror-bot"}
	processorInstance, constructionError := processor.NewProcessor(zap.NewNop(), source, destination, settings)
	require.NoError(testInstance, constructionError)

	result, processError := processorInstance.Process(context.Background(), "ABC", []resolver.ResolvedRepository{{Name: "repo1"}}, false)
	require.NoError(testInstance, processError)
	require.Equal(testInstance, 1, result.NewCount)
	require.Equal(testInstance, []string{"mirror-bot"}, destination.requestedOwners)
	require.Equal(testInstance, []string{"repo1"}, destination.requestedNames)
}

func TestProcessStopsOnCancellation(testInstance *testing.T) {
	source := stubSourceForge{metadata: map[string]bitbucket.RepositoryMetadata{"repo1": sourceMetadata("repo1")}}
	destination := &stubDestinationForge{}
	processorInstance, constructionError := processor.NewProcessor(zap.NewNop(), source, destination, processor.Settings{TargetOrganization: "acme"})
	require.NoError(testInstance, constructionError)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	_, processError := processorInstance.Process(cancelledContext, "ABC", []resolver.ResolvedRepository{{Name: "repo1"}}, true)
	require.ErrorIs(testInstance, processError, context.Canceled)
	require.Empty(testInstance, destination.requestedNames)
}
