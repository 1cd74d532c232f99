package mirror_test

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/credentials"
	"github.com/temirov/reposync/internal/mirror"
	"github.com/temirov/reposync/internal/reposync"
	"github.com/temirov/reposync/internal/syncconfig"
)

type serviceFixture struct {
	source      *fakeSource
	destination *fakeDestination
	driver      *fakeDriver
	service     *mirror.Service
}

func newServiceFixture(testInstance *testing.T) serviceFixture {
	testInstance.Helper()
	source := newFakeSource()
	source.projects = []bitbucket.Project{{Key: "ABC", Name: "Alpha"}, {Key: "DEF", Name: "Delta"}}
	source.repositories["ABC"] = []string{"repo1", "repo2", "repo3"}
	source.repositories["DEF"] = []string{"svc-api", "svc-web", "tools"}

	destination := newFakeDestination()
	destination.addTeam("team-x")
	destination.addRepository(testOrganizationConstant, testPrefixConstant+"repo2")

	driver := &fakeDriver{tags: []string{"v1.0.0"}, branches: []string{"feature", "master"}}

	service, serviceError := mirror.NewService(
		mirror.ServiceDependencies{Logger: zap.NewNop(), Source: source, Destination: destination, GitDriver: driver, Metrics: reposync.NewMetrics()},
		mirror.RunSettings{
			TargetOrganization: testOrganizationConstant,
			RepositoryPrefix:   testPrefixConstant,
			MasterBranchPrefix: "old-",
			SyncDirectory:      filepath.Join(testInstance.TempDir(), "syncDirectory"),
			Credentials: reposync.Credentials{
				SourceAccount:      testSourceAccountConstant,
				SourceToken:        testSourceTokenConstant,
				DestinationAccount: testDestinationAccountConstant,
				DestinationToken:   testDestinationTokenConstant,
			},
		},
	)
	require.NoError(testInstance, serviceError)
	return serviceFixture{source: source, destination: destination, driver: driver, service: service}
}

func parseTrees(testInstance *testing.T, include map[string]any, exclude map[string]any) syncconfig.Trees {
	testInstance.Helper()
	includeTree, includeError := syncconfig.ParseTree("sync.include", include)
	require.NoError(testInstance, includeError)
	excludeTree, excludeError := syncconfig.ParseTree("sync.exclude", exclude)
	require.NoError(testInstance, excludeError)
	return syncconfig.Trees{Include: includeTree, Exclude: excludeTree}
}

func TestNewServiceValidatesDependencies(testInstance *testing.T) {
	source := newFakeSource()
	destination := newFakeDestination()
	driver := &fakeDriver{}

	testCases := []struct {
		name          string
		dependencies  mirror.ServiceDependencies
		expectedError error
	}{
		{name: "logger", dependencies: mirror.ServiceDependencies{Source: source, Destination: destination, GitDriver: driver}, expectedError: mirror.ErrLoggerNotConfigured},
		{name: "source", dependencies: mirror.ServiceDependencies{Logger: zap.NewNop(), Destination: destination, GitDriver: driver}, expectedError: mirror.ErrSourceNotConfigured},
		{name: "destination", dependencies: mirror.ServiceDependencies{Logger: zap.NewNop(), Source: source, GitDriver: driver}, expectedError: mirror.ErrDestinationNotConfigured},
		{name: "driver", dependencies: mirror.ServiceDependencies{Logger: zap.NewNop(), Source: source, Destination: destination}, expectedError: mirror.ErrDriverNotConfigured},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			_, serviceError := mirror.NewService(testCase.dependencies, mirror.RunSettings{SyncDirectory: subTest.TempDir()})
			require.ErrorIs(subTest, serviceError, testCase.expectedError)
		})
	}
}

func TestRunAutoMirrorsIncludedRepositoriesIntoOrganization(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	trees := parseTrees(testInstance,
		map[string]any{"ABC": []any{"repo1", map[string]any{"team-x": []any{"repo2", "repo3"}}}},
		map[string]any{"ABC": []any{"repo3"}},
	)
	summary := mirror.NewRunSummary()

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: true}, trees, summary)
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{"acme/mig-repo1"}, fixture.destination.createdNames)
	require.Equal(testInstance, []string{"mig-repo2"}, fixture.destination.grants["team-x"])
	require.Len(testInstance, fixture.driver.clonedPaths, 2)

	totals := summary.Totals()
	require.Equal(testInstance, mirror.SummaryTotals{Considered: 2, Synced: 2, NewlyMigrated: 1}, totals)
	require.Equal(testInstance, reposync.AssignmentCounts{Success: 1}, summary.TeamAssignments["team-x"])
}

func TestRunAutoBlockNewMigrationsSkipsMissingDestinations(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	trees := parseTrees(testInstance,
		map[string]any{"ABC": []any{"repo1", map[string]any{"team-x": []any{"repo2"}}}},
		nil,
	)
	summary := mirror.NewRunSummary()

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: true, BlockNewMigrations: true}, trees, summary)
	require.NoError(testInstance, runError)

	require.Empty(testInstance, fixture.destination.createdNames)
	require.Len(testInstance, fixture.driver.clonedPaths, 1)
	require.Equal(testInstance, []string{"mig-repo2"}, fixture.destination.grants["team-x"])
	require.Equal(testInstance, []mirror.SkippedEntry{{ProjectKey: "ABC", Name: "repo1", Reason: "new migrations blocked"}}, summary.Skipped)
}

func TestRunAutoPersonalAccountSkipsTeams(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	trees := parseTrees(testInstance,
		map[string]any{"DEF": map[string]any{"regex": true, "repo_config": []any{map[string]any{"team-x": []any{"svc-.*"}}}}},
		nil,
	)
	summary := mirror.NewRunSummary()

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: false}, trees, summary)
	require.NoError(testInstance, runError)

	require.True(testInstance, fixture.destination.personalChecked)
	require.Equal(testInstance, []string{"mirror-bot/mig-svc-api", "mirror-bot/mig-svc-web"}, fixture.destination.createdNames)
	require.Empty(testInstance, fixture.destination.grants)
	require.Equal(testInstance, 2, summary.Totals().NewlyMigrated)
}

func TestRunAutoAbortsOnSourceCredentialFailure(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	fixture.source.accessErrors["ABC"] = bitbucket.ResponseStatusError{Operation: "CheckProjectAccess", StatusCode: http.StatusUnauthorized}
	trees := parseTrees(testInstance, map[string]any{"ABC": []any{"repo1"}, "DEF": []any{"tools"}}, nil)

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: true}, trees, mirror.NewRunSummary())
	require.Error(testInstance, runError)

	var credentialError credentials.CredentialError
	require.True(testInstance, errors.As(runError, &credentialError))
	require.Empty(testInstance, fixture.driver.clonedPaths)
}

func TestRunAutoAbortsWhenAccountIsNotOrganizationMember(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	fixture.destination.members = map[string]bool{}
	trees := parseTrees(testInstance, map[string]any{"ABC": []any{"repo1"}}, nil)

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: true}, trees, mirror.NewRunSummary())
	require.Error(testInstance, runError)
	require.Empty(testInstance, fixture.destination.createdNames)
}

func TestRunAutoContinuesAfterListingFailure(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	fixture.source.listErrors["ABC"] = errSimulatedFailure
	trees := parseTrees(testInstance, map[string]any{"ABC": []any{"repo1"}, "DEF": []any{"tools"}}, nil)
	summary := mirror.NewRunSummary()

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: true}, trees, summary)
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []mirror.ProjectFailure{{ProjectKey: "ABC", Message: errSimulatedFailure.Error()}}, summary.ProjectFailures)
	require.Equal(testInstance, []string{"acme/mig-tools"}, fixture.destination.createdNames)
}

func TestRunAutoRecordsMissingSourceRepositoryAsSkipped(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	fixture.source.missing["repo1"] = true
	trees := parseTrees(testInstance, map[string]any{"ABC": []any{"repo1", "repo2"}}, nil)
	summary := mirror.NewRunSummary()

	runError := fixture.service.RunAuto(context.Background(), mirror.AutoOptions{PushToOrganization: true}, trees, summary)
	require.NoError(testInstance, runError)

	require.Len(testInstance, summary.Skipped, 1)
	require.Equal(testInstance, "repo1", summary.Skipped[0].Name)
	require.Equal(testInstance, 1, summary.Totals().Synced)
}

func TestRunAutoStopsOnCancelledContext(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance)
	trees := parseTrees(testInstance, map[string]any{"ABC": []any{"repo1"}}, nil)
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	runError := fixture.service.RunAuto(cancelledContext, mirror.AutoOptions{PushToOrganization: true}, trees, mirror.NewRunSummary())
	require.ErrorIs(testInstance, runError, context.Canceled)
	require.Empty(testInstance, fixture.driver.clonedPaths)
}
