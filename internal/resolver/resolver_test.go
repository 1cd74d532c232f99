package resolver_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/reposync/internal/resolver"
	"github.com/temirov/reposync/internal/syncconfig"
)

const projectKeyConstant = "ABC"

func boolPointer(value bool) *bool {
	return &value
}

func nameNode(name string) syncconfig.RepoConfigNode {
	return syncconfig.RepoConfigNode{Kind: syncconfig.NameEntry, Name: name}
}

func teamNode(team string, regex *bool, children ...syncconfig.RepoConfigNode) syncconfig.RepoConfigNode {
	return syncconfig.RepoConfigNode{Kind: syncconfig.TeamEntry, Name: team, Regex: regex, Children: children}
}

func projectTree(regex *bool, children ...syncconfig.RepoConfigNode) syncconfig.Tree {
	return syncconfig.Tree{projectKeyConstant: {Regex: regex, Children: children}}
}

func newObservedResolver(testInstance *testing.T) (*resolver.Resolver, *observer.ObservedLogs) {
	testInstance.Helper()
	core, observedLogs := observer.New(zapcore.DebugLevel)
	resolverInstance, resolverError := resolver.NewResolver(zap.New(core))
	require.NoError(testInstance, resolverError)
	return resolverInstance, observedLogs
}

func TestNewResolverRequiresLogger(testInstance *testing.T) {
	_, resolverError := resolver.NewResolver(nil)
	require.ErrorIs(testInstance, resolverError, resolver.ErrLoggerNotConfigured)
}

func TestResolve(testInstance *testing.T) {
	testCases := []struct {
		name        string
		sourceNames []string
		includeTree syncconfig.Tree
		excludeTree syncconfig.Tree
		knownTeams  []string
		expected    []resolver.ResolvedRepository
	}{
		{
			name:        "exclude wins over team match",
			sourceNames: []string{"repo1", "repo2", "repo3"},
			includeTree: projectTree(nil, nameNode("repo1"), teamNode("team-x", nil, nameNode("repo2"))),
			excludeTree: projectTree(nil, nameNode("repo2")),
			knownTeams:  []string{"team-x"},
			expected:    []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{}}},
		},
		{
			name:        "exact name and regex team yield one record",
			sourceNames: []string{"repo1", "repo2", "other"},
			includeTree: projectTree(nil, nameNode("repo1"), teamNode("team-x", boolPointer(true), nameNode("repo"))),
			knownTeams:  []string{"team-x"},
			expected: []resolver.ResolvedRepository{
				{Name: "repo1", Teams: []string{"team-x"}},
				{Name: "repo2", Teams: []string{"team-x"}},
			},
		},
		{
			name:        "teams accumulate without duplicates",
			sourceNames: []string{"repo1"},
			includeTree: projectTree(nil,
				teamNode("alpha", nil, nameNode("repo1")),
				teamNode("beta", nil, nameNode("repo1")),
				teamNode("alpha", nil, nameNode("repo1")),
			),
			knownTeams: []string{"alpha", "beta"},
			expected:   []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{"alpha", "beta"}}},
		},
		{
			name:        "regex exclude removes regardless of include flag",
			sourceNames: []string{"svc-a", "svc-b", "lib"},
			includeTree: projectTree(nil, nameNode("svc-a"), nameNode("svc-b"), nameNode("lib")),
			excludeTree: projectTree(boolPointer(true), nameNode("svc-")),
			expected:    []resolver.ResolvedRepository{{Name: "lib", Teams: []string{}}},
		},
		{
			name:        "exact exclude removes regex include",
			sourceNames: []string{"svc-a", "svc-b"},
			includeTree: projectTree(boolPointer(true), nameNode("svc-.*")),
			excludeTree: projectTree(nil, teamNode("ignored", nil, nameNode("svc-b"))),
			expected:    []resolver.ResolvedRepository{{Name: "svc-a", Teams: []string{}}},
		},
		{
			name:        "child flag overrides inherited regex",
			sourceNames: []string{"svc-a", "svc.a"},
			includeTree: projectTree(boolPointer(true), teamNode("core", boolPointer(false), nameNode("svc.a"))),
			knownTeams:  []string{"core"},
			expected:    []resolver.ResolvedRepository{{Name: "svc.a", Teams: []string{"core"}}},
		},
		{
			name:        "regex is anchored at the start",
			sourceNames: []string{"my-svc", "svc-api"},
			includeTree: projectTree(boolPointer(true), nameNode("svc")),
			expected:    []resolver.ResolvedRepository{{Name: "svc-api", Teams: []string{}}},
		},
		{
			name:        "nested teams count toward the enclosing team",
			sourceNames: []string{"repo1", "repo2"},
			includeTree: projectTree(nil, teamNode("outer", nil, nameNode("repo1"), teamNode("inner", nil, nameNode("repo2")))),
			knownTeams:  []string{"outer", "inner"},
			expected: []resolver.ResolvedRepository{
				{Name: "repo2", Teams: []string{"inner", "outer"}},
				{Name: "repo1", Teams: []string{"outer"}},
			},
		},
		{
			name:        "project missing from include tree",
			sourceNames: []string{"repo1"},
			includeTree: syncconfig.Tree{"OTHER": {Children: []syncconfig.RepoConfigNode{nameNode("repo1")}}},
			expected:    []resolver.ResolvedRepository{},
		},
		{
			name:        "team without repositories is not an error",
			sourceNames: []string{"repo1"},
			includeTree: projectTree(nil, nameNode("repo1"), teamNode("empty", nil)),
			knownTeams:  []string{"empty"},
			expected:    []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{}}},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			resolverInstance, observedLogs := newObservedResolver(subTest)
			knownTeams := make(map[string]struct{}, len(testCase.knownTeams))
			for _, team := range testCase.knownTeams {
				knownTeams[team] = struct{}{}
			}
			teamExists := func(team string) bool {
				_, known := knownTeams[team]
				return known
			}

			resolved := resolverInstance.Resolve(projectKeyConstant, testCase.sourceNames, testCase.includeTree, testCase.excludeTree, teamExists)
			require.Empty(subTest, cmp.Diff(testCase.expected, resolved))
			require.Zero(subTest, observedLogs.FilterLevelExact(zapcore.ErrorLevel).Len())
		})
	}
}

func TestResolveIsIdempotent(testInstance *testing.T) {
	resolverInstance, _ := newObservedResolver(testInstance)
	sourceNames := []string{"repo1", "repo2", "svc-a", "svc-b"}
	includeTree := projectTree(nil,
		nameNode("repo1"),
		teamNode("team-x", boolPointer(true), nameNode("svc-.*")),
		teamNode("team-y", nil, nameNode("repo1"), nameNode("repo2")),
	)
	excludeTree := projectTree(nil, nameNode("svc-b"))

	firstRun := resolverInstance.Resolve(projectKeyConstant, sourceNames, includeTree, excludeTree, nil)
	secondRun := resolverInstance.Resolve(projectKeyConstant, sourceNames, includeTree, excludeTree, nil)
	require.Empty(testInstance, cmp.Diff(firstRun, secondRun))

	seenNames := make(map[string]int)
	for _, repository := range firstRun {
		seenNames[repository.Name]++
	}
	for repositoryName, occurrences := range seenNames {
		require.Equal(testInstance, 1, occurrences, repositoryName)
	}
}

func TestResolveLogsConfigurationErrors(testInstance *testing.T) {
	testCases := []struct {
		name            string
		includeTree     syncconfig.Tree
		expected        []resolver.ResolvedRepository
		expectedMessage string
		expectedLevel   zapcore.Level
	}{
		{
			name:            "unmatched exact name",
			includeTree:     projectTree(nil, nameNode("typo"), nameNode("repo1")),
			expected:        []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{}}},
			expectedMessage: "No source repository matches configured name",
			expectedLevel:   zapcore.ErrorLevel,
		},
		{
			name:            "unknown team keeps repository",
			includeTree:     projectTree(nil, teamNode("ghost", nil, nameNode("repo1"))),
			expected:        []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{}}},
			expectedMessage: "Team does not exist at destination",
			expectedLevel:   zapcore.ErrorLevel,
		},
		{
			name:            "invalid pattern",
			includeTree:     projectTree(boolPointer(true), nameNode("repo("), nameNode("repo1")),
			expected:        []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{}}},
			expectedMessage: "Invalid repository pattern",
			expectedLevel:   zapcore.ErrorLevel,
		},
		{
			name:            "pattern without matches",
			includeTree:     projectTree(boolPointer(true), nameNode("zzz"), nameNode("repo1")),
			expected:        []resolver.ResolvedRepository{{Name: "repo1", Teams: []string{}}},
			expectedMessage: "Pattern matched no source repositories",
			expectedLevel:   zapcore.WarnLevel,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			resolverInstance, observedLogs := newObservedResolver(subTest)
			teamExists := func(team string) bool { return team != "ghost" }

			resolved := resolverInstance.Resolve(projectKeyConstant, []string{"repo1"}, testCase.includeTree, nil, teamExists)
			require.Empty(subTest, cmp.Diff(testCase.expected, resolved))

			matchingEntries := observedLogs.FilterMessage(testCase.expectedMessage).All()
			require.Len(subTest, matchingEntries, 1)
			require.Equal(subTest, testCase.expectedLevel, matchingEntries[0].Level)
			require.Equal(subTest, projectKeyConstant, matchingEntries[0].ContextMap()["project_key"])
		})
	}
}
