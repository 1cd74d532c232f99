package resolver

import (
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/syncconfig"
)

const (
	loggerNotConfiguredMessageConstant = "resolver logger not configured"
	anchoredPatternTemplateConstant    = "^(?:%s)"

	projectNotIncludedMessageConstant  = "Project has no include configuration"
	exactMatchMissingMessageConstant   = "No source repository matches configured name"
	patternMatchMissingMessageConstant = "Pattern matched no source repositories"
	invalidPatternMessageConstant      = "Invalid repository pattern"
	unknownTeamMessageConstant         = "Team does not exist at destination"
	emptyResolutionMessageConstant     = "No repositories resolved for project"
	repositoryExcludedMessageConstant  = "Repository excluded"
	resolutionCompletedMessageConstant = "Resolved repositories for project"

	projectKeyFieldConstant      = "project_key"
	repositoryFieldConstant      = "repository"
	patternFieldConstant         = "pattern"
	teamFieldConstant            = "team"
	repositoryCountFieldConstant = "repository_count"
)

// ErrLoggerNotConfigured indicates a resolver was built without a logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ResolvedRepository is a repository selected for mirroring with its destination teams.
type ResolvedRepository struct {
	Name  string
	Teams []string
}

// TeamExistenceChecker reports whether a team exists at the destination.
type TeamExistenceChecker func(teamName string) bool

// Resolver applies include and exclude trees to source repository names.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Resolver{logger: logger}, nil
}

// Resolve computes the repositories of projectKey to act on. A nil teamExists accepts every team.
// The result keeps the order in which repositories were first matched.
func (resolver *Resolver) Resolve(projectKey string, sourceRepositoryNames []string, includeTree syncconfig.Tree, excludeTree syncconfig.Tree, teamExists TeamExistenceChecker) []ResolvedRepository {
	projectLogger := resolver.logger.With(zap.String(projectKeyFieldConstant, projectKey))

	includeProject, included := includeTree[projectKey]
	if !included {
		projectLogger.Info(projectNotIncludedMessageConstant)
		return []ResolvedRepository{}
	}

	if teamExists == nil {
		teamExists = func(string) bool { return true }
	}

	walker := treeWalker{logger: projectLogger, sourceRepositoryNames: sourceRepositoryNames}
	accumulator := newResolutionAccumulator()
	walker.walkInclude(includeProject.Children, inheritRegex(false, includeProject.Regex), accumulator, teamExists)

	if accumulator.isEmpty() {
		projectLogger.Info(emptyResolutionMessageConstant)
		return []ResolvedRepository{}
	}

	if excludeProject, excluded := excludeTree[projectKey]; excluded {
		excludedNames := make(map[string]struct{})
		walker.collectNames(excludeProject.Children, inheritRegex(false, excludeProject.Regex), excludedNames)
		for excludedName := range excludedNames {
			if accumulator.remove(excludedName) {
				projectLogger.Debug(repositoryExcludedMessageConstant, zap.String(repositoryFieldConstant, excludedName))
			}
		}
	}

	resolvedRepositories := accumulator.repositories()
	projectLogger.Info(resolutionCompletedMessageConstant, zap.Int(repositoryCountFieldConstant, len(resolvedRepositories)))
	return resolvedRepositories
}

type treeWalker struct {
	logger                *zap.Logger
	sourceRepositoryNames []string
}

func (walker treeWalker) walkInclude(nodes []syncconfig.RepoConfigNode, inheritedRegex bool, accumulator *resolutionAccumulator, teamExists TeamExistenceChecker) {
	for _, node := range nodes {
		nodeRegex := inheritRegex(inheritedRegex, node.Regex)
		switch node.Kind {
		case syncconfig.NameEntry:
			for _, matchedName := range walker.match(node.Name, nodeRegex, true) {
				accumulator.add(matchedName)
			}
		case syncconfig.TeamEntry:
			teamNames := make(map[string]struct{})
			walker.walkTeam(node.Children, nodeRegex, teamNames, accumulator, teamExists)
			teamKnown := teamExists(node.Name)
			if !teamKnown {
				walker.logger.Error(unknownTeamMessageConstant, zap.String(teamFieldConstant, node.Name))
			}
			for _, sourceName := range walker.sourceRepositoryNames {
				if _, matched := teamNames[sourceName]; !matched {
					continue
				}
				accumulator.add(sourceName)
				if teamKnown {
					accumulator.addTeam(sourceName, node.Name)
				}
			}
		}
	}
}

// walkTeam gathers the names under a team node. Nested team nodes are resolved as teams of their own
// and also count toward the enclosing team.
func (walker treeWalker) walkTeam(nodes []syncconfig.RepoConfigNode, inheritedRegex bool, teamNames map[string]struct{}, accumulator *resolutionAccumulator, teamExists TeamExistenceChecker) {
	for _, node := range nodes {
		nodeRegex := inheritRegex(inheritedRegex, node.Regex)
		switch node.Kind {
		case syncconfig.NameEntry:
			for _, matchedName := range walker.match(node.Name, nodeRegex, false) {
				teamNames[matchedName] = struct{}{}
			}
		case syncconfig.TeamEntry:
			walker.walkInclude([]syncconfig.RepoConfigNode{node}, inheritedRegex, accumulator, teamExists)
			walker.collectNames(node.Children, nodeRegex, teamNames)
		}
	}
}

func (walker treeWalker) collectNames(nodes []syncconfig.RepoConfigNode, inheritedRegex bool, names map[string]struct{}) {
	for _, node := range nodes {
		nodeRegex := inheritRegex(inheritedRegex, node.Regex)
		switch node.Kind {
		case syncconfig.NameEntry:
			for _, matchedName := range walker.match(node.Name, nodeRegex, false) {
				names[matchedName] = struct{}{}
			}
		case syncconfig.TeamEntry:
			walker.collectNames(node.Children, nodeRegex, names)
		}
	}
}

// match returns the source names selected by one name node. reportMissing turns an unmatched exact name into an error log.
func (walker treeWalker) match(pattern string, regexEnabled bool, reportMissing bool) []string {
	matchedNames := make([]string, 0)
	if !regexEnabled {
		for _, sourceName := range walker.sourceRepositoryNames {
			if sourceName == pattern {
				matchedNames = append(matchedNames, sourceName)
			}
		}
		if len(matchedNames) == 0 && reportMissing {
			walker.logger.Error(exactMatchMissingMessageConstant, zap.String(repositoryFieldConstant, pattern))
		}
		return matchedNames
	}

	compiledPattern, compileError := regexp.Compile(fmt.Sprintf(anchoredPatternTemplateConstant, pattern))
	if compileError != nil {
		walker.logger.Error(invalidPatternMessageConstant, zap.String(patternFieldConstant, pattern), zap.Error(compileError))
		return matchedNames
	}
	for _, sourceName := range walker.sourceRepositoryNames {
		if compiledPattern.MatchString(sourceName) {
			matchedNames = append(matchedNames, sourceName)
		}
	}
	if len(matchedNames) == 0 && reportMissing {
		walker.logger.Warn(patternMatchMissingMessageConstant, zap.String(patternFieldConstant, pattern))
	}
	return matchedNames
}

func inheritRegex(inheritedRegex bool, explicitRegex *bool) bool {
	if explicitRegex == nil {
		return inheritedRegex
	}
	return *explicitRegex
}

type resolutionAccumulator struct {
	order []string
	teams map[string][]string
}

func newResolutionAccumulator() *resolutionAccumulator {
	return &resolutionAccumulator{order: make([]string, 0), teams: make(map[string][]string)}
}

func (accumulator *resolutionAccumulator) add(repositoryName string) {
	if _, present := accumulator.teams[repositoryName]; present {
		return
	}
	accumulator.order = append(accumulator.order, repositoryName)
	accumulator.teams[repositoryName] = []string{}
}

func (accumulator *resolutionAccumulator) addTeam(repositoryName string, teamName string) {
	accumulator.add(repositoryName)
	for _, existingTeam := range accumulator.teams[repositoryName] {
		if existingTeam == teamName {
			return
		}
	}
	accumulator.teams[repositoryName] = append(accumulator.teams[repositoryName], teamName)
}

func (accumulator *resolutionAccumulator) remove(repositoryName string) bool {
	if _, present := accumulator.teams[repositoryName]; !present {
		return false
	}
	delete(accumulator.teams, repositoryName)
	return true
}

func (accumulator *resolutionAccumulator) isEmpty() bool {
	return len(accumulator.teams) == 0
}

func (accumulator *resolutionAccumulator) repositories() []ResolvedRepository {
	resolvedRepositories := make([]ResolvedRepository, 0, len(accumulator.teams))
	for _, repositoryName := range accumulator.order {
		teams, present := accumulator.teams[repositoryName]
		if !present {
			continue
		}
		resolvedRepositories = append(resolvedRepositories, ResolvedRepository{Name: repositoryName, Teams: teams})
	}
	return resolvedRepositories
}
