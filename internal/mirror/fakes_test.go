package mirror_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sort"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/githubapi"
	"github.com/temirov/reposync/internal/gitref"
	"github.com/temirov/reposync/internal/gitrepo"
)

const (
	testOrganizationConstant       = "acme"
	testDestinationAccountConstant = "mirror-bot"
	testSourceAccountConstant      = "mirror"
	testSourceTokenConstant        = "source-secret"
	testDestinationTokenConstant   = "destination-secret"
	testPrefixConstant             = "mig-"
	testSourceHostConstant         = "https://bitbucket.example/scm/"
)

var errSimulatedFailure = errors.New("simulated failure")

// fakeSource serves projects and repositories from memory.
type fakeSource struct {
	projects     []bitbucket.Project
	repositories map[string][]string
	accessErrors map[string]error
	listErrors   map[string]error
	missing      map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		repositories: map[string][]string{},
		accessErrors: map[string]error{},
		listErrors:   map[string]error{},
		missing:      map[string]bool{},
	}
}

func (source *fakeSource) ListProjects(context.Context) ([]bitbucket.Project, error) {
	return append([]bitbucket.Project(nil), source.projects...), nil
}

func (source *fakeSource) ListRepositories(_ context.Context, projectKey string) ([]string, error) {
	if listError := source.listErrors[projectKey]; listError != nil {
		return nil, listError
	}
	return append([]string(nil), source.repositories[projectKey]...), nil
}

func (source *fakeSource) GetRepository(_ context.Context, projectKey string, repositoryName string) (bitbucket.RepositoryMetadata, error) {
	if source.missing[repositoryName] {
		return bitbucket.RepositoryMetadata{}, bitbucket.ResponseStatusError{Operation: "GetRepository", StatusCode: http.StatusNotFound}
	}
	description := "description of " + repositoryName
	return bitbucket.RepositoryMetadata{
		Name:        repositoryName,
		Description: &description,
		CloneLinks: []gitrepo.CloneLink{
			{Name: "ssh", Href: "ssh://git@bitbucket.example/" + projectKey + "/" + repositoryName + ".git"},
			{Name: "http", Href: testSourceHostConstant + projectKey + "/" + repositoryName + ".git"},
		},
	}, nil
}

func (source *fakeSource) CheckProjectAccess(_ context.Context, projectKey string) error {
	return source.accessErrors[projectKey]
}

// fakeDestination keeps destination repositories and team grants in memory.
type fakeDestination struct {
	login           string
	userError       error
	members         map[string]bool
	repositories    map[string]string
	teams           map[string]githubapi.Team
	grants          map[string][]string
	createdNames    []string
	personalChecked bool
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		login:        testDestinationAccountConstant,
		members:      map[string]bool{testDestinationAccountConstant: true},
		repositories: map[string]string{},
		teams:        map[string]githubapi.Team{},
		grants:       map[string][]string{},
	}
}

func (destination *fakeDestination) addTeam(slug string) {
	destination.teams[slug] = githubapi.Team{ID: int64(len(destination.teams) + 1), OrganizationID: 7, Slug: slug, Name: slug}
}

func (destination *fakeDestination) addRepository(owner string, name string) {
	destination.repositories[owner+"/"+name] = "https://github.example/" + owner + "/" + name + ".git"
}

func (destination *fakeDestination) GetRepository(_ context.Context, owner string, name string) (githubapi.RepositoryState, error) {
	cloneURL, exists := destination.repositories[owner+"/"+name]
	return githubapi.RepositoryState{Exists: exists, CloneURL: cloneURL}, nil
}

func (destination *fakeDestination) CreateRepository(_ context.Context, organization string, name string, _ *string) (string, error) {
	owner := organization
	if len(owner) == 0 {
		owner = destination.login
	}
	destination.createdNames = append(destination.createdNames, owner+"/"+name)
	destination.addRepository(owner, name)
	return destination.repositories[owner+"/"+name], nil
}

func (destination *fakeDestination) ListTeams(context.Context, string) ([]githubapi.Team, error) {
	teams := make([]githubapi.Team, 0, len(destination.teams))
	for _, team := range destination.teams {
		teams = append(teams, team)
	}
	sort.Slice(teams, func(left int, right int) bool { return teams[left].Slug < teams[right].Slug })
	return teams, nil
}

func (destination *fakeDestination) GetTeamBySlug(_ context.Context, _ string, slug string) (githubapi.Team, error) {
	team, known := destination.teams[slug]
	if !known {
		return githubapi.Team{}, githubapi.ResponseStatusError{Operation: "GetTeamBySlug", StatusCode: http.StatusNotFound}
	}
	return team, nil
}

func (destination *fakeDestination) AddRepositoryToTeam(_ context.Context, team githubapi.Team, _ string, repository string, _ string) error {
	destination.grants[team.Slug] = append(destination.grants[team.Slug], repository)
	return nil
}

func (destination *fakeDestination) AuthenticatedUser(context.Context) (string, error) {
	if destination.userError != nil {
		return "", destination.userError
	}
	return destination.login, nil
}

func (destination *fakeDestination) IsOrganizationMember(_ context.Context, _ string, account string) (bool, error) {
	return destination.members[account], nil
}

func (destination *fakeDestination) CheckPersonalRepositoryAccess(context.Context, string) error {
	destination.personalChecked = true
	return nil
}

// fakeDriver records git operations without touching a real repository.
type fakeDriver struct {
	tags        []string
	branches    []string
	clonedPaths []string
	pushes      []gitref.Refspec
	remotes     []gitref.Remote
}

func (driver *fakeDriver) Clone(_ context.Context, repositoryPath string, _ gitref.Remote) error {
	driver.clonedPaths = append(driver.clonedPaths, repositoryPath)
	return os.MkdirAll(repositoryPath, 0o755)
}

func (driver *fakeDriver) Fetch(context.Context, string, gitref.Remote) error {
	return nil
}

func (driver *fakeDriver) ListLocalTags(context.Context, string) ([]string, error) {
	return append([]string(nil), driver.tags...), nil
}

func (driver *fakeDriver) ListRemoteBranches(context.Context, string, string) ([]string, error) {
	return append([]string(nil), driver.branches...), nil
}

func (driver *fakeDriver) Push(_ context.Context, _ string, destination gitref.Remote, refspec gitref.Refspec) error {
	driver.pushes = append(driver.pushes, refspec)
	driver.remotes = append(driver.remotes, destination)
	return nil
}

// scriptedPrompter answers interactive prompts from fixed values.
type scriptedPrompter struct {
	pushToOrganization bool
	projectKey         string
	repositories       []string
	confirm            bool
	teams              []string
	teamRepositories   map[string][]string
	offeredProjects    []bitbucket.Project
	offeredTeamRepos   map[string][]string
	confirmCounts      [2]int
}

func (prompter *scriptedPrompter) SelectDestination(context.Context) (bool, error) {
	return prompter.pushToOrganization, nil
}

func (prompter *scriptedPrompter) SelectProject(_ context.Context, projects []bitbucket.Project) (string, error) {
	prompter.offeredProjects = projects
	return prompter.projectKey, nil
}

func (prompter *scriptedPrompter) SelectRepositories(context.Context, []string) ([]string, error) {
	return prompter.repositories, nil
}

func (prompter *scriptedPrompter) ConfirmSync(_ context.Context, syncCount int, migrateCount int) (bool, error) {
	prompter.confirmCounts = [2]int{syncCount, migrateCount}
	return prompter.confirm, nil
}

func (prompter *scriptedPrompter) SelectTeams(context.Context, []string) ([]string, error) {
	return prompter.teams, nil
}

func (prompter *scriptedPrompter) SelectTeamRepositories(_ context.Context, teamSlug string, repositoryNames []string) ([]string, error) {
	if prompter.offeredTeamRepos == nil {
		prompter.offeredTeamRepos = map[string][]string{}
	}
	prompter.offeredTeamRepos[teamSlug] = repositoryNames
	return prompter.teamRepositories[teamSlug], nil
}
