package reposync_test

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/temirov/reposync/internal/githubapi"
	"github.com/temirov/reposync/internal/gitref"
)

var errSimulatedTransport = errors.New("simulated transport failure")

type pushRecord struct {
	RepositoryPath string
	Destination    gitref.Remote
	Refspec        gitref.Refspec
}

type fakeDriver struct {
	tags            []string
	branches        []string
	failingRefspecs map[string]bool
	fetchError      error
	cloneError      error
	clonedPaths     []string
	fetchCount      int
	pushes          []pushRecord
}

func (driver *fakeDriver) Clone(_ context.Context, repositoryPath string, _ gitref.Remote) error {
	driver.clonedPaths = append(driver.clonedPaths, repositoryPath)
	if mkdirError := os.MkdirAll(repositoryPath, 0o755); mkdirError != nil {
		return mkdirError
	}
	return driver.cloneError
}

func (driver *fakeDriver) Fetch(context.Context, string, gitref.Remote) error {
	driver.fetchCount++
	return driver.fetchError
}

func (driver *fakeDriver) ListLocalTags(context.Context, string) ([]string, error) {
	return append([]string(nil), driver.tags...), nil
}

func (driver *fakeDriver) ListRemoteBranches(context.Context, string, string) ([]string, error) {
	return append([]string(nil), driver.branches...), nil
}

func (driver *fakeDriver) Push(_ context.Context, repositoryPath string, destination gitref.Remote, refspec gitref.Refspec) error {
	driver.pushes = append(driver.pushes, pushRecord{RepositoryPath: repositoryPath, Destination: destination, Refspec: refspec})
	if driver.failingRefspecs[refspec.String()] {
		return errSimulatedTransport
	}
	return nil
}

func (driver *fakeDriver) pushedDestinations() []string {
	destinations := make([]string, 0, len(driver.pushes))
	for _, push := range driver.pushes {
		destinations = append(destinations, push.Refspec.Destination)
	}
	return destinations
}

type createRequest struct {
	Organization string
	Name         string
	Description  *string
}

// fakeDestination keeps destination repositories and team grants in memory.
type fakeDestination struct {
	repositories   map[string]string
	createFailures map[string]error
	createRequests []createRequest
	teams          map[string]githubapi.Team
	grants         map[string]map[string]string
	grantFailures  map[string]int
	grantRequests  int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		repositories: map[string]string{},
		teams:        map[string]githubapi.Team{},
		grants:       map[string]map[string]string{},
	}
}

func (destination *fakeDestination) GetRepository(_ context.Context, owner string, name string) (githubapi.RepositoryState, error) {
	cloneURL, exists := destination.repositories[owner+"/"+name]
	return githubapi.RepositoryState{Exists: exists, CloneURL: cloneURL}, nil
}

func (destination *fakeDestination) CreateRepository(_ context.Context, organization string, name string, description *string) (string, error) {
	destination.createRequests = append(destination.createRequests, createRequest{Organization: organization, Name: name, Description: description})
	if failure, failed := destination.createFailures[name]; failed {
		return "", failure
	}
	owner := organization
	if len(owner) == 0 {
		owner = "mirror-bot"
	}
	cloneURL := "https://github.example/" + owner + "/" + name + ".git"
	destination.repositories[owner+"/"+name] = cloneURL
	return cloneURL, nil
}

func (destination *fakeDestination) GetTeamBySlug(_ context.Context, _ string, slug string) (githubapi.Team, error) {
	team, known := destination.teams[slug]
	if !known {
		return githubapi.Team{}, githubapi.ResponseStatusError{Operation: "GetTeamBySlug", StatusCode: http.StatusNotFound}
	}
	return team, nil
}

func (destination *fakeDestination) AddRepositoryToTeam(_ context.Context, team githubapi.Team, _ string, repository string, permission string) error {
	destination.grantRequests++
	if statusCode, failing := destination.grantFailures[repository]; failing {
		return githubapi.ResponseStatusError{Operation: "AddTeamRepository", StatusCode: statusCode}
	}
	if destination.grants[team.Slug] == nil {
		destination.grants[team.Slug] = map[string]string{}
	}
	destination.grants[team.Slug][repository] = permission
	return nil
}
