package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

const (
	publicAPIHostConstant                 = "api.github.com"
	personalRepositoriesPathTemplate      = "users/%s/repos?per_page=1"
	tokenRequiredMessageConstant          = "github access token must be provided"
	invalidAPIURLTemplateConstant         = "invalid github api url %q: %w"
	enterpriseClientErrorTemplateConstant = "unable to configure github enterprise client: %w"
	responseStatusErrorTemplateConstant   = "%s returned status %d"
	operationErrorTemplateConstant        = "%s failed: %s"
	invalidInputErrorTemplateConstant     = "%s: %s"
	requiredValueMessageConstant          = "value required"
	pageSizeConstant                      = 100

	getRepositoryOperationName          = OperationName("GetRepository")
	createRepositoryOperationName       = OperationName("CreateRepository")
	listTeamsOperationName              = OperationName("ListTeams")
	getTeamOperationName                = OperationName("GetTeamBySlug")
	getOrganizationOperationName        = OperationName("GetOrganization")
	addTeamRepositoryOperationName      = OperationName("AddTeamRepository")
	authenticatedUserOperationName      = OperationName("GetAuthenticatedUser")
	organizationMembershipOperationName = OperationName("IsOrganizationMember")
	personalRepositoriesOperationName   = OperationName("ListPersonalRepositories")
)

// OperationName identifies a GitHub API interaction.
type OperationName string

// Permission levels accepted by team repository grants.
const (
	PermissionAdmin = "admin"
)

// RepositoryState reports whether a destination repository exists and its clone URL when it does.
type RepositoryState struct {
	Exists   bool
	CloneURL string
}

// Team identifies a destination team.
type Team struct {
	ID             int64
	OrganizationID int64
	Slug           string
	Name           string
}

// ResponseStatusError reports an unexpected HTTP status.
type ResponseStatusError struct {
	Operation  OperationName
	StatusCode int
}

// Error describes the status failure.
func (statusError ResponseStatusError) Error() string {
	return fmt.Sprintf(responseStatusErrorTemplateConstant, statusError.Operation, statusError.StatusCode)
}

// OperationError wraps transport failures that carry no HTTP status.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// StatusCode extracts the HTTP status carried by a ResponseStatusError.
func StatusCode(err error) (int, bool) {
	var statusError ResponseStatusError
	if errors.As(err, &statusError) {
		return statusError.StatusCode, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	statusCode, available := StatusCode(err)
	return available && statusCode == http.StatusUnauthorized
}

// ErrTokenRequired indicates the client was constructed without an access token.
var ErrTokenRequired = errors.New(tokenRequiredMessageConstant)

// Client performs destination operations against GitHub or GitHub Enterprise.
type Client struct {
	client *github.Client
}

// NewClient constructs a Client authenticated with a static token. An empty apiURL or the
// public API host selects github.com; anything else is treated as a GitHub Enterprise URL.
func NewClient(executionContext context.Context, apiURL string, token string) (*Client, error) {
	if len(strings.TrimSpace(token)) == 0 {
		return nil, ErrTokenRequired
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	githubClient := github.NewClient(oauth2.NewClient(executionContext, tokenSource))

	trimmedAPIURL := strings.TrimSpace(apiURL)
	if len(trimmedAPIURL) == 0 {
		return &Client{client: githubClient}, nil
	}

	parsedAPIURL, parseError := url.Parse(trimmedAPIURL)
	if parseError != nil || len(parsedAPIURL.Host) == 0 {
		if parseError == nil {
			parseError = errors.New("host required")
		}
		return nil, fmt.Errorf(invalidAPIURLTemplateConstant, trimmedAPIURL, parseError)
	}
	if strings.EqualFold(parsedAPIURL.Host, publicAPIHostConstant) {
		return &Client{client: githubClient}, nil
	}

	enterpriseClient, enterpriseError := githubClient.WithEnterpriseURLs(trimmedAPIURL, trimmedAPIURL)
	if enterpriseError != nil {
		return nil, fmt.Errorf(enterpriseClientErrorTemplateConstant, enterpriseError)
	}
	return &Client{client: enterpriseClient}, nil
}

// GetRepository checks whether owner/name exists. A 404 is reported as a missing repository, not an error.
func (client *Client) GetRepository(executionContext context.Context, owner string, name string) (RepositoryState, error) {
	repository, response, getError := client.client.Repositories.Get(executionContext, owner, name)
	if getError != nil {
		if responseStatus(response, getError) == http.StatusNotFound {
			return RepositoryState{Exists: false}, nil
		}
		return RepositoryState{}, classifyError(executionContext, getRepositoryOperationName, response, getError)
	}
	return RepositoryState{Exists: true, CloneURL: repository.GetCloneURL()}, nil
}

// CreateRepository creates a private repository under organization, or under the authenticated
// user when organization is empty, and returns its clone URL.
func (client *Client) CreateRepository(executionContext context.Context, organization string, name string, description *string) (string, error) {
	if len(strings.TrimSpace(name)) == 0 {
		return "", InvalidInputError{FieldName: "name", Message: requiredValueMessageConstant}
	}

	repositoryRequest := &github.Repository{
		Name:        github.String(name),
		Private:     github.Bool(true),
		Description: description,
	}

	repository, response, createError := client.client.Repositories.Create(executionContext, organization, repositoryRequest)
	if createError != nil {
		return "", classifyError(executionContext, createRepositoryOperationName, response, createError)
	}
	if response != nil && response.StatusCode != http.StatusCreated {
		return "", ResponseStatusError{Operation: createRepositoryOperationName, StatusCode: response.StatusCode}
	}
	return repository.GetCloneURL(), nil
}

// ListTeams returns every team of the organization.
func (client *Client) ListTeams(executionContext context.Context, organization string) ([]Team, error) {
	listOptions := &github.ListOptions{PerPage: pageSizeConstant}
	teams := make([]Team, 0)
	for {
		pageTeams, response, listError := client.client.Teams.ListTeams(executionContext, organization, listOptions)
		if listError != nil {
			return nil, classifyError(executionContext, listTeamsOperationName, response, listError)
		}
		for _, pageTeam := range pageTeams {
			teams = append(teams, convertTeam(pageTeam))
		}
		if response == nil || response.NextPage == 0 {
			return teams, nil
		}
		listOptions.Page = response.NextPage
	}
}

// GetTeamBySlug resolves the numeric identifiers of a team.
func (client *Client) GetTeamBySlug(executionContext context.Context, organization string, slug string) (Team, error) {
	team, response, getError := client.client.Teams.GetTeamBySlug(executionContext, organization, slug)
	if getError != nil {
		return Team{}, classifyError(executionContext, getTeamOperationName, response, getError)
	}

	resolvedTeam := convertTeam(team)
	if resolvedTeam.OrganizationID == 0 {
		organizationDetails, organizationResponse, organizationError := client.client.Organizations.Get(executionContext, organization)
		if organizationError != nil {
			return Team{}, classifyError(executionContext, getOrganizationOperationName, organizationResponse, organizationError)
		}
		resolvedTeam.OrganizationID = organizationDetails.GetID()
	}
	return resolvedTeam, nil
}

// AddRepositoryToTeam grants the team the permission on owner/repository. Only a 204 counts as success.
func (client *Client) AddRepositoryToTeam(executionContext context.Context, team Team, owner string, repository string, permission string) error {
	addOptions := &github.TeamAddTeamRepoOptions{Permission: permission}
	response, addError := client.client.Teams.AddTeamRepoByID(executionContext, team.OrganizationID, team.ID, owner, repository, addOptions)
	if addError != nil {
		return classifyError(executionContext, addTeamRepositoryOperationName, response, addError)
	}
	if response != nil && response.StatusCode != http.StatusNoContent {
		return ResponseStatusError{Operation: addTeamRepositoryOperationName, StatusCode: response.StatusCode}
	}
	return nil
}

// AuthenticatedUser returns the login the token belongs to.
func (client *Client) AuthenticatedUser(executionContext context.Context) (string, error) {
	user, response, getError := client.client.Users.Get(executionContext, "")
	if getError != nil {
		return "", classifyError(executionContext, authenticatedUserOperationName, response, getError)
	}
	return user.GetLogin(), nil
}

// IsOrganizationMember reports whether account belongs to organization.
func (client *Client) IsOrganizationMember(executionContext context.Context, organization string, account string) (bool, error) {
	isMember, response, memberError := client.client.Organizations.IsMember(executionContext, organization, account)
	if memberError != nil {
		return false, classifyError(executionContext, organizationMembershipOperationName, response, memberError)
	}
	return isMember, nil
}

// CheckPersonalRepositoryAccess confirms the token can list the account's repositories.
func (client *Client) CheckPersonalRepositoryAccess(executionContext context.Context, account string) error {
	request, requestError := client.client.NewRequest(http.MethodGet, fmt.Sprintf(personalRepositoriesPathTemplate, url.PathEscape(account)), nil)
	if requestError != nil {
		return OperationError{Operation: personalRepositoriesOperationName, Cause: requestError}
	}
	response, doError := client.client.Do(executionContext, request, nil)
	if doError != nil {
		return classifyError(executionContext, personalRepositoriesOperationName, response, doError)
	}
	return nil
}

func convertTeam(team *github.Team) Team {
	if team == nil {
		return Team{}
	}
	return Team{
		ID:             team.GetID(),
		OrganizationID: team.GetOrganization().GetID(),
		Slug:           team.GetSlug(),
		Name:           team.GetName(),
	}
}

func responseStatus(response *github.Response, err error) int {
	if response != nil && response.Response != nil {
		return response.StatusCode
	}
	var errorResponse *github.ErrorResponse
	if errors.As(err, &errorResponse) && errorResponse.Response != nil {
		return errorResponse.Response.StatusCode
	}
	return 0
}

func classifyError(executionContext context.Context, operation OperationName, response *github.Response, err error) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}
	if statusCode := responseStatus(response, err); statusCode != 0 {
		return ResponseStatusError{Operation: operation, StatusCode: statusCode}
	}
	return OperationError{Operation: operation, Cause: err}
}
