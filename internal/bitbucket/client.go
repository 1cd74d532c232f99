package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/temirov/reposync/internal/gitrepo"
)

const (
	projectsPathConstant                    = "/projects"
	repositoriesPathTemplateConstant        = "/projects/%s/repos"
	repositoryPathTemplateConstant          = "/projects/%s/repos/%s"
	startQueryParameterConstant             = "start"
	limitQueryParameterConstant             = "limit"
	accessCheckLimitValueConstant           = "1"
	authorizationHeaderConstant             = "Authorization"
	acceptHeaderConstant                    = "Accept"
	acceptJSONValueConstant                 = "application/json"
	bearerAuthorizationTemplateConstant     = "Bearer %s"
	baseURLRequiredMessageConstant          = "bitbucket api url must be provided"
	tokenRequiredMessageConstant            = "bitbucket access token must be provided"
	invalidBaseURLTemplateConstant          = "invalid bitbucket api url %q: %w"
	responseStatusErrorTemplateConstant     = "%s returned status %d"
	operationErrorTemplateConstant          = "%s failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	listProjectsOperationNameConstant       = OperationName("ListProjects")
	listRepositoriesOperationNameConstant   = OperationName("ListRepositories")
	getRepositoryOperationNameConstant      = OperationName("GetRepository")
	checkProjectAccessOperationNameConstant = OperationName("CheckProjectAccess")
	maximumPageRequestsConstant             = 10000
)

// OperationName identifies a Bitbucket API interaction.
type OperationName string

// Project is a Bitbucket project reference.
type Project struct {
	Key  string
	Name string
}

// RepositoryMetadata describes a source repository.
type RepositoryMetadata struct {
	Name        string
	Description *string
	CloneLinks  []gitrepo.CloneLink
}

// ResponseStatusError reports an unexpected HTTP status. StatusCode is the only failure signal the API provides.
type ResponseStatusError struct {
	Operation  OperationName
	StatusCode int
}

// Error describes the status failure.
func (statusError ResponseStatusError) Error() string {
	return fmt.Sprintf(responseStatusErrorTemplateConstant, statusError.Operation, statusError.StatusCode)
}

// OperationError wraps transport failures.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the transport failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError reports a response body that could not be decoded.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying cause.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// StatusCode extracts the HTTP status carried by a ResponseStatusError.
func StatusCode(err error) (int, bool) {
	var statusError ResponseStatusError
	if errors.As(err, &statusError) {
		return statusError.StatusCode, true
	}
	return 0, false
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	statusCode, available := StatusCode(err)
	return available && statusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	statusCode, available := StatusCode(err)
	return available && statusCode == http.StatusUnauthorized
}

var (
	// ErrBaseURLRequired indicates the client was constructed without an API URL.
	ErrBaseURLRequired = errors.New(baseURLRequiredMessageConstant)
	// ErrTokenRequired indicates the client was constructed without an access token.
	ErrTokenRequired = errors.New(tokenRequiredMessageConstant)
)

// Client talks to the Bitbucket Server REST API with bearer authentication.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client. baseURL points at the REST root, for example https://bitbucket.example.com/rest/api/1.0.
// A nil httpClient selects http.DefaultClient.
func NewClient(baseURL string, token string, httpClient *http.Client) (*Client, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if len(trimmedBaseURL) == 0 {
		return nil, ErrBaseURLRequired
	}
	if len(strings.TrimSpace(token)) == 0 {
		return nil, ErrTokenRequired
	}

	parsedBaseURL, parseError := url.Parse(trimmedBaseURL)
	if parseError != nil {
		return nil, fmt.Errorf(invalidBaseURLTemplateConstant, trimmedBaseURL, parseError)
	}
	if len(parsedBaseURL.Scheme) == 0 || len(parsedBaseURL.Host) == 0 {
		return nil, fmt.Errorf(invalidBaseURLTemplateConstant, trimmedBaseURL, errors.New("scheme and host required"))
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: parsedBaseURL, token: token, httpClient: httpClient}, nil
}

type pagedResponse[T any] struct {
	Values        []T  `json:"values"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
}

type projectPayload struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type repositoryPayload struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	Links       struct {
		Clone []struct {
			Href string `json:"href"`
			Name string `json:"name"`
		} `json:"clone"`
	} `json:"links"`
}

// ListProjects returns every project visible to the token.
func (client *Client) ListProjects(executionContext context.Context) ([]Project, error) {
	payloads, listError := listAllPages[projectPayload](executionContext, client, listProjectsOperationNameConstant, projectsPathConstant)
	if listError != nil {
		return nil, listError
	}

	projects := make([]Project, 0, len(payloads))
	for _, payload := range payloads {
		projects = append(projects, Project{Key: payload.Key, Name: payload.Name})
	}
	return projects, nil
}

// ListRepositories returns the names of every repository in the project.
func (client *Client) ListRepositories(executionContext context.Context, projectKey string) ([]string, error) {
	repositoriesPath := fmt.Sprintf(repositoriesPathTemplateConstant, projectKey)
	payloads, listError := listAllPages[repositoryPayload](executionContext, client, listRepositoriesOperationNameConstant, repositoriesPath)
	if listError != nil {
		return nil, listError
	}

	repositoryNames := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		repositoryNames = append(repositoryNames, payload.Name)
	}
	return repositoryNames, nil
}

// GetRepository returns description and clone links for one repository.
func (client *Client) GetRepository(executionContext context.Context, projectKey string, repositoryName string) (RepositoryMetadata, error) {
	repositoryPath := fmt.Sprintf(repositoryPathTemplateConstant, projectKey, repositoryName)

	var payload repositoryPayload
	if requestError := client.getJSON(executionContext, getRepositoryOperationNameConstant, repositoryPath, nil, &payload); requestError != nil {
		return RepositoryMetadata{}, requestError
	}

	metadata := RepositoryMetadata{Name: payload.Name, Description: payload.Description}
	for _, cloneLink := range payload.Links.Clone {
		metadata.CloneLinks = append(metadata.CloneLinks, gitrepo.CloneLink{Name: cloneLink.Name, Href: cloneLink.Href})
	}
	return metadata, nil
}

// CheckProjectAccess confirms the token can list repositories of the project.
// A 404 means the project is unknown; a 401 means the token was rejected.
func (client *Client) CheckProjectAccess(executionContext context.Context, projectKey string) error {
	repositoriesPath := fmt.Sprintf(repositoriesPathTemplateConstant, projectKey)
	query := url.Values{limitQueryParameterConstant: []string{accessCheckLimitValueConstant}}
	var payload pagedResponse[repositoryPayload]
	return client.getJSON(executionContext, checkProjectAccessOperationNameConstant, repositoriesPath, query, &payload)
}

func listAllPages[T any](executionContext context.Context, client *Client, operation OperationName, resourcePath string) ([]T, error) {
	collected := make([]T, 0)
	start := 0
	for pageIndex := 0; pageIndex < maximumPageRequestsConstant; pageIndex++ {
		query := url.Values{startQueryParameterConstant: []string{strconv.Itoa(start)}}

		var page pagedResponse[T]
		if requestError := client.getJSON(executionContext, operation, resourcePath, query, &page); requestError != nil {
			return nil, requestError
		}
		collected = append(collected, page.Values...)

		if page.IsLastPage || page.NextPageStart <= start {
			break
		}
		start = page.NextPageStart
	}
	return collected, nil
}

func (client *Client) getJSON(executionContext context.Context, operation OperationName, resourcePath string, query url.Values, target any) error {
	requestURL := *client.baseURL
	requestURL.Path = strings.TrimRight(client.baseURL.Path, "/") + resourcePath
	requestURL.RawPath = ""
	if len(query) > 0 {
		requestURL.RawQuery = query.Encode()
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL.String(), nil)
	if requestError != nil {
		return OperationError{Operation: operation, Cause: requestError}
	}
	request.Header.Set(authorizationHeaderConstant, fmt.Sprintf(bearerAuthorizationTemplateConstant, client.token))
	request.Header.Set(acceptHeaderConstant, acceptJSONValueConstant)

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		return OperationError{Operation: operation, Cause: responseError}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return ResponseStatusError{Operation: operation, StatusCode: response.StatusCode}
	}

	if decodeError := json.NewDecoder(response.Body).Decode(target); decodeError != nil {
		return ResponseDecodingError{Operation: operation, Cause: decodeError}
	}
	return nil
}
