package bitbucket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/gitrepo"
)

const (
	testTokenConstant = "bitbucket-token"
)

func newTestServer(testInstance *testing.T, handler http.HandlerFunc) *bitbucket.Client {
	testInstance.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer "+testTokenConstant {
			responseWriter.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(responseWriter, request)
	}))
	testInstance.Cleanup(server.Close)

	client, clientError := bitbucket.NewClient(server.URL+"/rest/api/1.0/", testTokenConstant, server.Client())
	require.NoError(testInstance, clientError)
	return client
}

func writeJSON(testInstance *testing.T, responseWriter http.ResponseWriter, payload any) {
	testInstance.Helper()
	responseWriter.Header().Set("Content-Type", "application/json")
	require.NoError(testInstance, json.NewEncoder(responseWriter).Encode(payload))
}

func TestNewClientValidation(testInstance *testing.T) {
	_, missingURLError := bitbucket.NewClient(" ", testTokenConstant, nil)
	require.ErrorIs(testInstance, missingURLError, bitbucket.ErrBaseURLRequired)

	_, missingTokenError := bitbucket.NewClient("https://bitbucket.example.com/rest/api/1.0", "", nil)
	require.ErrorIs(testInstance, missingTokenError, bitbucket.ErrTokenRequired)

	_, relativeURLError := bitbucket.NewClient("bitbucket.example.com", testTokenConstant, nil)
	require.Error(testInstance, relativeURLError)
}

func TestClientListRepositoriesFollowsPages(testInstance *testing.T) {
	var requestedStarts []string
	client := newTestServer(testInstance, func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "/rest/api/1.0/projects/ABC/repos", request.URL.Path)
		start := request.URL.Query().Get("start")
		requestedStarts = append(requestedStarts, start)
		switch start {
		case "0":
			writeJSON(testInstance, responseWriter, map[string]any{
				"values":        []map[string]any{{"name": "repo1"}, {"name": "repo2"}},
				"isLastPage":    false,
				"nextPageStart": 2,
			})
		default:
			writeJSON(testInstance, responseWriter, map[string]any{
				"values":     []map[string]any{{"name": "repo3"}},
				"isLastPage": true,
			})
		}
	})

	repositoryNames, listError := client.ListRepositories(context.Background(), "ABC")
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []string{"repo1", "repo2", "repo3"}, repositoryNames)
	require.Equal(testInstance, []string{"0", "2"}, requestedStarts)
}

func TestClientListProjects(testInstance *testing.T) {
	client := newTestServer(testInstance, func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "/rest/api/1.0/projects", request.URL.Path)
		writeJSON(testInstance, responseWriter, map[string]any{
			"values":     []map[string]any{{"key": "ABC", "name": "Alpha"}, {"key": "DEF", "name": "Delta"}},
			"isLastPage": true,
		})
	})

	projects, listError := client.ListProjects(context.Background())
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []bitbucket.Project{{Key: "ABC", Name: "Alpha"}, {Key: "DEF", Name: "Delta"}}, projects)
}

func TestClientGetRepository(testInstance *testing.T) {
	client := newTestServer(testInstance, func(responseWriter http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/rest/api/1.0/projects/ABC/repos/repo1":
			writeJSON(testInstance, responseWriter, map[string]any{
				"name":        "repo1",
				"description": "first repository",
				"links": map[string]any{"clone": []map[string]any{
					{"href": "ssh://git@bitbucket.example.com:7999/abc/repo1.git", "name": "ssh"},
					{"href": "https://bitbucket.example.com/scm/abc/repo1.git", "name": "http"},
				}},
			})
		case "/rest/api/1.0/projects/ABC/repos/bare":
			writeJSON(testInstance, responseWriter, map[string]any{"name": "bare"})
		case "/rest/api/1.0/projects/ABC/repos/broken":
			responseWriter.WriteHeader(http.StatusInternalServerError)
		default:
			responseWriter.WriteHeader(http.StatusNotFound)
		}
	})

	metadata, getError := client.GetRepository(context.Background(), "ABC", "repo1")
	require.NoError(testInstance, getError)
	require.NotNil(testInstance, metadata.Description)
	require.Equal(testInstance, "first repository", *metadata.Description)
	link, linkError := gitrepo.SelectHTTPCloneLink(metadata.CloneLinks)
	require.NoError(testInstance, linkError)
	require.Equal(testInstance, "https://bitbucket.example.com/scm/abc/repo1.git", link)

	bareMetadata, bareError := client.GetRepository(context.Background(), "ABC", "bare")
	require.NoError(testInstance, bareError)
	require.Nil(testInstance, bareMetadata.Description)

	_, missingError := client.GetRepository(context.Background(), "ABC", "missing")
	require.True(testInstance, bitbucket.IsNotFound(missingError))

	_, brokenError := client.GetRepository(context.Background(), "ABC", "broken")
	statusCode, available := bitbucket.StatusCode(brokenError)
	require.True(testInstance, available)
	require.Equal(testInstance, http.StatusInternalServerError, statusCode)
	require.False(testInstance, bitbucket.IsNotFound(brokenError))
}

func TestClientCheckProjectAccess(testInstance *testing.T) {
	client := newTestServer(testInstance, func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "1", request.URL.Query().Get("limit"))
		if request.URL.Path == "/rest/api/1.0/projects/ABC/repos" {
			writeJSON(testInstance, responseWriter, map[string]any{"values": []any{}, "isLastPage": true})
			return
		}
		responseWriter.WriteHeader(http.StatusNotFound)
	})

	require.NoError(testInstance, client.CheckProjectAccess(context.Background(), "ABC"))
	require.True(testInstance, bitbucket.IsNotFound(client.CheckProjectAccess(context.Background(), "NOPE")))

	unauthorizedClient, clientError := bitbucket.NewClient(clientBaseURL(testInstance), "wrong", nil)
	require.NoError(testInstance, clientError)
	require.True(testInstance, bitbucket.IsUnauthorized(unauthorizedClient.CheckProjectAccess(context.Background(), "ABC")))
}

func clientBaseURL(testInstance *testing.T) string {
	testInstance.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.WriteHeader(http.StatusUnauthorized)
	}))
	testInstance.Cleanup(server.Close)
	return server.URL + "/rest/api/1.0"
}

func TestResponseStatusErrorMessage(testInstance *testing.T) {
	statusError := bitbucket.ResponseStatusError{Operation: bitbucket.OperationName("GetRepository"), StatusCode: 503}
	require.Equal(testInstance, "GetRepository returned status "+strconv.Itoa(503), statusError.Error())
}
