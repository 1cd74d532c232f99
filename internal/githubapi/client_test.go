package githubapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/reposync/internal/githubapi"
)

const (
	testTokenConstant        = "ghp-test-token"
	enterprisePrefixConstant = "/api/v3"
)

func newTestClient(testInstance *testing.T, handler http.Handler) *githubapi.Client {
	testInstance.Helper()
	server := httptest.NewServer(handler)
	testInstance.Cleanup(server.Close)

	client, clientError := githubapi.NewClient(context.Background(), server.URL, testTokenConstant)
	require.NoError(testInstance, clientError)
	return client
}

func TestNewClientValidatesInputs(testInstance *testing.T) {
	_, missingTokenError := githubapi.NewClient(context.Background(), "", "  ")
	require.ErrorIs(testInstance, missingTokenError, githubapi.ErrTokenRequired)

	_, invalidURLError := githubapi.NewClient(context.Background(), "not a url", testTokenConstant)
	require.Error(testInstance, invalidURLError)

	publicClient, publicError := githubapi.NewClient(context.Background(), "https://api.github.com", testTokenConstant)
	require.NoError(testInstance, publicError)
	require.NotNil(testInstance, publicClient)
}

func TestGetRepository(testInstance *testing.T) {
	testCases := []struct {
		name          string
		status        int
		expectedState githubapi.RepositoryState
		expectedCode  int
	}{
		{
			name:          "existing",
			status:        http.StatusOK,
			expectedState: githubapi.RepositoryState{Exists: true, CloneURL: "https://github.example/org/demo.git"},
		},
		{
			name:          "missing",
			status:        http.StatusNotFound,
			expectedState: githubapi.RepositoryState{Exists: false},
		},
		{
			name:         "forbidden",
			status:       http.StatusForbidden,
			expectedCode: http.StatusForbidden,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc(enterprisePrefixConstant+"/repos/org/demo", func(writer http.ResponseWriter, request *http.Request) {
				require.Equal(subTest, "Bearer "+testTokenConstant, request.Header.Get("Authorization"))
				writer.WriteHeader(testCase.status)
				if testCase.status == http.StatusOK {
					_, _ = io.WriteString(writer, `{"name":"demo","clone_url":"https://github.example/org/demo.git"}`)
					return
				}
				_, _ = io.WriteString(writer, `{"message":"failure"}`)
			})

			client := newTestClient(subTest, mux)
			state, getError := client.GetRepository(context.Background(), "org", "demo")
			if testCase.expectedCode != 0 {
				statusCode, available := githubapi.StatusCode(getError)
				require.True(subTest, available)
				require.Equal(subTest, testCase.expectedCode, statusCode)
				return
			}
			require.NoError(subTest, getError)
			require.Equal(subTest, testCase.expectedState, state)
		})
	}
}

func TestCreateRepositoryTargetsOrganizationOrUser(testInstance *testing.T) {
	testCases := []struct {
		name         string
		organization string
		path         string
	}{
		{name: "organization", organization: "org", path: enterprisePrefixConstant + "/orgs/org/repos"},
		{name: "personal", organization: "", path: enterprisePrefixConstant + "/user/repos"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			var receivedPayload map[string]any
			mux := http.NewServeMux()
			mux.HandleFunc(testCase.path, func(writer http.ResponseWriter, request *http.Request) {
				require.Equal(subTest, http.MethodPost, request.Method)
				require.NoError(subTest, json.NewDecoder(request.Body).Decode(&receivedPayload))
				writer.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(writer, `{"name":"demo","clone_url":"https://github.example/x/demo.git"}`)
			})

			client := newTestClient(subTest, mux)
			description := "Demo repository"
			cloneURL, createError := client.CreateRepository(context.Background(), testCase.organization, "demo", &description)
			require.NoError(subTest, createError)
			require.Equal(subTest, "https://github.example/x/demo.git", cloneURL)
			require.Equal(subTest, "demo", receivedPayload["name"])
			require.Equal(subTest, true, receivedPayload["private"])
			require.Equal(subTest, description, receivedPayload["description"])
		})
	}
}

func TestCreateRepositoryRejectsUnexpectedStatus(testInstance *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(enterprisePrefixConstant+"/orgs/org/repos", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(writer, `{"name":"demo"}`)
	})

	client := newTestClient(testInstance, mux)
	_, createError := client.CreateRepository(context.Background(), "org", "demo", nil)
	statusCode, available := githubapi.StatusCode(createError)
	require.True(testInstance, available)
	require.Equal(testInstance, http.StatusOK, statusCode)

	_, missingNameError := client.CreateRepository(context.Background(), "org", " ", nil)
	var inputError githubapi.InvalidInputError
	require.ErrorAs(testInstance, missingNameError, &inputError)
}

func TestTeamOperations(testInstance *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(enterprisePrefixConstant+"/orgs/org/teams", func(writer http.ResponseWriter, request *http.Request) {
		_, _ = io.WriteString(writer, `[{"id":7,"slug":"core","name":"Core"},{"id":8,"slug":"ops","name":"Ops"}]`)
	})
	mux.HandleFunc(enterprisePrefixConstant+"/orgs/org/teams/core", func(writer http.ResponseWriter, request *http.Request) {
		_, _ = io.WriteString(writer, `{"id":7,"slug":"core","name":"Core","organization":{"id":99}}`)
	})
	mux.HandleFunc(enterprisePrefixConstant+"/organizations/99/team/7/repos/org/demo", func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, http.MethodPut, request.Method)
		var payload map[string]string
		require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&payload))
		require.Equal(testInstance, githubapi.PermissionAdmin, payload["permission"])
		writer.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(testInstance, mux)

	teams, listError := client.ListTeams(context.Background(), "org")
	require.NoError(testInstance, listError)
	require.Len(testInstance, teams, 2)
	require.Equal(testInstance, "ops", teams[1].Slug)

	team, teamError := client.GetTeamBySlug(context.Background(), "org", "core")
	require.NoError(testInstance, teamError)
	require.Equal(testInstance, githubapi.Team{ID: 7, OrganizationID: 99, Slug: "core", Name: "Core"}, team)

	require.NoError(testInstance, client.AddRepositoryToTeam(context.Background(), team, "org", "demo", githubapi.PermissionAdmin))
}

func TestCredentialOperations(testInstance *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(enterprisePrefixConstant+"/user", func(writer http.ResponseWriter, request *http.Request) {
		_, _ = io.WriteString(writer, `{"login":"mirror-bot"}`)
	})
	mux.HandleFunc(enterprisePrefixConstant+"/orgs/org/members/mirror-bot", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(enterprisePrefixConstant+"/orgs/org/members/stranger", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc(enterprisePrefixConstant+"/users/mirror-bot/repos", func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "1", request.URL.Query().Get("per_page"))
		_, _ = io.WriteString(writer, `[]`)
	})
	mux.HandleFunc(enterprisePrefixConstant+"/users/locked/repos", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(writer, `{"message":"Bad credentials"}`)
	})

	client := newTestClient(testInstance, mux)

	login, userError := client.AuthenticatedUser(context.Background())
	require.NoError(testInstance, userError)
	require.Equal(testInstance, "mirror-bot", login)

	isMember, memberError := client.IsOrganizationMember(context.Background(), "org", "mirror-bot")
	require.NoError(testInstance, memberError)
	require.True(testInstance, isMember)

	isStrangerMember, strangerError := client.IsOrganizationMember(context.Background(), "org", "stranger")
	require.NoError(testInstance, strangerError)
	require.False(testInstance, isStrangerMember)

	require.NoError(testInstance, client.CheckPersonalRepositoryAccess(context.Background(), "mirror-bot"))
	require.True(testInstance, githubapi.IsUnauthorized(client.CheckPersonalRepositoryAccess(context.Background(), "locked")))
}
