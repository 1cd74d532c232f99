package githubauth

import (
	"os"
	"strings"
)

// Environment variables consulted, in order, when no destination token is configured.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

var tokenPreference = []string{
	EnvGitHubCLIToken,
	EnvGitHubToken,
	EnvGitHubAPIToken,
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// FallbackToken returns the first non-empty token from the preferred variables along with
// the variable that supplied it. A nil lookup reads the process environment.
func FallbackToken(lookup EnvironmentLookup) (string, string, bool) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, variableName := range tokenPreference {
		value, exists := lookup(variableName)
		if !exists {
			continue
		}
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) > 0 {
			return trimmedValue, variableName, true
		}
	}
	return "", "", false
}
