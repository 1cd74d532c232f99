// Package githubauth locates a GitHub token in the conventional environment variables.
package githubauth
