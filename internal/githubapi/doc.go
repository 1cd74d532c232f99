// Package githubapi wraps go-github for the destination-side operations of a
// mirror run: repository existence checks and creation, team lookup and
// repository permission grants, and credential checks.
package githubapi
