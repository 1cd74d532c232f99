// Package bitbucket is a minimal Bitbucket Server REST 1.0 client covering
// project and repository listing, repository metadata, and access checks.
package bitbucket
