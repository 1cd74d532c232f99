// Package gitrepo builds and inspects the remote URLs handed to git.
//
// Credentials are embedded into a URL only for the duration of a single git
// invocation; StripCredentials produces the form that is safe to persist.
package gitrepo
