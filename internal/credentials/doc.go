// Package credentials resolves forge access tokens from their configured
// sources and verifies, before a run touches any repository, that the tokens
// can read the source projects and push to the destination namespace.
package credentials
