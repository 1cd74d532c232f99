// Package syncconfig models the include and exclude trees that select which
// source repositories are mirrored and which destination teams they join.
//
// Each project maps either to a list of nodes or to an options mapping with a
// regex flag and a repo_config list. A node is a bare repository name or a
// single-key mapping from a team name to a nested list or options mapping.
package syncconfig
