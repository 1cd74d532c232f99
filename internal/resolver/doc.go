// Package resolver turns an include/exclude tree and the live repository list
// of one source project into the set of repositories to mirror, each annotated
// with the destination teams it belongs to.
package resolver
