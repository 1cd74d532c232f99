// Package gitref exposes the narrow set of git capabilities needed to mirror
// refs between forges: cloning, authenticated fetches, ref listing, and
// explicit refspec pushes. Credentials travel with each call and are never
// written to repository configuration.
package gitref
