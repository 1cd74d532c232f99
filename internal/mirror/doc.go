// Package mirror provides the auto and interactive commands that mirror
// Bitbucket Server projects into GitHub, together with the run pipeline they
// share: credential checks, repository resolution, processing, ref sync,
// team assignment and the final run summary.
package mirror
