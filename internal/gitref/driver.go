package gitref

import (
	"context"
	"fmt"
)

const (
	// DefaultRemoteName is the remote recorded in every local clone.
	DefaultRemoteName = "origin"

	refspecTemplateConstant        = "%s:%s"
	tagReferenceTemplateConstant   = "refs/tags/%s"
	headReferenceTemplateConstant  = "refs/heads/%s"
	remoteTrackingTemplateConstant = "refs/remotes/%s/%s"
)

// Remote is a forge URL plus the credentials used for one operation against it.
type Remote struct {
	URL      string
	Username string
	Token    string
}

// Refspec maps a local ref to a destination ref for a push.
type Refspec struct {
	Source      string
	Destination string
}

// String renders the refspec in git's source:destination form.
func (refspec Refspec) String() string {
	return fmt.Sprintf(refspecTemplateConstant, refspec.Source, refspec.Destination)
}

// TagRefspec maps a tag to the same tag name at the destination.
func TagRefspec(tagName string) Refspec {
	tagReference := fmt.Sprintf(tagReferenceTemplateConstant, tagName)
	return Refspec{Source: tagReference, Destination: tagReference}
}

// BranchRefspec maps a remote-tracking branch to a destination branch name.
func BranchRefspec(remoteName string, branchName string, destinationBranchName string) Refspec {
	return Refspec{
		Source:      fmt.Sprintf(remoteTrackingTemplateConstant, remoteName, branchName),
		Destination: fmt.Sprintf(headReferenceTemplateConstant, destinationBranchName),
	}
}

// Driver captures the git capabilities used by the synchronizer.
// Every repositoryPath is absolute; implementations never change the process working directory.
type Driver interface {
	Clone(executionContext context.Context, repositoryPath string, source Remote) error
	Fetch(executionContext context.Context, repositoryPath string, source Remote) error
	ListLocalTags(executionContext context.Context, repositoryPath string) ([]string, error)
	ListRemoteBranches(executionContext context.Context, repositoryPath string, remoteName string) ([]string, error)
	Push(executionContext context.Context, repositoryPath string, destination Remote, refspec Refspec) error
}
