package gitref

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/temirov/reposync/internal/execshell"
	"github.com/temirov/reposync/internal/gitrepo"
)

const (
	gitInitCommandConstant                = "init"
	gitQuietFlagConstant                  = "--quiet"
	gitRemoteCommandConstant              = "remote"
	gitRemoteAddCommandConstant           = "add"
	gitFetchCommandConstant               = "fetch"
	gitPruneFlagConstant                  = "--prune"
	gitTagCommandConstant                 = "tag"
	gitListFlagConstant                   = "--list"
	gitForEachRefCommandConstant          = "for-each-ref"
	gitPushCommandConstant                = "push"
	gitForEachRefFormatFlagConstant       = "--format=%(refname)%09%(symref)"
	fetchHeadsRefspecTemplateConstant     = "+refs/heads/*:refs/remotes/%s/*"
	fetchTagsRefspecConstant              = "+refs/tags/*:refs/tags/*"
	remoteReferencePrefixTemplateConstant = "refs/remotes/%s/"
	headReferenceNameConstant             = "HEAD"
	terminalPromptEnvironmentConstant     = "GIT_TERMINAL_PROMPT"
	terminalPromptDisabledValueConstant   = "0"
	referenceFieldSeparatorConstant       = "\t"
	executorNotConfiguredMessageConstant  = "git executor not configured"
	repositoryPathRequiredMessageConstant = "repository path must be absolute"
	cloneErrorTemplateConstant            = "clone into %s failed: %w"
	fetchErrorTemplateConstant            = "fetch into %s failed: %w"
	listTagsErrorTemplateConstant         = "listing tags in %s failed: %w"
	listBranchesErrorTemplateConstant     = "listing %s branches in %s failed: %w"
	pushErrorTemplateConstant             = "push of %s failed: %w"
	remoteURLErrorTemplateConstant        = "unable to build authenticated remote: %w"
)

// GitExecutor is the subset of execshell.ShellExecutor used by ShellDriver.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

var (
	// ErrExecutorNotConfigured indicates the driver was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
	// ErrRelativeRepositoryPath indicates a repository path that is not absolute.
	ErrRelativeRepositoryPath = errors.New(repositoryPathRequiredMessageConstant)
)

// ShellDriver implements Driver on top of the git executable.
type ShellDriver struct {
	executor GitExecutor
}

// NewShellDriver constructs a ShellDriver.
func NewShellDriver(executor GitExecutor) (*ShellDriver, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &ShellDriver{executor: executor}, nil
}

// Clone initializes repositoryPath, records the credential-free source URL as origin, and fetches every branch and tag.
func (driver *ShellDriver) Clone(executionContext context.Context, repositoryPath string, source Remote) error {
	if !filepath.IsAbs(repositoryPath) {
		return ErrRelativeRepositoryPath
	}

	initDetails := execshell.CommandDetails{
		Arguments:        []string{gitInitCommandConstant, gitQuietFlagConstant, repositoryPath},
		WorkingDirectory: filepath.Dir(repositoryPath),
	}
	if _, initError := driver.executor.ExecuteGit(executionContext, initDetails); initError != nil {
		return fmt.Errorf(cloneErrorTemplateConstant, repositoryPath, initError)
	}

	remoteDetails := execshell.CommandDetails{
		Arguments:        []string{gitRemoteCommandConstant, gitRemoteAddCommandConstant, DefaultRemoteName, gitrepo.StripCredentials(source.URL)},
		WorkingDirectory: repositoryPath,
	}
	if _, remoteError := driver.executor.ExecuteGit(executionContext, remoteDetails); remoteError != nil {
		return fmt.Errorf(cloneErrorTemplateConstant, repositoryPath, remoteError)
	}

	if fetchError := driver.Fetch(executionContext, repositoryPath, source); fetchError != nil {
		return fmt.Errorf(cloneErrorTemplateConstant, repositoryPath, fetchError)
	}
	return nil
}

// Fetch updates remote-tracking branches and tags from the authenticated source URL.
func (driver *ShellDriver) Fetch(executionContext context.Context, repositoryPath string, source Remote) error {
	if !filepath.IsAbs(repositoryPath) {
		return ErrRelativeRepositoryPath
	}

	authenticatedURL, urlError := gitrepo.AuthenticatedURL(source.URL, source.Username, source.Token)
	if urlError != nil {
		return fmt.Errorf(remoteURLErrorTemplateConstant, urlError)
	}

	fetchDetails := execshell.CommandDetails{
		Arguments: []string{
			gitFetchCommandConstant,
			gitPruneFlagConstant,
			authenticatedURL,
			fmt.Sprintf(fetchHeadsRefspecTemplateConstant, DefaultRemoteName),
			fetchTagsRefspecConstant,
		},
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: nonInteractiveEnvironment(),
		SensitiveValues:      []string{source.Token},
	}
	if _, fetchError := driver.executor.ExecuteGit(executionContext, fetchDetails); fetchError != nil {
		return fmt.Errorf(fetchErrorTemplateConstant, repositoryPath, fetchError)
	}
	return nil
}

// ListLocalTags returns the names of every tag in the repository.
func (driver *ShellDriver) ListLocalTags(executionContext context.Context, repositoryPath string) ([]string, error) {
	listDetails := execshell.CommandDetails{
		Arguments:        []string{gitTagCommandConstant, gitListFlagConstant},
		WorkingDirectory: repositoryPath,
	}
	result, listError := driver.executor.ExecuteGit(executionContext, listDetails)
	if listError != nil {
		return nil, fmt.Errorf(listTagsErrorTemplateConstant, repositoryPath, listError)
	}
	return nonEmptyLines(result.StandardOutput), nil
}

// ListRemoteBranches returns the branch names tracked under remoteName, excluding symbolic refs such as HEAD.
func (driver *ShellDriver) ListRemoteBranches(executionContext context.Context, repositoryPath string, remoteName string) ([]string, error) {
	referencePrefix := fmt.Sprintf(remoteReferencePrefixTemplateConstant, remoteName)
	listDetails := execshell.CommandDetails{
		Arguments:        []string{gitForEachRefCommandConstant, gitForEachRefFormatFlagConstant, referencePrefix},
		WorkingDirectory: repositoryPath,
	}
	result, listError := driver.executor.ExecuteGit(executionContext, listDetails)
	if listError != nil {
		return nil, fmt.Errorf(listBranchesErrorTemplateConstant, remoteName, repositoryPath, listError)
	}

	branches := make([]string, 0)
	for _, line := range nonEmptyLines(result.StandardOutput) {
		fields := strings.SplitN(line, referenceFieldSeparatorConstant, 2)
		if len(fields) == 2 && len(strings.TrimSpace(fields[1])) > 0 {
			continue
		}
		branchName := strings.TrimPrefix(strings.TrimSpace(fields[0]), referencePrefix)
		if len(branchName) == 0 || branchName == headReferenceNameConstant {
			continue
		}
		branches = append(branches, branchName)
	}
	return branches, nil
}

// Push sends a single refspec to the authenticated destination URL without forcing.
func (driver *ShellDriver) Push(executionContext context.Context, repositoryPath string, destination Remote, refspec Refspec) error {
	authenticatedURL, urlError := gitrepo.AuthenticatedURL(destination.URL, destination.Username, destination.Token)
	if urlError != nil {
		return fmt.Errorf(remoteURLErrorTemplateConstant, urlError)
	}

	pushDetails := execshell.CommandDetails{
		Arguments:            []string{gitPushCommandConstant, authenticatedURL, refspec.String()},
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: nonInteractiveEnvironment(),
		SensitiveValues:      []string{destination.Token},
	}
	if _, pushError := driver.executor.ExecuteGit(executionContext, pushDetails); pushError != nil {
		return fmt.Errorf(pushErrorTemplateConstant, refspec.String(), pushError)
	}
	return nil
}

func nonInteractiveEnvironment() map[string]string {
	return map[string]string{terminalPromptEnvironmentConstant: terminalPromptDisabledValueConstant}
}

func nonEmptyLines(output string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines
}
