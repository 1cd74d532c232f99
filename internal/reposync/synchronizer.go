package reposync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/gitref"
)

const (
	masterBranchNameConstant = "master"

	driverNotConfiguredMessageConstant = "git ref driver not configured"
	loggerNotConfiguredMessageConstant = "reposync logger not configured"
	fetchErrorTemplateConstant         = "fetch from source failed: %w"
	listTagsErrorTemplateConstant      = "listing tags failed: %w"
	listBranchesErrorTemplateConstant  = "listing branches failed: %w"

	tagPushFailedMessageConstant    = "Tag push failed"
	tagsSyncedMessageConstant       = "Tags synchronized"
	branchPushFailedMessageConstant = "Branch push failed"
	branchesSyncedMessageConstant   = "Branches synchronized"
	branchPushedMessageConstant     = "Branch pushed"
	tagPushedMessageConstant        = "Tag pushed"

	tagFieldConstant               = "tag"
	branchFieldConstant            = "branch"
	destinationBranchFieldConstant = "destination_branch"
	totalFieldConstant             = "total"
	failedTagsFieldConstant        = "failed_tags"
	failedBranchesFieldConstant    = "failed_branches"
)

// Sentinel errors returned by constructors in this package.
var (
	ErrDriverNotConfigured = errors.New(driverNotConfiguredMessageConstant)
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
)

// RefTarget identifies the local clone and both remotes for one repository.
// Credentials live only in the Remote values and are never written to the clone.
type RefTarget struct {
	RepositoryPath string
	Source         gitref.Remote
	Destination    gitref.Remote
}

// RefOutcome reports the result of synchronizing one kind of ref.
// AllOK is true iff every ref in All was pushed successfully.
type RefOutcome struct {
	AllOK  bool
	All    []string
	Failed []string
}

// SyncOutcome combines tag and branch outcomes for a repository.
type SyncOutcome struct {
	Tags     RefOutcome
	Branches RefOutcome
}

// RefSynchronizer pushes tags and branches from a local clone to the destination.
type RefSynchronizer struct {
	logger             *zap.Logger
	driver             gitref.Driver
	masterBranchPrefix string
	metrics            *Metrics
}

// NewRefSynchronizer constructs a RefSynchronizer. metrics may be nil.
func NewRefSynchronizer(logger *zap.Logger, driver gitref.Driver, masterBranchPrefix string, metrics *Metrics) (*RefSynchronizer, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if driver == nil {
		return nil, ErrDriverNotConfigured
	}
	return &RefSynchronizer{logger: logger, driver: driver, masterBranchPrefix: masterBranchPrefix, metrics: metrics}, nil
}

// SyncTags fetches from the source and pushes every local tag individually.
// A fetch or listing failure aborts tag sync and is returned; push failures are recorded per tag.
func (synchronizer *RefSynchronizer) SyncTags(executionContext context.Context, target RefTarget) (RefOutcome, error) {
	if fetchError := synchronizer.driver.Fetch(executionContext, target.RepositoryPath, target.Source); fetchError != nil {
		return RefOutcome{}, fmt.Errorf(fetchErrorTemplateConstant, fetchError)
	}

	tags, listError := synchronizer.driver.ListLocalTags(executionContext, target.RepositoryPath)
	if listError != nil {
		return RefOutcome{}, fmt.Errorf(listTagsErrorTemplateConstant, listError)
	}

	outcome := RefOutcome{All: tags, Failed: make([]string, 0)}
	for _, tag := range tags {
		if contextError := executionContext.Err(); contextError != nil {
			return interruptedOutcome(outcome), contextError
		}

		pushError := synchronizer.driver.Push(executionContext, target.RepositoryPath, target.Destination, gitref.TagRefspec(tag))
		synchronizer.metrics.recordRefPush(RefKindTag, pushError == nil)
		if pushError != nil {
			synchronizer.logger.Warn(tagPushFailedMessageConstant, zap.String(tagFieldConstant, tag), zap.Error(pushError))
			outcome.Failed = append(outcome.Failed, tag)
			continue
		}
		synchronizer.logger.Debug(tagPushedMessageConstant, zap.String(tagFieldConstant, tag))
	}

	outcome = finalizeOutcome(outcome)
	synchronizer.logger.Info(tagsSyncedMessageConstant, zap.Int(totalFieldConstant, len(outcome.All)), zap.Strings(failedTagsFieldConstant, outcome.Failed))
	return outcome, nil
}

// SyncBranches fetches from the source and pushes every remote branch with master first.
// With a master branch prefix, master is pushed under the prefixed name; a new migration
// also seeds the unprefixed master first so it becomes the destination default branch.
func (synchronizer *RefSynchronizer) SyncBranches(executionContext context.Context, target RefTarget, newMigration bool) (RefOutcome, error) {
	if fetchError := synchronizer.driver.Fetch(executionContext, target.RepositoryPath, target.Source); fetchError != nil {
		return RefOutcome{}, fmt.Errorf(fetchErrorTemplateConstant, fetchError)
	}

	branches, listError := synchronizer.driver.ListRemoteBranches(executionContext, target.RepositoryPath, gitref.DefaultRemoteName)
	if listError != nil {
		return RefOutcome{}, fmt.Errorf(listBranchesErrorTemplateConstant, listError)
	}

	orderedBranches := orderMasterFirst(branches)
	outcome := RefOutcome{All: orderedBranches, Failed: make([]string, 0)}
	for _, branch := range orderedBranches {
		if contextError := executionContext.Err(); contextError != nil {
			return interruptedOutcome(outcome), contextError
		}

		branchSucceeded := true
		for _, destinationBranch := range synchronizer.destinationBranches(branch, newMigration) {
			refspec := gitref.BranchRefspec(gitref.DefaultRemoteName, branch, destinationBranch)
			pushError := synchronizer.driver.Push(executionContext, target.RepositoryPath, target.Destination, refspec)
			synchronizer.metrics.recordRefPush(RefKindBranch, pushError == nil)
			if pushError != nil {
				synchronizer.logger.Warn(branchPushFailedMessageConstant,
					zap.String(branchFieldConstant, branch),
					zap.String(destinationBranchFieldConstant, destinationBranch),
					zap.Error(pushError),
				)
				branchSucceeded = false
				continue
			}
			synchronizer.logger.Debug(branchPushedMessageConstant, zap.String(branchFieldConstant, branch), zap.String(destinationBranchFieldConstant, destinationBranch))
		}
		if !branchSucceeded {
			outcome.Failed = append(outcome.Failed, branch)
		}
	}

	outcome = finalizeOutcome(outcome)
	synchronizer.logger.Info(branchesSyncedMessageConstant, zap.Int(totalFieldConstant, len(outcome.All)), zap.Strings(failedBranchesFieldConstant, outcome.Failed))
	return outcome, nil
}

func (synchronizer *RefSynchronizer) destinationBranches(branch string, newMigration bool) []string {
	if branch != masterBranchNameConstant || len(synchronizer.masterBranchPrefix) == 0 {
		return []string{branch}
	}
	prefixedMaster := synchronizer.masterBranchPrefix + masterBranchNameConstant
	if newMigration {
		return []string{masterBranchNameConstant, prefixedMaster}
	}
	return []string{prefixedMaster}
}

func orderMasterFirst(branches []string) []string {
	orderedBranches := make([]string, 0, len(branches))
	for _, branch := range branches {
		if branch == masterBranchNameConstant {
			orderedBranches = append(orderedBranches, branch)
		}
	}
	for _, branch := range branches {
		if branch != masterBranchNameConstant {
			orderedBranches = append(orderedBranches, branch)
		}
	}
	return orderedBranches
}

func interruptedOutcome(outcome RefOutcome) RefOutcome {
	outcome = finalizeOutcome(outcome)
	outcome.AllOK = false
	return outcome
}

func finalizeOutcome(outcome RefOutcome) RefOutcome {
	if outcome.All == nil {
		outcome.All = []string{}
	}
	if outcome.Failed == nil {
		outcome.Failed = []string{}
	}
	outcome.AllOK = len(outcome.Failed) == 0
	return outcome
}

func (synchronizer *RefSynchronizer) withLogger(logger *zap.Logger) *RefSynchronizer {
	scoped := *synchronizer
	scoped.logger = logger
	return &scoped
}
