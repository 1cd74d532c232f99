package credentials

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/githubapi"
)

const (
	sourceCheckerMissingMessageConstant      = "source access checker not configured"
	destinationCheckerMissingMessageConstant = "destination access checker not configured"
	loggerMissingMessageConstant             = "credentials logger not configured"
	credentialErrorTemplateConstant          = "%s credential check failed for %s: %s"
	credentialErrorWithCauseTemplateConstant = "%s credential check failed for %s: %s: %v"

	sourceForgeNameConstant      = "bitbucket"
	destinationForgeNameConstant = "github"

	projectNotFoundMessageConstant       = "project not found, check the project key"
	unauthorizedMessageConstant          = "access token unauthorized"
	unexpectedStatusMessageConstant      = "unexpected response"
	notOrganizationMemberMessageConstant = "account is not a member of the organization"
	accountRequiredMessageConstant       = "destination account must be configured"
	organizationRequiredMessageConstant  = "target organization must be configured"

	sourceCheckPassedMessageConstant     = "Source credentials check passed"
	destinationPullPassedMessageConstant = "Destination credentials check passed"
	destinationPushCheckMessageConstant  = "Checking destination push access"
	destinationPushPassedMessageConstant = "Destination push access check passed"

	projectKeyFieldConstant      = "project_key"
	accountFieldConstant         = "account"
	authenticatedAsFieldConstant = "authenticated_as"
	pushDestinationFieldConstant = "push_destination"
)

// Sentinel errors returned by NewChecker.
var (
	ErrSourceCheckerNotConfigured      = errors.New(sourceCheckerMissingMessageConstant)
	ErrDestinationCheckerNotConfigured = errors.New(destinationCheckerMissingMessageConstant)
	ErrLoggerNotConfigured             = errors.New(loggerMissingMessageConstant)
)

// SourceAccessChecker verifies read access to a source project.
type SourceAccessChecker interface {
	CheckProjectAccess(executionContext context.Context, projectKey string) error
}

// DestinationAccessChecker verifies destination credentials.
type DestinationAccessChecker interface {
	AuthenticatedUser(executionContext context.Context) (string, error)
	IsOrganizationMember(executionContext context.Context, organization string, account string) (bool, error)
	CheckPersonalRepositoryAccess(executionContext context.Context, account string) error
}

// CredentialError reports a failed credential check. Any such failure aborts the run.
type CredentialError struct {
	Forge   string
	Subject string
	Message string
	Cause   error
}

// Error describes the failed check.
func (credentialError CredentialError) Error() string {
	if credentialError.Cause == nil {
		return fmt.Sprintf(credentialErrorTemplateConstant, credentialError.Forge, credentialError.Subject, credentialError.Message)
	}
	return fmt.Sprintf(credentialErrorWithCauseTemplateConstant, credentialError.Forge, credentialError.Subject, credentialError.Message, credentialError.Cause)
}

// Unwrap exposes the underlying cause.
func (credentialError CredentialError) Unwrap() error {
	return credentialError.Cause
}

// Checker runs the pre-flight credential checks.
type Checker struct {
	logger      *zap.Logger
	source      SourceAccessChecker
	destination DestinationAccessChecker
}

// NewChecker constructs a Checker.
func NewChecker(logger *zap.Logger, source SourceAccessChecker, destination DestinationAccessChecker) (*Checker, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if source == nil {
		return nil, ErrSourceCheckerNotConfigured
	}
	if destination == nil {
		return nil, ErrDestinationCheckerNotConfigured
	}
	return &Checker{logger: logger, source: source, destination: destination}, nil
}

// CheckSource confirms the source token can list the project's repositories.
func (checker *Checker) CheckSource(executionContext context.Context, projectKey string) error {
	accessError := checker.source.CheckProjectAccess(executionContext, projectKey)
	if accessError == nil {
		checker.logger.Debug(sourceCheckPassedMessageConstant, zap.String(projectKeyFieldConstant, projectKey))
		return nil
	}
	if isContextError(accessError) {
		return accessError
	}

	credentialError := CredentialError{Forge: sourceForgeNameConstant, Subject: projectKey, Message: unexpectedStatusMessageConstant, Cause: accessError}
	switch {
	case bitbucket.IsNotFound(accessError):
		credentialError.Message = projectNotFoundMessageConstant
	case bitbucket.IsUnauthorized(accessError):
		credentialError.Message = unauthorizedMessageConstant
	}
	return credentialError
}

// CheckDestination confirms the destination token authenticates and can push into the organization
// when pushToOrganization is set, or into the account's personal namespace otherwise.
func (checker *Checker) CheckDestination(executionContext context.Context, pushToOrganization bool, organization string, account string) error {
	if len(account) == 0 {
		return CredentialError{Forge: destinationForgeNameConstant, Subject: account, Message: accountRequiredMessageConstant}
	}

	login, userError := checker.destination.AuthenticatedUser(executionContext)
	if userError != nil {
		return checker.destinationFailure(account, userError)
	}
	checker.logger.Debug(destinationPullPassedMessageConstant, zap.String(authenticatedAsFieldConstant, login))

	if !pushToOrganization {
		checker.logger.Info(destinationPushCheckMessageConstant, zap.String(pushDestinationFieldConstant, account))
		if accessError := checker.destination.CheckPersonalRepositoryAccess(executionContext, account); accessError != nil {
			if isContextError(accessError) || githubapi.IsUnauthorized(accessError) {
				return checker.destinationFailure(account, accessError)
			}
		}
		checker.logger.Debug(destinationPushPassedMessageConstant, zap.String(accountFieldConstant, account))
		return nil
	}

	if len(organization) == 0 {
		return CredentialError{Forge: destinationForgeNameConstant, Subject: account, Message: organizationRequiredMessageConstant}
	}
	checker.logger.Info(destinationPushCheckMessageConstant, zap.String(pushDestinationFieldConstant, organization))
	isMember, memberError := checker.destination.IsOrganizationMember(executionContext, organization, account)
	if memberError != nil {
		return checker.destinationFailure(account, memberError)
	}
	if !isMember {
		return CredentialError{Forge: destinationForgeNameConstant, Subject: account, Message: fmt.Sprintf("%s %s", notOrganizationMemberMessageConstant, organization)}
	}
	checker.logger.Debug(destinationPushPassedMessageConstant, zap.String(accountFieldConstant, account))
	return nil
}

func (checker *Checker) destinationFailure(account string, cause error) error {
	if isContextError(cause) {
		return cause
	}
	message := unexpectedStatusMessageConstant
	if githubapi.IsUnauthorized(cause) {
		message = unauthorizedMessageConstant
	}
	return CredentialError{Forge: destinationForgeNameConstant, Subject: account, Message: message, Cause: cause}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
