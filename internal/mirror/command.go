package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/reposync/internal/bitbucket"
	"github.com/temirov/reposync/internal/credentials"
	"github.com/temirov/reposync/internal/execshell"
	"github.com/temirov/reposync/internal/githubapi"
	"github.com/temirov/reposync/internal/githubauth"
	"github.com/temirov/reposync/internal/gitref"
	"github.com/temirov/reposync/internal/reposync"
	"github.com/temirov/reposync/internal/syncconfig"
	"github.com/temirov/reposync/internal/ui"
	"github.com/temirov/reposync/internal/utils"
	pathutils "github.com/temirov/reposync/internal/utils/path"
)

const (
	autoCommandUseConstant                 = "auto"
	autoCommandShortDescriptionConstant    = "Mirror every repository selected by the include tree"
	autoCommandLongDescriptionConstant     = "auto resolves the sync.include and sync.exclude trees against each Bitbucket project, creates missing GitHub repositories, pushes every tag and branch, and grants the configured teams admin access."
	interactiveCommandUseConstant          = "interactive"
	interactiveCommandShortConstant        = "Choose a project and repositories to mirror"
	interactiveCommandLongConstant         = "interactive prompts for the push destination, a Bitbucket project and its repositories, mirrors them after confirmation, and optionally assigns teams to the newly migrated repositories."
	personalAccountFlagNameConstant        = "personal-account"
	personalAccountFlagUsageConstant       = "Push to the GitHub account instead of the target organization"
	blockNewMigrationsFlagNameConstant     = "block-new-migrations"
	blockNewMigrationsFlagUsageConstant    = "Only sync repositories that already exist on GitHub"
	sourceTokenRequiredMessageConstant     = "bitbucket access token must be configured"
	sourceURLRequiredMessageConstant       = "bitbucket api url must be configured"
	sourceAccountRequiredMessageConstant   = "bitbucket account id must be configured"
	destinationTokenRequiredMessage        = "github access token must be configured"
	destinationAccountRequiredMessage      = "github account id must be configured"
	tokenResolutionErrorTemplateConstant   = "unable to resolve %s access token: %w"
	syncDirectoryErrorTemplateConstant     = "unable to resolve sync directory: %w"
	metricsFileErrorTemplateConstant       = "unable to resolve metrics file: %w"
	metricsWriteErrorTemplateConstant      = "unable to write metrics file: %w"
	sourceClientErrorTemplateConstant      = "unable to construct Bitbucket client: %w"
	destinationClientErrorTemplateConstant = "unable to construct GitHub client: %w"
	executorErrorTemplateConstant          = "unable to construct git executor: %w"
	driverErrorTemplateConstant            = "unable to construct git driver: %w"
	treeLoadErrorTemplateConstant          = "unable to load sync trees: %w"
	summaryRenderErrorTemplateConstant     = "unable to render summary: %w"
	sourceForgeLabelConstant               = "bitbucket"
	destinationForgeLabelConstant          = "github"
	fallbackTokenMessageConstant           = "Using GitHub token from environment"
	metricsWrittenMessageConstant          = "Metrics written"
	runStartedMessageConstant              = "Sync run started"
	variableFieldConstant                  = "variable"
	pathFieldConstant                      = "path"
	syncDirectoryFieldConstant             = "sync_directory"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// SourceProvider constructs the source forge client.
type SourceProvider func(apiURL string, token string) (SourceForge, error)

// DestinationProvider constructs the destination forge client.
type DestinationProvider func(executionContext context.Context, apiURL string, token string) (DestinationForge, error)

// PrompterProvider constructs the interactive prompter for a command.
type PrompterProvider func(command *cobra.Command) Prompter

// CommandBuilder holds the collaborators shared by the auto and interactive commands.
// Every provider is optional; production implementations are used when unset.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	CommandRunner                execshell.CommandRunner
	GitDriver                    gitref.Driver
	SourceProvider               SourceProvider
	DestinationProvider          DestinationProvider
	EnvironmentLookup            credentials.EnvironmentLookup
	FileReader                   credentials.FileReader
	HomeDirectoryProvider        pathutils.HomeDirectoryProvider
	IdentifierProvider           func() string
}

// AutoCommandBuilder assembles the auto command.
type AutoCommandBuilder struct {
	CommandBuilder
}

// InteractiveCommandBuilder assembles the interactive command.
type InteractiveCommandBuilder struct {
	CommandBuilder
	PrompterProvider PrompterProvider
}

type commandRuntime struct {
	logger           *zap.Logger
	service          *Service
	metrics          *reposync.Metrics
	metricsFilePath  string
	summary          *RunSummary
	executionContext context.Context
}

// Build constructs the auto command.
func (builder *AutoCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           autoCommandUseConstant,
		Short:         autoCommandShortDescriptionConstant,
		Long:          autoCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().Bool(personalAccountFlagNameConstant, false, personalAccountFlagUsageConstant)
	command.Flags().Bool(blockNewMigrationsFlagNameConstant, false, blockNewMigrationsFlagUsageConstant)

	return command, nil
}

func (builder *AutoCommandBuilder) run(command *cobra.Command, arguments []string) error {
	personalAccount, _ := command.Flags().GetBool(personalAccountFlagNameConstant)
	blockNewMigrations, _ := command.Flags().GetBool(blockNewMigrationsFlagNameConstant)

	runtime, runtimeError := builder.prepare(command, nil)
	if runtimeError != nil {
		return runtimeError
	}

	trees, treesError := builder.loadTrees(runtime.executionContext)
	if treesError != nil {
		return treesError
	}

	options := AutoOptions{PushToOrganization: !personalAccount, BlockNewMigrations: blockNewMigrations}
	runError := runtime.service.RunAuto(runtime.executionContext, options, trees, runtime.summary)
	return builder.finish(command, runtime, runError)
}

// Build constructs the interactive command.
func (builder *InteractiveCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           interactiveCommandUseConstant,
		Short:         interactiveCommandShortConstant,
		Long:          interactiveCommandLongConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}
	return command, nil
}

func (builder *InteractiveCommandBuilder) run(command *cobra.Command, arguments []string) error {
	runtime, runtimeError := builder.prepare(command, command.ErrOrStderr())
	if runtimeError != nil {
		return runtimeError
	}

	session, sessionError := NewSession(runtime.logger, runtime.service, builder.resolvePrompter(command))
	if sessionError != nil {
		return sessionError
	}

	runError := session.Run(runtime.executionContext, runtime.summary)
	return builder.finish(command, runtime, runError)
}

func (builder *InteractiveCommandBuilder) resolvePrompter(command *cobra.Command) Prompter {
	if builder.PrompterProvider != nil {
		return builder.PrompterProvider(command)
	}
	return NewFormPrompter(command.InOrStdin(), command.ErrOrStderr())
}

// prepare resolves configuration and credentials and wires the service. A non-nil progressWriter
// receives git progress lines.
func (builder *CommandBuilder) prepare(command *cobra.Command, progressWriter io.Writer) (commandRuntime, error) {
	configuration := builder.resolveConfiguration()

	runIdentifier := builder.resolveIdentifier()
	contextAccessor := utils.NewCommandContextAccessor()
	executionContext := contextAccessor.WithRunIdentifier(command.Context(), runIdentifier)
	command.SetContext(executionContext)

	logger := utils.WithRunIdentifier(builder.resolveLogger(), runIdentifier)

	sourceToken, destinationToken, tokenError := builder.resolveTokens(logger, configuration)
	if tokenError != nil {
		return commandRuntime{}, tokenError
	}
	if validationError := validateConfiguration(configuration); validationError != nil {
		return commandRuntime{}, validationError
	}

	homeExpander := pathutils.NewHomeExpanderWithProvider(builder.HomeDirectoryProvider)
	syncDirectory, directoryError := homeExpander.ResolveDirectory(configuration.Directory)
	if directoryError != nil {
		return commandRuntime{}, fmt.Errorf(syncDirectoryErrorTemplateConstant, directoryError)
	}
	metricsFilePath := ""
	if len(configuration.MetricsFile) > 0 {
		resolvedPath, metricsPathError := homeExpander.ResolveDirectory(configuration.MetricsFile)
		if metricsPathError != nil {
			return commandRuntime{}, fmt.Errorf(metricsFileErrorTemplateConstant, metricsPathError)
		}
		metricsFilePath = resolvedPath
	}

	metrics := reposync.NewMetrics()
	gitDriver, driverError := builder.resolveGitDriver(logger, metrics, progressWriter)
	if driverError != nil {
		return commandRuntime{}, driverError
	}

	source, sourceError := builder.resolveSource(configuration.Bitbucket.APIURL, sourceToken)
	if sourceError != nil {
		return commandRuntime{}, fmt.Errorf(sourceClientErrorTemplateConstant, sourceError)
	}
	destination, destinationError := builder.resolveDestination(executionContext, configuration.GitHub.APIURL, destinationToken)
	if destinationError != nil {
		return commandRuntime{}, fmt.Errorf(destinationClientErrorTemplateConstant, destinationError)
	}

	service, serviceError := NewService(
		ServiceDependencies{
			Logger:      logger,
			Source:      source,
			Destination: destination,
			GitDriver:   gitDriver,
			Metrics:     metrics,
		},
		RunSettings{
			TargetOrganization: configuration.TargetOrganization,
			RepositoryPrefix:   configuration.Prefix,
			MasterBranchPrefix: configuration.MasterBranchPrefix,
			SyncDirectory:      syncDirectory,
			Credentials: reposync.Credentials{
				SourceAccount:      configuration.Bitbucket.AccountID,
				SourceToken:        sourceToken,
				DestinationAccount: configuration.GitHub.AccountID,
				DestinationToken:   destinationToken,
			},
		},
	)
	if serviceError != nil {
		return commandRuntime{}, serviceError
	}

	logger.Info(runStartedMessageConstant, zap.String(syncDirectoryFieldConstant, syncDirectory))

	return commandRuntime{
		logger:           logger,
		service:          service,
		metrics:          metrics,
		metricsFilePath:  metricsFilePath,
		summary:          NewRunSummary(),
		executionContext: executionContext,
	}, nil
}

// finish reports the summary and metrics even when the run failed, then returns the run error.
func (builder *CommandBuilder) finish(command *cobra.Command, runtime commandRuntime, runError error) error {
	runtime.summary.Log(runtime.logger)
	finishErrors := []error{runError}
	if renderError := runtime.summary.Render(command.OutOrStdout()); renderError != nil {
		finishErrors = append(finishErrors, fmt.Errorf(summaryRenderErrorTemplateConstant, renderError))
	}
	if len(runtime.metricsFilePath) > 0 {
		if writeError := runtime.metrics.WriteTextfile(runtime.metricsFilePath); writeError != nil {
			finishErrors = append(finishErrors, fmt.Errorf(metricsWriteErrorTemplateConstant, writeError))
		} else {
			runtime.logger.Info(metricsWrittenMessageConstant, zap.String(pathFieldConstant, runtime.metricsFilePath))
		}
	}
	return errors.Join(finishErrors...)
}

func (builder *CommandBuilder) loadTrees(executionContext context.Context) (syncconfig.Trees, error) {
	configurationFilePath, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(executionContext)
	trees, loadError := syncconfig.LoadTrees(configurationFilePath)
	if loadError != nil {
		return syncconfig.Trees{}, fmt.Errorf(treeLoadErrorTemplateConstant, loadError)
	}
	return trees, nil
}

func (builder *CommandBuilder) resolveTokens(logger *zap.Logger, configuration CommandConfiguration) (string, string, error) {
	tokenResolver := credentials.NewTokenResolver(builder.EnvironmentLookup, builder.FileReader)

	sourceToken, sourceError := tokenResolver.Resolve(configuration.Bitbucket.AccessToken)
	if sourceError != nil {
		return "", "", fmt.Errorf(tokenResolutionErrorTemplateConstant, sourceForgeLabelConstant, sourceError)
	}
	if len(sourceToken) == 0 {
		return "", "", errors.New(sourceTokenRequiredMessageConstant)
	}

	destinationToken, destinationError := tokenResolver.Resolve(configuration.GitHub.AccessToken)
	if destinationError != nil {
		return "", "", fmt.Errorf(tokenResolutionErrorTemplateConstant, destinationForgeLabelConstant, destinationError)
	}
	if len(destinationToken) == 0 {
		fallbackToken, variableName, found := githubauth.FallbackToken(githubauth.EnvironmentLookup(tokenResolver.LookupEnvironment))
		if !found {
			return "", "", errors.New(destinationTokenRequiredMessage)
		}
		logger.Debug(fallbackTokenMessageConstant, zap.String(variableFieldConstant, variableName))
		destinationToken = fallbackToken
	}

	return sourceToken, destinationToken, nil
}

func validateConfiguration(configuration CommandConfiguration) error {
	switch {
	case len(configuration.Bitbucket.APIURL) == 0:
		return errors.New(sourceURLRequiredMessageConstant)
	case len(configuration.Bitbucket.AccountID) == 0:
		return errors.New(sourceAccountRequiredMessageConstant)
	case len(configuration.GitHub.AccountID) == 0:
		return errors.New(destinationAccountRequiredMessage)
	}
	return nil
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider().sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveIdentifier() string {
	if builder.IdentifierProvider != nil {
		return builder.IdentifierProvider()
	}
	return uuid.NewString()
}

func (builder *CommandBuilder) resolveGitDriver(logger *zap.Logger, metrics *reposync.Metrics, progressWriter io.Writer) (gitref.Driver, error) {
	if builder.GitDriver != nil {
		return builder.GitDriver, nil
	}
	commandRunner := builder.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}
	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}
	shellExecutor, executorError := execshell.NewShellExecutor(logger, commandRunner, humanReadableLogging)
	if executorError != nil {
		return nil, fmt.Errorf(executorErrorTemplateConstant, executorError)
	}
	var observer execshell.CommandEventObserver = metrics
	if progressWriter != nil {
		observer = ui.NewProgressReporter(progressWriter, metrics)
	}
	driver, driverError := gitref.NewShellDriver(shellExecutor.WithObserver(observer))
	if driverError != nil {
		return nil, fmt.Errorf(driverErrorTemplateConstant, driverError)
	}
	return driver, nil
}

func (builder *CommandBuilder) resolveSource(apiURL string, token string) (SourceForge, error) {
	if builder.SourceProvider != nil {
		return builder.SourceProvider(apiURL, token)
	}
	return bitbucket.NewClient(apiURL, token, http.DefaultClient)
}

func (builder *CommandBuilder) resolveDestination(executionContext context.Context, apiURL string, token string) (DestinationForge, error) {
	if builder.DestinationProvider != nil {
		return builder.DestinationProvider(executionContext, apiURL, token)
	}
	return githubapi.NewClient(executionContext, apiURL, token)
}
