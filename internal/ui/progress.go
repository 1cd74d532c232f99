package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/temirov/reposync/internal/execshell"
)

const (
	fetchSubcommandConstant             = "fetch"
	pushSubcommandConstant              = "push"
	fetchStartedTemplateConstant        = "%s: fetching"
	fetchCompletedTemplateConstant      = "%s: fetched"
	pushCompletedTemplateConstant       = "%s: pushed %s"
	failureExitCodeTemplateConstant     = "%s: %s failed with exit code %d"
	executionFailureTemplateConstant    = "%s: %s failed: %s"
	standardErrorSuffixTemplateConstant = ": %s"
	unknownFailureMessageConstant       = "unknown error"
	unknownRepositoryLabelConstant      = "."
	emptyStringConstant                 = ""
	lineTerminatorConstant              = "\n"
	progressColorConstant               = "244"
	successColorConstant                = "42"
	failureColorConstant                = "204"
	refspecArgumentIndexFromEndConstant = 1
	minimumPushArgumentCountConstant    = 3
	subcommandArgumentIndexConstant     = 0
	standardErrorLineSeparatorConstant  = "\n"
	standardErrorTrimCharactersConstant = " \t\r"
	refspecUnknownPlaceholderConstant   = "ref"
	repositoryPathTrimCharacters        = string(filepath.Separator)
)

var (
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(progressColorConstant))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(successColorConstant))
	failureStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(failureColorConstant)).Bold(true)
)

// ProgressFormatter builds progress messages for git network operations.
type ProgressFormatter struct{}

// BuildStartedMessage describes a command about to run. Only fetches announce themselves.
func (formatter ProgressFormatter) BuildStartedMessage(command execshell.ShellCommand) string {
	if formatter.subcommand(command) != fetchSubcommandConstant {
		return emptyStringConstant
	}
	return fmt.Sprintf(fetchStartedTemplateConstant, formatter.repositoryLabel(command))
}

// BuildSuccessMessage describes a completed fetch or push.
func (formatter ProgressFormatter) BuildSuccessMessage(command execshell.ShellCommand) string {
	switch formatter.subcommand(command) {
	case fetchSubcommandConstant:
		return fmt.Sprintf(fetchCompletedTemplateConstant, formatter.repositoryLabel(command))
	case pushSubcommandConstant:
		return fmt.Sprintf(pushCompletedTemplateConstant, formatter.repositoryLabel(command), formatter.pushedRefspec(command))
	default:
		return emptyStringConstant
	}
}

// BuildFailureMessage describes a fetch or push that exited non-zero, with the first line of stderr.
func (formatter ProgressFormatter) BuildFailureMessage(command execshell.ShellCommand, result execshell.ExecutionResult) string {
	if !formatter.isNetworkOperation(command) {
		return emptyStringConstant
	}
	message := fmt.Sprintf(failureExitCodeTemplateConstant, formatter.repositoryLabel(command), formatter.operationLabel(command), result.ExitCode)
	firstLine := strings.Trim(strings.SplitN(strings.TrimSpace(result.StandardError), standardErrorLineSeparatorConstant, 2)[0], standardErrorTrimCharactersConstant)
	if len(firstLine) == 0 {
		return message
	}
	return message + fmt.Sprintf(standardErrorSuffixTemplateConstant, firstLine)
}

// BuildExecutionFailureMessage describes a fetch or push that could not run.
func (formatter ProgressFormatter) BuildExecutionFailureMessage(command execshell.ShellCommand, failure error) string {
	if !formatter.isNetworkOperation(command) {
		return emptyStringConstant
	}
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(executionFailureTemplateConstant, formatter.repositoryLabel(command), formatter.operationLabel(command), failureMessage)
}

func (formatter ProgressFormatter) isNetworkOperation(command execshell.ShellCommand) bool {
	subcommand := formatter.subcommand(command)
	return subcommand == fetchSubcommandConstant || subcommand == pushSubcommandConstant
}

func (formatter ProgressFormatter) subcommand(command execshell.ShellCommand) string {
	if command.Name != execshell.CommandGit || len(command.Details.Arguments) == 0 {
		return emptyStringConstant
	}
	return command.Details.Arguments[subcommandArgumentIndexConstant]
}

func (formatter ProgressFormatter) operationLabel(command execshell.ShellCommand) string {
	if formatter.subcommand(command) == pushSubcommandConstant {
		return pushSubcommandConstant + " " + formatter.pushedRefspec(command)
	}
	return formatter.subcommand(command)
}

// pushedRefspec returns the trailing refspec argument. Push URLs never appear in progress output.
func (formatter ProgressFormatter) pushedRefspec(command execshell.ShellCommand) string {
	arguments := command.Details.Arguments
	if len(arguments) < minimumPushArgumentCountConstant {
		return refspecUnknownPlaceholderConstant
	}
	return arguments[len(arguments)-refspecArgumentIndexFromEndConstant]
}

func (formatter ProgressFormatter) repositoryLabel(command execshell.ShellCommand) string {
	workingDirectory := strings.TrimRight(strings.TrimSpace(command.Details.WorkingDirectory), repositoryPathTrimCharacters)
	if len(workingDirectory) == 0 {
		return unknownRepositoryLabelConstant
	}
	return filepath.Base(workingDirectory)
}

// ProgressReporter prints git progress to a writer and forwards every event to the next observer.
type ProgressReporter struct {
	writer    io.Writer
	next      execshell.CommandEventObserver
	formatter ProgressFormatter
}

// NewProgressReporter constructs a reporter. A nil writer prints nothing; a nil next observer is skipped.
func NewProgressReporter(writer io.Writer, next execshell.CommandEventObserver) *ProgressReporter {
	return &ProgressReporter{writer: writer, next: next, formatter: ProgressFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (reporter *ProgressReporter) CommandStarted(command execshell.ShellCommand) {
	reporter.print(progressStyle, reporter.formatter.BuildStartedMessage(command))
	if reporter.next != nil {
		reporter.next.CommandStarted(command)
	}
}

// CommandCompleted implements execshell.CommandEventObserver.
func (reporter *ProgressReporter) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if result.ExitCode == 0 {
		reporter.print(successStyle, reporter.formatter.BuildSuccessMessage(command))
	} else {
		reporter.print(failureStyle, reporter.formatter.BuildFailureMessage(command, result))
	}
	if reporter.next != nil {
		reporter.next.CommandCompleted(command, result)
	}
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (reporter *ProgressReporter) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	reporter.print(failureStyle, reporter.formatter.BuildExecutionFailureMessage(command, failure))
	if reporter.next != nil {
		reporter.next.CommandExecutionFailed(command, failure)
	}
}

func (reporter *ProgressReporter) print(style lipgloss.Style, message string) {
	if reporter.writer == nil || len(message) == 0 {
		return
	}
	_, _ = io.WriteString(reporter.writer, style.Render(message)+lineTerminatorConstant)
}
