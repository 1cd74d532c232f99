package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
)

const (
	gitInitSubcommandNameConstant       = "init"
	gitRemoteSubcommandNameConstant     = "remote"
	gitFetchSubcommandNameConstant      = "fetch"
	gitPushSubcommandNameConstant       = "push"
	gitTagSubcommandNameConstant        = "tag"
	gitForEachRefSubcommandNameConstant = "for-each-ref"
	gitFlagPrefixConstant               = "-"
)

const (
	gitInitStartTemplateConstant                = "Initializing repository at %s"
	gitInitSuccessTemplateConstant              = "Initialized repository at %s"
	gitInitFailureTemplateConstant              = "Failed to initialize repository at %s (exit code %d%s)"
	gitInitExecutionFailureTemplateConstant     = "Unable to initialize repository at %s: %s"
	gitRemoteStartTemplateConstant              = "Configuring remote %s in %s"
	gitRemoteSuccessTemplateConstant            = "Configured remote %s in %s"
	gitRemoteFailureTemplateConstant            = "Failed to configure remote %s in %s (exit code %d%s)"
	gitRemoteExecutionFailureTemplateConstant   = "Unable to configure remote %s in %s: %s"
	gitFetchStartTemplateConstant               = "Fetching from %s in %s"
	gitFetchSuccessTemplateConstant             = "Fetched from %s in %s"
	gitFetchFailureTemplateConstant             = "Failed to fetch from %s in %s (exit code %d%s)"
	gitFetchExecutionFailureTemplateConstant    = "Unable to fetch from %s in %s: %s"
	gitPushStartTemplateConstant                = "Pushing %s to %s from %s"
	gitPushSuccessTemplateConstant              = "Pushed %s to %s from %s"
	gitPushFailureTemplateConstant              = "Failed to push %s to %s from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant     = "Unable to push %s to %s from %s: %s"
	gitListRefsStartTemplateConstant            = "Listing %s in %s"
	gitListRefsSuccessTemplateConstant          = "Listed %d %s in %s"
	gitListRefsFailureTemplateConstant          = "Failed to list %s in %s (exit code %d%s)"
	gitListRefsExecutionFailureTemplateConstant = "Unable to list %s in %s: %s"
	gitTagsLabelConstant                        = "tags"
	gitReferencesLabelConstant                  = "references"
)

// CommandMessageFormatter renders human-readable lifecycle messages for git invocations.
// It expects commands that were already redacted.
type CommandMessageFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage describes a command that exited with status zero.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage describes a command that exited with a non-zero status.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage describes a command that could not be executed.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// BuildSuccessMessageWithResult describes a successful command using its output where that adds detail.
func (formatter CommandMessageFormatter) BuildSuccessMessageWithResult(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageSuccess)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)

	switch strings.TrimSpace(arguments[0]) {
	case gitInitSubcommandNameConstant:
		target := formatter.ensureValue(formatter.lastPositionalArgument(arguments[1:]))
		return formatter.selectTemplate(stage,
			fmt.Sprintf(gitInitStartTemplateConstant, target),
			fmt.Sprintf(gitInitSuccessTemplateConstant, target),
			fmt.Sprintf(gitInitFailureTemplateConstant, target, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitInitExecutionFailureTemplateConstant, target, formatter.describeFailure(failure)),
		)
	case gitRemoteSubcommandNameConstant:
		remoteName := formatter.ensureValue(formatter.argumentAtIndex(arguments, 2))
		return formatter.selectTemplate(stage,
			fmt.Sprintf(gitRemoteStartTemplateConstant, remoteName, workingDirectory),
			fmt.Sprintf(gitRemoteSuccessTemplateConstant, remoteName, workingDirectory),
			fmt.Sprintf(gitRemoteFailureTemplateConstant, remoteName, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitRemoteExecutionFailureTemplateConstant, remoteName, workingDirectory, formatter.describeFailure(failure)),
		)
	case gitFetchSubcommandNameConstant:
		remote := formatter.ensureValue(formatter.firstPositionalArgument(arguments[1:]))
		return formatter.selectTemplate(stage,
			fmt.Sprintf(gitFetchStartTemplateConstant, remote, workingDirectory),
			fmt.Sprintf(gitFetchSuccessTemplateConstant, remote, workingDirectory),
			fmt.Sprintf(gitFetchFailureTemplateConstant, remote, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitFetchExecutionFailureTemplateConstant, remote, workingDirectory, formatter.describeFailure(failure)),
		)
	case gitPushSubcommandNameConstant:
		remote, references := formatter.extractRemoteAndReferences(arguments[1:])
		return formatter.selectTemplate(stage,
			fmt.Sprintf(gitPushStartTemplateConstant, references, remote, workingDirectory),
			fmt.Sprintf(gitPushSuccessTemplateConstant, references, remote, workingDirectory),
			fmt.Sprintf(gitPushFailureTemplateConstant, references, remote, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitPushExecutionFailureTemplateConstant, references, remote, workingDirectory, formatter.describeFailure(failure)),
		)
	case gitTagSubcommandNameConstant, gitForEachRefSubcommandNameConstant:
		label := gitReferencesLabelConstant
		if strings.TrimSpace(arguments[0]) == gitTagSubcommandNameConstant {
			label = gitTagsLabelConstant
		}
		return formatter.selectTemplate(stage,
			fmt.Sprintf(gitListRefsStartTemplateConstant, label, workingDirectory),
			fmt.Sprintf(gitListRefsSuccessTemplateConstant, formatter.countLines(result.StandardOutput), label, workingDirectory),
			fmt.Sprintf(gitListRefsFailureTemplateConstant, label, workingDirectory, result.ExitCode, standardErrorSuffix),
			fmt.Sprintf(gitListRefsExecutionFailureTemplateConstant, label, workingDirectory, formatter.describeFailure(failure)),
		)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) selectTemplate(stage messageStage, startMessage string, successMessage string, failureMessage string, executionFailureMessage string) string {
	switch stage {
	case messageStageStart:
		return startMessage
	case messageStageSuccess:
		return successMessage
	case messageStageFailure:
		return failureMessage
	default:
		return executionFailureMessage
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := describeCommand(command) + formatter.formatWorkingDirectorySuffix(command)
	return formatter.selectTemplate(stage,
		fmt.Sprintf(genericStartTemplateConstant, commandLabel),
		fmt.Sprintf(genericSuccessTemplateConstant, commandLabel),
		fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError)),
		fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure)),
	)
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	if len(strings.TrimSpace(command.Details.WorkingDirectory)) == 0 {
		return ""
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, command.Details.WorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmed := strings.TrimSpace(standardError)
	if len(trimmed) == 0 {
		return ""
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmed)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmed := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmed) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmed
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return ""
	}
	return strings.TrimSpace(arguments[index])
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	if len(strings.TrimSpace(value)) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return value
}

func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, gitFlagPrefixConstant) {
			continue
		}
		positional = append(positional, trimmed)
	}
	return positional
}

func (formatter CommandMessageFormatter) firstPositionalArgument(arguments []string) string {
	positional := formatter.positionalArguments(arguments)
	if len(positional) == 0 {
		return ""
	}
	return positional[0]
}

func (formatter CommandMessageFormatter) lastPositionalArgument(arguments []string) string {
	positional := formatter.positionalArguments(arguments)
	if len(positional) == 0 {
		return ""
	}
	return positional[len(positional)-1]
}

func (formatter CommandMessageFormatter) extractRemoteAndReferences(arguments []string) (string, string) {
	positional := formatter.positionalArguments(arguments)
	if len(positional) == 0 {
		return fallbackUnknownValueLabelConstant, fallbackUnknownValueLabelConstant
	}
	if len(positional) == 1 {
		return positional[0], fallbackUnknownValueLabelConstant
	}
	return positional[0], strings.Join(positional[1:], ", ")
}

func (formatter CommandMessageFormatter) countLines(output string) int {
	lineCount := 0
	for _, line := range strings.Split(output, "\n") {
		if len(strings.TrimSpace(line)) > 0 {
			lineCount++
		}
	}
	return lineCount
}
