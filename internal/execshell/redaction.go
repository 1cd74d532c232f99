package execshell

import (
	"net/url"
	"sort"
	"strings"
)

const (
	redactedValuePlaceholderConstant = "***"
)

// Redactor replaces sensitive values, including their URL-escaped spellings, with a placeholder.
type Redactor struct {
	sensitiveValues []string
}

// NewRedactor constructs a Redactor for the provided sensitive values. Empty values are ignored.
func NewRedactor(sensitiveValues ...string) Redactor {
	uniqueValues := map[string]struct{}{}
	for _, sensitiveValue := range sensitiveValues {
		if len(strings.TrimSpace(sensitiveValue)) == 0 {
			continue
		}
		uniqueValues[sensitiveValue] = struct{}{}
		uniqueValues[url.QueryEscape(sensitiveValue)] = struct{}{}
		uniqueValues[url.PathEscape(sensitiveValue)] = struct{}{}
		uniqueValues[url.UserPassword("", sensitiveValue).String()[1:]] = struct{}{}
	}

	orderedValues := make([]string, 0, len(uniqueValues))
	for uniqueValue := range uniqueValues {
		if len(uniqueValue) == 0 {
			continue
		}
		orderedValues = append(orderedValues, uniqueValue)
	}
	// longer spellings first so an escaped form is not partially replaced by a shorter one
	sort.Slice(orderedValues, func(leftIndex int, rightIndex int) bool {
		if len(orderedValues[leftIndex]) == len(orderedValues[rightIndex]) {
			return orderedValues[leftIndex] < orderedValues[rightIndex]
		}
		return len(orderedValues[leftIndex]) > len(orderedValues[rightIndex])
	})

	return Redactor{sensitiveValues: orderedValues}
}

// Redact returns text with every sensitive value replaced.
func (redactor Redactor) Redact(text string) string {
	redactedText := text
	for _, sensitiveValue := range redactor.sensitiveValues {
		redactedText = strings.ReplaceAll(redactedText, sensitiveValue, redactedValuePlaceholderConstant)
	}
	return redactedText
}

// RedactCommand returns a copy of the command whose arguments are safe to log.
func (redactor Redactor) RedactCommand(command ShellCommand) ShellCommand {
	redactedArguments := make([]string, len(command.Details.Arguments))
	for argumentIndex, argument := range command.Details.Arguments {
		redactedArguments[argumentIndex] = redactor.Redact(argument)
	}

	redactedCommand := command
	redactedCommand.Details.Arguments = redactedArguments
	redactedCommand.Details.StandardInput = nil
	redactedCommand.Details.SensitiveValues = nil
	return redactedCommand
}

// RedactResult returns a copy of the result whose output streams are safe to log.
func (redactor Redactor) RedactResult(result ExecutionResult) ExecutionResult {
	return ExecutionResult{
		StandardOutput: redactor.Redact(result.StandardOutput),
		StandardError:  redactor.Redact(result.StandardError),
		ExitCode:       result.ExitCode,
	}
}
