// Package execshell provides structured helpers for invoking git.
//
// ShellExecutor wraps a CommandRunner with zap lifecycle logging and scrubs
// every registered secret from log entries and returned errors. OSCommandRunner
// is the default os/exec backed runner.
package execshell
