// Package cli constructs the reposync command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives around the auto and interactive mirror commands.
package cli
