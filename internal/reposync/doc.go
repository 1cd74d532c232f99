// Package reposync mirrors processed repositories into the destination forge.
//
// The Orchestrator owns the sync directory: one local clone per repository,
// reused across runs. For each repository it creates the destination when
// needed, refreshes the clone, and hands off to the RefSynchronizer, which
// pushes tags and branches one refspec at a time so every ref succeeds or
// fails on its own. Team permissions are granted once all repositories have
// been processed.
package reposync
