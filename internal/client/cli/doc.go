// Package cli provides the revsearch command-line client.
//
// It wires configuration, local storage, the backend clients and the
// search orchestrator behind a cobra command tree:
//
//	revsearch register
//	revsearch search <image>
//	revsearch history list|show|export|delete|prune
//	revsearch plans | subscribe <offer|week|year> | restore | status
//
// Commands are built by NewRootCommand and run with Execute. Each command
// opens the App lazily, so --help works without a database or network.
package cli
