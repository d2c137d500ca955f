// Package main hosts the vigil CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, validates a
// configuration against the live collaborators, and reads back recorded
// events and storage usage. Configuration resolution lives in one place so
// subcommands stay declarative.
package main
