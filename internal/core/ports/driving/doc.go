// Package driving provides interfaces for application entry points
// (primary/inbound ports): the CLI, the spool watcher, and any caller
// layer embedding the engine.
package driving
