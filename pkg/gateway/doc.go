// Package gateway assembles the moderation gateway from configuration: the
// storage registry, the model cache and artifact watcher, the decision
// engine, the training scheduler, and the streaming proxy handler. The
// supervisor owns every component instance; nothing in the tree keeps
// package-level mutable state.
package gateway
