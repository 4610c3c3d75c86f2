// Package watcher provides recursive file system watching and event
// debouncing for the coordinator pipeline.
//
// The pipeline has two stages. FSWatcher subscribes to a directory tree
// (fsnotify when available, mtime polling as a fallback) and emits raw
// ChangeEvents. Debouncer consumes those events and emits a ChangeSet
// once no event has arrived for a full quiet window.
//
// Rename handling is degraded on purpose: the fsnotify backend cannot
// pair the two endpoints of a rename, so a rename surfaces as a Deleted
// event for the old path and a Created event for the new path. Consumers
// that re-derive file state from disk are unaffected.
package watcher
