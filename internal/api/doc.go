// Package api exposes a small HTTP control surface for a running instance:
// state and module introspection plus the playback operations.
package api
