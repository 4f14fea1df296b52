// Package config loads the host configuration for a PlayCore instance: the
// ordered media sources, autoplay and polyfill switches, opaque per-module
// settings, the module allow/deny policy, externally loaded module plugins,
// environment capability overrides, logging and telemetry sinks.
package config
