/*
Package log wraps zerolog behind a small process-global logger.

Init configures the global once at startup from config; everything
else derives child loggers carrying a fixed identifying field:
WithComponent for subsystems, WithNode for per-node upstream handling,
WithSession for SSE sessions, and WithServer for registry entries.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("stream")
	logger.Info().Msg("poll loop started")
*/
package log
