/*
Package log provides structured logging for Stash using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and helper
functions for the common logging patterns used across the cache
subsystem (interceptor decisions, store admission, invalidation).

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	interceptLog := log.WithComponent("intercept")
	interceptLog.Debug().Str("fingerprint", fp).Msg("cache miss")

	storeLog := log.WithComponent("store.hybrid")
	storeLog.Warn().Err(err).Msg("l2 get failed, falling back to database")

# Design

A single package-level zerolog.Logger is initialized once via Init and
is safe for concurrent use from every goroutine touching the cache
(interceptor, background TTL sweep, save interceptor). Context loggers
(WithComponent) attach a "component" field so operators can filter logs
by which subsystem emitted them without threading a logger through every
constructor argument.
*/
package log
