/*
Package log provides structured logging for the cellgraph engine using
zerolog.

A single process-wide Logger is configured once via Init and handed out to
every component as a scoped child logger, so a log line from the scheduler
always carries component=scheduler and a log line about a specific task
always carries its task id, without every call site having to repeat it.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Debug().Str("task_id", id.String()).Msg("dispatching task")

	taskLog := log.WithTaskID(id.String())
	taskLog.Error().Err(err).Msg("task body returned an error")

JSON output is for production; console output (human-readable, colorized)
is for local development. Both carry timestamps.
*/
package log
