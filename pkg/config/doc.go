/*
Package config holds the engine's own configuration: how many workers the
scheduler pool runs, how often the liveness reaper sweeps, what the default
logger looks like, and whether programming-error conditions (MissingContext,
UnresolvedInput) panic or are returned to the caller.

None of this is part of the task graph itself — it configures the ambient
runtime around it, the way the teacher's per-component Config structs (
manager.Config, scheduler's reliance on fixed intervals, worker.Config)
configure Warren's cluster runtime. Load reads a YAML file; Default returns
the zero-config values used when the engine is embedded as a library.
*/
package config
