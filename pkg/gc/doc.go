/*
Package gc implements the background liveness reaper named in spec §4.6
and §9: on a fixed interval it asks the manager to sweep dedup-cached
tasks for ones that have lost their last parent and aren't referenced by
a pinned handle, detach them from their cache table, and release their
slots.

The reaper itself holds no graph state — it only owns the ticker loop and
defers to whatever ManagerAPI is handed to New, mirroring the teacher's
pkg/reconciler run-loop shape (ticker, Start/Stop, structured logging per
cycle) rather than inventing a new background-job idiom.
*/
package gc
