/*
Package taskevents provides an introspection-only publish/subscribe broker
for task lifecycle events, adapted from the teacher's cluster-wide
pkg/events broker: same buffered-channel fan-out design, renamed and
retyped around the engine's own task identities instead of cluster
resources.

Nothing in the engine's correctness depends on this package — a dropped
or slow subscriber never affects scheduling, invalidation, or memoization.
It exists so an embedder (a demo CLI, a dashboard, a test) can watch the
engine work without polling CachedTasksIter.
*/
package taskevents
