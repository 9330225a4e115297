/*
Package registry is the Value Type Registry (spec §4.1): it interns value
types, trait types and native function descriptors by name so that two
registrations of the same name return the identical descriptor, and so that
descriptors can be compared by Go pointer identity exactly as the source
compares them by address.

Registration is idempotent and expected to happen at program start, not on
a hot path — a single mutex guards all three tables. The dynamic-dispatch
table (which native function implements which trait method for which value
type) lives here too, since it is pure interned-descriptor bookkeeping with
no dependency on how arguments are encoded or how task bodies run.
*/
package registry
