/*
Package taskinput implements Task Input (spec §4.2): the canonical,
comparable, hashable encoding of one argument to a task call.

An Input is one of four variants — Resolved(slot), Unresolved(task),
Value(bytes), Nothing — matching spec §3 exactly. Two inputs compare equal
iff their Key() strings are equal; Key() is built from the variant tag plus,
for Value inputs, a deterministic byte encoding of the Go value hashed with
cespare/xxhash/v2, an allocation-independent content hash. The hash alone is
used only to
keep the encoded form compact in logs and cache-table debug output; Key()
still carries the full encoded bytes for Value inputs so that two different
values never compare equal on a hash collision.
*/
package taskinput
