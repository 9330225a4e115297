/*
Package handle defines Handle, the typed shareable reference to a task's
output or to a directly stored slot — the engine's equivalent of the
source's Vc<T> (see original_source/crates/turbo-tasks/src/vc.rs).

A Handle is one of two flavors (spec §3, §4.6):

  - TaskOutput(task): reads resolve by following task.Output and any
    forwarding chain to a fixed point.
  - SlotRef(slot): a direct reference to a specific slot.

Handle itself carries no logic beyond tagging which flavor it is and which
id it names — resolving it to a value requires a Manager (ReadAPI below),
since only the manager's arenas can turn a TaskID or SlotID back into a live
Task or Slot. Typed[T] layers a phantom Go type over an untyped Handle, the
way Vc<T> layers a type parameter over a raw SlotVc, giving call sites a
compile-time-checked return type instead of `any`.
*/
package handle
