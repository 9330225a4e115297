// Package ids defines the opaque, stable integer identifiers that stand in
// for pointer identity across the engine's arenas.
//
// The source this engine is modeled on compares tasks, slots and value
// types by address. Go doesn't give a portable way to do that safely across
// an arena of heap objects that outlive individual goroutines, so every
// cross-package reference is a small integer handle instead: tasks and slots
// live in manager-owned maps keyed by these ids, and cycles between them
// (a task's slots point back at their owner, a slot's dependents point back
// at tasks) are broken by storing ids rather than live pointers.
package ids

import "fmt"

// TaskID identifies a Task within a Manager's arena.
type TaskID uint64

func (id TaskID) String() string { return fmt.Sprintf("task#%d", uint64(id)) }

// SlotID identifies a Slot within a Manager's arena.
type SlotID uint64

func (id SlotID) String() string { return fmt.Sprintf("slot#%d", uint64(id)) }
