package task

import (
	"fmt"

	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/taskinput"
)

// Kind distinguishes the five identity shapes a task can have (spec §3,
// §4.4 "Dedup and identity").
type Kind uint8

const (
	KindNative Kind = iota
	KindResolve
	KindTrait
	KindRoot
	KindOnce
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindResolve:
		return "resolve"
	case KindTrait:
		return "trait"
	case KindRoot:
		return "root"
	case KindOnce:
		return "once"
	default:
		return "unknown"
	}
}

// Identity names what a task computes. Two tasks with equal, deduplicable
// identities (Native, Resolve or Trait) collapse into a single task via
// the manager's caches; Root and Once tasks are anonymous and are never
// deduplicated (spec §4.4).
type Identity struct {
	Kind     Kind
	Function *registry.NativeFunction
	Trait    *registry.TraitType
	Method   string
	Inputs   []taskinput.Input
}

// Dedupable reports whether tasks with this identity shape participate in
// the manager's dedup caches.
func (id Identity) Dedupable() bool {
	return id.Kind == KindNative || id.Kind == KindResolve || id.Kind == KindTrait
}

// Key returns the canonical cache key for a dedupable identity. Calling it
// on a Root or Once identity panics — those are constructed fresh every
// time and must never be looked up.
func (id Identity) Key() string {
	switch id.Kind {
	case KindNative:
		return fmt.Sprintf("native:%s:%s", id.Function.Name(), taskinput.JoinKeys(id.Inputs))
	case KindResolve:
		return fmt.Sprintf("resolve:%s:%s", id.Function.Name(), taskinput.JoinKeys(id.Inputs))
	case KindTrait:
		return fmt.Sprintf("trait:%s:%s:%s", id.Trait.Name(), id.Method, taskinput.JoinKeys(id.Inputs))
	default:
		panic(fmt.Sprintf("task: %s identities are not dedupable and have no cache key", id.Kind))
	}
}

func (id Identity) String() string {
	switch id.Kind {
	case KindNative:
		return fmt.Sprintf("native(%s)", id.Function.Name())
	case KindResolve:
		return fmt.Sprintf("resolve(%s)", id.Function.Name())
	case KindTrait:
		return fmt.Sprintf("trait(%s.%s)", id.Trait.Name(), id.Method)
	case KindRoot:
		return "root"
	case KindOnce:
		return "once"
	default:
		return "unknown"
	}
}

// NativeIdentity builds the identity for a direct call to a resolved
// native function.
func NativeIdentity(fn *registry.NativeFunction, inputs []taskinput.Input) Identity {
	return Identity{Kind: KindNative, Function: fn, Inputs: inputs}
}

// ResolveIdentity builds the identity for a task whose job is to resolve
// its unresolved inputs and then tail-call fn natively (spec §4.5
// "dynamic_call").
func ResolveIdentity(fn *registry.NativeFunction, inputs []taskinput.Input) Identity {
	return Identity{Kind: KindResolve, Function: fn, Inputs: inputs}
}

// TraitIdentity builds the identity for a trait dispatch task.
func TraitIdentity(trait *registry.TraitType, method string, inputs []taskinput.Input) Identity {
	return Identity{Kind: KindTrait, Trait: trait, Method: method, Inputs: inputs}
}

// RootIdentity builds an anonymous root-task identity.
func RootIdentity() Identity { return Identity{Kind: KindRoot} }

// OnceIdentity builds an anonymous once-task identity.
func OnceIdentity() Identity { return Identity{Kind: KindOnce} }
