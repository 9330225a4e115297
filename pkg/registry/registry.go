package registry

import (
	"fmt"
	"sync"
)

// ValueType is an interned descriptor identifying a family of result
// values by name. Two calls to Registry.Value with the same name return
// the same *ValueType; equality is by pointer.
type ValueType struct {
	name string
}

func (v *ValueType) Name() string { return v.name }

func (v *ValueType) String() string { return "value:" + v.name }

// TraitType is an interned descriptor naming a dynamic-dispatch surface
// and the method names it exposes.
type TraitType struct {
	name    string
	methods map[string]struct{}
}

func (t *TraitType) Name() string { return t.name }

func (t *TraitType) String() string { return "trait:" + t.name }

// HasMethod reports whether method is part of this trait's surface.
func (t *TraitType) HasMethod(method string) bool {
	_, ok := t.methods[method]
	return ok
}

// NativeFunction is a registered pure function descriptor: a stable name
// and declared arity. The callable Go body lives in the manager, which
// wraps registration (see manager.RegisterFunction) — the registry only
// owns the interned identity.
type NativeFunction struct {
	name  string
	arity int
}

func (f *NativeFunction) Name() string { return f.name }

func (f *NativeFunction) Arity() int { return f.arity }

func (f *NativeFunction) String() string { return "fn:" + f.name }

type dispatchKey struct {
	value  *ValueType
	trait  *TraitType
	method string
}

// Registry interns value types, trait types and native functions by name,
// and holds the (value type, trait, method) -> native function dispatch
// table used for trait calls.
type Registry struct {
	mu        sync.Mutex
	values    map[string]*ValueType
	traits    map[string]*TraitType
	functions map[string]*NativeFunction
	dispatch  map[dispatchKey]*NativeFunction
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		values:    make(map[string]*ValueType),
		traits:    make(map[string]*TraitType),
		functions: make(map[string]*NativeFunction),
		dispatch:  make(map[dispatchKey]*NativeFunction),
	}
}

// Value interns a value type by name. Repeated calls with the same name
// return the same descriptor.
func (r *Registry) Value(name string) *ValueType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vt, ok := r.values[name]; ok {
		return vt
	}
	vt := &ValueType{name: name}
	r.values[name] = vt
	return vt
}

// Trait interns a trait type by name, recording the method names it
// exposes on first registration. Subsequent registrations of the same name
// return the original descriptor unchanged (the methods argument is
// ignored on re-registration, matching the idempotent-per-name contract).
func (r *Registry) Trait(name string, methods []string) *TraitType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tt, ok := r.traits[name]; ok {
		return tt
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	tt := &TraitType{name: name, methods: set}
	r.traits[name] = tt
	return tt
}

// Function interns a native function descriptor by name.
func (r *Registry) Function(name string, arity int) *NativeFunction {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn, ok := r.functions[name]; ok {
		return fn
	}
	fn := &NativeFunction{name: name, arity: arity}
	r.functions[name] = fn
	return fn
}

// Implement records that fn implements trait.method for values of type vt.
// Returns an error if the trait doesn't declare that method.
func (r *Registry) Implement(vt *ValueType, trait *TraitType, method string, fn *NativeFunction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !trait.HasMethod(method) {
		return fmt.Errorf("trait %q does not declare method %q", trait.name, method)
	}
	r.dispatch[dispatchKey{vt, trait, method}] = fn
	return nil
}

// Lookup finds the native function implementing trait.method for vt.
func (r *Registry) Lookup(vt *ValueType, trait *TraitType, method string) (*NativeFunction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.dispatch[dispatchKey{vt, trait, method}]
	return fn, ok
}
