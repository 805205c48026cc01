package builtin

import "fmt"

// Registry binds builtin names to host function pointers the JIT can
// import. Long-double arithmetic implicitly requires the host to have a
// 128-bit (or otherwise ABI-compatible) long double — the backend cannot
// verify this; mismatches produce silently wrong results rather than a
// detectable error (spec §9 design note). Callers running on a host
// without true 128-bit long double must not register the mir.ld* family,
// or must accept reduced precision.
type Registry struct {
	bound map[string]uintptr
}

// NewRegistry returns an empty trampoline registry.
func NewRegistry() *Registry {
	return &Registry{bound: make(map[string]uintptr)}
}

// Register binds name (one of the builtin.Desc.Name strings) to a host
// function pointer. fn must have the C calling-convention signature
// implied by the corresponding Desc's ArgTypes/ResTypes.
func (r *Registry) Register(name string, fn uintptr) {
	r.bound[name] = fn
}

// Resolve returns the host function pointer bound to name.
func (r *Registry) Resolve(name string) (uintptr, error) {
	fn, ok := r.bound[name]
	if !ok {
		return 0, fmt.Errorf("builtin: %q is not registered with this trampoline registry", name)
	}
	return fn, nil
}

// RequireAll checks that every name in names has been registered, so a
// caller can fail fast before translating a function that needs them
// rather than discovering a missing trampoline at rebase time.
func (r *Registry) RequireAll(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := r.bound[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("builtin: missing trampolines: %v", missing)
	}
	return nil
}
