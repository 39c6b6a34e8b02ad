// Package platform resolves versioned, mangled platform entry points at
// runtime and records which ABI variant each capability bound to.
package platform

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Variant identifies the ABI shape of a resolved symbol. Callers branch on it
// to pick the function signature before invoking.
type Variant int

const (
	VariantNone Variant = iota
	VariantDefault
	// VariantLegacy is the older signature of an entry point (fewer params).
	VariantLegacy
	// VariantAllocator marks signatures that take an extra allocator flag.
	VariantAllocator
	// VariantControlHandle marks Surface ctors that take a SurfaceControl handle.
	VariantControlHandle
)

func (v Variant) String() string {
	switch v {
	case VariantDefault:
		return "default"
	case VariantLegacy:
		return "legacy"
	case VariantAllocator:
		return "allocator"
	case VariantControlHandle:
		return "control-handle"
	default:
		return "none"
	}
}

// Candidate is one known spelling of an entry point.
// MinAPI/MaxAPI bound the platform API levels it exists on; zero means open.
type Candidate struct {
	Name    string
	Variant Variant
	MinAPI  int
	MaxAPI  int
}

func (c Candidate) appliesTo(api int) bool {
	if api <= 0 {
		return true
	}
	if c.MinAPI > 0 && api < c.MinAPI {
		return false
	}
	if c.MaxAPI > 0 && api > c.MaxAPI {
		return false
	}
	return true
}

// Symbol is a resolved entry point.
type Symbol struct {
	Capability string
	Name       string
	Addr       uintptr
	Variant    Variant
}

// Valid reports whether the symbol resolved.
func (s Symbol) Valid() bool { return s.Addr != 0 }

// Resolver tries ordered candidate lists against a library.
type Resolver struct {
	lib      Library
	apiLevel int

	mu   sync.Mutex
	caps map[string]Symbol
}

// NewResolver creates a resolver for lib at the given platform API level.
// apiLevel <= 0 disables version filtering.
func NewResolver(lib Library, apiLevel int) *Resolver {
	return &Resolver{lib: lib, apiLevel: apiLevel, caps: make(map[string]Symbol)}
}

// APILevel returns the API level used to filter candidates.
func (r *Resolver) APILevel() int { return r.apiLevel }

// Library returns the underlying library.
func (r *Resolver) Library() Library { return r.lib }

// Resolve tries candidates in order and returns the first one that resolves.
// The outcome, hit or miss, is recorded under capability.
func (r *Resolver) Resolve(capability string, candidates ...Candidate) (Symbol, bool) {
	for _, c := range candidates {
		if !c.appliesTo(r.apiLevel) {
			continue
		}
		addr, err := r.lib.Lookup(c.Name)
		if err != nil || addr == 0 {
			continue
		}
		sym := Symbol{Capability: capability, Name: c.Name, Addr: addr, Variant: c.Variant}
		r.record(sym)
		slog.Debug("symbol resolved", "capability", capability, "variant", c.Variant, "library", r.lib.Name())
		return sym, true
	}
	r.record(Symbol{Capability: capability})
	return Symbol{Capability: capability}, false
}

// Require is Resolve for mandatory capabilities.
func (r *Resolver) Require(capability string, candidates ...Candidate) (Symbol, error) {
	if sym, ok := r.Resolve(capability, candidates...); ok {
		return sym, nil
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return Symbol{}, apperr.Newf(apperr.CodeSymbolMissing, "no candidate resolved for %s", capability).
		WithMetadata("library", r.lib.Name()).
		WithMetadata("candidates", fmt.Sprint(names))
}

func (r *Resolver) record(sym Symbol) {
	r.mu.Lock()
	r.caps[sym.Capability] = sym
	r.mu.Unlock()
}

// Capability returns the recorded outcome for a capability.
func (r *Resolver) Capability(name string) (Symbol, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sym, ok := r.caps[name]
	return sym, ok && sym.Valid()
}

// Capabilities returns every looked-up capability and whether it resolved,
// sorted by name.
func (r *Resolver) Capabilities() []Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Symbol, 0, len(r.caps))
	for _, s := range r.caps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out
}
