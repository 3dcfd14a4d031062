package external

import (
	"fmt"
	"net/http"
	"slices"
)

// Registry holds the backends of a process in fallback order. It is built
// once at startup and read concurrently afterwards.
type Registry struct {
	backends map[string]Backend
	order    []string
}

// NewRegistry creates a registry. Backends named in DefaultOrder keep that
// order, any others follow in the order given.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	for _, name := range DefaultOrder {
		if _, ok := r.backends[name]; ok {
			r.order = append(r.order, name)
		}
	}
	for _, b := range backends {
		if !slices.Contains(r.order, b.Name()) {
			r.order = append(r.order, b.Name())
		}
	}
	return r
}

// Build creates every known backend from its configuration section. Missing
// sections yield unconfigured backends, which the chain skips.
func Build(cfgs map[string]Config, client *http.Client) (*Registry, error) {
	for name := range cfgs {
		if !slices.Contains(DefaultOrder, name) {
			return nil, fmt.Errorf("unknown backend: %s", name)
		}
	}
	return NewRegistry(
		NewConvertAPI(cfgs[NameConvertAPI], client),
		NewPDFCo(cfgs[NamePDFCo], client),
		NewAdobe(cfgs[NameAdobe], client),
		NewSmallPDF(cfgs[NameSmallPDF]),
		NewGhostscript(cfgs[NameGhostscript]),
		NewRemote(cfgs[NameRemote], client),
	), nil
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Names returns backend names in fallback order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Chain returns every backend with preferred first and the rest in fallback
// order. An unknown preferred name is ignored.
func (r *Registry) Chain(preferred string) []Backend {
	chain := make([]Backend, 0, len(r.order))
	if b, ok := r.backends[preferred]; ok {
		chain = append(chain, b)
	}
	for _, name := range r.order {
		if name != preferred {
			chain = append(chain, r.backends[name])
		}
	}
	return chain
}

// Status describes one backend for health output.
type Status struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Configured  bool   `json:"configured"`
}

// Statuses returns the status of every backend in fallback order.
func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		b := r.backends[name]
		out = append(out, Status{Name: name, DisplayName: b.DisplayName(), Configured: b.Configured()})
	}
	return out
}

// AnyConfigured reports whether at least one backend can be attempted.
func (r *Registry) AnyConfigured() bool {
	for _, b := range r.backends {
		if b.Configured() {
			return true
		}
	}
	return false
}
