package planner

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// ModuleSpec is what the planner knows about a deployed module.
type ModuleSpec struct {
	Kind    domain.ProtocolKind
	Address common.Address
	// Currencies the module settles in. Empty accepts any currency.
	Currencies             []common.Address
	GasPerOrder            uint64
	SupportsOffers         bool
	RequiresTakerSignature bool
}

// Accepts reports whether the module settles in currency.
func (m ModuleSpec) Accepts(currency common.Address) bool {
	if len(m.Currencies) == 0 {
		return true
	}
	for _, c := range m.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

func (m ModuleSpec) gasPerOrder() uint64 {
	if m.GasPerOrder == 0 {
		return defaultOrderGas
	}
	return m.GasPerOrder
}

// Registry maps each protocol to its module.
type Registry struct {
	modules map[domain.ProtocolKind]ModuleSpec
}

// NewRegistry builds a registry. A later spec for the same kind replaces an earlier one.
func NewRegistry(specs ...ModuleSpec) *Registry {
	r := &Registry{modules: make(map[domain.ProtocolKind]ModuleSpec, len(specs))}
	for _, s := range specs {
		r.modules[s.Kind] = s
	}
	return r
}

// Lookup returns the module serving kind.
func (r *Registry) Lookup(kind domain.ProtocolKind) (ModuleSpec, error) {
	m, ok := r.modules[kind]
	if !ok {
		return ModuleSpec{}, fmt.Errorf("%w: no module for %q", domain.ErrUnsupportedProtocol, kind)
	}
	return m, nil
}

// Kinds lists the registered protocols in a stable order.
func (r *Registry) Kinds() []domain.ProtocolKind {
	out := make([]domain.ProtocolKind, 0, len(r.modules))
	for k := range r.modules {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
