package access

import (
	"errors"

	"CastVault/internal/principal"
)

var (
	// ErrNotOwner is returned when a caller invokes an owner-only mutator.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrInvalidOwner is returned when ownership would transfer to the zero principal.
	ErrInvalidOwner = errors.New("new owner must not be the zero principal")
)

// Registry tracks the contract owner and the set of authorized backends.
// The owner is always implicitly authorized. All mutators are owner-gated.
type Registry struct {
	owner    principal.Principal
	backends map[principal.Principal]struct{}
}

// NewRegistry creates a registry with the given initial owner.
func NewRegistry(owner principal.Principal) (*Registry, error) {
	if owner.IsZero() {
		return nil, ErrInvalidOwner
	}
	return &Registry{
		owner:    owner,
		backends: make(map[principal.Principal]struct{}),
	}, nil
}

// Owner returns the current owner.
func (r *Registry) Owner() principal.Principal {
	return r.owner
}

// IsOwner reports whether p is the current owner.
func (r *Registry) IsOwner(p principal.Principal) bool {
	return p == r.owner
}

// IsAuthorized reports whether p may trigger buys and swaps on behalf of
// users. The owner is always authorized.
func (r *Registry) IsAuthorized(p principal.Principal) bool {
	if p == r.owner {
		return true
	}
	_, ok := r.backends[p]
	return ok
}

// Authorize adds a backend. Idempotent: authorizing twice is a no-op.
func (r *Registry) Authorize(caller, backend principal.Principal) error {
	if !r.IsOwner(caller) {
		return ErrNotOwner
	}
	r.backends[backend] = struct{}{}
	return nil
}

// Deauthorize removes a backend. Idempotent: removing an absent backend is a
// no-op. Deauthorization takes effect on the next command.
func (r *Registry) Deauthorize(caller, backend principal.Principal) error {
	if !r.IsOwner(caller) {
		return ErrNotOwner
	}
	delete(r.backends, backend)
	return nil
}

// TransferOwnership hands the owner role to a new principal, effective
// immediately. The zero principal is rejected so the registry can never be
// orphaned.
func (r *Registry) TransferOwnership(caller, newOwner principal.Principal) error {
	if !r.IsOwner(caller) {
		return ErrNotOwner
	}
	if newOwner.IsZero() {
		return ErrInvalidOwner
	}
	r.owner = newOwner
	return nil
}

// Backends returns a copy of the authorized backend set, for the read surface.
func (r *Registry) Backends() []principal.Principal {
	out := make([]principal.Principal, 0, len(r.backends))
	for b := range r.backends {
		out = append(out, b)
	}
	return out
}
