// Package config resolves session namespaces from the configuration
// store. Sessions list their namespaces under sessions.<id>.namespaces;
// rulesets map to a home namespace under rulesets.<id>.namespace.
package config

import (
	"context"
	"fmt"

	"github.com/custodia-labs/arbiter/internal/core/ports/driven"
)

// Ensure Resolver implements the interface.
var _ driven.NamespaceResolver = (*Resolver)(nil)

// Resolver maps sessions to queryable namespaces using config entries.
type Resolver struct {
	store driven.ConfigStore
}

// NewResolver creates a config-backed namespace resolver.
func NewResolver(store driven.ConfigStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the session's namespaces. When rulesetIDs are given,
// the result is restricted to the home namespaces of those rulesets
// that the session can already see.
func (r *Resolver) Resolve(_ context.Context, sessionID string, rulesetIDs []string) ([]string, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("resolving namespaces: empty session id")
	}

	namespaces := r.store.GetStringSlice(fmt.Sprintf("sessions.%s.namespaces", sessionID))
	if len(namespaces) == 0 {
		// Fall back to the session-wide default list.
		namespaces = r.store.GetStringSlice("session.namespaces")
	}
	if len(namespaces) == 0 {
		return nil, nil
	}

	if len(rulesetIDs) == 0 {
		return namespaces, nil
	}

	visible := make(map[string]struct{}, len(namespaces))
	for _, ns := range namespaces {
		visible[ns] = struct{}{}
	}

	var restricted []string
	seen := make(map[string]struct{})
	for _, id := range rulesetIDs {
		ns := r.store.GetString(fmt.Sprintf("rulesets.%s.namespace", id))
		if ns == "" {
			continue
		}
		if _, ok := visible[ns]; !ok {
			continue
		}
		if _, dup := seen[ns]; dup {
			continue
		}
		seen[ns] = struct{}{}
		restricted = append(restricted, ns)
	}
	return restricted, nil
}
