// Package category routes search queries to research-domain profiles and
// their ordered provider hierarchies.
package category

import (
	"fmt"
	"strings"
)

// Profile is one immutable research-domain bucket. It pairs a keyword set
// used for auto-detection with the ordered provider hierarchy consulted by
// the fetch cascade (primary, backup, fallback).
type Profile struct {
	ID          string
	DisplayName string
	// SourceHierarchy lists provider names in cascade order.
	SourceHierarchy []string
	// Keywords drive auto-detection via case-insensitive substring match.
	// A profile with no keywords never wins detection; it can only serve
	// as the fallback.
	Keywords []string
}

// Router resolves queries to category profiles. It is purely static:
// identical input always resolves to the same category.
type Router struct {
	profiles   []Profile
	byID       map[string]Profile
	fallbackID string
}

// NewRouter builds a router over the given profiles. Declaration order is
// significant: detection ties break toward the first-declared profile.
// The fallback profile must be present in the list.
func NewRouter(profiles []Profile, fallbackID string) (*Router, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("category: at least one profile is required")
	}

	byID := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("category: profile with empty id")
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("category: duplicate profile id %q", p.ID)
		}
		if len(p.SourceHierarchy) == 0 {
			return nil, fmt.Errorf("category: profile %q has no sources", p.ID)
		}
		byID[p.ID] = p
	}

	if _, ok := byID[fallbackID]; !ok {
		return nil, fmt.Errorf("category: fallback profile %q not declared", fallbackID)
	}

	return &Router{
		profiles:   profiles,
		byID:       byID,
		fallbackID: fallbackID,
	}, nil
}

// Resolve returns the id of the profile whose keywords best match the
// query. Each keyword occurrence (case-insensitive substring) scores one
// point; the highest non-zero score wins, ties break by declaration order,
// and a zero score across all profiles yields the fallback profile.
func (r *Router) Resolve(query string) string {
	lowered := strings.ToLower(query)

	bestID := r.fallbackID
	bestScore := 0
	for _, p := range r.profiles {
		score := 0
		for _, kw := range p.Keywords {
			if kw == "" {
				continue
			}
			score += strings.Count(lowered, strings.ToLower(kw))
		}
		if score > bestScore {
			bestScore = score
			bestID = p.ID
		}
	}

	return bestID
}

// SourceOrder returns the provider hierarchy for the given category id.
// Unknown ids fall back to the fallback profile's hierarchy so a stale or
// mistyped category still produces a usable cascade.
func (r *Router) SourceOrder(categoryID string) []string {
	p, ok := r.byID[categoryID]
	if !ok {
		p = r.byID[r.fallbackID]
	}

	order := make([]string, len(p.SourceHierarchy))
	copy(order, p.SourceHierarchy)
	return order
}

// Profile returns the profile for the given id.
func (r *Router) Profile(id string) (Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Known reports whether the given id names a declared profile.
func (r *Router) Known(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// FallbackID returns the id of the designated fallback profile.
func (r *Router) FallbackID() string {
	return r.fallbackID
}

// IDs returns the declared category ids in declaration order.
func (r *Router) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		ids = append(ids, p.ID)
	}
	return ids
}
