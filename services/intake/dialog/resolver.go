// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dialog

// Match is the waiting context chosen to govern a turn.
type Match struct {
	// Name is the bare waiting-context name.
	Name string

	// Context is the context as received.
	Context Context
}

// Resolver picks the waiting context that governs a turn.
//
// # Description
//
// Only active contexts whose bare name is registered participate. When
// several qualify, the one with the smallest lifespan wins and ties go to
// the name registered first. The rule is total, so the same context set
// always resolves the same way regardless of arrival order.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Resolver struct {
	order map[string]int
}

// NewResolver registers waiting-context names in declaration order.
// Duplicate names keep their first position.
func NewResolver(names ...string) *Resolver {
	r := &Resolver{order: make(map[string]int, len(names))}
	for i, n := range names {
		if _, dup := r.order[n]; !dup {
			r.order[n] = i
		}
	}
	return r
}

// Waiting reports whether name is a registered waiting context.
func (r *Resolver) Waiting(name string) bool {
	_, ok := r.order[BareName(name)]
	return ok
}

// Resolve returns the governing waiting context, if any.
func (r *Resolver) Resolve(contexts []Context) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, c := range contexts {
		if !c.Active() {
			continue
		}
		name := BareName(c.Name)
		pos, ok := r.order[name]
		if !ok {
			continue
		}
		if !found || r.better(c.Lifespan, pos, best.Context.Lifespan, r.order[best.Name]) {
			best = Match{Name: name, Context: c}
			found = true
		}
	}
	return best, found
}

func (r *Resolver) better(lifespan, pos, bestLifespan, bestPos int) bool {
	if lifespan != bestLifespan {
		return lifespan < bestLifespan
	}
	return pos < bestPos
}

// ExpireWaiting returns expiry directives for every active registered
// context in contexts except keep.
func (r *Resolver) ExpireWaiting(contexts []Context, keep string) []Context {
	var out []Context
	seen := map[string]bool{keep: true}
	for _, c := range contexts {
		name := BareName(c.Name)
		if !c.Active() || seen[name] || !r.Waiting(name) {
			continue
		}
		seen[name] = true
		out = append(out, Expire(name))
	}
	return out
}
