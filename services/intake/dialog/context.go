// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dialog models the per-turn conversation markers exchanged with
// the NLU front end and decides which waiting state governs a turn.
//
// A Context is a named, parameterized marker with a lifespan counted in
// turns. The front end echoes every context it received back on the next
// request with a decremented lifespan; a context sent with lifespan 0 is
// an instruction to drop it. Context names arrive fully qualified
// ("projects/p/agent/sessions/s/contexts/collect_phone"); everything in
// this package compares the bare final segment.
package dialog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultLifespan is the lifespan given to every emitted waiting context.
const DefaultLifespan = 5

// Context is one conversation marker.
type Context struct {
	Name       string         `json:"name"`
	Lifespan   int            `json:"lifespan"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// New returns a waiting context with DefaultLifespan.
func New(name string, params map[string]any) Context {
	return Context{Name: name, Lifespan: DefaultLifespan, Parameters: params}
}

// Expire returns a directive that drops the named context.
func Expire(name string) Context {
	return Context{Name: BareName(name), Lifespan: 0}
}

// Active reports whether the context is live rather than an expiry
// directive.
func (c Context) Active() bool {
	return c.Lifespan > 0
}

// Bare returns the context's bare name.
func (c Context) Bare() string {
	return BareName(c.Name)
}

// TurnInput is everything the core knows about one inbound turn.
//
// # Fields
//
//   - SessionID: Final path segment of SessionPath.
//   - SessionPath: Fully qualified session, used to rebuild context names.
//   - ResponseID: Front-end id of this delivery, empty if unknown.
//   - QueryText: Raw user utterance.
//   - IntentName: Display name chosen by the NLU classifier.
//   - ActiveContexts: Contexts echoed back by the front end.
//   - Entities: Parameters extracted by the classifier.
type TurnInput struct {
	SessionID      string
	SessionPath    string
	ResponseID     string
	QueryText      string
	IntentName     string
	ActiveContexts []Context
	Entities       map[string]any
}

// BareName strips the session-path prefix from a context name. The result
// is the segment after "/contexts/", or after the last "/" when that marker
// is absent.
func BareName(name string) string {
	if i := strings.LastIndex(name, "/contexts/"); i >= 0 {
		return name[i+len("/contexts/"):]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// SessionIDFromPath returns the final segment of a session path.
func SessionIDFromPath(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Find returns the first context whose bare name equals name.
func Find(contexts []Context, name string) (Context, bool) {
	for _, c := range contexts {
		if BareName(c.Name) == name {
			return c, true
		}
	}
	return Context{}, false
}

// Parameters returns the parameter map of the first context whose bare
// name equals name, or nil.
func Parameters(contexts []Context, name string) map[string]any {
	if c, ok := Find(contexts, name); ok {
		return c.Parameters
	}
	return nil
}

// StringParam reads key from params as a string. Numbers are rendered
// without a trailing ".0"; other types and absent keys yield "".
func StringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// CloneParams returns a shallow copy of params (nil stays nil).
func CloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
