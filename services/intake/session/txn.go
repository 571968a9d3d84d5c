// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"
)

// Txn buffers one turn's session writes and applies them with a single
// atomic store call on Commit.
//
// # Description
//
// Reads see the transaction's own pending writes first and fall through to
// the store otherwise. Nothing reaches the store until Commit, so a turn
// that fails midway leaves the session exactly as it was.
//
// # Thread Safety
//
// Not safe for concurrent use. A Txn belongs to one turn.
type Txn struct {
	store   Store
	id      string
	writes  map[string]any
	cleared bool
	deleted bool
}

// NewTxn starts a transaction on sessionID.
func NewTxn(store Store, sessionID string) *Txn {
	return &Txn{store: store, id: sessionID, writes: map[string]any{}}
}

// SessionID returns the session the transaction targets.
func (t *Txn) SessionID() string {
	return t.id
}

// Get returns the pending value for key, or the stored value, or def.
func (t *Txn) Get(ctx context.Context, key string, def any) (any, error) {
	if v, ok := t.writes[key]; ok {
		return v, nil
	}
	if t.cleared || t.deleted {
		return def, nil
	}
	return t.store.Get(ctx, t.id, key, def)
}

// GetString returns the value for key when it is a string, else "".
func (t *Txn) GetString(ctx context.Context, key string) (string, error) {
	v, err := t.Get(ctx, key, "")
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// Set stages one value.
func (t *Txn) Set(key string, value any) {
	t.writes[key] = value
}

// Update stages several values.
func (t *Txn) Update(values map[string]any) {
	for k, v := range values {
		t.writes[k] = v
	}
}

// Clear stages removal of every value, including earlier staged writes.
func (t *Txn) Clear() {
	t.writes = map[string]any{}
	t.cleared = true
}

// Delete stages removal of the whole session.
func (t *Txn) Delete() {
	t.writes = map[string]any{}
	t.deleted = true
}

// Pending reports whether Commit would touch the store.
func (t *Txn) Pending() bool {
	return len(t.writes) > 0 || t.cleared || t.deleted
}

// Commit applies the staged changes in one store call.
func (t *Txn) Commit(ctx context.Context) error {
	var err error
	switch {
	case t.deleted && len(t.writes) == 0:
		err = t.store.Delete(ctx, t.id)
	case t.deleted || t.cleared:
		err = t.store.Replace(ctx, t.id, t.writes)
	case len(t.writes) > 0:
		err = t.store.Update(ctx, t.id, t.writes)
	}
	if err != nil {
		return fmt.Errorf("commit session %s: %w", t.id, err)
	}
	t.writes = map[string]any{}
	t.cleared, t.deleted = false, false
	return nil
}
