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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxn_WritesInvisibleUntilCommit(t *testing.T) {
	store := newMemory(t)
	ctx := context.Background()
	txn := NewTxn(store, "s1")

	txn.Set("first_name", "Jane")
	v, err := txn.Get(ctx, "first_name", "")
	require.NoError(t, err)
	assert.Equal(t, "Jane", v, "txn reads its own writes")

	stored, _ := store.Get(ctx, "s1", "first_name", "")
	assert.Equal(t, "", stored, "store unchanged before commit")

	require.NoError(t, txn.Commit(ctx))
	stored, _ = store.Get(ctx, "s1", "first_name", "")
	assert.Equal(t, "Jane", stored)
	assert.False(t, txn.Pending())
}

func TestTxn_DiscardLeavesSessionUntouched(t *testing.T) {
	store := newMemory(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "s1", "appointment_date", "Monday, March 10"))

	txn := NewTxn(store, "s1")
	txn.Set("appointment_date", "Tuesday, March 11")
	txn.Clear()
	// Dropped without Commit.

	v, _ := store.Get(ctx, "s1", "appointment_date", "")
	assert.Equal(t, "Monday, March 10", v)
}

func TestTxn_ClearThenSetReplaces(t *testing.T) {
	store := newMemory(t)
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, "s1", map[string]any{"a": 1, "b": 2}))

	txn := NewTxn(store, "s1")
	txn.Clear()
	txn.Set("flow", "new_patient")

	v, _ := txn.Get(ctx, "a", "none")
	assert.Equal(t, "none", v, "cleared values are hidden from txn reads")

	require.NoError(t, txn.Commit(ctx))
	a, _ := store.Get(ctx, "s1", "a", "none")
	flow, _ := store.Get(ctx, "s1", "flow", "")
	assert.Equal(t, "none", a)
	assert.Equal(t, "new_patient", flow)
}

func TestTxn_Delete(t *testing.T) {
	store := newMemory(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "s1", "a", "x"))

	txn := NewTxn(store, "s1")
	txn.Set("b", "y")
	txn.Delete()
	assert.True(t, txn.Pending())
	require.NoError(t, txn.Commit(ctx))

	ms := store.(*memoryStore)
	assert.Equal(t, 0, ms.Len())
}

func TestTxn_GetString(t *testing.T) {
	store := newMemory(t)
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, "s1", map[string]any{"name": "Jane", "count": 3}))

	txn := NewTxn(store, "s1")
	name, err := txn.GetString(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "Jane", name)

	count, err := txn.GetString(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, "", count, "non-string values read as empty")
	assert.Equal(t, "s1", txn.SessionID())
}

func TestTxn_NoopCommit(t *testing.T) {
	store := newMemory(t)
	txn := NewTxn(store, "s1")
	assert.False(t, txn.Pending())
	require.NoError(t, txn.Commit(context.Background()))
	assert.Equal(t, 0, store.(*memoryStore).Len())
}
