// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package handletable

import "testing"

func TestTable_InsertLookupRemove(t *testing.T) {
	tbl := NewTable[string]()

	tbl.Insert(Handle(1), "alpha")
	tbl.Insert(Handle(2), "beta")

	v, ok := tbl.Lookup(Handle(1))
	if !ok || v != "alpha" {
		t.Fatalf("expected (alpha, true), got (%q, %v)", v, ok)
	}

	if !tbl.Remove(Handle(1)) {
		t.Fatal("expected Remove(1) to report present")
	}

	if _, ok := tbl.Lookup(Handle(1)); ok {
		t.Fatal("expected miss after Remove")
	}

	if tbl.Remove(Handle(1)) {
		t.Fatal("expected second Remove to report absent")
	}

	if got := tbl.Len(); got != 1 {
		t.Errorf("expected 1 remaining entry, got %d", got)
	}
}

func TestTable_LookupMiss(t *testing.T) {
	tbl := NewTable[int]()
	if _, ok := tbl.Lookup(Handle(99)); ok {
		t.Fatal("expected miss on empty table")
	}
}

func TestTable_ClearReturnsAllValues(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(Handle(1), 10)
	tbl.Insert(Handle(2), 20)
	tbl.Insert(Handle(3), 30)

	values := tbl.Clear()
	if len(values) != 3 {
		t.Fatalf("expected 3 values from Clear, got %d", len(values))
	}
	if tbl.Len() != 0 {
		t.Errorf("expected empty table after Clear, got %d entries", tbl.Len())
	}

	sum := 0
	for _, v := range values {
		sum += v
	}
	if sum != 60 {
		t.Errorf("expected sum 60, got %d", sum)
	}
}

func TestTable_EachDoesNotDeadlock(t *testing.T) {
	tbl := NewTable[int]()
	tbl.Insert(Handle(1), 1)
	tbl.Insert(Handle(2), 2)

	count := 0
	tbl.Each(func(h Handle, v int) {
		count++
	})
	if count != 2 {
		t.Errorf("expected 2 iterations, got %d", count)
	}
}
