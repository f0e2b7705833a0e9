// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package list

import "testing"

func collect(l *List[int]) []int {
	var got []int
	l.Iter(func(v *int) bool {
		got = append(got, *v)
		return true
	})
	return got
}

func TestPushFrontAndBackOrder(t *testing.T) {
	l := New[int]()

	l.PushBack(NewNode(2))
	l.PushFront(NewNode(1))
	l.PushBack(NewNode(3))

	got := collect(l)
	want := []int{1, 2, 3}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
}

func TestIterReverseMirrorsIter(t *testing.T) {
	l := New[int]()
	for _, v := range []int{1, 2, 3} {
		l.PushBack(NewNode(v))
	}

	var rev []int
	l.IterReverse(func(v *int) bool {
		rev = append(rev, *v)
		return true
	})

	want := []int{3, 2, 1}
	for i := range want {
		if rev[i] != want[i] {
			t.Fatalf("IterReverse() = %v, want %v", rev, want)
		}
	}
}

func TestCursorRemoveCurrent(t *testing.T) {
	l := New[int]()
	for _, v := range []int{1, 2, 3} {
		l.PushBack(NewNode(v))
	}

	c := l.CursorFront()
	c.MoveNext() // at 2

	removed := c.RemoveCurrent()
	if removed.Value != 2 {
		t.Fatalf("removed value = %d, want 2", removed.Value)
	}
	removed.Unlink() // already unlinked, but exercises idempotency

	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	got := collect(l)
	if got[0] != 1 || got[1] != 3 {
		t.Fatalf("got %v, want [1 3]", got)
	}
}

func TestMovingANodeBetweenListsIsIdempotent(t *testing.T) {
	a := New[int]()
	b := New[int]()

	n := NewNode(7)
	a.PushBack(n)

	b.PushBack(n)

	if a.Len() != 0 {
		t.Fatalf("a.Len() = %d, want 0 after n moved to b", a.Len())
	}
	if b.Len() != 1 {
		t.Fatalf("b.Len() = %d, want 1", b.Len())
	}

	n.Unlink()
}

func TestReadOnlyViewDoesNotExposeMutation(t *testing.T) {
	l := New[int]()
	l.PushBack(NewNode(1))
	l.PushBack(NewNode(2))

	ro := l.AsReadOnly()

	if ro.Len() != 2 {
		t.Fatalf("ReadOnly.Len() = %d, want 2", ro.Len())
	}

	front, ok := ro.Front()
	if !ok || *front != 1 {
		t.Fatalf("ReadOnly.Front() = %v, %v, want 1, true", front, ok)
	}
}

func TestNodeDroppedWhileLinkedPanics(t *testing.T) {
	l := New[int]()
	n := NewNode(9)
	l.PushBack(n)

	defer func() {
		if recover() == nil {
			t.Fatal("expected finalizer to panic for a node dropped while linked")
		}
	}()

	n.checkDroppedWhileLinked()
}
