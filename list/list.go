// Intrusive doubly linked list
// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package list implements an intrusive, circular, doubly linked list whose
// nodes are not owned by the list itself: a *Node[T] can live on the stack,
// on the heap, or embedded in another struct, and moves freely between
// lists (or in and out of a single list) without ever being copied.
//
// The list is the borrow owner of every node currently linked into it: a
// Node's Value should only be read or mutated while the owning *List is
// reachable, and only one *List can hold exclusive (mutating) access to a
// node at a time. Go has no borrow checker to enforce this statically, so
// the only runtime check retained from the source design is the
// drop-while-linked assertion, approximated here with a finalizer.
package list

import "runtime"

// entry is the raw link record: two pointers forming a node of a circular
// list. A entry that is its own prev and next is unlinked.
type entry[T any] struct {
	prev, next *entry[T]
	owner      *Node[T]
}

func (e *entry[T]) linked() bool {
	return e.prev != e || e.next != e
}

func (e *entry[T]) reset() {
	e.prev, e.next = e, e
}

// unlink removes e from whatever list it is currently part of (if any) and
// resets it to the unlinked (self-looped) state. It needs no reference to
// the owning *List, since a circular intrusive list's neighbors are always
// reachable from the entry itself.
func unlink[T any](e *entry[T]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.reset()
}

// spliceBetween inserts e between prev and next, first unlinking e from any
// list it currently belongs to. Insertion is therefore idempotent: moving an
// already-linked node just relinks it in its new position.
func spliceBetween[T any](e, prev, next *entry[T]) {
	if e.linked() {
		unlink(e)
	}

	e.prev = prev
	e.next = next
	prev.next = e
	next.prev = e
}

// Node carries a payload and the link record used to place it in a List.
type Node[T any] struct {
	link  entry[T]
	Value T
}

// NewNode allocates a Node holding v, initially unlinked.
func NewNode[T any](v T) *Node[T] {
	n := &Node[T]{Value: v}
	n.link.owner = n
	n.link.reset()

	runtime.SetFinalizer(n, (*Node[T]).checkDroppedWhileLinked)

	return n
}

// checkDroppedWhileLinked is the finalizer installed by NewNode.
func (n *Node[T]) checkDroppedWhileLinked() {
	if n.link.linked() {
		panic("list: node dropped while still linked")
	}
}

// Linked reports whether n is currently part of some List.
func (n *Node[T]) Linked() bool {
	return n.link.linked()
}

// Unlink removes n from whatever list holds it. It is a no-op if n is not
// linked. Callers that reuse or discard a Node must Unlink it first.
func (n *Node[T]) Unlink() {
	if n.link.linked() {
		unlink(&n.link)
	}
}

// List is a circular doubly linked list of *Node[T], headed by a sentinel
// entry. The list is empty iff the sentinel is unlinked (self-looped).
//
// All methods on *List require exclusive access to the list handle, mirroring
// the source design's ListMut. Read-only traversal is available through
// AsReadOnly, mirroring ListRef.
type List[T any] struct {
	root entry[T]
	len  int
}

// New returns an empty list.
func New[T any]() *List[T] {
	l := &List[T]{}
	l.root.reset()
	return l
}

// Len returns the number of nodes currently linked into l, counted by
// walking the list, so a node moved to another list or unlinked through
// Node.Unlink is no longer counted.
func (l *List[T]) Len() int {
	n := 0
	for e := l.root.next; e != &l.root; e = e.next {
		n++
	}
	return n
}

// Empty reports whether l has no linked nodes.
func (l *List[T]) Empty() bool {
	return !l.root.linked()
}

// PushFront links n as the new first element.
func (l *List[T]) PushFront(n *Node[T]) {
	spliceBetween(&n.link, &l.root, l.root.next)
	l.len++
}

// PushBack links n as the new last element.
func (l *List[T]) PushBack(n *Node[T]) {
	spliceBetween(&n.link, l.root.prev, &l.root)
	l.len++
}

// Front returns the first node, or nil if l is empty. The returned pointer
// borrows l for the caller's use of it.
func (l *List[T]) Front() *Node[T] {
	if l.Empty() {
		return nil
	}
	return l.root.next.owner
}

// Back returns the last node, or nil if l is empty.
func (l *List[T]) Back() *Node[T] {
	if l.Empty() {
		return nil
	}
	return l.root.prev.owner
}

// PopFront unlinks and returns the first node, or nil if l is empty.
func (l *List[T]) PopFront() *Node[T] {
	n := l.Front()
	if n == nil {
		return nil
	}
	unlink(&n.link)
	l.len--
	return n
}

// PopBack unlinks and returns the last node, or nil if l is empty.
func (l *List[T]) PopBack() *Node[T] {
	n := l.Back()
	if n == nil {
		return nil
	}
	unlink(&n.link)
	l.len--
	return n
}

// Remove unlinks n from l. It is a no-op if n is not linked.
func (l *List[T]) Remove(n *Node[T]) {
	if !n.link.linked() {
		return
	}
	unlink(&n.link)
	l.len--
}

// Iter calls f with the value of every node from front to back, stopping
// early if f returns false.
func (l *List[T]) Iter(f func(v *T) bool) {
	for e := l.root.next; e != &l.root; e = e.next {
		if !f(&e.owner.Value) {
			return
		}
	}
}

// IterReverse calls f with the value of every node from back to front,
// stopping early if f returns false.
func (l *List[T]) IterReverse(f func(v *T) bool) {
	for e := l.root.prev; e != &l.root; e = e.prev {
		if !f(&e.owner.Value) {
			return
		}
	}
}

// Cursor walks a List back and forth, optionally splicing nodes in or out at
// its current position. A Cursor borrows its List mutably for its lifetime.
type Cursor[T any] struct {
	l   *List[T]
	cur *entry[T]
}

// CursorFront returns a cursor positioned at the first element (or at the
// sentinel, one-past-back, if l is empty).
func (l *List[T]) CursorFront() *Cursor[T] {
	return &Cursor[T]{l: l, cur: l.root.next}
}

// CursorBack returns a cursor positioned at the last element (or at the
// sentinel if l is empty).
func (l *List[T]) CursorBack() *Cursor[T] {
	return &Cursor[T]{l: l, cur: l.root.prev}
}

// MoveNext advances the cursor toward the back, wrapping onto the sentinel
// past the last element.
func (c *Cursor[T]) MoveNext() {
	c.cur = c.cur.next
}

// MovePrev moves the cursor toward the front, wrapping onto the sentinel
// past the first element.
func (c *Cursor[T]) MovePrev() {
	c.cur = c.cur.prev
}

// Peek returns the value at the cursor's current position, or ok == false if
// the cursor rests on the sentinel.
func (c *Cursor[T]) Peek() (v *T, ok bool) {
	if c.cur == &c.l.root {
		return nil, false
	}
	return &c.cur.owner.Value, true
}

// InsertBefore links n immediately before the cursor's current position.
func (c *Cursor[T]) InsertBefore(n *Node[T]) {
	spliceBetween(&n.link, c.cur.prev, c.cur)
	c.l.len++
}

// InsertAfter links n immediately after the cursor's current position.
func (c *Cursor[T]) InsertAfter(n *Node[T]) {
	spliceBetween(&n.link, c.cur, c.cur.next)
	c.l.len++
}

// RemoveCurrent unlinks the node at the cursor's current position, advancing
// the cursor to the following element, and returns the removed node. It
// returns nil if the cursor rests on the sentinel.
func (c *Cursor[T]) RemoveCurrent() *Node[T] {
	if c.cur == &c.l.root {
		return nil
	}

	n := c.cur.owner
	next := c.cur.next
	unlink(c.cur)
	c.l.len--
	c.cur = next

	return n
}

// ReadOnly grants shared, non-mutating access to a List's nodes, mirroring
// the source design's ListRef.
type ReadOnly[T any] struct {
	l *List[T]
}

// AsReadOnly returns a shared view of l.
func (l *List[T]) AsReadOnly() ReadOnly[T] {
	return ReadOnly[T]{l: l}
}

// Len returns the number of linked nodes.
func (r ReadOnly[T]) Len() int {
	return r.l.Len()
}

// Front returns the value of the first node, if any.
func (r ReadOnly[T]) Front() (v *T, ok bool) {
	n := r.l.Front()
	if n == nil {
		return nil, false
	}
	return &n.Value, true
}

// Back returns the value of the last node, if any.
func (r ReadOnly[T]) Back() (v *T, ok bool) {
	n := r.l.Back()
	if n == nil {
		return nil, false
	}
	return &n.Value, true
}

// Iter calls f with the value of every node from front to back, stopping
// early if f returns false.
func (r ReadOnly[T]) Iter(f func(v *T) bool) {
	r.l.Iter(f)
}
