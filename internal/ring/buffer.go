// Package ring implements the single-writer / single-reader record queue that
// links a producer context to the consumer.
package ring

import (
	"sync/atomic"

	"cloudpico-bridge/internal/record"
)

// Buffer is a fixed-capacity ring of records. Indices run modulo twice the
// capacity so that a full ring and an empty ring are distinguishable.
// Exactly one goroutine may write and exactly one may read.
//
// The writer allocates records with Next and publishes a finished message with
// CloseLast. The reader only ever sees records up to the last published close.
type Buffer struct {
	name   string
	slots  []record.Record
	size   uint32
	write  atomic.Uint32
	commit atomic.Uint32
	read   atomic.Uint32
}

// New returns a buffer holding capacity records.
func New(name string, capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		name:  name,
		slots: make([]record.Record, capacity),
		size:  uint32(capacity),
	}
}

func (b *Buffer) Name() string { return b.name }

func (b *Buffer) Cap() int { return int(b.size) }

// Used returns the number of allocated, unread records, including those of a
// message still being written. Used()+Free() is always Cap().
func (b *Buffer) Used() int {
	return b.distance(b.read.Load(), b.write.Load())
}

// Published returns the number of unread records up to the last CloseLast.
func (b *Buffer) Published() int {
	return b.distance(b.read.Load(), b.commit.Load())
}

// Free returns the number of records the writer may still allocate.
func (b *Buffer) Free() int {
	w, r := int(b.write.Load()), int(b.read.Load())
	if w >= r {
		return r - w + int(b.size)
	}
	return r - w - int(b.size)
}

// PeekRead returns the next readable record. Callers must check Used first.
func (b *Buffer) PeekRead() *record.Record {
	return &b.slots[b.read.Load()%b.size]
}

// PeekWrite returns the next writable record. Callers must check Free first.
func (b *Buffer) PeekWrite() *record.Record {
	return &b.slots[b.write.Load()%b.size]
}

// AdvanceRead zeroes the consumed slot and hands it back to the writer.
func (b *Buffer) AdvanceRead() {
	r := b.read.Load()
	b.slots[r%b.size].Reset()
	b.read.Store(b.next(r))
}

// AdvanceWrite moves the allocation cursor past the current write slot.
func (b *Buffer) AdvanceWrite() {
	b.write.Store(b.next(b.write.Load()))
}

// Next resets the next write slot, tags it and advances the cursor. The
// returned record stays writable until the message is published.
func (b *Buffer) Next(field record.Field, typ record.Type, typeInfo, extra uint8) *record.Record {
	rec := b.PeekWrite()
	rec.Init(field, typ, typeInfo, extra)
	b.AdvanceWrite()
	return rec
}

// CloseLast sets the close-message flag on the most recently allocated
// record and publishes everything allocated so far to the reader.
func (b *Buffer) CloseLast() {
	w := b.write.Load()
	if w == b.commit.Load() {
		return
	}
	b.slots[(w+2*b.size-1)%b.size].Close()
	b.commit.Store(w)
}

// HasUnreadClosed reports whether a complete message is waiting.
func (b *Buffer) HasUnreadClosed() bool {
	r := b.read.Load()
	for n := b.Published(); n > 0; n-- {
		if b.slots[r%b.size].IsClosed() {
			return true
		}
		r = b.next(r)
	}
	return false
}

func (b *Buffer) distance(from, to uint32) int {
	if to >= from {
		return int(to - from)
	}
	return int(2*b.size + to - from)
}

func (b *Buffer) next(i uint32) uint32 {
	i++
	if i >= 2*b.size {
		return 0
	}
	return i
}
