package ecs

import (
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rotisserie/eris"
)

type borrowKind uint32

const (
	borrowComponent borrowKind = iota
	borrowResource
)

type borrowKey uint64

func makeBorrowKey(kind borrowKind, id uint32) borrowKey {
	return borrowKey(uint64(kind)<<32 | uint64(id))
}

func (k borrowKey) String() string {
	if k>>32 == borrowKey(borrowResource) {
		return "resource#" + strconv.FormatUint(uint64(uint32(k)), 10)
	}
	return "component#" + strconv.FormatUint(uint64(uint32(k)), 10)
}

// borrowCell holds the borrow state of one storage or resource:
// a positive count of readers, -1 for a single writer, 0 when free.
type borrowCell struct {
	state atomic.Int32
}

// borrowTracker enforces many-readers xor one-writer per storage and resource.
// It is only consulted when debug borrows are enabled.
type borrowTracker struct {
	cells cmap.ConcurrentMap[borrowKey, *borrowCell]
}

func newBorrowTracker() *borrowTracker {
	return &borrowTracker{
		cells: cmap.NewWithCustomShardingFunction[borrowKey, *borrowCell](func(key borrowKey) uint32 {
			return uint32(key) ^ uint32(key>>32)
		}),
	}
}

func (b *borrowTracker) cell(key borrowKey) *borrowCell {
	if c, ok := b.cells.Get(key); ok {
		return c
	}
	b.cells.SetIfAbsent(key, &borrowCell{})
	c, _ := b.cells.Get(key)
	return c
}

func (b *borrowTracker) acquireRead(key borrowKey) error {
	c := b.cell(key)
	for {
		cur := c.state.Load()
		if cur < 0 {
			return eris.Wrapf(ErrBorrowConflict, "read %s while mutably borrowed", key)
		}
		if c.state.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

func (b *borrowTracker) acquireWrite(key borrowKey) error {
	c := b.cell(key)
	if !c.state.CompareAndSwap(0, -1) {
		return eris.Wrapf(ErrBorrowConflict, "write %s while borrowed", key)
	}
	return nil
}

func (b *borrowTracker) releaseRead(key borrowKey) {
	b.cell(key).state.Add(-1)
}

func (b *borrowTracker) releaseWrite(key borrowKey) {
	b.cell(key).state.Store(0)
}

// acquire takes every borrow declared by access. On conflict the borrows
// already taken are released and the error returned.
func (b *borrowTracker) acquire(access *Access) error {
	var taken []func()
	fail := func(err error) error {
		for i := len(taken) - 1; i >= 0; i-- {
			taken[i]()
		}
		return err
	}

	for _, id := range access.ComponentWrites() {
		key := makeBorrowKey(borrowComponent, uint32(id))
		if err := b.acquireWrite(key); err != nil {
			return fail(err)
		}
		taken = append(taken, func() { b.releaseWrite(key) })
	}
	for _, id := range access.ComponentReads() {
		key := makeBorrowKey(borrowComponent, uint32(id))
		if err := b.acquireRead(key); err != nil {
			return fail(err)
		}
		taken = append(taken, func() { b.releaseRead(key) })
	}
	for _, id := range access.ResourceWrites() {
		key := makeBorrowKey(borrowResource, id)
		if err := b.acquireWrite(key); err != nil {
			return fail(err)
		}
		taken = append(taken, func() { b.releaseWrite(key) })
	}
	for _, id := range access.ResourceReads() {
		key := makeBorrowKey(borrowResource, id)
		if err := b.acquireRead(key); err != nil {
			return fail(err)
		}
		taken = append(taken, func() { b.releaseRead(key) })
	}
	return nil
}

// release gives back every borrow declared by access.
func (b *borrowTracker) release(access *Access) {
	for _, id := range access.ComponentWrites() {
		b.releaseWrite(makeBorrowKey(borrowComponent, uint32(id)))
	}
	for _, id := range access.ComponentReads() {
		b.releaseRead(makeBorrowKey(borrowComponent, uint32(id)))
	}
	for _, id := range access.ResourceWrites() {
		b.releaseWrite(makeBorrowKey(borrowResource, id))
	}
	for _, id := range access.ResourceReads() {
		b.releaseRead(makeBorrowKey(borrowResource, id))
	}
}
