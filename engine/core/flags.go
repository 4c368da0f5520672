package core

import "sync/atomic"

// Flags is a bitset that can be read and mutated from several goroutines.
// Single flag changes and compound changes made through Update are applied
// with one compare-and-swap, so readers never observe half of an update.
type Flags[T ~uint32] struct {
	bits atomic.Uint32
}

func (f *Flags[T]) Load() T {
	return T(f.bits.Load())
}

func (f *Flags[T]) Store(v T) {
	f.bits.Store(uint32(v))
}

// Has reports whether every bit of flag is set.
func (f *Flags[T]) Has(flag T) bool {
	return f.bits.Load()&uint32(flag) == uint32(flag)
}

// Set sets or clears flag depending on on.
func (f *Flags[T]) Set(flag T, on bool) {
	if on {
		f.Update(flag, 0)
	} else {
		f.Update(0, flag)
	}
}

// Update sets the bits of set and clears the bits of clear in a single
// atomic step and returns the resulting value.
func (f *Flags[T]) Update(set, clear T) T {
	for {
		cr := f.bits.Load()
		nw := (cr | uint32(set)) &^ uint32(clear)
		if f.bits.CompareAndSwap(cr, nw) {
			return T(nw)
		}
	}
}

// TrySet sets flag only if none of its bits are set yet. It reports whether
// this call performed the change.
func (f *Flags[T]) TrySet(flag T) bool {
	for {
		cr := f.bits.Load()
		if cr&uint32(flag) != 0 {
			return false
		}
		if f.bits.CompareAndSwap(cr, cr|uint32(flag)) {
			return true
		}
	}
}

// TryUpdate applies Update(set, clear) in one step unless any bit of
// unlessSet is already set. It reports whether the update was applied.
func (f *Flags[T]) TryUpdate(set, clear, unlessSet T) bool {
	for {
		cr := f.bits.Load()
		if cr&uint32(unlessSet) != 0 {
			return false
		}
		nw := (cr | uint32(set)) &^ uint32(clear)
		if f.bits.CompareAndSwap(cr, nw) {
			return true
		}
	}
}
