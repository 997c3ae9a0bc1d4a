// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/memscan/sig"
	"github.com/grailbio/memscan/x86"
)

// Session is a lazy pipeline over a stream of pointers. Each operation wraps
// the stream and returns a new Session; nothing is evaluated until a
// terminal (GetPointer, GetPool, Count) drives it. After any step that can
// invalidate, invalidated pointers are dropped before the next step sees
// them.
//
// A Session is one-shot: consuming a terminal exhausts the stream, and any
// Session derived from the same ancestor shares that stream.
type Session struct {
	next func() (Pointer, bool)
}

// newSession wraps a pull iterator.
func newSession(next func() (Pointer, bool)) Session {
	return Session{next: next}
}

// StepForwards advances every pointer by n bytes.
func (s Session) StepForwards(n uint64) Session {
	return s.Mutate(func(p *Pointer) { p.Add(n) })
}

// StepBackwards moves every pointer back by n bytes.
func (s Session) StepBackwards(n uint64) Session {
	return s.Mutate(func(p *Pointer) { p.Sub(n) })
}

// Dereference replaces every pointer with the pointer-sized word it points
// at.
func (s Session) Dereference(order binary.ByteOrder) Session {
	return s.Mutate(func(p *Pointer) { p.Dereference(order) })
}

// RelativeToAbsolute resolves a rel32 displacement at every pointer.
func (s Session) RelativeToAbsolute(order binary.ByteOrder) Session {
	return s.Mutate(func(p *Pointer) { p.RelativeToAbsolute(order) })
}

// PrevOccurrence moves every pointer back to the previous match of the
// signature.
func (s Session) PrevOccurrence(pat sig.Signature, c Constraints) Session {
	return s.Mutate(func(p *Pointer) { p.PrevOccurrence(pat, c) })
}

// NextOccurrence moves every pointer forward to the next match of the
// signature.
func (s Session) NextOccurrence(pat sig.Signature, c Constraints) Session {
	return s.Mutate(func(p *Pointer) { p.NextOccurrence(pat, c) })
}

// NextInstruction advances every pointer past one decoded instruction.
func (s Session) NextInstruction(isa x86.Isa) Session {
	return s.Mutate(func(p *Pointer) { p.NextInstruction(isa) })
}

// FindAllReferences replaces every pointer with the set of sites referencing
// it, relatively or absolutely.
func (s Session) FindAllReferences(order binary.ByteOrder, instrLen int, c Constraints) Session {
	return s.flatMap(func(p Pointer) []Pointer {
		return p.FindAllReferences(order, instrLen, c)
	})
}

// FindRelativeReferences replaces every pointer with the set of rel32 sites
// referencing it.
func (s Session) FindRelativeReferences(order binary.ByteOrder, instrLen int, c Constraints) Session {
	return s.flatMap(func(p Pointer) []Pointer {
		return p.FindRelativeReferences(order, instrLen, c)
	})
}

// FindAbsoluteReferences replaces every pointer with the set of stored
// pointers referencing it.
func (s Session) FindAbsoluteReferences(order binary.ByteOrder, c Constraints) Session {
	return s.flatMap(func(p Pointer) []Pointer {
		return p.FindAbsoluteReferences(order, c)
	})
}

// SignatureFilter keeps only pointers whose current bytes match the
// signature.
func (s Session) SignatureFilter(pat sig.Signature) Session {
	return s.Filter(func(p Pointer) bool { return p.Matches(pat) })
}

// FilterModule keeps only pointers whose containing region's name basename
// equals base.
func (s Session) FilterModule(base string) Session {
	return s.Filter(func(p Pointer) bool {
		name, ok := p.ModuleName()
		if !ok {
			return false
		}
		b, ok := name.Basename()
		return ok && b == base
	})
}

// Filter keeps only pointers for which f returns true. Filtering does not
// touch pointer state, so it never resets or sets invalidation.
func (s Session) Filter(f func(Pointer) bool) Session {
	src := s.next
	return newSession(func() (Pointer, bool) {
		for {
			p, ok := src()
			if !ok {
				return Pointer{}, false
			}
			if f(p) {
				return p, true
			}
		}
	})
}

// Map replaces every pointer with f's result. Unlike Mutate, the stream is
// passed through as-is: results are not checked for invalidation.
func (s Session) Map(f func(Pointer) Pointer) Session {
	src := s.next
	return newSession(func() (Pointer, bool) {
		p, ok := src()
		if !ok {
			return Pointer{}, false
		}
		return f(p), true
	})
}

// Inspect calls f on every pointer as it flows past, without changing the
// stream. Use it to observe survivors before a later step drops them.
func (s Session) Inspect(f func(Pointer)) Session {
	src := s.next
	return newSession(func() (Pointer, bool) {
		p, ok := src()
		if ok {
			f(p)
		}
		return p, ok
	})
}

// Mutate applies an arbitrary pointer mutator to every pointer and drops
// those left invalidated.
func (s Session) Mutate(f func(*Pointer)) Session {
	src := s.next
	return newSession(func() (Pointer, bool) {
		for {
			p, ok := src()
			if !ok {
				return Pointer{}, false
			}
			f(&p)
			if p.invalid {
				continue
			}
			return p, true
		}
	})
}

// RepeatN applies f exactly n times to every pointer.
func (s Session) RepeatN(n int, f func(*Pointer)) Session {
	return s.Mutate(func(p *Pointer) {
		for i := 0; i < n; i++ {
			f(p)
		}
	})
}

// RepeatWhile applies f to every pointer until f returns false.
func (s Session) RepeatWhile(f func(*Pointer) bool) Session {
	return s.Mutate(func(p *Pointer) {
		for f(p) {
		}
	})
}

// flatMap replaces every pointer with a batch of derived pointers,
// preserving order and dropping invalidated ones.
func (s Session) flatMap(f func(Pointer) []Pointer) Session {
	src := s.next
	var pending []Pointer
	return newSession(func() (Pointer, bool) {
		for {
			for len(pending) > 0 {
				p := pending[0]
				pending = pending[1:]
				if !p.invalid {
					return p, true
				}
			}
			p, ok := src()
			if !ok {
				return Pointer{}, false
			}
			pending = f(p)
		}
	})
}

// AmbiguousError reports that GetPointer did not find exactly one survivor.
type AmbiguousError struct {
	// Count is the exact number of pointers left in the pool.
	Count int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("expected exactly one pointer, pool holds %d", e.Count)
}

// GetPointer consumes the stream. If exactly one pointer survived it returns
// that pointer's address; otherwise it returns an *AmbiguousError carrying
// the exact survivor count.
func (s Session) GetPointer() (uint64, error) {
	first, ok := s.next()
	if !ok {
		return 0, &AmbiguousError{Count: 0}
	}
	count := 1
	for {
		if _, ok := s.next(); !ok {
			break
		}
		count++
	}
	if count == 1 {
		return first.Address(), nil
	}
	return 0, &AmbiguousError{Count: count}
}

// GetPool consumes the stream and returns every survivor's address, in
// stream order.
func (s Session) GetPool() []uint64 {
	var addrs []uint64
	for {
		p, ok := s.next()
		if !ok {
			return addrs
		}
		addrs = append(addrs, p.addr)
	}
}

// Count consumes the stream and returns the number of survivors.
func (s Session) Count() int {
	n := 0
	for {
		if _, ok := s.next(); !ok {
			return n
		}
		n++
	}
}
